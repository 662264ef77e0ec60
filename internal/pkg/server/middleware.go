package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/anicoll/vrm-integration/pkg/hasher"
)

func LoggingMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	logger := zap.L()
	return func(c echo.Context) error {
		start := time.Now()
		if origin := c.Request().Header.Get("Origin"); origin != "" {
			c.Response().Header().Set("Access-Control-Allow-Origin", origin)
		}
		err := next(c)
		if err != nil {
			c.Error(err)
		}
		logger.Info(c.Request().RequestURI,
			zap.String("method", c.Request().Method),
			zap.Int("status", c.Response().Status),
			zap.Duration("latency", time.Since(start)))
		return nil
	}
}

// adminOnly requires a bearer token matching the configured bcrypt hash.
func (s *server) adminOnly(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if s.adminTokenHash == "" {
			return echo.NewHTTPError(http.StatusForbidden, "admin token not configured")
		}
		token, ok := strings.CutPrefix(c.Request().Header.Get(echo.HeaderAuthorization), "Bearer ")
		if !ok || !hasher.TokenMatches(token, s.adminTokenHash) {
			s.logger.Warn("rejected admin request", zap.String("path", c.Path()), zap.String("remote", c.RealIP()))
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid admin token")
		}
		return next(c)
	}
}

type jsonSerializer struct{}

func (jsonSerializer) Serialize(c echo.Context, i any, indent string) error {
	enc := json.NewEncoder(c.Response())
	if indent != "" {
		enc.SetIndent("", indent)
	}
	return enc.Encode(i)
}

func (jsonSerializer) Deserialize(c echo.Context, i any) error {
	if err := json.NewDecoder(c.Request().Body).Decode(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error()).SetInternal(err)
	}
	return nil
}
