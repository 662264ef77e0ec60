package server

import (
	"context"
	"errors"
	"math"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/oapi-codegen/runtime"
	"go.uber.org/zap"

	"github.com/anicoll/vrm-integration/internal/pkg/contxt"
	"github.com/anicoll/vrm-integration/internal/pkg/controller"
	"github.com/anicoll/vrm-integration/internal/pkg/model"
)

const queryTimeout = 30 * time.Second

type vrmController interface {
	Discover(ctx context.Context) error
	Widgets(ctx context.Context, types ...string) (model.Document, error)
	Devices() []controller.DeviceView
	Query(ctx context.Context, address string) (controller.DeviceView, error)
	Status() []model.DeviceStatus
	CacheRemaining() time.Duration
	InvalidateCache()
	Healthy() bool
}

type propertyStore interface {
	GetProperties(ctx context.Context, identifier string) (model.Properties, error)
}

type server struct {
	ctrl           vrmController
	store          propertyStore
	metrics        http.Handler
	adminTokenHash string
	logger         *zap.Logger
}

// New builds the API. store and metrics may be nil.
func New(ctrl vrmController, store propertyStore, metrics http.Handler, adminTokenHash string) *server {
	return &server{
		ctrl:           ctrl,
		store:          store,
		metrics:        metrics,
		adminTokenHash: adminTokenHash,
		logger:         zap.L(),
	}
}

func (s *server) RegisterRoutes() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.JSONSerializer = jsonSerializer{}
	e.Use(middleware.Recover())
	e.Use(LoggingMiddleware)

	e.GET("/healthcheck", s.HealthCheck)
	if s.metrics != nil {
		e.GET("/metrics", echo.WrapHandler(s.metrics))
	}

	router, err := loadRouter()
	if err != nil {
		panic("server: invalid embedded openapi.yaml: " + err.Error())
	}
	api := e.Group("/api", requestValidator(router))
	api.GET("/devices", s.GetDevices)
	api.GET("/devices/:address", s.GetDevice)
	api.GET("/controller", s.GetController)
	api.GET("/cache", s.GetCache)
	api.DELETE("/cache", s.DeleteCache, s.adminOnly)
	api.POST("/discover", s.PostDiscover, s.adminOnly)
	api.GET("/widgets", s.GetWidgets)
	api.GET("/properties", s.GetProperties)
	return e
}

// NewHTTPServer wraps the routes in an http.Server listening on addr.
func NewHTTPServer(addr string, s *server) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      s.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 45 * time.Second,
	}
}

func (s *server) HealthCheck(c echo.Context) error {
	if s.ctrl.Healthy() {
		return c.String(http.StatusOK, "health_check: OK")
	}
	return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
}

func (s *server) GetDevices(c echo.Context) error {
	return c.JSON(http.StatusOK, s.ctrl.Devices())
}

// GetDevice re-resolves the device. The work is detached from the request so
// a disconnecting client cannot cancel a fetch other callers share.
func (s *server) GetDevice(c echo.Context) error {
	ctx, cancel := contxt.Detach(c.Request().Context(), queryTimeout)
	defer cancel()

	var address string
	if err := runtime.BindStyledParameterWithOptions("simple", "address", c.Param("address"), &address, runtime.BindStyledParameterOptions{
		ParamLocation: runtime.ParamLocationPath,
		Required:      true,
	}); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	view, err := s.ctrl.Query(ctx, address)
	if errors.Is(err, controller.ErrUnknownDevice) {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, view)
}

func (s *server) GetController(c echo.Context) error {
	return c.JSON(http.StatusOK, s.ctrl.Status())
}

type cacheResponse struct {
	SecondsLeft int64 `json:"seconds_left"`
}

func (s *server) GetCache(c echo.Context) error {
	left := s.ctrl.CacheRemaining()
	return c.JSON(http.StatusOK, cacheResponse{SecondsLeft: int64(math.Ceil(left.Seconds()))})
}

func (s *server) DeleteCache(c echo.Context) error {
	s.ctrl.InvalidateCache()
	s.logger.Info("diagnostics cache invalidated over http", zap.String("remote", c.RealIP()))
	return c.NoContent(http.StatusNoContent)
}

// PostDiscover re-runs device discovery so devices added to the installation
// are picked up without a restart.
func (s *server) PostDiscover(c echo.Context) error {
	ctx, cancel := contxt.Detach(c.Request().Context(), queryTimeout)
	defer cancel()

	if err := s.ctrl.Discover(ctx); err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	s.logger.Info("discovery triggered over http", zap.String("remote", c.RealIP()))
	return c.JSON(http.StatusOK, s.ctrl.Devices())
}

func (s *server) GetWidgets(c echo.Context) error {
	var types []string
	if err := runtime.BindQueryParameter("form", false, false, "type", c.QueryParams(), &types); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	doc, err := s.ctrl.Widgets(c.Request().Context(), types...)
	switch {
	case errors.Is(err, controller.ErrNotDiscovered):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	case err != nil:
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return c.JSON(http.StatusOK, doc)
}

func (s *server) GetProperties(c echo.Context) error {
	if s.store == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "no database configured")
	}
	var identifier string
	if err := runtime.BindQueryParameter("form", true, false, "identifier", c.QueryParams(), &identifier); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	props, err := s.store.GetProperties(c.Request().Context(), identifier)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, props)
}
