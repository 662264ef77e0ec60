// Package vrm is a client for the Victron Remote Management API.
package vrm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/anicoll/vrm-integration/internal/pkg/config"
	"github.com/anicoll/vrm-integration/internal/pkg/model"
)

var (
	ErrTransport        = errors.New("vrm transport error")
	ErrNotFound         = errors.New("vrm resource not found")
	ErrMalformedPayload = errors.New("vrm payload malformed")
)

type client struct {
	httpClient         *http.Client
	logger             *zap.Logger
	baseURL            string
	apiToken           string
	timeout            time.Duration
	diagnosticsTimeout time.Duration
	limiter            *rate.Limiter
	breaker            *gobreaker.CircuitBreaker[[]byte]
	now                func() time.Time
}

func New(cfg config.VrmConfig) *client {
	c := &client{
		httpClient:         &http.Client{},
		logger:             zap.L(),
		baseURL:            strings.TrimRight(cfg.BaseURL, "/"),
		apiToken:           cfg.APIKey,
		timeout:            cfg.Timeout,
		diagnosticsTimeout: cfg.DiagnosticsTimeout,
		now:                time.Now,
	}
	if c.timeout <= 0 {
		c.timeout = 10 * time.Second
	}
	if c.diagnosticsTimeout <= 0 {
		c.diagnosticsTimeout = 15 * time.Second
	}
	limit, burst := rate.Limit(cfg.RateLimit), cfg.RateBurst
	if cfg.RateLimit <= 0 {
		limit = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	c.limiter = rate.NewLimiter(limit, burst)
	c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "vrm",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("vrm circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return c
}

func (c *client) get(ctx context.Context, path string, query url.Values, timeout time.Duration) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	body, err := c.breaker.Execute(func() ([]byte, error) {
		return c.do(ctx, path, query, timeout)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	return body, err
}

func (c *client) do(ctx context.Context, path string, query url.Values, timeout time.Duration) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	req.Header.Add("X-Authorization", "Token "+c.apiToken)
	req.Header.Add("Content-Type", "application/json")
	req.Header.Add("Accept", "application/json")

	start := c.now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", ErrTransport, path, err)
	}
	c.logger.Debug("vrm request",
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", c.now().Sub(start)))

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("%w: %s returned %d", ErrTransport, path, resp.StatusCode)
	}
	return body, nil
}

func decode(body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	return nil
}

func (c *client) document(ctx context.Context, path string, query url.Values, timeout time.Duration) (model.Document, error) {
	body, err := c.get(ctx, path, query, timeout)
	if err != nil {
		return nil, err
	}
	doc := model.Document{}
	if err := decode(body, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Me returns the id of the user the API token belongs to.
func (c *client) Me(ctx context.Context) (int64, error) {
	body, err := c.get(ctx, "/users/me", nil, c.timeout)
	if err != nil {
		return 0, err
	}
	resp := model.MeResponse{}
	if err := decode(body, &resp); err != nil {
		return 0, err
	}
	if resp.User == nil {
		return 0, fmt.Errorf("%w: no user in response", ErrMalformedPayload)
	}
	return resp.User.ID, nil
}

func (c *client) Installations(ctx context.Context, userID int64) ([]model.Installation, error) {
	body, err := c.get(ctx, fmt.Sprintf("/users/%d/installations", userID), nil, c.timeout)
	if err != nil {
		return nil, err
	}
	resp := model.InstallationsResponse{}
	if err := decode(body, &resp); err != nil {
		return nil, err
	}
	if resp.Records == nil {
		return nil, fmt.Errorf("%w: no records in installations response", ErrMalformedPayload)
	}
	return resp.Records, nil
}

// SystemOverview returns the records object of the installation's system
// overview, the one carrying devices[].
func (c *client) SystemOverview(ctx context.Context, installationID int64) (model.Document, error) {
	doc, err := c.document(ctx, fmt.Sprintf("/installations/%d/system-overview", installationID), nil, c.timeout)
	if err != nil {
		return nil, err
	}
	records := doc.Object("records")
	if records == nil {
		return nil, fmt.Errorf("%w: no records in system overview", ErrMalformedPayload)
	}
	return records, nil
}

// Diagnostics fetches and normalises the installation's diagnostics feed.
func (c *client) Diagnostics(ctx context.Context, installationID int64) (*model.DiagnosticsBatch, error) {
	doc, err := c.document(ctx, fmt.Sprintf("/installations/%d/diagnostics", installationID), nil, c.diagnosticsTimeout)
	if err != nil {
		return nil, err
	}
	batch, err := NormaliseDiagnostics(doc)
	if err != nil {
		return nil, err
	}
	batch.CapturedAt = c.now()
	c.logger.Debug("diagnostics received",
		zap.Int64("installation", installationID),
		zap.Int("records", batch.Len()))
	return batch, nil
}

// NormaliseDiagnostics turns a raw diagnostics response into records. Records
// with odd field types are kept with those fields blanked.
func NormaliseDiagnostics(doc model.Document) (*model.DiagnosticsBatch, error) {
	raw, ok := doc["records"].([]any)
	if !ok {
		return nil, fmt.Errorf("%w: diagnostics records missing", ErrMalformedPayload)
	}
	batch := &model.DiagnosticsBatch{Records: make([]model.DiagnosticRecord, 0, len(raw))}
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		entry := model.Document(m)
		label := entry.String("Device")
		batch.Records = append(batch.Records, model.DiagnosticRecord{
			Kind:        model.KindFromLabel(label),
			Label:       label,
			Instance:    entry.Instance(),
			Description: entry.String("description"),
			RawValue:    scalar(entry["rawValue"]),
		})
	}
	return batch, nil
}

func scalar(v any) any {
	switch v.(type) {
	case float64, string, bool:
		return v
	}
	return nil
}

// Widgets returns the raw widgets document, filtered by widget type when given.
func (c *client) Widgets(ctx context.Context, installationID int64, types ...string) (model.Document, error) {
	var query url.Values
	if len(types) > 0 {
		query = url.Values{"type": {strings.Join(types, ",")}}
	}
	return c.document(ctx, fmt.Sprintf("/installations/%d/widgets", installationID), query, c.timeout)
}
