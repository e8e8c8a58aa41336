package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MrWong99/papo/internal/resilience"
)

// DefaultTimeout bounds every request.
const DefaultTimeout = 10 * time.Second

// Observer is told about every finished call. op is one of "create_user",
// "update_xp" or "authenticate".
type Observer func(ctx context.Context, op string, d time.Duration, err error)

// Option configures an [HTTPClient].
type Option func(*HTTPClient)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(c *http.Client) Option {
	return func(h *HTTPClient) { h.http = c }
}

// WithTimeout sets the per-request timeout. Zero or negative disables it.
func WithTimeout(d time.Duration) Option {
	return func(h *HTTPClient) { h.timeout = d }
}

// WithBreaker overrides the circuit breaker configuration.
func WithBreaker(cfg resilience.CircuitBreakerConfig) Option {
	return func(h *HTTPClient) { h.breakerCfg = cfg }
}

// WithObserver registers a per-call hook, typically for metrics.
func WithObserver(o Observer) Option {
	return func(h *HTTPClient) { h.observe = o }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *HTTPClient) { h.log = l }
}

// HTTPClient implements [Client] over the JSON REST API.
type HTTPClient struct {
	base       string
	http       *http.Client
	timeout    time.Duration
	breakerCfg resilience.CircuitBreakerConfig
	breaker    *resilience.CircuitBreaker
	observe    Observer
	log        *slog.Logger
}

var _ Client = (*HTTPClient)(nil)

// New creates a client for the API rooted at baseURL
// (e.g. "http://localhost:3001/api").
func New(baseURL string, opts ...Option) (*HTTPClient, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("backend: parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("backend: base url %q must be http or https", baseURL)
	}
	h := &HTTPClient{
		base:       strings.TrimRight(baseURL, "/"),
		http:       http.DefaultClient,
		timeout:    DefaultTimeout,
		breakerCfg: resilience.CircuitBreakerConfig{Name: "backend"},
		log:        slog.Default(),
	}
	for _, o := range opts {
		o(h)
	}
	if h.breakerCfg.IsFailure == nil {
		h.breakerCfg.IsFailure = countsAsFailure
	}
	if h.breakerCfg.OnStateChange == nil {
		log := h.log
		h.breakerCfg.OnStateChange = func(name string, from, to resilience.State) {
			log.Warn("backend: circuit breaker state change", "name", name, "from", from, "to", to)
		}
	}
	h.breaker = resilience.NewCircuitBreaker(h.breakerCfg)
	return h, nil
}

// BreakerState exposes the breaker for health checks.
func (h *HTTPClient) BreakerState() resilience.State {
	return h.breaker.State()
}

// CreateUser implements [Client].
func (h *HTTPClient) CreateUser(ctx context.Context, transcript string) (*User, error) {
	var u User
	err := h.call(ctx, "create_user", "/users/voice", map[string]any{"transcript": transcript}, &u)
	if err != nil {
		return nil, err
	}
	if u.ID == "" {
		return nil, fmt.Errorf("backend: create_user: response without _id")
	}
	return &u, nil
}

// UpdateXP implements [Client].
func (h *HTTPClient) UpdateXP(ctx context.Context, userID string, xp int, phone string) (*XPResult, error) {
	if userID == "" {
		return nil, fmt.Errorf("backend: update_xp: empty user id")
	}
	var r XPResult
	path := "/users/" + url.PathEscape(userID) + "/xp"
	if err := h.call(ctx, "update_xp", path, map[string]any{"xp": xp, "phone": phone}, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Authenticate implements [Client].
func (h *HTTPClient) Authenticate(ctx context.Context, name, phone, voiceMarker string) (*AuthResult, error) {
	var r AuthResult
	body := map[string]any{"name": name, "phone": phone, "voiceMarker": voiceMarker}
	err := h.call(ctx, "authenticate", "/auth/voice", body, &r)
	if err != nil {
		return nil, err
	}
	if !r.Success {
		reason := r.Error
		if reason == "" {
			reason = "no reason given"
		}
		return &r, fmt.Errorf("%w: %s", ErrAuthRejected, reason)
	}
	return &r, nil
}

func (h *HTTPClient) call(ctx context.Context, op, path string, in, out any) (err error) {
	start := time.Now()
	defer func() {
		if h.observe != nil {
			h.observe(ctx, op, time.Since(start), err)
		}
	}()

	return h.breaker.Execute(func() error {
		return h.do(ctx, op, path, in, out)
	})
}

func (h *HTTPClient) do(ctx context.Context, op, path string, in, out any) error {
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	data, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("backend: %s: marshal request: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.base+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("backend: %s: build request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := h.http.Do(req)
	if err != nil {
		return fmt.Errorf("backend: %s: %w", op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("backend: %s: read response: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// The sign-in endpoint answers 401 with a regular {success:false} body.
		if op == "authenticate" && resp.StatusCode < 500 {
			if r, ok := out.(*AuthResult); ok && json.Unmarshal(body, r) == nil && !r.Success {
				return nil
			}
		}
		return &StatusError{Op: op, Code: resp.StatusCode, Body: string(body)}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("backend: %s: decode response: %w", op, err)
	}
	return nil
}
