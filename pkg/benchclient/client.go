package benchclient

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"benchd.sh/internal/health"
	"benchd.sh/internal/models"
	"benchd.sh/internal/retry"
)

const (
	defaultAPIPrefix  = "/api/v1"
	defaultStreamPath = "/ws/system-stream"
)

// StatusError is returned when the server answers with a non-2xx status
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("benchd returned %d", e.Code)
	}
	return fmt.Sprintf("benchd returned %d: %s", e.Code, e.Message)
}

// Client represents a client for a benchd server.
type Client struct {
	baseURL    *url.URL
	apiPrefix  string
	httpClient *http.Client
	dialer     *websocket.Dialer
	logger     *slog.Logger
}

type ClientOption func(*Client)

func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTLSConfig sets the TLS configuration for HTTPS requests and WSS
// streams, e.g. to trust a bench's self-signed certificate.
func WithTLSConfig(config *tls.Config) ClientOption {
	return func(c *Client) {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.TLSClientConfig = config
		hc := *c.httpClient
		hc.Transport = otelhttp.NewTransport(transport)
		c.httpClient = &hc
		c.dialer.TLSClientConfig = config
	}
}

// WithAPIPrefix overrides the server's API prefix (default /api/v1)
func WithAPIPrefix(prefix string) ClientOption {
	return func(c *Client) {
		c.apiPrefix = "/" + strings.Trim(prefix, "/")
	}
}

// NewClient creates a new benchd client.
//
// baseURL is the server root, e.g. http://bench-01.local:8000. ws:// and
// wss:// URLs are accepted and mapped to their HTTP equivalents, so a
// stream URL with its path works as well.
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	switch u.Scheme {
	case "http", "https":
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	default:
		return nil, fmt.Errorf("invalid base URL %q: unsupported scheme %q", baseURL, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q: missing host", baseURL)
	}
	u.Path = strings.TrimSuffix(strings.TrimSuffix(u.Path, defaultStreamPath), "/")
	u.RawQuery = ""

	c := &Client{
		baseURL:    u,
		apiPrefix:  defaultAPIPrefix,
		httpClient: &http.Client{
			Timeout:   10 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// BaseURL returns the server root
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// StreamURL returns the WebSocket URL of the snapshot stream
func (c *Client) StreamURL() string {
	u := *c.baseURL
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path += defaultStreamPath
	return u.String()
}

// Health fetches one freshly assembled snapshot.
func (c *Client) Health(ctx context.Context) (*models.Snapshot, error) {
	var snap models.Snapshot
	if err := c.getJSON(ctx, c.apiPrefix+"/health", &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Status fetches a snapshot together with the server's health verdict.
func (c *Client) Status(ctx context.Context) (*health.Report, error) {
	var report health.Report
	if err := c.getJSON(ctx, c.apiPrefix+"/health/status", &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// Stream subscribes to the snapshot stream and calls fn for every message
// until ctx is cancelled, fn returns an error or the server closes the
// connection. A normal or going-away close from the server returns nil.
func (c *Client) Stream(ctx context.Context, fn func(models.Snapshot) error) error {
	streamURL := c.StreamURL()
	c.logger.With("url", streamURL).Debug("Connecting to snapshot stream")

	ws, resp, err := c.dialer.DialContext(ctx, streamURL, nil)
	if err != nil {
		if resp != nil {
			return &StatusError{Code: resp.StatusCode, Message: err.Error()}
		}
		return fmt.Errorf("failed to connect to %s: %w", streamURL, err)
	}
	defer ws.Close()

	// Unblock ReadMessage when the caller gives up
	stop := context.AfterFunc(ctx, func() {
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = ws.Close()
	})
	defer stop()

	for {
		_, msg, err := ws.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug("Snapshot stream closed by server")
				return nil
			}
			return fmt.Errorf("stream read failed: %w", err)
		}

		var snap models.Snapshot
		if err := json.Unmarshal(msg, &snap); err != nil {
			return fmt.Errorf("failed to decode snapshot: %w", err)
		}
		if err := fn(snap); err != nil {
			return err
		}
	}
}

// DisconnectFunc is told why a stream ended and how long Follow waits
// before reconnecting.
type DisconnectFunc func(err error, delay time.Duration)

// Follow is Stream with reconnection. After the stream ends for any
// reason other than ctx, fn or a client-side (4xx) rejection, it waits
// per backoff and dials again. The backoff resets once a connection
// delivers a snapshot.
func (c *Client) Follow(ctx context.Context, backoff retry.Config, fn func(models.Snapshot) error, onDisconnect DisconnectFunc) error {
	b := retry.NewBackoff(backoff)

	for {
		delivered := false
		var fnErr error
		err := c.Stream(ctx, func(s models.Snapshot) error {
			delivered = true
			fnErr = fn(s)
			return fnErr
		})

		switch {
		case fnErr != nil:
			return fnErr
		case ctx.Err() != nil:
			return ctx.Err()
		case !Retryable(err):
			return err
		}

		if delivered {
			b.Reset()
		}
		delay := b.Next()
		if delay == 0 {
			if err == nil {
				err = errors.New("stream closed by server")
			}
			return err
		}

		c.logger.With("error", err, "delay", delay).Debug("Reconnecting to snapshot stream")
		if onDisconnect != nil {
			onDisconnect(err, delay)
		}
		if err := retry.Sleep(ctx, delay); err != nil {
			return err
		}
	}
}

// Retryable reports whether a request or stream failure may succeed on a
// later attempt. A server-side close (nil) is retryable; an untrusted
// certificate is not.
func Retryable(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= 500 || se.Code == http.StatusTooManyRequests
	}
	return true
}

func (c *Client) getJSON(ctx context.Context, path string, v any) error {
	u := *c.baseURL
	u.Path += path

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", u.String(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeStatusError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func decodeStatusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		return &StatusError{Code: resp.StatusCode, Message: payload.Error}
	}
	return &StatusError{Code: resp.StatusCode, Message: strings.TrimSpace(string(body))}
}

// IsStatus reports whether err is a StatusError with the given code
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}
