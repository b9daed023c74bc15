package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ohler55/ojg/oj"
	"golang.org/x/oauth2"

	"github.com/mpapenbr/kartlog-telemetry-go/log"
	"github.com/mpapenbr/kartlog-telemetry-go/pkg/model"
	"github.com/mpapenbr/kartlog-telemetry-go/pkg/provider"
)

// Client talks to the REST API of the kartlog backend.
type Client struct {
	baseURL *url.URL
	token   string
	timeout time.Duration
	limit   int
	base    *http.Client
	http    *http.Client
	l       *log.Logger
}

type Option func(*Client)

// WithToken sets the bearer token sent with each request
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

func WithHTTPClient(arg *http.Client) Option {
	return func(c *Client) {
		c.base = arg
	}
}

func WithTimeout(arg time.Duration) Option {
	return func(c *Client) {
		c.timeout = arg
	}
}

// WithLimit sets the page size for list requests
func WithLimit(arg int) Option {
	return func(c *Client) {
		c.limit = arg
	}
}

func WithLogger(arg *log.Logger) Option {
	return func(c *Client) {
		c.l = arg
	}
}

var _ provider.Provider = (*Client)(nil)

func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid api url %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid api url %q: unsupported scheme", baseURL)
	}
	ret := &Client{
		baseURL: u,
		timeout: 30 * time.Second,
		limit:   100,
		base:    http.DefaultClient,
		l:       log.Default().Named("provider.api"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	ret.http = ret.base
	if ret.token != "" {
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, ret.base)
		ret.http = oauth2.NewClient(ctx,
			oauth2.StaticTokenSource(&oauth2.Token{AccessToken: ret.token}))
	}
	return ret, nil
}

func (c *Client) ListSessions(ctx context.Context) ([]*model.Session, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(c.limit))
	var ret []*model.Session
	if err := c.get(ctx, "/sessions/", q, &ret); err != nil {
		return nil, err
	}
	return ret, nil
}

//nolint:whitespace // readability
func (c *Client) ListLaps(
	ctx context.Context,
	sessionID int64,
	validOnly bool,
) ([]*model.Lap, error) {
	q := url.Values{}
	q.Set("session_id", strconv.FormatInt(sessionID, 10))
	q.Set("valid_only", strconv.FormatBool(validOnly))
	q.Set("limit", strconv.Itoa(c.limit))
	var ret []*model.Lap
	if err := c.get(ctx, "/laps/", q, &ret); err != nil {
		return nil, err
	}
	return ret, nil
}

//nolint:whitespace // readability
func (c *Client) GetLapTelemetry(
	ctx context.Context,
	lapID int64,
) ([]model.TelemetrySample, error) {
	var ret []model.TelemetrySample
	if err := c.get(ctx, fmt.Sprintf("/laps/%d/telemetry", lapID), nil, &ret); err != nil {
		return nil, err
	}
	return ret, nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values, target any) error {
	u := *c.baseURL
	u.Path += path
	if q != nil {
		u.RawQuery = q.Encode()
	}
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, u.String(), http.NoBody)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("GET %s: reading body: %w", path, err)
	}
	c.l.Debug("response",
		log.String("path", path),
		log.Int("status", resp.StatusCode),
		log.Int("bytes", len(data)),
		log.Duration("duration", time.Since(start)))

	if err := checkStatus(resp.StatusCode); err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	if err := oj.Unmarshal(data, target); err != nil {
		return fmt.Errorf("GET %s: decoding response: %w", path, err)
	}
	return nil
}

func checkStatus(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusNotFound:
		return provider.ErrNotFound
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		return provider.ErrUnauthorized
	default:
		return fmt.Errorf("unexpected status %d", code)
	}
}
