package rest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-playground/validator/v10"

	"storico/internal/core"
	applog "storico/internal/log"
	ports "storico/internal/sales"
)

var _ ports.SaleLister = (*Client)(nil)

// maxBodyBytes caps the size of a sales response.
const maxBodyBytes = 10 << 20

// HTTPError is returned for non-2xx responses that are not retried away.
type HTTPError struct {
	StatusCode int
	Status     string
	URL        string
	Method     string
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s %s failed with status %d %s: %s", e.Method, e.URL, e.StatusCode, e.Status, e.Body)
}

// RetryConfig configures retries of idempotent requests.
type RetryConfig struct {
	MaxRetries           int
	InitialInterval      time.Duration
	MaxInterval          time.Duration
	Multiplier           float64
	MaxElapsedTime       time.Duration
	RetryableStatusCodes []int
}

// DefaultRetryConfig retries timeouts, throttling and gateway errors.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:           3,
		InitialInterval:      100 * time.Millisecond,
		MaxInterval:          5 * time.Second,
		Multiplier:           2.0,
		MaxElapsedTime:       30 * time.Second,
		RetryableStatusCodes: []int{408, 429, 500, 502, 503, 504},
	}
}

// Config holds the connection settings of the sales API.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
	Retry   RetryConfig
	// Location is used for timestamps that carry no zone. Defaults to UTC.
	Location *time.Location
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger sets the logger used for request and validation messages.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// Client reads client sales from the remote REST API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	retry      RetryConfig
	location   *time.Location
	validate   *validator.Validate
	logger     *slog.Logger
}

// New creates a sales API client.
func New(cfg Config, opts ...Option) (*Client, error) {
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		return nil, errors.New("missing sales API base URL")
	}
	u, err := url.Parse(base)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid sales API base URL %q", base)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}

	c := &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimSuffix(base, "/"),
		token:      cfg.Token,
		retry:      cfg.Retry,
		location:   loc,
		validate:   newValidator(),
		logger:     slog.Default().With(applog.FieldComponent, applog.ComponentSalesAPI),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ListClientSales implements sales.SaleLister. Sales failing schema validation
// are dropped and logged; the rest are returned in response order.
func (c *Client) ListClientSales(ctx context.Context, clientID string) ([]core.Sale, error) {
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		return nil, errors.New("empty client id")
	}
	path := "/clients/" + url.PathEscape(clientID) + "/sales"

	body, err := c.get(ctx, path)
	if err != nil {
		var httpErr *HTTPError
		if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("client %s: %w", clientID, ports.ErrClientNotFound)
		}
		return nil, err
	}

	dtos, err := decodeSales(body)
	if err != nil {
		return nil, fmt.Errorf("decode sales of client %s: %w", clientID, err)
	}

	out := make([]core.Sale, 0, len(dtos))
	for i, dto := range dtos {
		sale, err := c.toSale(dto, clientID)
		if err != nil {
			c.logger.WarnContext(ctx, "Dropping invalid sale from API response",
				applog.FieldClientID, clientID,
				applog.FieldSaleID, dto.ID,
				"index", i,
				applog.FieldError, err)
			continue
		}
		out = append(out, sale)
	}
	c.logger.DebugContext(ctx, "Fetched client sales",
		applog.FieldClientID, clientID,
		applog.FieldSaleCount, len(out),
		"dropped", len(dtos)-len(out))
	return out, nil
}

// get performs a GET with bearer auth, retrying retryable statuses and transport
// errors with exponential backoff.
func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	fullURL := c.baseURL + path
	start := time.Now()

	var body []byte
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("create request: %w", err))
		}
		req.Header.Set("Accept", "application/json")
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return fmt.Errorf("read response body: %w", err)
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			body = data
			return nil
		}

		httpErr := &HTTPError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			URL:        fullURL,
			Method:     http.MethodGet,
			Body:       truncate(string(data), 512),
		}
		if slices.Contains(c.retry.RetryableStatusCodes, resp.StatusCode) {
			return httpErr
		}
		return backoff.Permanent(httpErr)
	}

	var err error
	if c.retry.MaxRetries > 0 {
		exp := backoff.NewExponentialBackOff()
		exp.InitialInterval = c.retry.InitialInterval
		exp.MaxInterval = c.retry.MaxInterval
		if c.retry.Multiplier > 0 {
			exp.Multiplier = c.retry.Multiplier
		}
		exp.MaxElapsedTime = c.retry.MaxElapsedTime
		policy := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(c.retry.MaxRetries)), ctx)
		err = backoff.RetryNotify(operation, policy, func(err error, wait time.Duration) {
			c.logger.WarnContext(ctx, "Retrying sales API request",
				applog.FieldPath, path,
				applog.FieldError, err,
				"wait", wait)
		})
	} else {
		err = operation()
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			err = perm.Err
		}
	}

	duration := time.Since(start)
	if err != nil {
		c.logger.WarnContext(ctx, "Sales API request failed",
			applog.FieldPath, path,
			applog.FieldError, err,
			applog.FieldDuration, duration.Milliseconds())
		return nil, err
	}
	c.logger.DebugContext(ctx, "Sales API request successful",
		applog.FieldPath, path,
		applog.FieldDuration, duration.Milliseconds())
	return body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
