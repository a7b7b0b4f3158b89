// Package client talks to the customer and product services over HTTP.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/vietddude/quotation/internal/core/metrics"
	"github.com/vietddude/quotation/internal/core/retry"
)

// maxErrorBody caps how much of an error response is kept.
const maxErrorBody = 512

// Config holds the connection settings of one remote service.
type Config struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// StatusError is a non-2xx response other than 404.
type StatusError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s service returned http %d", e.Service, e.StatusCode)
	}
	return fmt.Sprintf("%s service returned http %d: %s", e.Service, e.StatusCode, e.Body)
}

// Temporary reports whether the same request may succeed later.
func (e *StatusError) Temporary() bool {
	switch {
	case e.StatusCode == http.StatusRequestTimeout,
		e.StatusCode == http.StatusTooManyRequests,
		e.StatusCode >= 500:
		return true
	default:
		return false
	}
}

// baseClient performs JSON GETs against one service.
type baseClient struct {
	service    string
	baseURL    string
	httpClient *http.Client
}

func newBaseClient(service string, cfg Config) (*baseClient, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("%s service base url is required", service)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &baseClient{
		service: service,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}, nil
}

// get decodes the response of GET path into out. found is false on 404.
// Failures that retrying cannot fix are wrapped with retry.Permanent.
func (c *baseClient) get(ctx context.Context, path string, out any) (found bool, err error) {
	start := time.Now()
	status := "error"
	defer func() {
		metrics.ClientRequests.WithLabelValues(c.service, status).Inc()
		metrics.ClientLatency.WithLabelValues(c.service).Observe(time.Since(start).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return false, retry.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() == nil {
			// client timeout only: keep it retryable for the caller's classifier
			return false, fmt.Errorf("%s request %s: %v", c.service, path, err)
		}
		return false, fmt.Errorf("%s request %s: %w", c.service, path, err)
	}
	defer resp.Body.Close()
	status = strconv.Itoa(resp.StatusCode)

	if resp.StatusCode == http.StatusNotFound {
		_, _ = io.Copy(io.Discard, resp.Body)
		return false, nil
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		statusErr := &StatusError{
			Service:    c.service,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
		if statusErr.Temporary() {
			return false, statusErr
		}
		return false, retry.Permanent(statusErr)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return false, err
		}
		return false, retry.Permanent(fmt.Errorf("decode %s response: %w", c.service, err))
	}
	return true, nil
}
