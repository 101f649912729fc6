package venue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"WindowEdge/internal/service/ratelimit"
	xhttp "WindowEdge/pkg/http"
)

// HTTPServiceBase is the shared foundation of the venue REST clients: one
// HTTP client, a base URL, an optional API key and a token-bucket limiter.
type HTTPServiceBase struct {
	baseURL  string
	apiKey   string
	client   *xhttp.Client
	limiter  *ratelimit.Limiter
	capacity float64
	perSec   float64
}

// NewHTTPServiceBase builds a client for baseURL. limiter may be shared
// between bases talking to the same host.
func NewHTTPServiceBase(baseURL, apiKey string, timeout time.Duration, limiter *ratelimit.Limiter, capacity, perSec float64) *HTTPServiceBase {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &HTTPServiceBase{
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiKey:   apiKey,
		client:   xhttp.NewClient(xhttp.WithTimeout(timeout)),
		limiter:  limiter,
		capacity: capacity,
		perSec:   perSec,
	}
}

func (b *HTTPServiceBase) do(ctx context.Context, method, path string, query map[string][]string, payload, dest any) error {
	if b.client == nil || b.baseURL == "" {
		return fmt.Errorf("venue http client not initialized")
	}
	if b.limiter != nil {
		if err := b.limiter.Wait(ctx, b.baseURL, b.capacity, b.perSec); err != nil {
			return fmt.Errorf("rate limit: %w", err)
		}
	}
	headers := map[string]string{"Accept": "application/json"}
	if payload != nil {
		headers["Content-Type"] = "application/json"
	}
	if b.apiKey != "" {
		headers["Authorization"] = "Bearer " + b.apiKey
	}
	err := b.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:      method,
		URL:         b.baseURL + path,
		Headers:     headers,
		QueryParams: query,
		Body:        payload,
	}, dest)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	return nil
}

// GetJSON issues a GET and decodes the JSON response into dest.
func (b *HTTPServiceBase) GetJSON(ctx context.Context, path string, query map[string][]string, dest any) error {
	return b.do(ctx, xhttp.MethodGet, path, query, nil, dest)
}

// PostJSON posts the given payload to path under baseURL and decodes JSON into dest.
func (b *HTTPServiceBase) PostJSON(ctx context.Context, path string, payload, dest any) error {
	return b.do(ctx, xhttp.MethodPost, path, nil, payload, dest)
}

// Delete issues a DELETE and discards the body.
func (b *HTTPServiceBase) Delete(ctx context.Context, path string) error {
	return b.do(ctx, xhttp.MethodDelete, path, nil, nil, nil)
}

// GetJSONWithRetry retries transient failures (5xx, 429, transport errors) up
// to attempts times. Only idempotent reads go through here.
func (b *HTTPServiceBase) GetJSONWithRetry(ctx context.Context, path string, query map[string][]string, dest any, attempts int) error {
	var err error
	for i := 1; i <= max(attempts, 1); i++ {
		err = b.GetJSON(ctx, path, query, dest)
		if err == nil || !transient(err) {
			return err
		}
		select {
		case <-time.After(time.Duration(i) * 50 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func transient(err error) bool {
	var se *xhttp.StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

func isNotFound(err error) bool {
	var se *xhttp.StatusError
	return errors.As(err, &se) && se.Code == 404
}
