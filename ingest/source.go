package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// ErrUpstreamUnavailable marks a server-side failure for one zip
// query. The refresher skips that zip and moves on.
var ErrUpstreamUnavailable = errors.New("upstream unavailable")

const defaultRetries = 5

// Client talks to the upstream catalog: the paginated stores endpoint
// and the per-zip clearance endpoint. It honors 429 Retry-After and
// backs off exponentially on transient failures.
type Client struct {
	base    string
	token   string
	http    *http.Client
	log     *slog.Logger
	retries int

	// backoff is the unit the exponential schedule multiplies. Tests
	// shrink it.
	backoff time.Duration
}

func NewClient(base, token string, log *slog.Logger) *Client {
	return &Client{
		base:    base,
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
		log:     log,
		retries: defaultRetries,
		backoff: time.Second,
	}
}

// FetchStores returns the full store catalog as raw nested records.
// Server errors are retried like any other transient failure.
func (c *Client) FetchStores(ctx context.Context) ([]map[string]any, error) {
	params := url.Values{"per_page": {"1000"}, "country": {"DK"}}
	records, err := c.getJSON(ctx, c.base+"/v2/stores", params, true)
	if err != nil {
		return nil, errors.Wrap(err, "fetch stores")
	}
	return records, nil
}

// FetchClearances returns the clearance records for one zip code.
// A persistent server error comes back as ErrUpstreamUnavailable so
// the caller can skip the zip without aborting the cycle.
func (c *Client) FetchClearances(ctx context.Context, zip string) ([]map[string]any, error) {
	params := url.Values{"zip": {zip}}
	records, err := c.getJSON(ctx, c.base+"/v1/food-waste/", params, false)
	if err != nil {
		return nil, errors.Wrapf(err, "fetch clearances for zip %s", zip)
	}
	return records, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, params url.Values, retryServerErrors bool) ([]map[string]any, error) {
	var lastErr error
	for attempt := 0; attempt < c.retries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.token)

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			c.log.Warn("upstream request failed", "url", endpoint, "attempt", attempt+1, "error", err)
			if waitErr := c.wait(ctx, c.backoff<<attempt); waitErr != nil {
				return nil, waitErr
			}
			continue
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			delay := c.retryAfter(resp, attempt)
			resp.Body.Close()
			c.log.Warn("rate limited", "url", endpoint, "wait", delay)
			if waitErr := c.wait(ctx, delay); waitErr != nil {
				return nil, waitErr
			}
			continue
		case resp.StatusCode >= 500:
			resp.Body.Close()
			lastErr = errors.Wrapf(ErrUpstreamUnavailable, "status %d", resp.StatusCode)
			if !retryServerErrors {
				return nil, lastErr
			}
			if waitErr := c.wait(ctx, c.backoff<<attempt); waitErr != nil {
				return nil, waitErr
			}
			continue
		case resp.StatusCode != http.StatusOK:
			resp.Body.Close()
			return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, endpoint)
		}

		var records []map[string]any
		err = json.NewDecoder(resp.Body).Decode(&records)
		resp.Body.Close()
		if err != nil {
			return nil, errors.Wrap(err, "decode upstream response")
		}
		return records, nil
	}
	return nil, errors.Wrapf(lastErr, "giving up after %d attempts", c.retries)
}

// retryAfter reads the 429 Retry-After header, falling back to the
// exponential schedule when the header is absent or unparseable.
func (c *Client) retryAfter(resp *http.Response, attempt int) time.Duration {
	if header := resp.Header.Get("Retry-After"); header != "" {
		if secs, err := strconv.Atoi(header); err == nil && secs >= 0 {
			return time.Duration(secs) * c.backoff
		}
	}
	return (c.backoff << attempt) * 2
}

func (c *Client) wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
