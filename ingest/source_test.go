package ingest

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkg/errors"
)

func newTestClient(base string) *Client {
	c := NewClient(base, "test-token", slog.New(slog.NewTextHandler(testWriter{}, nil)))
	c.backoff = time.Millisecond
	return c
}

type testWriter struct{}

func (testWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestFetchStores(t *testing.T) {
	var gotAuth, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`[{"id":"s1","name":"Netto"}]`))
	}))
	t.Cleanup(srv.Close)

	records, err := newTestClient(srv.URL).FetchStores(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "s1", records[0]["id"])
	assert.Equal(t, "Bearer test-token", gotAuth)
	assert.Contains(t, gotQuery, "country=DK")
}

func TestFetchClearances_RetriesOn429(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`[{"store":{"id":"s1"},"clearances":[]}]`))
	}))
	t.Cleanup(srv.Close)

	records, err := newTestClient(srv.URL).FetchClearances(context.Background(), "8000")
	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Equal(t, 2, attempts)
}

func TestFetchClearances_ServerErrorIsSkippable(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	_, err := newTestClient(srv.URL).FetchClearances(context.Background(), "8000")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUpstreamUnavailable))
	// No retry on 5xx for zip queries; the zip is skipped instead.
	assert.Equal(t, 1, attempts)
}

func TestFetchStores_RetriesServerErrors(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`[]`))
	}))
	t.Cleanup(srv.Close)

	_, err := newTestClient(srv.URL).FetchStores(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestFetchStores_GivesUpAfterMaxRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	_, err := newTestClient(srv.URL).FetchStores(context.Background())
	assert.Error(t, err)
}

func TestFetchStores_ClientErrorIsFatal(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	_, err := newTestClient(srv.URL).FetchStores(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestFetchStores_ContextCancelDuringBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestClient(srv.URL).FetchStores(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}
