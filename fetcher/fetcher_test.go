package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/statuswatch/status-monitor-backend/types"
)

func newTestFetcher(opts Options) *Fetcher {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	if opts.Timeout == 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "StatusWatch-Test/1.0"
	}
	if opts.MaxBodyBytes == 0 {
		opts.MaxBodyBytes = 1 << 20
	}
	return New(opts, logger)
}

func testSource(url string) types.Source {
	return types.Source{Name: "test-source", URL: url, Kind: types.KindFeed, Interval: time.Second}
}

func TestFetchSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `"v1"`)
		w.Header().Set("Last-Modified", "Mon, 02 Jan 2006 15:04:05 GMT")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("<feed></feed>"))
	}))
	defer server.Close()

	f := newTestFetcher(Options{})
	result, err := f.Fetch(context.Background(), testSource(server.URL), Conditional{})

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.Equal(t, []byte("<feed></feed>"), result.Body)
	assert.Equal(t, `"v1"`, result.ETag)
	assert.Equal(t, "Mon, 02 Jan 2006 15:04:05 GMT", result.LastModified)
	assert.False(t, result.NotModified)
	assert.False(t, result.FetchedAt.IsZero())
}

func TestFetchSendsConditionalHeaders(t *testing.T) {
	var gotETag, gotModified, gotAgent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotETag = r.Header.Get("If-None-Match")
		gotModified = r.Header.Get("If-Modified-Since")
		gotAgent = r.Header.Get("User-Agent")
		w.WriteHeader(http.StatusNotModified)
	}))
	defer server.Close()

	f := newTestFetcher(Options{UserAgent: "StatusWatch-Monitor/1.0"})
	cond := Conditional{ETag: `"v7"`, LastModified: "Tue, 03 Jan 2006 10:00:00 GMT"}
	result, err := f.Fetch(context.Background(), testSource(server.URL), cond)

	require.NoError(t, err)
	assert.Equal(t, `"v7"`, gotETag)
	assert.Equal(t, "Tue, 03 Jan 2006 10:00:00 GMT", gotModified)
	assert.Equal(t, "StatusWatch-Monitor/1.0", gotAgent)
	assert.True(t, result.NotModified)
	assert.Empty(t, result.Body)
	// Validators survive a 304 so the next request stays conditional.
	assert.Equal(t, `"v7"`, result.ETag)
	assert.Equal(t, "Tue, 03 Jan 2006 10:00:00 GMT", result.LastModified)
}

func TestFetchNotModifiedPrefersFreshValidators(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `"v8"`)
		w.WriteHeader(http.StatusNotModified)
	}))
	defer server.Close()

	f := newTestFetcher(Options{})
	result, err := f.Fetch(context.Background(), testSource(server.URL), Conditional{ETag: `"v7"`})

	require.NoError(t, err)
	assert.True(t, result.NotModified)
	assert.Equal(t, `"v8"`, result.ETag)
}

func TestFetchErrorStatuses(t *testing.T) {
	tests := []struct {
		name   string
		status int
	}{
		{"server error", http.StatusInternalServerError},
		{"unavailable", http.StatusServiceUnavailable},
		{"not found", http.StatusNotFound},
		{"rate limited", http.StatusTooManyRequests},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			}))
			defer server.Close()

			f := newTestFetcher(Options{})
			result, err := f.Fetch(context.Background(), testSource(server.URL), Conditional{})

			require.Error(t, err)
			assert.Nil(t, result)

			var transportErr *TransportError
			require.True(t, errors.As(err, &transportErr))
			assert.Equal(t, tt.status, transportErr.StatusCode)
			assert.Contains(t, transportErr.Error(), "unexpected status")
		})
	}
}

func TestFetchUnreachableHost(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	f := newTestFetcher(Options{})
	_, err := f.Fetch(context.Background(), testSource(url), Conditional{})

	var transportErr *TransportError
	require.True(t, errors.As(err, &transportErr))
	assert.Zero(t, transportErr.StatusCode)
	assert.Error(t, transportErr.Unwrap())
}

func TestFetchBodyIsBounded(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, 4096))
	}))
	defer server.Close()

	f := newTestFetcher(Options{MaxBodyBytes: 128})
	result, err := f.Fetch(context.Background(), testSource(server.URL), Conditional{})

	require.NoError(t, err)
	assert.Len(t, result.Body, 128)
}

func TestFetchCanceledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := newTestFetcher(Options{})
	_, err := f.Fetch(ctx, testSource(server.URL), Conditional{})

	var transportErr *TransportError
	require.True(t, errors.As(err, &transportErr))
}

func TestFetchRateLimiterHonorsDeadline(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	// One token, refilled far too slowly for the deadline below.
	f := newTestFetcher(Options{RatePerSecond: 0.001, RateBurst: 1})

	_, err := f.Fetch(context.Background(), testSource(server.URL), Conditional{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = f.Fetch(ctx, testSource(server.URL), Conditional{})

	var transportErr *TransportError
	require.True(t, errors.As(err, &transportErr))
}
