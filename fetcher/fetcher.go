// Package fetcher retrieves remote source documents over HTTP with
// conditional-request support so unchanged feeds cost a 304 instead of a body.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/statuswatch/status-monitor-backend/types"
)

// TransportError wraps any failure to obtain a usable response: network
// errors, timeouts, and non-2xx statuses. Callers treat it as recoverable
// and back off.
type TransportError struct {
	URL        string
	StatusCode int // zero when the request never completed
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Conditional carries the cache validators from the previous successful
// fetch of the same source.
type Conditional struct {
	ETag         string
	LastModified string
}

// Result is one completed fetch. When NotModified is set the body is empty
// and the validators echo the ones the server confirmed.
type Result struct {
	StatusCode   int
	Body         []byte
	ETag         string
	LastModified string
	NotModified  bool
	FetchedAt    time.Time
}

// Options configures the shared HTTP fetcher
type Options struct {
	Timeout       time.Duration
	UserAgent     string
	MaxBodyBytes  int64
	RatePerSecond float64 // aggregate outbound request rate across all sources
	RateBurst     int
}

// Fetcher issues conditional GETs for monitored sources. A single instance
// is shared by all pollers; it holds no per-source state.
type Fetcher struct {
	client  *http.Client
	limiter *rate.Limiter
	opts    Options
	logger  *logrus.Logger
}

// New creates a fetcher with a bounded per-request timeout and a global
// outbound rate limit shared across sources
func New(opts Options, logger *logrus.Logger) *Fetcher {
	var limiter *rate.Limiter
	if opts.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), opts.RateBurst)
	}
	return &Fetcher{
		client:  &http.Client{Timeout: opts.Timeout},
		limiter: limiter,
		opts:    opts,
		logger:  logger,
	}
}

// Fetch performs one conditional GET against the source URL. It mutates no
// shared state; every outcome is reported through the Result or a
// *TransportError.
func (f *Fetcher) Fetch(ctx context.Context, source types.Source, cond Conditional) (*Result, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, &TransportError{URL: source.URL, Err: err}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source.URL, nil)
	if err != nil {
		return nil, &TransportError{URL: source.URL, Err: err}
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	if cond.ETag != "" {
		req.Header.Set("If-None-Match", cond.ETag)
	}
	if cond.LastModified != "" {
		req.Header.Set("If-Modified-Since", cond.LastModified)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &TransportError{URL: source.URL, Err: err}
	}
	defer resp.Body.Close()

	fetchedAt := time.Now().UTC()

	if resp.StatusCode == http.StatusNotModified {
		f.logger.WithFields(logrus.Fields{
			"source": source.Name,
			"url":    source.URL,
		}).Debug("Source not modified")
		return &Result{
			StatusCode:   resp.StatusCode,
			ETag:         pickHeader(resp.Header.Get("ETag"), cond.ETag),
			LastModified: pickHeader(resp.Header.Get("Last-Modified"), cond.LastModified),
			NotModified:  true,
			FetchedAt:    fetchedAt,
		}, nil
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain a bounded amount so the connection can be reused.
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &TransportError{URL: source.URL, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.opts.MaxBodyBytes))
	if err != nil {
		return nil, &TransportError{URL: source.URL, Err: err}
	}

	f.logger.WithFields(logrus.Fields{
		"source": source.Name,
		"status": resp.StatusCode,
		"bytes":  len(body),
	}).Debug("Source fetched")

	return &Result{
		StatusCode:   resp.StatusCode,
		Body:         body,
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
		FetchedAt:    fetchedAt,
	}, nil
}

func pickHeader(fresh, previous string) string {
	if fresh != "" {
		return fresh
	}
	return previous
}
