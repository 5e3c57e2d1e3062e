package flickr

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/doyensec/safeurl"
)

const maxBodySize = 10 << 20

// FetchError is returned when the remote site answers with a non-2xx status.
type FetchError struct {
	URL        string
	StatusCode int
	Status     string
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %s", e.URL, e.Status)
}

// Recorder receives per-request observations.
type Recorder interface {
	RecordHTTPStatus(statusCode int)
	RecordFetchLatency(d time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) RecordHTTPStatus(int)             {}
func (nopRecorder) RecordFetchLatency(time.Duration) {}

// Fetcher downloads HTML pages with a browser User-Agent. It never retries.
type Fetcher struct {
	client    *http.Client
	userAgent string
	recorder  Recorder
}

func NewFetcher(client *http.Client, userAgent string, recorder Recorder) *Fetcher {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Fetcher{
		client:    client,
		userAgent: userAgent,
		recorder:  recorder,
	}
}

// NewHTTPClient builds the client used for scraping. With safe set, requests
// to private, loopback and link-local addresses are refused at dial time.
func NewHTTPClient(timeout time.Duration, safe bool) *http.Client {
	if !safe {
		return &http.Client{Timeout: timeout}
	}

	cfg := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes("http", "https").
		SetAllowedPorts(80, 443).
		Build()

	return safeurl.Client(cfg).Client
}

func (f *Fetcher) Fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	f.recorder.RecordFetchLatency(time.Since(start))
	f.recorder.RecordHTTPStatus(resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &FetchError{
			URL:        url,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}

	return string(body), nil
}
