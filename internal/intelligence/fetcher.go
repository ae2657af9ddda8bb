package intelligence

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// Per-request deadlines. Fingerprinting favors a cheap HEAD; OCR downloads
// get more room for large documents.
const (
	HeadTimeout     = 15 * time.Second
	GetTimeout      = 30 * time.Second
	OCRFetchTimeout = 60 * time.Second

	maxFetchBytes = 64 << 20 // 64 MiB cap on downloaded bodies
)

// FetchResult carries the response metadata plus, for GET, the body.
type FetchResult struct {
	StatusCode    int
	ContentType   string
	ContentLength *int64
	ETag          string
	LastModified  string
	Body          []byte
}

// Fetcher downloads external asset content over HTTP.
type Fetcher struct {
	client *http.Client
}

func NewFetcher() *Fetcher {
	return &Fetcher{client: &http.Client{}}
}

// Head issues a HEAD request and returns the validator headers.
func (f *Fetcher) Head(ctx context.Context, uri string) (*FetchResult, error) {
	ctx, cancel := context.WithTimeout(ctx, HeadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, uri, nil)
	if err != nil {
		return nil, &ProcessorError{Category: FailureNetworkError, Err: err}
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &ProcessorError{Category: FailureNetworkError, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, &ProcessorError{
			Category: FailureHTTPError,
			Err:      fmt.Errorf("HEAD %s returned %d", uri, resp.StatusCode),
		}
	}
	return resultFromResponse(resp, nil), nil
}

// Get downloads the body with the given deadline.
func (f *Fetcher) Get(ctx context.Context, uri string, timeout time.Duration) (*FetchResult, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, &ProcessorError{Category: FailureNetworkError, Err: err}
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &ProcessorError{Category: FailureNetworkError, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, &ProcessorError{
			Category: FailureHTTPError,
			Err:      fmt.Errorf("GET %s returned %d", uri, resp.StatusCode),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return nil, &ProcessorError{Category: FailureNetworkError, Err: err}
	}
	return resultFromResponse(resp, body), nil
}

func resultFromResponse(resp *http.Response, body []byte) *FetchResult {
	res := &FetchResult{
		StatusCode:   resp.StatusCode,
		ContentType:  resp.Header.Get("Content-Type"),
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
		Body:         body,
	}
	if cl := resp.Header.Get("Content-Length"); cl != "" {
		if n, err := strconv.ParseInt(cl, 10, 64); err == nil {
			res.ContentLength = &n
		}
	}
	if res.ContentLength == nil && body != nil {
		n := int64(len(body))
		res.ContentLength = &n
	}
	return res
}
