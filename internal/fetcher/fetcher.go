package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

var (
	ErrUnsupportedScheme = errors.New("only http and https sources are supported")
	ErrSourceTooLarge    = errors.New("source exceeds configured size limit")
)

// Result is an open stream to the remote resource. The caller owns Body.
type Result struct {
	Body        io.ReadCloser
	Size        int64
	ContentType string
}

// SourceFetcher opens a remote resource for streaming into blob storage.
type SourceFetcher interface {
	Fetch(ctx context.Context, sourceURL string) (*Result, error)
}

type HTTPFetcher struct {
	client       *http.Client
	maxBodyBytes int64
}

func NewHTTPFetcher(timeout time.Duration, maxBodyBytes int64) *HTTPFetcher {
	return &HTTPFetcher{
		client:       &http.Client{Timeout: timeout},
		maxBodyBytes: maxBodyBytes,
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, sourceURL string) (*Result, error) {
	u, err := url.Parse(sourceURL)
	if err != nil {
		return nil, fmt.Errorf("invalid source url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, ErrUnsupportedScheme
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "fetchflow/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, fmt.Errorf("source returned status %d", resp.StatusCode)
	}
	if f.maxBodyBytes > 0 && resp.ContentLength > f.maxBodyBytes {
		resp.Body.Close()
		return nil, ErrSourceTooLarge
	}

	body := resp.Body
	if f.maxBodyBytes > 0 {
		body = &limitedReadCloser{
			r:     io.LimitReader(resp.Body, f.maxBodyBytes+1),
			c:     resp.Body,
			limit: f.maxBodyBytes,
		}
	}

	return &Result{
		Body:        body,
		Size:        resp.ContentLength,
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}

// limitedReadCloser fails the stream instead of silently truncating when the
// source lies about (or omits) its Content-Length.
type limitedReadCloser struct {
	r     io.Reader
	c     io.Closer
	limit int64
	read  int64
}

func (l *limitedReadCloser) Read(p []byte) (int, error) {
	n, err := l.r.Read(p)
	l.read += int64(n)
	if l.read > l.limit {
		return n, ErrSourceTooLarge
	}
	return n, err
}

func (l *limitedReadCloser) Close() error {
	return l.c.Close()
}
