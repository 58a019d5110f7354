// Package fetch downloads tile bodies.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Response is a fully read network response.
type Response struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// OK reports a 2xx status.
func (r Response) OK() bool { return r.StatusCode >= 200 && r.StatusCode < 300 }

// Fetcher issues one GET. A transport failure is an error; a non-2xx status
// is not, callers inspect Response.OK.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (Response, error)
}

type FetcherFunc func(ctx context.Context, url string) (Response, error)

func (f FetcherFunc) Fetch(ctx context.Context, url string) (Response, error) { return f(ctx, url) }

const (
	DefaultUserAgent = "tilecache/1"
	DefaultMaxBody   = 8 << 20
)

var ErrBodyTooLarge = errors.New("fetch: response body too large")

type HTTPConfig struct {
	Client    *http.Client  // nil => new client with Timeout
	Timeout   time.Duration // used only when Client is nil; 0 => no timeout
	UserAgent string        // "" => DefaultUserAgent
	MaxBody   int64         // 0 => DefaultMaxBody; < 0 => unlimited
}

type HTTP struct {
	client    *http.Client
	userAgent string
	maxBody   int64
}

var _ Fetcher = (*HTTP)(nil)

func NewHTTP(cfg HTTPConfig) *HTTP {
	h := &HTTP{client: cfg.Client, userAgent: cfg.UserAgent, maxBody: cfg.MaxBody}
	if h.client == nil {
		h.client = &http.Client{Timeout: cfg.Timeout}
	}
	if h.userAgent == "" {
		h.userAgent = DefaultUserAgent
	}
	if h.maxBody == 0 {
		h.maxBody = DefaultMaxBody
	}
	return h
}

func (h *HTTP) Fetch(ctx context.Context, url string) (Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Response{}, err
	}
	req.Header.Set("User-Agent", h.userAgent)

	resp, err := h.client.Do(req)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()

	out := Response{StatusCode: resp.StatusCode, ContentType: resp.Header.Get("Content-Type")}
	if !out.OK() {
		// drain a little so the connection can be reused
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return out, nil
	}

	var r io.Reader = resp.Body
	if h.maxBody > 0 {
		r = io.LimitReader(resp.Body, h.maxBody+1)
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return Response{}, fmt.Errorf("fetch: read body: %w", err)
	}
	if h.maxBody > 0 && int64(len(body)) > h.maxBody {
		return Response{}, fmt.Errorf("%w: > %d bytes", ErrBodyTooLarge, h.maxBody)
	}
	out.Body = body
	return out, nil
}
