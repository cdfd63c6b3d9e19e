// Package tilesource fetches vector tiles from remote tile servers.
package tilesource

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/samirrijal/ndvigrid/internal/core/ports"
	"github.com/samirrijal/ndvigrid/internal/pkg/metrics"
)

var ErrUpstream = errors.New("tile server error")

var subdomains = []string{"a", "b", "c"}

// ExpandURL fills the {z}, {x}, {y}, {s} and {r} placeholders of a tile URL
// template. {s} rotates over the a, b and c subdomains.
func ExpandURL(template string, z, x, y int) string {
	return strings.NewReplacer(
		"{z}", strconv.Itoa(z),
		"{x}", strconv.Itoa(x),
		"{y}", strconv.Itoa(y),
		"{s}", subdomains[abs(x+y)%len(subdomains)],
		"{r}", "",
	).Replace(template)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// HTTPFetcher retrieves tiles over HTTP.
type HTTPFetcher struct {
	client  *fasthttp.Client
	timeout time.Duration
}

var _ ports.TileFetcher = (*HTTPFetcher)(nil)

// NewHTTPFetcher creates a fetcher. timeout bounds each request when the
// caller's context has no earlier deadline.
func NewHTTPFetcher(timeout time.Duration, userAgent string) *HTTPFetcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPFetcher{
		client: &fasthttp.Client{
			Name:                userAgent,
			MaxConnsPerHost:     64,
			ReadTimeout:         timeout,
			WriteTimeout:        timeout,
			MaxIdleConnDuration: time.Minute,
		},
		timeout: timeout,
	}
}

// Fetch downloads one tile. 204 and 404 responses are empty tiles.
func (f *HTTPFetcher) Fetch(ctx context.Context, urlTemplate string, z, x, y int) ([]byte, error) {
	ctx, span := otel.Tracer("ndvigrid/tilesource").Start(ctx, "tiles.fetch")
	defer span.End()
	span.SetAttributes(
		attribute.String("tile.source", urlTemplate),
		attribute.Int("tile.z", z),
		attribute.Int("tile.x", x),
		attribute.Int("tile.y", y),
	)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	data, status, err := f.do(ctx, ExpandURL(urlTemplate, z, x, y))
	metrics.TileFetchDuration.WithLabelValues(urlTemplate).Observe(time.Since(start).Seconds())
	span.SetAttributes(attribute.Int("http.status_code", status))
	if err != nil {
		metrics.TileFetchErrors.WithLabelValues(urlTemplate).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return data, nil
}

func (f *HTTPFetcher) do(ctx context.Context, url string) ([]byte, int, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set(fasthttp.HeaderAcceptEncoding, "gzip")

	deadline := time.Now().Add(f.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := f.client.DoDeadline(req, resp, deadline); err != nil {
		return nil, 0, fmt.Errorf("get %s: %w", url, err)
	}

	status := resp.StatusCode()
	switch {
	case status == fasthttp.StatusNoContent, status == fasthttp.StatusNotFound:
		return nil, status, nil
	case status >= 400:
		return nil, status, fmt.Errorf("get %s: status %d: %w", url, status, ErrUpstream)
	}

	// Gzip bodies are returned as-is; the layer inflates them.
	return append([]byte(nil), resp.Body()...), status, nil
}
