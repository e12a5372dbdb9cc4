package assets

import (
	"context"
	"fmt"
	"image"
	"io"
	"net/http"
	"strings"
	"time"
)

// Loader resolves an image reference into a decoded image.
type Loader interface {
	Load(ctx context.Context, ref string) (image.Image, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, ref string) (image.Image, error)

func (f LoaderFunc) Load(ctx context.Context, ref string) (image.Image, error) {
	return f(ctx, ref)
}

// DataURLLoader decodes inline data URLs.
type DataURLLoader struct{}

func (DataURLLoader) Load(_ context.Context, ref string) (image.Image, error) {
	mediaType, data, err := ParseDataURL(ref)
	if err != nil {
		return nil, err
	}
	return Decode(data, mediaType)
}

// HTTPLoader fetches images over HTTP(S).
type HTTPLoader struct {
	Client   *http.Client
	MaxBytes int64
}

// NewHTTPLoader creates a loader with the given per-request timeout.
func NewHTTPLoader(timeout time.Duration) *HTTPLoader {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPLoader{
		Client:   &http.Client{Timeout: timeout},
		MaxBytes: 20 << 20,
	}
}

func (l *HTTPLoader) Load(ctx context.Context, ref string) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, fmt.Errorf("assets: build request: %w", err)
	}
	resp, err := l.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("assets: fetch %s: %w", ref, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("assets: fetch %s: status %d", ref, resp.StatusCode)
	}
	limit := l.MaxBytes
	if limit <= 0 {
		limit = 20 << 20
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, fmt.Errorf("assets: read %s: %w", ref, err)
	}
	return Decode(data, resp.Header.Get("Content-Type"))
}

// Resolver dispatches references to the loader for their scheme.
type Resolver struct {
	Data Loader
	HTTP Loader
	S3   Loader
}

// NewResolver wires the standard loaders. s3 may be nil when object storage
// is not configured.
func NewResolver(httpLoader Loader, s3 Loader) *Resolver {
	return &Resolver{Data: DataURLLoader{}, HTTP: httpLoader, S3: s3}
}

func (r *Resolver) Load(ctx context.Context, ref string) (image.Image, error) {
	ref = strings.TrimSpace(ref)
	var loader Loader
	switch {
	case strings.HasPrefix(ref, "data:"):
		loader = r.Data
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		loader = r.HTTP
	case strings.HasPrefix(ref, s3Scheme):
		loader = r.S3
	}
	if loader == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedRef, truncate(ref, 40))
	}
	return loader.Load(ctx, ref)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
