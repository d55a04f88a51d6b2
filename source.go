package terrain

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"net/http"
	"strings"
	"time"
)

// DefaultBaseURL is the base URL of the public elevation tile service.
const DefaultBaseURL = "https://elevation-tiles-prod.s3.amazonaws.com/skadi"

// maxTileBodySize bounds the size of a compressed tile body.
const maxTileBodySize = 64 << 20

// A Source returns the bodies of tiles. Bodies are HGT payloads, optionally
// gzip-compressed. Sources return an error wrapping fs.ErrNotExist for tiles
// that do not exist, for example over oceans.
type Source interface {
	TileBody(ctx context.Context, tileRequest TileRequest) ([]byte, error)
}

// A SourceFunc is a func that implements Source.
type SourceFunc func(context.Context, TileRequest) ([]byte, error)

func (f SourceFunc) TileBody(ctx context.Context, tileRequest TileRequest) ([]byte, error) {
	return f(ctx, tileRequest)
}

// An HTTPSource fetches tiles from {base}/{dir}/{name}.hgt.gz.
type HTTPSource struct {
	client    *http.Client
	baseURL   string
	userAgent string
}

// An HTTPSourceOption sets an option on an HTTPSource.
type HTTPSourceOption func(*HTTPSource)

// NewHTTPSource returns a new HTTPSource with the given options.
func NewHTTPSource(options ...HTTPSourceOption) *HTTPSource {
	s := &HTTPSource{
		baseURL: DefaultBaseURL,
	}
	for _, option := range options {
		option(s)
	}
	if s.client == nil {
		s.client = NewHTTPClient(30 * time.Second)
	}
	return s
}

// WithBaseURL sets the base URL.
func WithBaseURL(baseURL string) HTTPSourceOption {
	return func(s *HTTPSource) {
		s.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(client *http.Client) HTTPSourceOption {
	return func(s *HTTPSource) {
		s.client = client
	}
}

// WithUserAgent sets the User-Agent header sent with requests.
func WithUserAgent(userAgent string) HTTPSourceOption {
	return func(s *HTTPSource) {
		s.userAgent = userAgent
	}
}

// NewHTTPClient returns an HTTP client tuned for fetching many tiles from a
// single host.
func NewHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          64,
		MaxIdleConnsPerHost:   32,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}

// URL returns the URL of tileRequest's body.
func (s *HTTPSource) URL(tileRequest TileRequest) string {
	return s.baseURL + "/" + tileRequest.Dir() + "/" + tileRequest.Name() + ".hgt.gz"
}

func (s *HTTPSource) TileBody(ctx context.Context, tileRequest TileRequest) ([]byte, error) {
	url := s.URL(tileRequest)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound, http.StatusForbidden:
		return nil, fmt.Errorf("%s: %w", url, fs.ErrNotExist)
	default:
		return nil, fmt.Errorf("%s: %s", url, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTileBodySize+1))
	switch {
	case err != nil:
		return nil, fmt.Errorf("%s: %w", url, err)
	case len(body) > maxTileBodySize:
		return nil, fmt.Errorf("%s: body too large", url)
	default:
		return body, nil
	}
}

// An FSSource reads tiles from a filesystem. It looks for
// {dir}/{name}.hgt.gz, {name}.hgt.gz, and {name}.hgt in that order.
type FSSource struct {
	fsys fs.FS
}

// NewFSSource returns a new FSSource reading from fsys.
func NewFSSource(fsys fs.FS) *FSSource {
	return &FSSource{
		fsys: fsys,
	}
}

func (s *FSSource) TileBody(ctx context.Context, tileRequest TileRequest) ([]byte, error) {
	name := tileRequest.Name()
	for _, filename := range []string{
		tileRequest.Dir() + "/" + name + ".hgt.gz",
		name + ".hgt.gz",
		name + ".hgt",
	} {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		switch body, err := fs.ReadFile(s.fsys, filename); {
		case errors.Is(err, fs.ErrNotExist):
			continue
		case err != nil:
			return nil, err
		default:
			return body, nil
		}
	}
	return nil, fmt.Errorf("%s: %w", name, fs.ErrNotExist)
}
