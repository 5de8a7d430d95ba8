// Package transport fetches repository documents and artifacts over
// http(s) or from the local filesystem.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ErrNotFound marks a missing remote document or local file. The resolver
// treats it as "absent from this repository" rather than a failure.
var ErrNotFound = errors.New("not found")

// Credentials are sent as HTTP basic auth when Username is set.
type Credentials struct {
	Username string
	Password string
}

// Request describes one fetch.
type Request struct {
	URL         string
	Credentials Credentials
	Headers     map[string]string
}

// Options configures a Client. Proxies are host:port values per URL scheme.
type Options struct {
	ProxyHTTP  string
	ProxyHTTPS string
	Timeout    time.Duration
	Logger     zerolog.Logger
}

// Client fetches documents. It performs no retries.
type Client struct {
	http   *http.Client
	logger zerolog.Logger
}

func New(opts Options) *Client {
	base := http.DefaultTransport.(*http.Transport).Clone()
	base.Proxy = proxyFunc(opts.ProxyHTTP, opts.ProxyHTTPS)
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Client{
		http:   &http.Client{Transport: base, Timeout: timeout},
		logger: opts.Logger,
	}
}

func proxyFunc(httpProxy, httpsProxy string) func(*http.Request) (*url.URL, error) {
	return func(req *http.Request) (*url.URL, error) {
		var hostPort string
		switch req.URL.Scheme {
		case "http":
			hostPort = httpProxy
		case "https":
			hostPort = httpsProxy
		}
		hostPort = strings.TrimSpace(hostPort)
		if hostPort == "" {
			return http.ProxyFromEnvironment(req)
		}
		if !strings.Contains(hostPort, "://") {
			hostPort = "http://" + hostPort
		}
		return url.Parse(hostPort)
	}
}

// IsLocal reports whether location refers to the local filesystem: a
// file:// URL or a plain path.
func IsLocal(location string) bool {
	parsed, err := url.Parse(location)
	if err != nil {
		return true
	}
	if parsed.Scheme == "file" {
		return true
	}
	// Windows drive letters parse as a one letter scheme.
	return parsed.Scheme == "" || len(parsed.Scheme) == 1
}

// LocalPath converts a local location to a filesystem path.
func LocalPath(location string) string {
	if strings.HasPrefix(location, "file://") {
		if parsed, err := url.Parse(location); err == nil {
			return filepath.FromSlash(parsed.Path)
		}
		return filepath.FromSlash(strings.TrimPrefix(location, "file://"))
	}
	return filepath.FromSlash(location)
}

// JoinURL joins a base location and a relative slash path.
func JoinURL(base, rel string) string {
	base = strings.TrimSpace(base)
	rel = strings.TrimSpace(rel)
	if rel == "" {
		return base
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(rel, "/")
}

// Fetch returns the document at req.URL.
func (c *Client) Fetch(ctx context.Context, req Request) ([]byte, error) {
	if IsLocal(req.URL) {
		content, err := os.ReadFile(LocalPath(req.URL))
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, req.URL)
		}
		return content, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	if req.Credentials.Username != "" {
		httpReq.SetBasicAuth(req.Credentials.Username, req.Credentials.Password)
	}
	c.logger.Trace().Str("url", req.URL).Msg("fetch")
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, req.URL)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("download failed: %s status=%d", req.URL, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// FetchVerified fetches req.URL and checks it against the first checksum
// sidecar (".sha256", ".sha1", ".md5") published next to it. An artifact
// without any sidecar fails.
func (c *Client) FetchVerified(ctx context.Context, req Request) ([]byte, error) {
	content, err := c.Fetch(ctx, req)
	if err != nil {
		return nil, err
	}
	for _, algorithm := range SidecarAlgorithms {
		sidecarReq := req
		sidecarReq.URL = req.URL + "." + algorithm
		sidecar, err := c.Fetch(ctx, sidecarReq)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("checksum sidecar for %s: %w", req.URL, err)
		}
		if err := VerifyChecksum(content, SidecarChecksum(algorithm, sidecar)); err != nil {
			return nil, fmt.Errorf("%s: %w", req.URL, err)
		}
		c.logger.Debug().Str("url", req.URL).Str("algorithm", algorithm).Msg("Checksum verified")
		return content, nil
	}
	return nil, fmt.Errorf("no checksum sidecar published for %s", req.URL)
}

// ListLocalDir returns the names of the subdirectories of a local location,
// sorted.
func ListLocalDir(location string) ([]string, error) {
	entries, err := os.ReadDir(LocalPath(location))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, location)
	}
	if err != nil {
		return nil, err
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
