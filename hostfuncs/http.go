package hostfuncs

import (
	"context"
	"crypto/tls"
	stdErrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/quic-go/quic-go/http3"

	"github.com/reglet-dev/reglet-fetch/domain/entities"
	"github.com/reglet-dev/reglet-fetch/domain/errors"
)

// SchemeHTTP3 selects HTTP/3 for a single resource, e.g. h3://tiles.example.com/a.pbf.
const SchemeHTTP3 = "h3"

// HTTPOption is a functional option for configuring HTTP fetch behavior.
type HTTPOption func(*httpConfig)

type httpConfig struct {
	tlsConfig       *tls.Config
	userAgent       string
	timeout         time.Duration
	maxRedirects    int
	maxBodySize     int64
	followRedirects bool
	ssrfProtection  bool
	allowPrivate    bool
	http3           bool
}

func defaultHTTPConfig() httpConfig {
	return httpConfig{
		timeout:         30 * time.Second,
		maxRedirects:    10,
		followRedirects: true,
		tlsConfig:       nil,
		maxBodySize:     10 * 1024 * 1024, // 10MB
		userAgent:       "reglet-fetch/1",
	}
}

// WithHTTPRequestTimeout sets the HTTP request timeout.
func WithHTTPRequestTimeout(d time.Duration) HTTPOption {
	return func(c *httpConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithHTTPMaxRedirects sets the maximum number of redirects to follow.
func WithHTTPMaxRedirects(n int) HTTPOption {
	return func(c *httpConfig) {
		if n >= 0 {
			c.maxRedirects = n
		}
	}
}

// WithHTTPFollowRedirects controls whether to follow redirects.
func WithHTTPFollowRedirects(follow bool) HTTPOption {
	return func(c *httpConfig) {
		c.followRedirects = follow
	}
}

// WithHTTPMaxBodySize sets the maximum response body size.
// Larger bodies fail the fetch rather than being truncated.
func WithHTTPMaxBodySize(size int64) HTTPOption {
	return func(c *httpConfig) {
		if size > 0 {
			c.maxBodySize = size
		}
	}
}

// WithHTTPTLSConfig sets the TLS configuration for HTTPS and HTTP/3.
func WithHTTPTLSConfig(cfg *tls.Config) HTTPOption {
	return func(c *httpConfig) {
		c.tlsConfig = cfg
	}
}

// WithHTTPUserAgent sets the User-Agent header sent with every request.
func WithHTTPUserAgent(ua string) HTTPOption {
	return func(c *httpConfig) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithHTTP3 makes every https request use HTTP/3 over QUIC.
// Resources with the h3 scheme use HTTP/3 regardless.
func WithHTTP3(enabled bool) HTTPOption {
	return func(c *httpConfig) {
		c.http3 = enabled
	}
}

// WithHTTPSSRFProtection enables DNS pinning and SSRF protection.
// When enabled, each request resolves DNS once, validates the IP, and connects
// directly to that IP (preventing DNS rebinding attacks).
// Private/reserved IPs are blocked unless allowPrivate is true.
func WithHTTPSSRFProtection(allowPrivate bool) HTTPOption {
	return func(c *httpConfig) {
		c.ssrfProtection = true
		c.allowPrivate = allowPrivate
	}
}

// errSSRFBlocked marks a request refused by the address filter.
var errSSRFBlocked = stdErrors.New("SSRF protection")

// dnsPinningTransport prevents DNS rebinding attacks by resolving DNS once,
// validating the IP, and connecting directly to that IP.
type dnsPinningTransport struct {
	base         *http.Transport
	allowPrivate bool
}

func (t *dnsPinningTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	hostname := req.URL.Hostname()

	result := ValidateAddress(req.Context(), hostname, WithAllowPrivate(t.allowPrivate))

	if !result.Allowed {
		return nil, fmt.Errorf("%w: %s", errSSRFBlocked, result.Reason)
	}

	resolvedIP := result.ResolvedIP
	if resolvedIP == "" {
		resolvedIP = hostname
	}

	port := req.URL.Port()
	if port == "" {
		if req.URL.Scheme == "https" {
			port = "443"
		} else {
			port = "80"
		}
	}

	pinnedTransport := t.base.Clone()
	pinnedTransport.DialContext = func(ctx context.Context, network, _ string) (net.Conn, error) {
		targetAddr := net.JoinHostPort(resolvedIP, port)
		return (&net.Dialer{}).DialContext(ctx, network, targetAddr)
	}

	// Preserve original hostname for TLS SNI
	if req.URL.Scheme == "https" {
		if pinnedTransport.TLSClientConfig == nil {
			pinnedTransport.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		} else {
			pinnedTransport.TLSClientConfig = pinnedTransport.TLSClientConfig.Clone()
		}
		pinnedTransport.TLSClientConfig.ServerName = hostname
	}

	return pinnedTransport.RoundTrip(req)
}

// h3PinningTransport applies the same address filter to HTTP/3. Each
// request dials the validated IP through its own QUIC transport, keeping the
// original hostname for SNI and :authority.
type h3PinningTransport struct {
	tlsConfig    *tls.Config
	allowPrivate bool
}

func (t *h3PinningTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	hostname := req.URL.Hostname()

	result := ValidateAddress(req.Context(), hostname, WithAllowPrivate(t.allowPrivate))
	if !result.Allowed {
		return nil, fmt.Errorf("%w: %s", errSSRFBlocked, result.Reason)
	}

	resolvedIP := result.ResolvedIP
	if resolvedIP == "" {
		resolvedIP = hostname
	}
	port := req.URL.Port()
	if port == "" {
		port = "443"
	}

	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS13}
	if t.tlsConfig != nil {
		tlsConfig = t.tlsConfig.Clone()
	}
	tlsConfig.ServerName = hostname

	pinned := req.Clone(req.Context())
	pinned.URL.Host = net.JoinHostPort(resolvedIP, port)
	if pinned.Host == "" {
		pinned.Host = req.URL.Host
	}

	rt := &http3.Transport{TLSClientConfig: tlsConfig}
	resp, err := rt.RoundTrip(pinned)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	resp.Body = &closingBody{ReadCloser: resp.Body, transport: rt}
	return resp, nil
}

// closingBody shuts down a per-request transport with its response body.
type closingBody struct {
	io.ReadCloser
	transport io.Closer
}

func (b *closingBody) Close() error {
	err := b.ReadCloser.Close()
	_ = b.transport.Close()
	return err
}

// HTTPFetcher loads network resources. It is safe for concurrent use and
// reuses connections across fetches.
type HTTPFetcher struct {
	client   *http.Client
	h3client *http.Client
	h3       *http3.Transport
	cfg      httpConfig
}

// NewHTTPFetcher creates a fetcher with the given options.
func NewHTTPFetcher(opts ...HTTPOption) *HTTPFetcher {
	cfg := defaultHTTPConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	h3 := &http3.Transport{TLSClientConfig: cfg.tlsConfig}
	var h3rt http.RoundTripper = h3
	if cfg.ssrfProtection {
		h3rt = &h3PinningTransport{tlsConfig: cfg.tlsConfig, allowPrivate: cfg.allowPrivate}
	}
	return &HTTPFetcher{
		client:   createHTTPClient(cfg),
		h3client: withRedirectPolicy(&http.Client{Transport: h3rt, Timeout: cfg.timeout}, cfg),
		h3:       h3,
		cfg:      cfg,
	}
}

// Close releases idle connections, including QUIC sessions.
func (f *HTTPFetcher) Close() error {
	f.client.CloseIdleConnections()
	return f.h3.Close()
}

// PerformHTTPFetch fetches a single network resource with a one-off client.
// Long-lived callers should keep an HTTPFetcher instead.
func PerformHTTPFetch(ctx context.Context, res entities.Resource, opts ...HTTPOption) (entities.Response, error) {
	f := NewHTTPFetcher(opts...)
	defer func() { _ = f.Close() }()
	return f.Fetch(ctx, res)
}

// Fetch performs res as a conditional GET (or HEAD) and maps the outcome to
// a Response. Failures are returned as *errors.FetchError.
func (f *HTTPFetcher) Fetch(ctx context.Context, res entities.Resource) (entities.Response, error) {
	target, useH3, err := f.resolveURL(res.URL)
	if err != nil {
		return entities.Response{}, errors.NewFetchError(entities.ErrorKindOther, res.URL, err)
	}

	method := strings.ToUpper(res.Method)
	if method == "" {
		method = http.MethodGet
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return entities.Response{}, errors.NewFetchError(entities.ErrorKindOther, res.URL, err)
	}
	httpReq.Header.Set("User-Agent", f.cfg.userAgent)
	for k, v := range res.Headers {
		httpReq.Header.Set(k, v)
	}
	if res.PriorETag != "" {
		httpReq.Header.Set("If-None-Match", res.PriorETag)
	}
	if res.PriorModified != nil {
		httpReq.Header.Set("If-Modified-Since", res.PriorModified.UTC().Format(http.TimeFormat))
	}

	client := f.client
	if useH3 {
		client = f.h3client
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return entities.Response{}, classifyHTTPError(ctx, res.URL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	return readHTTPResponse(resp, res.URL, f.cfg.maxBodySize)
}

// resolveURL validates the URL and rewrites the h3 scheme to https.
func (f *HTTPFetcher) resolveURL(raw string) (string, bool, error) {
	if raw == "" {
		return "", false, fmt.Errorf("URL is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", false, err
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		return u.String(), false, nil
	case "https":
		return u.String(), f.cfg.http3, nil
	case SchemeHTTP3:
		u.Scheme = "https"
		return u.String(), true, nil
	default:
		return "", false, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
}

// createHTTPClient creates an HTTP client with the appropriate redirect policy.
func createHTTPClient(cfg httpConfig) *http.Client {
	transport := &http.Transport{
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		TLSClientConfig:       cfg.tlsConfig,
	}

	var rt http.RoundTripper = transport
	if cfg.ssrfProtection {
		rt = &dnsPinningTransport{
			base:         transport,
			allowPrivate: cfg.allowPrivate,
		}
	}

	return withRedirectPolicy(&http.Client{
		Timeout:   cfg.timeout,
		Transport: rt,
	}, cfg)
}

func withRedirectPolicy(client *http.Client, cfg httpConfig) *http.Client {
	if !cfg.followRedirects {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	} else if cfg.maxRedirects > 0 {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			if len(via) >= cfg.maxRedirects {
				return fmt.Errorf("stopped after %d redirects", cfg.maxRedirects)
			}
			return nil
		}
	}
	return client
}

// classifyHTTPError maps a transport failure to a FetchError.
// Cancellation of ctx is reported as errors.ErrCancelled.
func classifyHTTPError(ctx context.Context, rawURL string, err error) error {
	if stdErrors.Is(ctx.Err(), context.Canceled) {
		return fmt.Errorf("%w: %v", errors.ErrCancelled, err)
	}

	kind := entities.ErrorKindConnection
	if stdErrors.Is(err, errSSRFBlocked) {
		kind = entities.ErrorKindOther
	}
	return errors.NewFetchError(kind, rawURL, err)
}

// readHTTPResponse maps the status code and reads the body with a size limit.
func readHTTPResponse(resp *http.Response, rawURL string, maxBodySize int64) (entities.Response, error) {
	switch {
	case resp.StatusCode == http.StatusNotModified:
		out := entities.Response{Status: entities.StatusSuccess, NotModified: true}
		applyCacheHeaders(&out, resp.Header)
		return out, nil
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
	default:
		return entities.Response{}, statusError(resp, rawURL)
	}

	buf := NewBoundedBuffer(int(maxBodySize))
	if _, err := io.Copy(buf, resp.Body); err != nil {
		return entities.Response{}, errors.NewFetchError(entities.ErrorKindConnection, rawURL, err)
	}
	if buf.Truncated {
		return entities.Response{}, &errors.FetchError{
			Kind:    entities.ErrorKindOther,
			URL:     rawURL,
			Message: fmt.Sprintf("response body exceeds %d bytes", maxBodySize),
		}
	}

	out := entities.Success(buf.Bytes())
	applyCacheHeaders(&out, resp.Header)
	return out, nil
}

func statusError(resp *http.Response, rawURL string) error {
	kind := entities.ErrorKindOther
	switch {
	case resp.StatusCode == http.StatusNotFound, resp.StatusCode == http.StatusGone:
		kind = entities.ErrorKindNotFound
	case resp.StatusCode == http.StatusTooManyRequests:
		kind = entities.ErrorKindRateLimit
	case resp.StatusCode >= 500:
		kind = entities.ErrorKindServer
	}
	return &errors.FetchError{
		Kind:    kind,
		URL:     rawURL,
		Message: fmt.Sprintf("HTTP status code %d", resp.StatusCode),
	}
}

// applyCacheHeaders copies validators and freshness from response headers.
// Cache-Control max-age takes precedence over Expires.
func applyCacheHeaders(out *entities.Response, h http.Header) {
	out.ETag = h.Get("ETag")
	if t, err := http.ParseTime(h.Get("Last-Modified")); err == nil {
		out.Modified = &t
	}
	if maxAge, ok := parseMaxAge(h.Get("Cache-Control")); ok {
		exp := time.Now().Add(maxAge).UTC().Truncate(time.Second)
		out.Expires = &exp
	} else if t, err := http.ParseTime(h.Get("Expires")); err == nil {
		out.Expires = &t
	}
}

func parseMaxAge(cacheControl string) (time.Duration, bool) {
	for _, directive := range strings.Split(cacheControl, ",") {
		name, value, found := strings.Cut(strings.TrimSpace(directive), "=")
		if !found || !strings.EqualFold(name, "max-age") {
			continue
		}
		secs, err := strconv.Atoi(strings.Trim(value, `"`))
		if err != nil || secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	return 0, false
}
