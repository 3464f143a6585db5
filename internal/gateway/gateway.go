package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/taskly/trackd/internal/log"
	"github.com/taskly/trackd/internal/model"
	"github.com/taskly/trackd/internal/storage"
)

// maxCacheBodyBytes bounds the size of a cached response snapshot. Larger
// responses are served but not cached.
const maxCacheBodyBytes = 8 << 20

// GatewayConfig is the configuration for the caching gateway.
type GatewayConfig struct {
	ListenAddr string
	Cache      storage.CacheRepository
	Rules      RulesConfig
	// CacheVersion names the current namespaces (static-vN, dynamic-vN).
	CacheVersion int
	// Origin is the base URL used to pre-populate static assets at install.
	Origin    string
	Transport http.RoundTripper
	Logger    log.Logger
	Now       func() time.Time
}

func (c *GatewayConfig) defaults() error {
	if c.ListenAddr == "" {
		c.ListenAddr = ":7322"
	}
	if c.Cache == nil {
		return fmt.Errorf("cache repository is required")
	}
	if c.CacheVersion < 1 {
		c.CacheVersion = 1
	}
	if c.Transport == nil {
		c.Transport = &http.Transport{ResponseHeaderTimeout: 30 * time.Second}
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "gateway.Gateway"})
	if c.Now == nil {
		c.Now = func() time.Time { return time.Now().UTC() }
	}
	return nil
}

// Gateway is an HTTP gateway that serves GET requests under one of three
// caching policies depending on resource class, to support offline use.
// Everything else passes through untouched.
type Gateway struct {
	server     *http.Server
	cache      storage.CacheRepository
	transport  http.RoundTripper
	classifier atomic.Pointer[Classifier]
	group      singleflight.Group
	logger     log.Logger
	now        func() time.Time
	origin     string

	staticNamespace  string
	dynamicNamespace string
}

// NewGateway creates a new caching gateway.
func NewGateway(cfg GatewayConfig) (*Gateway, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid gateway config: %w", err)
	}

	g := &Gateway{
		cache:            cfg.Cache,
		transport:        cfg.Transport,
		logger:           cfg.Logger,
		now:              cfg.Now,
		origin:           cfg.Origin,
		staticNamespace:  fmt.Sprintf("static-v%d", cfg.CacheVersion),
		dynamicNamespace: fmt.Sprintf("dynamic-v%d", cfg.CacheVersion),
	}
	g.classifier.Store(NewClassifier(cfg.Rules))

	g.server = &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: g,
	}

	return g, nil
}

// ReloadRules swaps the classification ruleset. In-flight requests keep the
// classifier they started with.
func (g *Gateway) ReloadRules(rules RulesConfig) {
	g.classifier.Store(NewClassifier(rules))
	g.logger.Infof("reloaded classification rules")
}

// Install pre-populates the static asset cache from the configured origin.
// Failures are logged and skipped; install is best effort.
func (g *Gateway) Install(ctx context.Context) error {
	if g.origin == "" {
		g.logger.Debugf("no origin configured, skipping static asset install")
		return nil
	}

	classifier := g.classifier.Load()
	for _, assetPath := range classifier.StaticAssets() {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.origin+assetPath, nil)
		if err != nil {
			g.logger.Warningf("could not build install request for %s: %s", assetPath, err)
			continue
		}

		entry, err := g.fetch(req, g.staticNamespace)
		if err != nil {
			g.logger.Warningf("could not install static asset %s: %s", assetPath, err)
			continue
		}
		// Install keys by path so proxied requests for the same asset hit
		// regardless of origin spelling.
		entry.Key = assetPath
		if err := g.cache.PutEntry(ctx, *entry); err != nil {
			g.logger.Warningf("could not cache static asset %s: %s", assetPath, err)
		}
	}

	g.logger.Infof("installed static assets into %s", g.staticNamespace)
	return nil
}

// Activate purges every cache namespace except the two current ones. This
// is the sole eviction mechanism; entries carry no TTL.
func (g *Gateway) Activate(ctx context.Context) error {
	keep := []string{g.staticNamespace, g.dynamicNamespace}
	if err := g.cache.PurgeExcept(ctx, keep); err != nil {
		return fmt.Errorf("could not purge stale cache namespaces: %w", err)
	}

	g.logger.Infof("activated cache namespaces %v", keep)
	return nil
}

// Run starts the gateway and blocks until ctx is cancelled. It performs a
// graceful shutdown when the context is done.
func (g *Gateway) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		g.logger.Infof("gateway listening on %s", g.server.Addr)
		if err := g.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("gateway server error: %w", err)
	case <-ctx.Done():
		g.logger.Infof("shutting down gateway")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := g.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("gateway shutdown error: %w", err)
		}
		return nil
	}
}

// ServeHTTP dispatches requests to the policy selected by classification.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	classifier := g.classifier.Load()

	switch policy := classifier.Classify(r); policy {
	case PolicyNetworkFirst:
		g.networkFirst(w, r)
	case PolicyCacheFirst:
		// Static manifest entries are keyed by path, matching how install
		// pre-populates them. Other cache-first resources use the full URL.
		namespace, key := g.dynamicNamespace, cacheKey(r)
		if classifier.IsStaticAsset(r.URL.Path) {
			namespace, key = g.staticNamespace, r.URL.Path
		}
		g.cacheFirst(w, r, namespace, key)
	case PolicyStaleWhileRevalidate:
		g.staleWhileRevalidate(w, r)
	default:
		g.passthrough(w, r)
	}
}

// networkFirst tries the network, mirrors successes into the dynamic cache
// and falls back to any cached copy, else a synthetic 503.
func (g *Gateway) networkFirst(w http.ResponseWriter, r *http.Request) {
	key := cacheKey(r)

	entry, err := g.fetch(r, g.dynamicNamespace)
	if err == nil {
		if putErr := g.cache.PutEntry(r.Context(), *entry); putErr != nil {
			g.logger.Errorf("could not cache %s: %s", key, putErr)
		}
		g.serveEntry(w, entry, "miss")
		return
	}

	g.logger.Debugf("network failed for %s, trying cache: %s", key, err)

	cached, cacheErr := g.cache.GetEntry(r.Context(), g.dynamicNamespace, key)
	if cacheErr != nil {
		if !errors.Is(cacheErr, model.ErrNotFound) {
			g.logger.Errorf("could not read cache for %s: %s", key, cacheErr)
		}
		g.serveOffline(w)
		return
	}

	g.serveEntry(w, cached, "hit")
}

// cacheFirst serves the cached copy if present, fetching and caching on a
// miss. A failed fetch with nothing cached becomes a synthetic 503.
func (g *Gateway) cacheFirst(w http.ResponseWriter, r *http.Request, namespace, key string) {
	cached, err := g.cache.GetEntry(r.Context(), namespace, key)
	if err == nil {
		g.serveEntry(w, cached, "hit")
		return
	}
	if !errors.Is(err, model.ErrNotFound) {
		g.logger.Errorf("could not read cache for %s: %s", key, err)
	}

	entry, fetchErr := g.fetch(r, namespace)
	if fetchErr != nil {
		g.logger.Debugf("fetch failed for %s with nothing cached: %s", key, fetchErr)
		g.serveOffline(w)
		return
	}
	entry.Key = key

	if putErr := g.cache.PutEntry(r.Context(), *entry); putErr != nil {
		g.logger.Errorf("could not cache %s: %s", key, putErr)
	}
	g.serveEntry(w, entry, "miss")
}

// staleWhileRevalidate serves the cached copy immediately while refreshing
// it in the background. On a miss it waits for the network; a network
// failure with nothing cached propagates to the caller.
func (g *Gateway) staleWhileRevalidate(w http.ResponseWriter, r *http.Request) {
	key := cacheKey(r)

	cached, err := g.cache.GetEntry(r.Context(), g.dynamicNamespace, key)
	if err == nil {
		g.revalidate(r, key)
		g.serveEntry(w, cached, "stale")
		return
	}
	if !errors.Is(err, model.ErrNotFound) {
		g.logger.Errorf("could not read cache for %s: %s", key, err)
	}

	result, fetchErr, _ := g.group.Do(key, func() (any, error) {
		entry, err := g.fetch(r, g.dynamicNamespace)
		if err != nil {
			return nil, err
		}
		if putErr := g.cache.PutEntry(context.WithoutCancel(r.Context()), *entry); putErr != nil {
			g.logger.Errorf("could not cache %s: %s", key, putErr)
		}
		return entry, nil
	})
	if fetchErr != nil {
		g.logger.Errorf("could not fetch %s: %s", key, fetchErr)
		http.Error(w, fmt.Sprintf("gateway error: %v", fetchErr), http.StatusBadGateway)
		return
	}

	g.serveEntry(w, result.(*model.CacheEntry), "miss")
}

// revalidate refreshes a cache entry in the background. Concurrent
// revalidations of the same key collapse into one fetch.
func (g *Gateway) revalidate(r *http.Request, key string) {
	req := r.Clone(context.WithoutCancel(r.Context()))

	go func() {
		_, err, _ := g.group.Do(key, func() (any, error) {
			entry, err := g.fetch(req, g.dynamicNamespace)
			if err != nil {
				return nil, err
			}
			if putErr := g.cache.PutEntry(req.Context(), *entry); putErr != nil {
				return nil, putErr
			}
			return entry, nil
		})
		if err != nil {
			g.logger.Debugf("background revalidation failed for %s: %s", key, err)
		}
	}()
}

// passthrough forwards the request untouched, no caching.
func (g *Gateway) passthrough(w http.ResponseWriter, r *http.Request) {
	outReq := cloneProxyRequest(r)

	resp, err := g.transport.RoundTrip(outReq)
	if err != nil {
		g.logger.Errorf("could not forward request to %s: %s", outReq.URL.String(), err)
		http.Error(w, fmt.Sprintf("gateway error: %v", err), http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	removeHopByHopHeaders(resp.Header)
	for k, vv := range resp.Header {
		for _, v := range vv {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
}

// fetch executes the request against the network and snapshots the response
// into a cache entry.
func (g *Gateway) fetch(r *http.Request, namespace string) (*model.CacheEntry, error) {
	outReq := cloneProxyRequest(r)

	resp, err := g.transport.RoundTrip(outReq)
	if err != nil {
		return nil, fmt.Errorf("network fetch failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxCacheBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("could not read response body: %w", err)
	}
	if len(body) > maxCacheBodyBytes {
		return nil, fmt.Errorf("response body exceeds cache limit: %w", model.ErrNotValid)
	}

	removeHopByHopHeaders(resp.Header)

	return &model.CacheEntry{
		Namespace:  namespace,
		Key:        cacheKey(r),
		StatusCode: resp.StatusCode,
		Headers:    resp.Header.Clone(),
		Body:       body,
		StoredAt:   g.now(),
	}, nil
}

// serveEntry writes a cached or fresh response snapshot to the client.
func (g *Gateway) serveEntry(w http.ResponseWriter, e *model.CacheEntry, cacheStatus string) {
	for k, vv := range e.Headers {
		for _, v := range vv {
			w.Header().Add(k, v)
		}
	}
	w.Header().Set("X-Cache", cacheStatus)
	w.WriteHeader(e.StatusCode)
	_, _ = w.Write(bytes.Clone(e.Body))
}

// serveOffline writes the synthetic 503 returned when both the network and
// the cache come up empty.
func (g *Gateway) serveOffline(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = io.WriteString(w, "Offline")
}

// cacheKey is the request identity used for cache lookups: scheme, host,
// path and query.
func cacheKey(r *http.Request) string {
	u := *r.URL
	if u.Host == "" {
		u.Host = r.Host
	}
	if u.Scheme == "" {
		u.Scheme = "http"
	}
	u.Fragment = ""
	return u.String()
}

// cloneProxyRequest prepares an outbound copy of an intercepted request.
func cloneProxyRequest(r *http.Request) *http.Request {
	outReq := r.Clone(r.Context())
	if outReq.URL.Scheme == "" {
		outReq.URL.Scheme = "http"
	}
	if outReq.URL.Host == "" {
		outReq.URL.Host = r.Host
	}
	outReq.RequestURI = ""
	removeHopByHopHeaders(outReq.Header)
	return outReq
}

// hopByHopHeaders are headers that should not be forwarded by proxies.
var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

func removeHopByHopHeaders(h http.Header) {
	for _, hdr := range hopByHopHeaders {
		h.Del(hdr)
	}
}
