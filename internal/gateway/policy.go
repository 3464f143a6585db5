package gateway

import (
	"net/http"
	"path"
	"strings"
)

// Policy is the caching strategy applied to an intercepted request.
type Policy string

const (
	// PolicyNetworkFirst tries the network and falls back to the cache.
	PolicyNetworkFirst Policy = "network-first"
	// PolicyCacheFirst serves from the cache and fetches only on a miss.
	PolicyCacheFirst Policy = "cache-first"
	// PolicyStaleWhileRevalidate serves the cached copy immediately while
	// refreshing it in the background.
	PolicyStaleWhileRevalidate Policy = "stale-while-revalidate"
	// PolicyPassthrough forwards the request untouched, no interception.
	PolicyPassthrough Policy = "passthrough"
)

// Classifier selects the caching policy for a request. Classification is
// deterministic: the same URL always maps to the same policy.
type Classifier struct {
	rules        RulesConfig
	staticAssets map[string]struct{}
}

// NewClassifier creates a classifier from a ruleset.
func NewClassifier(rules RulesConfig) *Classifier {
	static := make(map[string]struct{}, len(rules.StaticAssets))
	for _, p := range rules.StaticAssets {
		static[p] = struct{}{}
	}

	return &Classifier{rules: rules, staticAssets: static}
}

// Classify returns the policy for a request, evaluating rules in priority
// order. Non-GET requests are never intercepted.
func (c *Classifier) Classify(r *http.Request) Policy {
	if r.Method != http.MethodGet {
		return PolicyPassthrough
	}

	host := strings.ToLower(requestHost(r))
	urlPath := r.URL.Path

	for _, prefix := range c.rules.APIPathPrefixes {
		if strings.HasPrefix(urlPath, prefix) {
			return PolicyNetworkFirst
		}
	}
	for _, sub := range c.rules.APIHostSubstrings {
		if sub != "" && strings.Contains(host, sub) {
			return PolicyNetworkFirst
		}
	}

	ext := strings.TrimPrefix(strings.ToLower(path.Ext(urlPath)), ".")
	for _, imgExt := range c.rules.ImageExtensions {
		if ext == imgExt {
			return PolicyCacheFirst
		}
	}

	if _, ok := c.staticAssets[urlPath]; ok {
		return PolicyCacheFirst
	}

	return PolicyStaleWhileRevalidate
}

// IsStaticAsset reports whether the path belongs to the pre-populated
// static manifest (and so to the static cache namespace).
func (c *Classifier) IsStaticAsset(urlPath string) bool {
	_, ok := c.staticAssets[urlPath]
	return ok
}

// StaticAssets returns the static manifest paths.
func (c *Classifier) StaticAssets() []string {
	return append([]string(nil), c.rules.StaticAssets...)
}

// requestHost returns the target host of a proxied request, stripping any
// port.
func requestHost(r *http.Request) string {
	host := r.URL.Host
	if host == "" {
		host = r.Host
	}
	if idx := strings.LastIndex(host, ":"); idx != -1 && !strings.Contains(host[idx:], "]") {
		host = host[:idx]
	}
	return host
}
