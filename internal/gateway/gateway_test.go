package gateway_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskly/trackd/internal/gateway"
	"github.com/taskly/trackd/internal/model"
	"github.com/taskly/trackd/internal/storage/memory"
)

// flakyTransport serves canned responses and can be switched offline.
type flakyTransport struct {
	offline atomic.Bool
	hits    atomic.Int64
	status  int
	body    string
}

func (t *flakyTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	t.hits.Add(1)
	if t.offline.Load() {
		return nil, fmt.Errorf("connection refused")
	}

	status := t.status
	if status == 0 {
		status = http.StatusOK
	}

	rec := httptest.NewRecorder()
	rec.Header().Set("Content-Type", "text/plain")
	rec.WriteHeader(status)
	_, _ = io.WriteString(rec, t.body)
	return rec.Result(), nil
}

func newTestGateway(t *testing.T, transport http.RoundTripper) (*gateway.Gateway, *memory.Repository) {
	t.Helper()

	repo, err := memory.NewRepository(memory.RepositoryConfig{})
	require.NoError(t, err)

	gw, err := gateway.NewGateway(gateway.GatewayConfig{
		Cache:     repo,
		Rules:     gateway.DefaultConfig().Rules,
		Transport: transport,
	})
	require.NoError(t, err)

	return gw, repo
}

func doRequest(gw *gateway.Gateway, method, url string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, url, nil)
	w := httptest.NewRecorder()
	gw.ServeHTTP(w, req)
	return w
}

func TestNetworkFirst(t *testing.T) {
	transport := &flakyTransport{body: "fresh data"}
	gw, _ := newTestGateway(t, transport)

	// Online: network wins and the response is mirrored into the cache.
	w := doRequest(gw, "GET", "http://app.local/api/tasks")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "fresh data", w.Body.String())

	// Offline: the mirrored copy is served.
	transport.offline.Store(true)
	w = doRequest(gw, "GET", "http://app.local/api/tasks")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "fresh data", w.Body.String())
	assert.Equal(t, "hit", w.Header().Get("X-Cache"))

	// Offline with nothing cached: synthetic 503.
	w = doRequest(gw, "GET", "http://app.local/api/other")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "Offline", w.Body.String())
}

func TestCacheFirst(t *testing.T) {
	transport := &flakyTransport{body: "image bytes"}
	gw, _ := newTestGateway(t, transport)

	// Miss populates the cache.
	w := doRequest(gw, "GET", "http://app.local/assets/logo.png")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(1), transport.hits.Load())

	// Hit never touches the network.
	w = doRequest(gw, "GET", "http://app.local/assets/logo.png")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image bytes", w.Body.String())
	assert.Equal(t, "hit", w.Header().Get("X-Cache"))
	assert.Equal(t, int64(1), transport.hits.Load())

	// Offline miss: synthetic 503.
	transport.offline.Store(true)
	w = doRequest(gw, "GET", "http://app.local/assets/other.png")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "Offline", w.Body.String())
}

func TestStaleWhileRevalidate(t *testing.T) {
	transport := &flakyTransport{body: "v1"}
	gw, _ := newTestGateway(t, transport)

	// Miss waits for the network.
	w := doRequest(gw, "GET", "http://app.local/app.js")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "v1", w.Body.String())

	// Hit serves the stale copy immediately and refreshes behind the scenes.
	transport.body = "v2"
	w = doRequest(gw, "GET", "http://app.local/app.js")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "v1", w.Body.String())
	assert.Equal(t, "stale", w.Header().Get("X-Cache"))

	// The background refresh lands in the cache for the next request.
	assert.Eventually(t, func() bool {
		w := doRequest(gw, "GET", "http://app.local/app.js")
		return w.Body.String() == "v2"
	}, time.Second, 10*time.Millisecond)

	// Offline miss propagates the failure.
	transport.offline.Store(true)
	w = doRequest(gw, "GET", "http://app.local/vendor.js")
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestPassthroughDoesNotCache(t *testing.T) {
	transport := &flakyTransport{body: "created", status: http.StatusCreated}
	gw, repo := newTestGateway(t, transport)

	w := doRequest(gw, "POST", "http://app.local/api/tasks")
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "created", w.Body.String())

	_, err := repo.GetEntry(context.Background(), "dynamic-v1", "http://app.local/api/tasks")
	assert.Error(t, err)
}

func TestInstallAndActivate(t *testing.T) {
	ctx := context.Background()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprintf(w, "asset %s", r.URL.Path)
	}))
	defer server.Close()

	repo, err := memory.NewRepository(memory.RepositoryConfig{})
	require.NoError(t, err)

	// Leftovers from a previous cache version.
	require.NoError(t, repo.PutEntry(ctx, model.CacheEntry{
		Namespace:  "static-v1",
		Key:        "/manifest.json",
		StatusCode: 200,
		StoredAt:   time.Now().UTC(),
	}))

	gw, err := gateway.NewGateway(gateway.GatewayConfig{
		Cache:        repo,
		Rules:        gateway.DefaultConfig().Rules,
		CacheVersion: 2,
		Origin:       server.URL,
	})
	require.NoError(t, err)

	require.NoError(t, gw.Install(ctx))

	// Every static manifest entry is pre-cached under the new namespace.
	for _, asset := range []string{"/", "/manifest.json", "/icon-192x192.png", "/sounds/notification.mp3"} {
		entry, err := repo.GetEntry(ctx, "static-v2", asset)
		require.NoError(t, err, asset)
		assert.Equal(t, 200, entry.StatusCode)
	}

	// Activation drops every namespace from previous versions.
	require.NoError(t, gw.Activate(ctx))

	_, err = repo.GetEntry(ctx, "static-v1", "/manifest.json")
	assert.Error(t, err)
	_, err = repo.GetEntry(ctx, "static-v2", "/manifest.json")
	assert.NoError(t, err)
}

func TestReloadRules(t *testing.T) {
	transport := &flakyTransport{body: "data"}
	gw, _ := newTestGateway(t, transport)

	// Initially /internal/ is not an API path, so it gets the default policy.
	w := doRequest(gw, "GET", "http://app.local/internal/state")
	assert.Equal(t, http.StatusOK, w.Code)

	rules := gateway.DefaultConfig().Rules
	rules.APIPathPrefixes = append(rules.APIPathPrefixes, "/internal/")
	gw.ReloadRules(rules)

	// After the reload the path is network first: offline falls back to the
	// copy cached by the earlier stale-while-revalidate pass.
	transport.offline.Store(true)
	w = doRequest(gw, "GET", "http://app.local/internal/state")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "hit", w.Header().Get("X-Cache"))
}
