package intercept

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hazardwatch/edge-next/internal/app/appconfig"
	"github.com/hazardwatch/edge-next/internal/constant"
	"github.com/hazardwatch/edge-next/internal/infra"
	"github.com/hazardwatch/edge-next/internal/netmon"
	"github.com/hazardwatch/edge-next/internal/repo"
	"github.com/hazardwatch/edge-next/internal/server/httpserver"
)

type proxyHarness struct {
	App     *fiber.App
	Cache   *repo.CacheEntry
	Monitor *netmon.Monitor
}

func newProxyHarness(t *testing.T, upstream string) *proxyHarness {
	t.Helper()

	conf := &appconfig.Config{
		ConfigSpec: appconfig.ConfigSpec{
			UpstreamBaseURL: upstream,
			StaticPaths:     []string{"/assets"},
			APIReadPaths:    []string{"/api/v1/advisories"},
			MediaPaths:      []string{"/media"},
			UpstreamTimeout: 2 * time.Second,
		},
	}

	store := infra.Open(filepath.Join(t.TempDir(), "test.db"))
	require.True(t, store.Available())
	require.NoError(t, repo.NewMeta(store).Migrate(context.Background()))

	cacheRepo := repo.NewCacheEntry(store)
	monitor := netmon.NewWithProbe(upstream+"/health", time.Minute, time.Second)
	proxy := NewProxy(conf, NewClassifier(conf), cacheRepo, monitor)

	app := fiber.New(fiber.Config{ErrorHandler: httpserver.ErrorHandler})
	RegisterProxy(app, proxy)

	return &proxyHarness{App: app, Cache: cacheRepo, Monitor: monitor}
}

func request(t *testing.T, app *fiber.App, method, target string) (*http.Response, []byte) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(method, target, nil), 5000)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()
	return resp, body
}

func TestStaticCacheFirst(t *testing.T) {
	hits := 0
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Header().Set("Content-Type", "application/javascript")
		_, _ = w.Write([]byte("console.log(1)"))
	}))
	defer upstream.Close()

	h := newProxyHarness(t, upstream.URL)

	resp, body := request(t, h.App, "GET", "/assets/app.js")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "console.log(1)", string(body))
	assert.Equal(t, constant.CacheStatusMiss, resp.Header.Get(constant.CacheStatusHeader))

	// second request is served from cache without touching the upstream
	resp, body = request(t, h.App, "GET", "/assets/app.js")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "console.log(1)", string(body))
	assert.Equal(t, constant.CacheStatusHit, resp.Header.Get(constant.CacheStatusHeader))
	assert.Equal(t, "application/javascript", resp.Header.Get("Content-Type"))
	assert.Equal(t, 1, hits)
}

// A static asset requested offline with a prior cached copy is served from
// cache with no error surfaced.
func TestStaticServedFromCacheWhileOffline(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("cached-asset"))
	}))

	h := newProxyHarness(t, upstream.URL)
	request(t, h.App, "GET", "/assets/app.js")

	upstream.Close()

	resp, body := request(t, h.App, "GET", "/assets/app.js")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "cached-asset", string(body))
	assert.Equal(t, constant.CacheStatusHit, resp.Header.Get(constant.CacheStatusHeader))
}

func TestStaticUnavailableWithoutCache(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := upstream.URL
	upstream.Close()

	h := newProxyHarness(t, url)
	h.Monitor.SetOnline(true)

	resp, body := request(t, h.App, "GET", "/assets/app.js")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, string(body), `"code":"OFFLINE"`)
	// the failed fetch is authoritative for connectivity
	assert.False(t, h.Monitor.IsOnline())
}

func TestAPIReadNetworkFirstWithFallback(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"advisories":[1,2]}`))
	}))

	h := newProxyHarness(t, upstream.URL)

	resp, body := request(t, h.App, "GET", "/api/v1/advisories?zone=3")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `{"advisories":[1,2]}`, string(body))
	assert.Equal(t, constant.CacheStatusMiss, resp.Header.Get(constant.CacheStatusHeader))

	// offline: the most recent copy is returned
	upstream.Close()
	resp, body = request(t, h.App, "GET", "/api/v1/advisories?zone=3")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `{"advisories":[1,2]}`, string(body))
	assert.Equal(t, constant.CacheStatusHit, resp.Header.Get(constant.CacheStatusHeader))
}

// An API read offline with no prior cache responds with an explicit offline
// marker instead of an opaque failure.
func TestAPIReadOfflineMarker(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := upstream.URL
	upstream.Close()

	h := newProxyHarness(t, url)

	resp, body := request(t, h.App, "GET", "/api/v1/advisories")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	var payload struct {
		Code    string `json:"code"`
		Offline bool   `json:"offline"`
	}
	require.NoError(t, json.Unmarshal(body, &payload))
	assert.Equal(t, "OFFLINE", payload.Code)
	assert.True(t, payload.Offline)
}

func TestMediaEmptyUnavailableWithoutCache(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := upstream.URL
	upstream.Close()

	h := newProxyHarness(t, url)

	resp, body := request(t, h.App, "GET", "/media/scene.jpg")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.NotContains(t, string(body), "offline")
}

func TestNonGetPassesThroughUncached(t *testing.T) {
	var method string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		w.WriteHeader(http.StatusCreated)
	}))
	defer upstream.Close()

	h := newProxyHarness(t, upstream.URL)

	resp, _ := request(t, h.App, "POST", "/api/v1/advisories")
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "POST", method)

	// nothing was cached for the write
	_, err := h.Cache.Get(context.Background(), constant.CacheClassDynamic, "/api/v1/advisories")
	assert.Error(t, err)
}

// Only successful responses are cached: a 500 must not overwrite a good
// cached copy.
func TestErrorResponsesNotCached(t *testing.T) {
	fail := false
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte("good"))
	}))
	defer upstream.Close()

	h := newProxyHarness(t, upstream.URL)
	request(t, h.App, "GET", "/api/v1/advisories")

	fail = true
	resp, body := request(t, h.App, "GET", "/api/v1/advisories")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Empty(t, body)

	entry, err := h.Cache.Get(context.Background(), constant.CacheClassDynamic, "/api/v1/advisories")
	require.NoError(t, err)
	assert.Equal(t, []byte("good"), entry.Body)
}
