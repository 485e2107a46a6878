package headlessblog

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func doRequest(t *testing.T, a *App, method, target string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHandleIndex(t *testing.T) {
	a := newTestApp(t, testConfig(t), samplePosts())

	rec := doRequest(t, a, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "<h1>Test Blog</h1>"+
		"<li>p1|First post|//images.ctfassets.net/space/a1/first.jpg</li>"+
		"<li>p2|Second post|//images.ctfassets.net/space/a2/second.png</li>", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Equal(t, "public, max-age=300", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestHandleIndexCachesData(t *testing.T) {
	src := samplePosts()
	a := newTestApp(t, testConfig(t), src)

	doRequest(t, a, http.MethodGet, "/", nil)
	doRequest(t, a, http.MethodGet, "/", nil)
	assert.Equal(t, int32(1), src.calls.Load(), "second request should be served from cache")
}

func TestHandleIndexWithoutSnapshot(t *testing.T) {
	a := newTestApp(t, testConfig(t), &fakeSource{err: errors.New("unreachable")})

	rec := doRequest(t, a, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "server error", rec.Body.String())
}

func TestHandleFeedWithoutSnapshot(t *testing.T) {
	a := newTestApp(t, testConfig(t), &fakeSource{err: errors.New("unreachable")})

	rec := doRequest(t, a, http.MethodGet, "/feed.xml", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "server error", rec.Body.String())
}

func TestErrorHandlerUnwrapsHTTPError(t *testing.T) {
	a := newTestApp(t, testConfig(t), samplePosts())
	a.Echo.GET("/gone", func(c echo.Context) error {
		return fmt.Errorf("lookup: %w", echo.NewHTTPError(http.StatusNotFound))
	})

	rec := doRequest(t, a, http.MethodGet, "/gone", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not found", rec.Body.String())
}

func TestPageMetaLinksStylesheet(t *testing.T) {
	a := newTestApp(t, testConfig(t), samplePosts())
	assert.Equal(t, "/public/css/site.css", a.pageMeta().Stylesheet)
}

func TestHandleIndexFallsBackToSnapshot(t *testing.T) {
	src := samplePosts()
	a := newTestApp(t, testConfig(t), src)
	_, err := a.Sync(t.Context())
	require.NoError(t, err)

	src.err = errors.New("unreachable")
	rec := doRequest(t, a, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, strings.Count(rec.Body.String(), "<li>"))
}

func TestNotFound(t *testing.T) {
	a := newTestApp(t, testConfig(t), samplePosts())

	rec := doRequest(t, a, http.MethodGet, "/no-such-page", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not found", rec.Body.String())
}

func TestHandleRobots(t *testing.T) {
	a := newTestApp(t, testConfig(t), samplePosts())

	rec := doRequest(t, a, http.MethodGet, "/robots.txt", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Sitemap: https://blog.example.com/sitemap.xml")
}

func TestHandleSitemapAndFeed(t *testing.T) {
	a := newTestApp(t, testConfig(t), samplePosts())

	rec := doRequest(t, a, http.MethodGet, "/sitemap.xml", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<loc>https://blog.example.com/</loc>")
	assert.NotContains(t, rec.Body.String(), "<lastmod>", "no snapshot yet")

	rec = doRequest(t, a, http.MethodGet, "/feed.xml", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/rss+xml; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, 2, strings.Count(rec.Body.String(), "<item>"))

	rec = doRequest(t, a, http.MethodGet, "/sitemap.xml", nil)
	assert.Contains(t, rec.Body.String(), "<lastmod>", "feed request synced content")
}

func TestHandleHealth(t *testing.T) {
	a := newTestApp(t, testConfig(t), samplePosts())

	rec := doRequest(t, a, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Nil(t, body["last_sync"])
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	_, err := a.Sync(t.Context())
	require.NoError(t, err)
	rec = doRequest(t, a, http.MethodGet, "/healthz", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body["last_sync"])
	assert.Equal(t, float64(2), body["nodes"])
}

func TestMetricsEndpoint(t *testing.T) {
	a := newTestApp(t, testConfig(t), samplePosts())
	doRequest(t, a, http.MethodGet, "/", nil)

	rec := doRequest(t, a, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `headlessblog_syncs_total{result="ok"} 1`)
	assert.Contains(t, body, `headlessblog_page_renders_total{page="index"} 1`)
	assert.Contains(t, body, "headlessblog_synced_nodes 2")
}

func TestWebhook(t *testing.T) {
	cfg := testConfig(t)
	cfg.WebhookSecret = "s3cret"
	src := samplePosts()
	a := newTestApp(t, cfg, src)

	doRequest(t, a, http.MethodGet, "/", nil)
	require.Equal(t, int32(1), src.calls.Load())

	rec := doRequest(t, a, http.MethodPost, "/hooks/contentful", map[string]string{webhookSecretHeader: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(t, a, http.MethodPost, "/hooks/contentful", map[string]string{
		webhookSecretHeader:  "s3cret",
		"X-Contentful-Topic": "ContentManagement.Entry.publish",
	})
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"status":"invalidated"}`, rec.Body.String())
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	doRequest(t, a, http.MethodGet, "/", nil)
	assert.Equal(t, int32(2), src.calls.Load(), "invalidated cache should resync")
}

func TestWebhookRateLimited(t *testing.T) {
	cfg := testConfig(t)
	cfg.WebhookSecret = "s3cret"
	a := newTestApp(t, cfg, samplePosts())

	hdr := map[string]string{webhookSecretHeader: "s3cret"}
	for i := 0; i < 10; i++ {
		rec := doRequest(t, a, http.MethodPost, "/hooks/contentful", hdr)
		require.Equal(t, http.StatusAccepted, rec.Code, "request %d", i+1)
	}
	rec := doRequest(t, a, http.MethodPost, "/hooks/contentful", hdr)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestWebhookDisabledWithoutSecret(t *testing.T) {
	a := newTestApp(t, testConfig(t), samplePosts())

	rec := doRequest(t, a, http.MethodPost, "/hooks/contentful", map[string]string{webhookSecretHeader: ""})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
