package headlessblog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eringen/headlessblog/deploy"
)

func TestDeployPublishesBuild(t *testing.T) {
	var (
		mu   sync.Mutex
		puts = map[string]string{}
	)
	s3 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		puts[strings.TrimPrefix(r.URL.Path, "/")] = r.Header.Get("Content-Type")
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(s3.Close)

	awsDir := t.TempDir()
	t.Setenv("AWS_CONFIG_FILE", filepath.Join(awsDir, "config"))
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", filepath.Join(awsDir, "credentials"))

	cfg := testConfig(t)
	cfg.Deploy = deploy.Config{
		Bucket:    "contentful-app-bucket",
		Endpoint:  s3.URL,
		AccessKey: "AKIDEXAMPLE",
		SecretKey: "secret",
	}
	a := newTestApp(t, cfg, samplePosts())

	_, err := a.Build(context.Background())
	require.NoError(t, err)
	res, err := a.Deploy(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"404.html", "feed.xml", "index.html", "sitemap.xml"}, res.Uploaded)
	assert.Equal(t, "text/html; charset=utf-8", puts["contentful-app-bucket/index.html"])
	assert.Equal(t, "application/rss+xml; charset=utf-8", puts["contentful-app-bucket/feed.xml"])

	rec := doRequest(t, a, http.MethodGet, "/metrics", nil)
	assert.Contains(t, rec.Body.String(), `headlessblog_deploys_total{result="ok"} 1`)
}

func TestDeployWithoutBucket(t *testing.T) {
	a := newTestApp(t, testConfig(t), samplePosts())
	_, err := a.Deploy(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket is required")
}
