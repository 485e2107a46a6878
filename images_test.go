package headlessblog

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func imageServer(t *testing.T) *httptest.Server {
	t.Helper()
	body := pngBytes(t, 40, 30)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok.png":
			w.Header().Set("Content-Type", "image/png")
			w.Write(body)
		case "/text":
			w.Write([]byte("not an image"))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestProbeImage(t *testing.T) {
	srv := imageServer(t)

	w, h, err := probeImage(t.Context(), srv.Client(), srv.URL+"/ok.png")
	require.NoError(t, err)
	assert.Equal(t, 40, w)
	assert.Equal(t, 30, h)

	_, _, err = probeImage(t.Context(), srv.Client(), srv.URL+"/missing.png")
	assert.ErrorContains(t, err, "status 404")

	_, _, err = probeImage(t.Context(), srv.Client(), srv.URL+"/text")
	assert.ErrorContains(t, err, "decode image header")
}

func TestProbeImagesKeepsSrc(t *testing.T) {
	srv := imageServer(t)
	a := newTestApp(t, testConfig(t), samplePosts())
	a.httpClient = srv.Client()

	posts := []Post{
		{ID: "ok", Image: PostImage{File: ImageFile{URL: srv.URL + "/ok.png"}}},
		{ID: "missing", Image: PostImage{File: ImageFile{URL: srv.URL + "/missing.png"}}},
		{ID: "none"},
	}
	a.probeImages(t.Context(), posts)

	assert.Equal(t, 40, posts[0].Image.Width)
	assert.Equal(t, 30, posts[0].Image.Height)
	assert.Equal(t, srv.URL+"/ok.png", posts[0].Image.File.URL)
	assert.Zero(t, posts[1].Image.Width)
	assert.Equal(t, srv.URL+"/missing.png", posts[1].Image.File.URL)
	assert.Zero(t, posts[2].Image.Width)
}

func TestAbsoluteURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"//images.ctfassets.net/s/a.jpg", "https://images.ctfassets.net/s/a.jpg"},
		{"https://example.com/a.jpg", "https://example.com/a.jpg"},
		{"/local.jpg", "/local.jpg"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := AbsoluteURL(tt.in); got != tt.want {
			t.Errorf("AbsoluteURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestBuildURL(t *testing.T) {
	tests := []struct {
		base string
		segs []string
		want string
	}{
		{"https://blog.example.com", nil, "https://blog.example.com/"},
		{"https://example.com/blog", []string{"a", "b"}, "https://example.com/blog/a/b/"},
	}
	for _, tt := range tests {
		if got := BuildURL(tt.base, tt.segs...); got != tt.want {
			t.Errorf("BuildURL(%q, %v) = %q, want %q", tt.base, tt.segs, got, tt.want)
		}
	}
}

func TestImageMIMEType(t *testing.T) {
	assert.Equal(t, "image/png", imageMIMEType("https://x/a.png?w=10"))
	assert.True(t, strings.HasPrefix(imageMIMEType("https://x/a.jpg"), "image/jpeg"))
	assert.Equal(t, "image/jpeg", imageMIMEType("https://x/noext"))
}
