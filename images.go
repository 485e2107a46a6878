package headlessblog

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"
	_ "golang.org/x/image/webp"
)

// maxProbeBytes bounds how much of an image is read to find its dimensions.
const maxProbeBytes = 1 << 20

// probeImages fills in Width and Height for every post image it can read.
// Failures are logged and leave the dimensions unset; src is never changed.
func (a *App) probeImages(ctx context.Context, posts []Post) {
	for i := range posts {
		src := posts[i].Image.File.URL
		if src == "" {
			continue
		}
		w, h, err := probeImage(ctx, a.httpClient, src)
		if err != nil {
			a.Logger.WithError(err).WithFields(logrus.Fields{
				"post": posts[i].ID,
				"url":  src,
			}).Warn("image probe failed")
			continue
		}
		posts[i].Image.Width = w
		posts[i].Image.Height = h
	}
}

// probeImage fetches src and decodes only the image header.
func probeImage(ctx context.Context, hc *http.Client, src string) (int, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, AbsoluteURL(src), nil)
	if err != nil {
		return 0, 0, err
	}
	resp, err := hc.Do(req)
	if err != nil {
		return 0, 0, fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, 0, fmt.Errorf("fetch image: status %d", resp.StatusCode)
	}
	cfg, _, err := image.DecodeConfig(io.LimitReader(resp.Body, maxProbeBytes))
	if err != nil {
		return 0, 0, fmt.Errorf("decode image header: %w", err)
	}
	return cfg.Width, cfg.Height, nil
}
