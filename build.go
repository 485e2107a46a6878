package headlessblog

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
)

// BuildResult summarizes a static build.
type BuildResult struct {
	OutputDir string
	Posts     int
	Files     []string // written paths, relative to OutputDir
	Duration  time.Duration
}

// Build produces the static site: it syncs content (unless offline), resolves
// the index query, renders index.html and 404.html, writes sitemap.xml and
// feed.xml, and copies the static directory to public/.
func (a *App) Build(ctx context.Context) (BuildResult, error) {
	start := time.Now()
	out := a.Config.OutputDir
	res := BuildResult{OutputDir: out}

	if !a.Config.Offline {
		if _, err := a.Sync(ctx); err != nil {
			return res, err
		}
	}
	typeName := NodeTypeName(a.Config.Contentful.ContentType)
	info, err := a.Store.LastSync(ctx, typeName)
	if err != nil {
		return res, err
	}
	data, err := a.IndexData(ctx)
	if err != nil {
		return res, err
	}
	res.Posts = len(data.Posts.Nodes)
	if a.Config.ProbeImages {
		a.probeImages(ctx, data.Posts.Nodes)
	}

	meta := a.pageMeta()
	steps := []struct {
		name  string
		write func(path string) error
	}{
		{"index.html", func(p string) error { return RenderFile(ctx, p, a.Views.Index(data, meta)) }},
		{"404.html", func(p string) error { return RenderFile(ctx, p, a.Views.NotFound(meta)) }},
		{"sitemap.xml", func(p string) error {
			return writeFile(p, func(w *bufio.Writer) error { return writeSitemap(w, a.Config.URL, info.SyncedAt) })
		}},
		{"feed.xml", func(p string) error {
			return writeFile(p, func(w *bufio.Writer) error { return writeRSS(w, a.Config, data.Posts.Nodes) })
		}},
	}
	for _, step := range steps {
		if err := step.write(filepath.Join(out, step.name)); err != nil {
			return res, fmt.Errorf("headlessblog: build %s: %w", step.name, err)
		}
		res.Files = append(res.Files, step.name)
	}
	a.metrics.rendered("index")

	copied, err := copyDir(a.Config.StaticDir, filepath.Join(out, "public"))
	if err != nil {
		return res, fmt.Errorf("headlessblog: copy static assets: %w", err)
	}
	for _, f := range copied {
		res.Files = append(res.Files, filepath.Join("public", f))
	}

	res.Duration = time.Since(start)
	a.Logger.WithFields(logrus.Fields{
		"output":   out,
		"posts":    res.Posts,
		"files":    len(res.Files),
		"duration": res.Duration.String(),
	}).Info("site built")
	return res, nil
}

// copyDir copies the regular files under src into dst and returns their
// relative paths. A missing src is not an error.
func copyDir(src, dst string) ([]string, error) {
	if _, err := os.Stat(src); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	var copied []string
	err := filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if err := copyFile(path, target); err != nil {
			return err
		}
		copied = append(copied, rel)
		return nil
	})
	return copied, err
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
