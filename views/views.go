// Package views holds the templ components for the blog index, written as
// templ.ComponentFunc values.
package views

import (
	"context"
	"io"
	"strconv"

	"github.com/a-h/templ"

	"github.com/eringen/headlessblog"
)

// Funcs returns the components wired into a headlessblog.App.
func Funcs() headlessblog.ViewFuncs {
	return headlessblog.ViewFuncs{
		Index:       Index,
		NotFound:    NotFound,
		ServerError: ServerError,
	}
}

// Index renders the full index page: one view node per post, in query order.
func Index(data headlessblog.IndexData, meta headlessblog.PageMeta) templ.Component {
	return Layout(meta, PostList(data.Posts.Nodes))
}

// PostList renders each post as a <div class="post"> holding its title and
// image. Title and image URL are written as given; only HTML escaping applies.
func PostList(posts []headlessblog.Post) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		hw := &htmlWriter{w: w}
		hw.raw(`<div class="posts">`)
		for _, p := range posts {
			hw.raw(`<div class="post" id="post-`)
			hw.text(p.ID)
			hw.raw(`"><p>`)
			hw.text(p.Title)
			hw.raw(`</p><img src="`)
			hw.text(p.Image.File.URL)
			hw.raw(`" alt="`)
			hw.text(p.Title)
			hw.raw(`"`)
			if p.Image.Width > 0 && p.Image.Height > 0 {
				hw.raw(` width="` + strconv.Itoa(p.Image.Width) + `" height="` + strconv.Itoa(p.Image.Height) + `"`)
			}
			hw.raw(` loading="lazy"/></div>`)
		}
		hw.raw(`</div>`)
		return hw.err
	})
}

// Layout wraps body in the HTML document shell.
func Layout(meta headlessblog.PageMeta, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		hw := &htmlWriter{w: w}
		hw.raw(`<!doctype html><html lang="en"><head><meta charset="utf-8"/>`)
		hw.raw(`<meta name="viewport" content="width=device-width, initial-scale=1"/><title>`)
		hw.text(meta.Title)
		hw.raw(`</title>`)
		if meta.Stylesheet != "" {
			hw.raw(`<link rel="stylesheet" href="`)
			hw.text(meta.Stylesheet)
			hw.raw(`"/>`)
		}
		if meta.Description != "" {
			hw.raw(`<meta name="description" content="`)
			hw.text(meta.Description)
			hw.raw(`"/>`)
		}
		if meta.URL != "" {
			hw.raw(`<link rel="canonical" href="`)
			hw.text(meta.URL)
			hw.raw(`"/><link rel="alternate" type="application/rss+xml" href="`)
			hw.text(meta.URL + "feed.xml")
			hw.raw(`"/>`)
		}
		hw.raw(`</head><body><header><h1>`)
		hw.text(meta.Title)
		hw.raw(`</h1></header><main>`)
		if hw.err != nil {
			return hw.err
		}
		if err := body.Render(ctx, w); err != nil {
			return err
		}
		hw.raw(`</main></body></html>`)
		return hw.err
	})
}

// NotFound renders the 404 page.
func NotFound(meta headlessblog.PageMeta) templ.Component {
	return message(meta, "Page not found", "The page you are looking for does not exist.")
}

// ServerError renders the 500 page.
func ServerError(meta headlessblog.PageMeta) templ.Component {
	return message(meta, "Something went wrong", "Please try again in a moment.")
}

func message(meta headlessblog.PageMeta, heading, detail string) templ.Component {
	body := templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		hw := &htmlWriter{w: w}
		hw.raw(`<section class="message"><h2>`)
		hw.text(heading)
		hw.raw(`</h2><p>`)
		hw.text(detail)
		hw.raw(`</p><p><a href="/">Back to posts</a></p></section>`)
		return hw.err
	})
	return Layout(meta, body)
}

// htmlWriter keeps the first write error so markup can be emitted without
// checking every call.
type htmlWriter struct {
	w   io.Writer
	err error
}

func (hw *htmlWriter) raw(s string) {
	if hw.err != nil {
		return
	}
	_, hw.err = io.WriteString(hw.w, s)
}

func (hw *htmlWriter) text(s string) {
	hw.raw(templ.EscapeString(s))
}
