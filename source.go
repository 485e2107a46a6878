package headlessblog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/sirupsen/logrus"

	"github.com/eringen/headlessblog/contentful"
	"github.com/eringen/headlessblog/datalayer"
)

// maxLinkDepth bounds how deep entry-to-entry links are expanded.
const maxLinkDepth = 2

// ErrNoSource is returned by Sync when no content source is configured.
var ErrNoSource = errors.New("headlessblog: no content source configured")

// Source fetches raw entries from the content platform. *contentful.Client
// implements it.
type Source interface {
	AllEntries(ctx context.Context, q contentful.EntriesQuery) ([]contentful.Entry, contentful.Includes, error)
}

// NodeTypeName maps a content type id to its node type,
// e.g. "post" -> "ContentfulPost", "blog-post" -> "ContentfulBlogPost".
func NodeTypeName(contentType string) string {
	var b strings.Builder
	b.WriteString("Contentful")
	upper := true
	for _, r := range contentType {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			upper = true
			continue
		}
		if upper {
			r = unicode.ToUpper(r)
			upper = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Sync fetches every entry of the configured content type, converts the
// entries to nodes and replaces the stored snapshot.
func (a *App) Sync(ctx context.Context) (SyncInfo, error) {
	if a.source == nil {
		return SyncInfo{}, ErrNoSource
	}
	cf := a.Config.Contentful
	typeName := NodeTypeName(cf.ContentType)
	log := a.Logger.WithFields(logrus.Fields{
		"content_type": cf.ContentType,
		"node_type":    typeName,
	})

	start := time.Now()
	entries, includes, err := a.source.AllEntries(ctx, contentful.EntriesQuery{
		ContentType: cf.ContentType,
		Locale:      cf.Locale,
		Order:       cf.Order,
		Include:     maxLinkDepth,
		Limit:       cf.PageSize,
	})
	if err != nil {
		a.metrics.observeSync("error", time.Since(start), 0)
		log.WithError(err).Error("content sync failed")
		return SyncInfo{}, fmt.Errorf("headlessblog: sync %s: %w", cf.ContentType, err)
	}

	nodes := entriesToNodes(typeName, entries, includes)
	if err := a.Store.ReplaceNodes(ctx, typeName, nodes); err != nil {
		a.metrics.observeSync("error", time.Since(start), 0)
		return SyncInfo{}, fmt.Errorf("headlessblog: store %s snapshot: %w", typeName, err)
	}

	elapsed := time.Since(start)
	a.metrics.observeSync("ok", elapsed, len(nodes))
	log.WithFields(logrus.Fields{
		"nodes":    len(nodes),
		"assets":   len(includes.Asset),
		"duration": elapsed.String(),
	}).Info("content synced")
	return SyncInfo{Type: typeName, SyncedAt: time.Now().UTC(), Total: len(nodes)}, nil
}

// entriesToNodes turns API entries into data layer nodes, resolving links
// against includes. Order is preserved.
func entriesToNodes(typeName string, entries []contentful.Entry, includes contentful.Includes) []datalayer.Node {
	r := &linkResolver{
		assets:  make(map[string]contentful.Asset, len(includes.Asset)),
		entries: make(map[string]contentful.Entry, len(includes.Entry)+len(entries)),
	}
	for _, a := range includes.Asset {
		r.assets[a.Sys.ID] = a
	}
	for _, e := range includes.Entry {
		r.entries[e.Sys.ID] = e
	}
	for _, e := range entries {
		r.entries[e.Sys.ID] = e
	}

	nodes := make([]datalayer.Node, 0, len(entries))
	for _, e := range entries {
		nodes = append(nodes, r.entryNode(e, typeName, 0))
	}
	return nodes
}

type linkResolver struct {
	assets  map[string]contentful.Asset
	entries map[string]contentful.Entry
}

// reserved node keys; entry fields with these names are stored with a
// "field_" prefix.
var reservedKeys = map[string]bool{"id": true, "internal": true, "createdAt": true, "updatedAt": true}

func (r *linkResolver) entryNode(e contentful.Entry, typeName string, depth int) datalayer.Node {
	n := datalayer.Node{
		"id":        e.Sys.ID,
		"createdAt": e.Sys.CreatedAt,
		"updatedAt": e.Sys.UpdatedAt,
		"internal":  map[string]any{"type": typeName},
	}
	for name, v := range e.Fields {
		key := name
		if reservedKeys[name] {
			key = "field_" + name
		}
		n[key] = r.resolve(v, depth)
	}
	return n
}

func assetNode(a contentful.Asset) map[string]any {
	n := map[string]any{
		"id":          a.Sys.ID,
		"title":       a.Fields.Title,
		"description": a.Fields.Description,
		"internal":    map[string]any{"type": "ContentfulAsset"},
	}
	if f := a.Fields.File; f != nil {
		details := map[string]any{"size": f.Details.Size}
		if img := f.Details.Image; img != nil {
			details["image"] = map[string]any{"width": img.Width, "height": img.Height}
		}
		n["file"] = map[string]any{
			"url":         f.URL,
			"fileName":    f.FileName,
			"contentType": f.ContentType,
			"details":     details,
		}
	}
	return n
}

func (r *linkResolver) resolve(v any, depth int) any {
	switch val := v.(type) {
	case map[string]any:
		if linkType, id, ok := asLink(val); ok {
			return r.resolveLink(linkType, id, depth)
		}
		out := make(map[string]any, len(val))
		for k, inner := range val {
			out[k] = r.resolve(inner, depth)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = r.resolve(inner, depth)
		}
		return out
	default:
		return v
	}
}

// resolveLink returns nil for links whose target was not included, matching
// how unpublished or deleted targets disappear from the delivery API.
func (r *linkResolver) resolveLink(linkType, id string, depth int) any {
	switch linkType {
	case "Asset":
		a, ok := r.assets[id]
		if !ok {
			return nil
		}
		return assetNode(a)
	case "Entry":
		e, ok := r.entries[id]
		if !ok {
			return nil
		}
		if depth+1 > maxLinkDepth {
			return map[string]any{"id": id}
		}
		return map[string]any(r.entryNode(e, NodeTypeName(e.ContentTypeID()), depth+1))
	default:
		return nil
	}
}

func asLink(m map[string]any) (linkType, id string, ok bool) {
	sys, isMap := m["sys"].(map[string]any)
	if !isMap || len(m) != 1 {
		return "", "", false
	}
	if t, _ := sys["type"].(string); t != "Link" {
		return "", "", false
	}
	linkType, _ = sys["linkType"].(string)
	id, _ = sys["id"].(string)
	return linkType, id, id != ""
}
