package headlessblog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/eringen/headlessblog/datalayer"
)

// IndexQuery is the data dependency of the index page for the default "post"
// content type.
var IndexQuery = IndexQueryFor(NodeTypeName("post"))

// IndexQueryFor returns the index page query for a node type.
func IndexQueryFor(typeName string) string {
	return fmt.Sprintf(`query PostsQuery {
  posts: %s {
    nodes {
      id
      title
      image {
        file {
          url
        }
      }
    }
  }
}`, datalayer.CollectionField(typeName))
}

// IndexData resolves the index page query against the stored snapshot.
func (a *App) IndexData(ctx context.Context) (IndexData, error) {
	typeName := NodeTypeName(a.Config.Contentful.ContentType)
	nodes, err := a.Store.ListNodes(ctx, typeName)
	if err != nil {
		return IndexData{}, err
	}
	data, err := ResolveIndex(typeName, nodes)
	if err != nil {
		return IndexData{}, err
	}
	a.Logger.WithField("posts", len(data.Posts.Nodes)).Debug("resolved index data")
	return data, nil
}

// ResolveIndex runs the index query over nodes of typeName and decodes the
// result into IndexData.
func ResolveIndex(typeName string, nodes []datalayer.Node) (IndexData, error) {
	g := datalayer.New()
	g.Add(typeName, nodes...)
	res, err := g.Resolve(IndexQueryFor(typeName), "PostsQuery")
	if err != nil {
		return IndexData{}, fmt.Errorf("headlessblog: resolve index query: %w", err)
	}
	raw, err := json.Marshal(res)
	if err != nil {
		return IndexData{}, fmt.Errorf("headlessblog: encode index data: %w", err)
	}
	var data IndexData
	if err := json.Unmarshal(raw, &data); err != nil {
		return IndexData{}, fmt.Errorf("headlessblog: decode index data: %w", err)
	}
	return data, nil
}
