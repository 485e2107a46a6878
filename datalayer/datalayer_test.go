package datalayer

import (
	"reflect"
	"strings"
	"testing"
)

const postsQuery = `
query PostsQuery {
  posts: allContentfulPost {
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
}`

func testGraph() *Graph {
	g := New()
	g.Add("ContentfulPost",
		Node{
			"id":    "p1",
			"title": "First",
			"body":  "not selected",
			"image": map[string]any{
				"id":    "a1",
				"title": "cover",
				"file":  map[string]any{"url": "//images.ctfassets.net/a1.jpg", "fileName": "a1.jpg"},
			},
			"internal": map[string]any{"type": "ContentfulPost"},
		},
		Node{
			"id":    "p2",
			"title": "Second",
			"image": map[string]any{
				"file": map[string]any{"url": "//images.ctfassets.net/a2.png"},
			},
		},
	)
	return g
}

func TestResolvePostsQuery(t *testing.T) {
	got, err := testGraph().Resolve(postsQuery, "")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	want := map[string]any{
		"posts": map[string]any{
			"nodes": []any{
				map[string]any{
					"id":    "p1",
					"title": "First",
					"image": map[string]any{"file": map[string]any{"url": "//images.ctfassets.net/a1.jpg"}},
				},
				map[string]any{
					"id":    "p2",
					"title": "Second",
					"image": map[string]any{"file": map[string]any{"url": "//images.ctfassets.net/a2.png"}},
				},
			},
		},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Resolve = %#v\nwant %#v", got, want)
	}
}

func TestResolveEmptyType(t *testing.T) {
	g := New()
	g.Add("ContentfulPost")
	got, err := g.Resolve(`{ allContentfulPost { totalCount nodes { id } } }`, "")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	conn := got["allContentfulPost"].(map[string]any)
	if conn["totalCount"] != 0 {
		t.Errorf("totalCount = %v, want 0", conn["totalCount"])
	}
	if nodes := conn["nodes"].([]any); len(nodes) != 0 {
		t.Errorf("nodes = %v, want empty", nodes)
	}
}

func TestResolveMissingFieldIsNull(t *testing.T) {
	g := New()
	g.Add("ContentfulPost", Node{"id": "p1", "title": "No image"})
	got, err := g.Resolve(postsQuery, "")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	node := got["posts"].(map[string]any)["nodes"].([]any)[0].(map[string]any)
	if node["image"] != nil {
		t.Errorf("image = %v, want nil", node["image"])
	}
}

func TestResolveLookupByID(t *testing.T) {
	got, err := testGraph().Resolve(`{ contentfulPost(id: "p2") { title } missing: contentfulPost(id: "nope") { title } }`, "")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if title := got["contentfulPost"].(map[string]any)["title"]; title != "Second" {
		t.Errorf("title = %v, want Second", title)
	}
	if got["missing"] != nil {
		t.Errorf("missing = %v, want nil", got["missing"])
	}
}

func TestResolveFragmentsAndTypename(t *testing.T) {
	query := `
fragment PostFields on ContentfulPost { id ...Cover }
fragment Cover on ContentfulPost { image { file { url } } }
query {
  allContentfulPost {
    nodes {
      __typename
      ...PostFields
      ... on ContentfulPost { heading: title }
    }
  }
}`
	got, err := testGraph().Resolve(query, "")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	nodes := got["allContentfulPost"].(map[string]any)["nodes"].([]any)
	first := nodes[0].(map[string]any)
	if first["__typename"] != "ContentfulPost" {
		t.Errorf("__typename = %v, want ContentfulPost", first["__typename"])
	}
	if first["heading"] != "First" {
		t.Errorf("heading = %v, want First", first["heading"])
	}
	if first["id"] != "p1" {
		t.Errorf("id = %v, want p1", first["id"])
	}
	if _, ok := first["image"].(map[string]any); !ok {
		t.Errorf("image missing from fragment spread: %v", first)
	}
}

func TestResolveErrors(t *testing.T) {
	tests := []struct {
		name  string
		query string
		op    string
		want  string
	}{
		{"syntax", `{ allContentfulPost { nodes { id }`, "", "parse query"},
		{"unknown root", `{ allContentfulAuthor { nodes { id } } }`, "", "cannot query field"},
		{"selection on scalar", `{ allContentfulPost { nodes { title { x } } } }`, "", "scalar"},
		{"object without selection", `{ allContentfulPost { nodes { image } } }`, "", "selection of subfields"},
		{"mutation", `mutation { allContentfulPost { totalCount } }`, "", "not supported"},
		{"unknown fragment", `{ allContentfulPost { ...Nope } }`, "", "unknown fragment"},
		{"ambiguous operation", `query A { allContentfulPost { totalCount } } query B { allContentfulPost { totalCount } }`, "", "operation name required"},
		{"unknown operation", `query A { allContentfulPost { totalCount } }`, "B", "unknown operation"},
		{"lookup without id", `{ contentfulPost { id } }`, "", "requires argument"},
	}
	g := testGraph()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := g.Resolve(tt.query, tt.op)
			if err == nil {
				t.Fatalf("expected error containing %q", tt.want)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want it to contain %q", err, tt.want)
			}
		})
	}
}

func TestRootFieldNames(t *testing.T) {
	if got := CollectionField("ContentfulPost"); got != "allContentfulPost" {
		t.Errorf("CollectionField = %q", got)
	}
	if got := LookupField("ContentfulPost"); got != "contentfulPost" {
		t.Errorf("LookupField = %q", got)
	}
}
