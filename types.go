package headlessblog

// Post is one record of the index query: a blog post sourced from the content
// platform. Width and Height are only set when image probing is enabled.
type Post struct {
	ID    string    `json:"id"`
	Title string    `json:"title"`
	Image PostImage `json:"image"`
}

// PostImage is the linked image asset of a post.
type PostImage struct {
	File ImageFile `json:"file"`

	Width  int `json:"-"`
	Height int `json:"-"`
}

// ImageFile holds the asset URL exactly as the content platform returned it.
type ImageFile struct {
	URL string `json:"url"`
}

// PostConnection is the result of a collection root field.
type PostConnection struct {
	Nodes []Post `json:"nodes"`
}

// IndexData is the resolved data object handed to the index page.
type IndexData struct {
	Posts PostConnection `json:"posts"`
}

// PageMeta carries per-page SEO metadata into the <head> template.
type PageMeta struct {
	Title       string
	Description string
	URL         string // canonical
	Stylesheet  string // linked from <head> when set
}
