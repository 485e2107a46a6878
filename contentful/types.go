package contentful

import "fmt"

// Sys is the system metadata block present on every Contentful resource.
type Sys struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	LinkType    string `json:"linkType,omitempty"`
	CreatedAt   string `json:"createdAt,omitempty"`
	UpdatedAt   string `json:"updatedAt,omitempty"`
	Locale      string `json:"locale,omitempty"`
	ContentType *Link  `json:"contentType,omitempty"`
}

// Link references another resource by id.
type Link struct {
	Sys Sys `json:"sys"`
}

// Entry is a single content entry. Fields are kept untyped because their shape
// depends on the content model.
type Entry struct {
	Sys    Sys            `json:"sys"`
	Fields map[string]any `json:"fields"`
}

// ContentTypeID returns the id of the entry's content type, or "" if absent.
func (e Entry) ContentTypeID() string {
	if e.Sys.ContentType == nil {
		return ""
	}
	return e.Sys.ContentType.Sys.ID
}

// Asset is a media resource (image, video, document).
type Asset struct {
	Sys    Sys         `json:"sys"`
	Fields AssetFields `json:"fields"`
}

// AssetFields holds the fields of a single-locale asset.
type AssetFields struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	File        *File  `json:"file,omitempty"`
}

// File describes the binary behind an asset. URL is protocol-relative as
// returned by the API, e.g. "//images.ctfassets.net/...".
type File struct {
	URL         string      `json:"url"`
	FileName    string      `json:"fileName,omitempty"`
	ContentType string      `json:"contentType,omitempty"`
	Details     FileDetails `json:"details"`
}

// FileDetails carries size information; Image is only set for images.
type FileDetails struct {
	Size  int64         `json:"size,omitempty"`
	Image *ImageDetails `json:"image,omitempty"`
}

// ImageDetails holds the pixel dimensions reported by the platform.
type ImageDetails struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Includes holds linked resources returned alongside a collection.
type Includes struct {
	Entry []Entry `json:"Entry,omitempty"`
	Asset []Asset `json:"Asset,omitempty"`
}

// Collection is one page of the entries endpoint.
type Collection struct {
	Total    int      `json:"total"`
	Skip     int      `json:"skip"`
	Limit    int      `json:"limit"`
	Items    []Entry  `json:"items"`
	Includes Includes `json:"includes"`
}

// APIError is the error body returned by the Content Delivery API.
type APIError struct {
	StatusCode int    `json:"-"`
	ID         string `json:"-"`
	Message    string `json:"message"`
	RequestID  string `json:"requestId"`
}

func (e *APIError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("contentful: %s (status %d): %s", e.ID, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("contentful returned status: %d", e.StatusCode)
}
