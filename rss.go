package headlessblog

import (
	"encoding/xml"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"

	"github.com/labstack/echo/v4"
)

type rssXML struct {
	XMLName xml.Name   `xml:"rss"`
	Version string     `xml:"version,attr"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title       string    `xml:"title"`
	Link        string    `xml:"link"`
	Description string    `xml:"description"`
	Items       []rssItem `xml:"item"`
}

type rssItem struct {
	Title     string        `xml:"title"`
	Link      string        `xml:"link"`
	GUID      rssGUID       `xml:"guid"`
	Enclosure *rssEnclosure `xml:"enclosure,omitempty"`
}

type rssGUID struct {
	IsPermaLink bool   `xml:"isPermaLink,attr"`
	Value       string `xml:",chardata"`
}

type rssEnclosure struct {
	URL    string `xml:"url,attr"`
	Length int    `xml:"length,attr"`
	Type   string `xml:"type,attr"`
}

// writeRSS writes an RSS 2.0 feed with one item per post, in query order.
// Posts have no pages of their own, so items link to the index anchor.
func writeRSS(w io.Writer, cfg SiteConfig, posts []Post) error {
	base := BuildURL(cfg.URL)
	items := make([]rssItem, 0, len(posts))
	for _, p := range posts {
		item := rssItem{
			Title: p.Title,
			Link:  base + "#post-" + p.ID,
			GUID:  rssGUID{Value: p.ID},
		}
		if p.Image.File.URL != "" {
			imgURL := AbsoluteURL(p.Image.File.URL)
			item.Enclosure = &rssEnclosure{
				URL:  imgURL,
				Type: imageMIMEType(imgURL),
			}
		}
		items = append(items, item)
	}
	feed := rssXML{
		Version: "2.0",
		Channel: rssChannel{
			Title:       cfg.Name,
			Link:        base,
			Description: cfg.Description,
			Items:       items,
		},
	}
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	return xml.NewEncoder(w).Encode(feed)
}

func imageMIMEType(raw string) string {
	p := raw
	if u, err := url.Parse(raw); err == nil {
		p = u.Path
	}
	if t := mime.TypeByExtension(path.Ext(p)); t != "" {
		return t
	}
	return "image/jpeg"
}

func (a *App) renderRSS(c echo.Context, posts []Post) error {
	c.Response().Header().Set(echo.HeaderContentType, "application/rss+xml; charset=utf-8")
	c.Response().WriteHeader(http.StatusOK)
	return writeRSS(c.Response(), a.Config, posts)
}
