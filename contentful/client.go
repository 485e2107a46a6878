// Package contentful is a small client for the Contentful Content Delivery and
// Content Preview APIs. It only reads: entries of a content type and the assets
// they link to.
package contentful

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/failsafe-go/failsafe-go"
)

const (
	// DeliveryHost serves published content.
	DeliveryHost = "cdn.contentful.com"
	// PreviewHost serves drafts as well; it needs a preview token.
	PreviewHost = "preview.contentful.com"

	// MaxPageSize is the largest limit the entries endpoint accepts.
	MaxPageSize = 1000
)

// Config identifies the space and environment to read from.
type Config struct {
	SpaceID     string
	AccessToken string
	Environment string // default "master"
	Host        string // default DeliveryHost
	Preview     bool   // use PreviewHost when Host is empty
}

// Client reads entries from one space environment.
type Client struct {
	baseURL     string
	token       string
	client      *http.Client
	executor    failsafe.Executor[*http.Response]
	shouldRetry func(resp *http.Response, err error) bool
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.client = hc
		}
	}
}

// WithBaseURL points the client at a different origin, e.g. a test server.
func WithBaseURL(base string) Option {
	return func(c *Client) {
		c.baseURL = base
	}
}

// WithRetryConfig replaces the default retry behavior.
func WithRetryConfig(cfg RetryConfig) Option {
	return func(c *Client) {
		cfg = normalizeRetryConfig(cfg)
		c.executor = newExecutor(cfg)
		c.shouldRetry = cfg.ShouldRetry
	}
}

// NewClient builds a client for cfg. SpaceID and AccessToken are required.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if cfg.SpaceID == "" {
		return nil, errors.New("contentful: space id is required")
	}
	if cfg.AccessToken == "" {
		return nil, errors.New("contentful: access token is required")
	}
	if cfg.Environment == "" {
		cfg.Environment = "master"
	}
	host := cfg.Host
	if host == "" {
		host = DeliveryHost
		if cfg.Preview {
			host = PreviewHost
		}
	}

	retry := DefaultRetryConfig()
	c := &Client{
		baseURL:     "https://" + host,
		token:       cfg.AccessToken,
		client:      &http.Client{Timeout: 15 * time.Second},
		executor:    newExecutor(retry),
		shouldRetry: retry.ShouldRetry,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.baseURL = fmt.Sprintf("%s/spaces/%s/environments/%s",
		c.baseURL, url.PathEscape(cfg.SpaceID), url.PathEscape(cfg.Environment))
	return c, nil
}

// EntriesQuery selects one page of entries.
type EntriesQuery struct {
	ContentType string
	Locale      string
	Order       string // e.g. "-sys.createdAt"; empty keeps the API default
	Include     int    // link resolution depth, 0..10
	Limit       int
	Skip        int
}

func (q EntriesQuery) values() url.Values {
	v := url.Values{}
	if q.ContentType != "" {
		v.Set("content_type", q.ContentType)
	}
	if q.Locale != "" {
		v.Set("locale", q.Locale)
	}
	if q.Order != "" {
		v.Set("order", q.Order)
	}
	v.Set("include", strconv.Itoa(q.Include))
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Skip > 0 {
		v.Set("skip", strconv.Itoa(q.Skip))
	}
	return v
}

// Entries fetches a single page of entries.
func (c *Client) Entries(ctx context.Context, q EntriesQuery) (*Collection, error) {
	endpoint := c.baseURL + "/entries?" + q.values().Encode()
	resp, err := c.doRequest(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		return nil, fmt.Errorf("contentful: fetch entries: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, decodeAPIError(resp)
	}
	var col Collection
	if err := json.NewDecoder(resp.Body).Decode(&col); err != nil {
		return nil, fmt.Errorf("contentful: decode entries: %w", err)
	}
	return &col, nil
}

// AllEntries pages through every entry matching q and merges the includes of
// all pages. Entries keep the order the API returned them in. q.Skip is ignored.
func (c *Client) AllEntries(ctx context.Context, q EntriesQuery) ([]Entry, Includes, error) {
	if q.Limit <= 0 {
		q.Limit = 100
	}
	if q.Limit > MaxPageSize {
		q.Limit = MaxPageSize
	}
	q.Skip = 0

	var (
		entries  []Entry
		includes Includes
		seenE    = make(map[string]struct{})
		seenA    = make(map[string]struct{})
	)
	for {
		page, err := c.Entries(ctx, q)
		if err != nil {
			return nil, Includes{}, err
		}
		entries = append(entries, page.Items...)
		for _, e := range page.Includes.Entry {
			if _, ok := seenE[e.Sys.ID]; ok {
				continue
			}
			seenE[e.Sys.ID] = struct{}{}
			includes.Entry = append(includes.Entry, e)
		}
		for _, a := range page.Includes.Asset {
			if _, ok := seenA[a.Sys.ID]; ok {
				continue
			}
			seenA[a.Sys.ID] = struct{}{}
			includes.Asset = append(includes.Asset, a)
		}

		q.Skip += len(page.Items)
		if len(page.Items) == 0 || q.Skip >= page.Total {
			break
		}
	}
	return entries, includes, nil
}

func (c *Client) doRequest(ctx context.Context, build func(ctx context.Context) (*http.Request, error)) (*http.Response, error) {
	if c.executor == nil {
		req, err := build(ctx)
		if err != nil {
			return nil, err
		}
		return c.client.Do(req)
	}
	return c.executor.WithContext(ctx).Get(func() (*http.Response, error) {
		req, err := build(ctx)
		if err != nil {
			return nil, err
		}
		resp, err := c.client.Do(req)
		if err == nil && c.shouldRetry != nil && c.shouldRetry(resp, nil) {
			// Buffer the body and release the connection; the response is
			// still readable if this turns out to be the last attempt.
			b, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
			resp.Body.Close()
			if readErr != nil {
				return nil, readErr
			}
			resp.Body = io.NopCloser(bytes.NewReader(b))
		}
		return resp, err
	})
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	var body struct {
		Sys       Sys    `json:"sys"`
		Message   string `json:"message"`
		RequestID string `json:"requestId"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err == nil {
		apiErr.ID = body.Sys.ID
		apiErr.Message = body.Message
		apiErr.RequestID = body.RequestID
	}
	return apiErr
}
