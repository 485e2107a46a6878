// Package headlessblog builds a blog index page from posts sourced from the
// Contentful content platform. Posts are fetched at build time, stored as a
// snapshot, resolved through the page's GraphQL query and rendered with templ
// into static files. A preview server renders the same page on demand.
//
// Users provide their own templ components via the ViewFuncs struct;
// headlessblog handles sourcing, data resolution, output and serving.
package headlessblog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/a-h/templ"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/eringen/headlessblog/contentful"
)

// ViewFuncs holds the templ components the framework calls when rendering
// pages.
type ViewFuncs struct {
	Index       func(data IndexData, meta PageMeta) templ.Component
	NotFound    func(meta PageMeta) templ.Component
	ServerError func(meta PageMeta) templ.Component
}

// App wires together the content source, snapshot store, cache, views and
// HTTP server.
type App struct {
	Config   SiteConfig
	Echo     *echo.Echo
	Store    *Store
	Cache    *IndexCache
	Views    ViewFuncs
	Logger   *logrus.Logger
	Registry *prometheus.Registry

	source      Source
	httpClient  *http.Client
	metrics     *metrics
	hookLimiter *RateLimiter
	setupOnce   sync.Once
}

// New creates an App, opening the snapshot store. Unless the configuration is
// offline or WithSource is given, a Contentful client is built from
// cfg.Contentful. Call Close when done.
func New(cfg SiteConfig, views ViewFuncs, opts ...Option) (*App, error) {
	cfg.setDefaults()

	a := &App{
		Config:     cfg,
		Echo:       echo.New(),
		Views:      views,
		Registry:   prometheus.NewRegistry(),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.Logger == nil {
		a.Logger = NewLogger(cfg.LogLevel)
	}
	if err := a.Config.Validate(); err != nil {
		return nil, err
	}
	if a.Views.Index == nil || a.Views.NotFound == nil || a.Views.ServerError == nil {
		return nil, errors.New("headlessblog: Index, NotFound and ServerError views are required")
	}

	if a.source == nil && !cfg.Offline {
		cf := cfg.Contentful
		client, err := contentful.NewClient(contentful.Config{
			SpaceID:     cf.SpaceID,
			AccessToken: cf.AccessToken,
			Environment: cf.Environment,
			Host:        cf.Host,
			Preview:     cf.Preview,
		})
		if err != nil {
			return nil, fmt.Errorf("headlessblog: %w", err)
		}
		a.source = client
	}

	store, err := NewStore(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("headlessblog: init store: %w", err)
	}
	a.Store = store
	a.metrics = newMetrics(a.Registry)
	a.Cache = NewIndexCache(cfg.CacheTTL, a.loadIndex)
	a.hookLimiter = NewRateLimiter(10, time.Minute)

	a.Echo.HideBanner = true
	a.Echo.HidePort = true
	return a, nil
}

// loadIndex refreshes the snapshot when a source is available and resolves
// the index data. A failed sync falls back to the stored snapshot.
func (a *App) loadIndex(ctx context.Context) (IndexData, error) {
	if a.source != nil && !a.Config.Offline {
		if _, err := a.Sync(ctx); err != nil {
			a.Logger.WithError(err).Warn("serving stored snapshot")
		}
	}
	return a.IndexData(ctx)
}

// Handler returns the configured HTTP handler. Middleware and routes are set
// up on first call.
func (a *App) Handler() http.Handler {
	a.setupOnce.Do(func() {
		a.setupMiddleware()
		a.setupRoutes()
	})
	return a.Echo
}

// Serve starts the preview server and blocks until ctx is cancelled or the
// server fails.
func (a *App) Serve(ctx context.Context) error {
	a.Handler()

	errCh := make(chan error, 1)
	go func() {
		a.Logger.WithField("addr", a.Config.Addr).Info("preview server listening")
		errCh <- a.Echo.Start(a.Config.Addr)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return a.Echo.Shutdown(shutdownCtx)
	}
}

func (a *App) setupRoutes() {
	e := a.Echo

	e.Static("/public", a.Config.StaticDir)
	e.GET("/robots.txt", a.handleRobots)
	e.GET("/sitemap.xml", a.handleSitemap)
	e.GET("/feed.xml", a.handleFeed)
	e.GET("/healthz", a.handleHealth)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{})))
	e.GET("/", a.handleIndex)

	if a.Config.WebhookSecret != "" {
		e.POST("/hooks/contentful", a.handleWebhook)
	}
}

func (a *App) pageMeta() PageMeta {
	return PageMeta{
		Title:       a.Config.Name,
		Description: a.Config.Description,
		URL:         BuildURL(a.Config.URL),
		Stylesheet:  a.Config.Stylesheet,
	}
}

// Close cleans up resources. Call this when the app is shutting down.
func (a *App) Close() error {
	if a.hookLimiter != nil {
		a.hookLimiter.Stop()
	}
	if a.Store != nil {
		return a.Store.Close()
	}
	return nil
}
