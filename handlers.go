package headlessblog

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// webhookSecretHeader carries the shared secret configured on the
// Contentful webhook.
const webhookSecretHeader = "X-Webhook-Secret"

// indexData reads the cached index. A missing snapshot is a 503.
func (a *App) indexData(c echo.Context) (IndexData, error) {
	data, err := a.Cache.Get(c.Request().Context())
	if errors.Is(err, ErrNoSnapshot) {
		return data, echo.NewHTTPError(http.StatusServiceUnavailable, "content has not been synced yet").SetInternal(err)
	}
	return data, err
}

func (a *App) handleIndex(c echo.Context) error {
	data, err := a.indexData(c)
	if err != nil {
		return err
	}
	a.metrics.rendered("index")
	return Render(c, a.Views.Index(data, a.pageMeta()))
}

func (a *App) handleSitemap(c echo.Context) error {
	info, err := a.Store.LastSync(c.Request().Context(), NodeTypeName(a.Config.Contentful.ContentType))
	if err != nil && !errors.Is(err, ErrNoSnapshot) {
		return err
	}
	return a.renderSitemap(c, info.SyncedAt)
}

func (a *App) handleFeed(c echo.Context) error {
	data, err := a.indexData(c)
	if err != nil {
		return err
	}
	return a.renderRSS(c, data.Posts.Nodes)
}

func (a *App) handleRobots(c echo.Context) error {
	body := fmt.Sprintf("User-agent: *\nAllow: /\n\nSitemap: %s\n", BuildURL(a.Config.URL)+"sitemap.xml")
	return c.String(http.StatusOK, body)
}

func (a *App) handleHealth(c echo.Context) error {
	resp := map[string]any{"status": "ok"}
	info, err := a.Store.LastSync(c.Request().Context(), NodeTypeName(a.Config.Contentful.ContentType))
	switch {
	case err == nil:
		resp["last_sync"] = info.SyncedAt.Format(time.RFC3339)
		resp["nodes"] = info.Total
	case errors.Is(err, ErrNoSnapshot):
		resp["last_sync"] = nil
	default:
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

// handleWebhook is the target of a Contentful publish webhook. It drops the
// cached index so the next page view syncs fresh content.
func (a *App) handleWebhook(c echo.Context) error {
	if !a.hookLimiter.Allow(c.RealIP()) {
		return c.String(http.StatusTooManyRequests, "Too many requests. Try again later.")
	}
	secret := c.Request().Header.Get(webhookSecretHeader)
	if subtle.ConstantTimeCompare([]byte(secret), []byte(a.Config.WebhookSecret)) != 1 {
		return c.String(http.StatusUnauthorized, "Unauthorized")
	}
	a.Cache.Invalidate()
	a.Logger.WithField("topic", c.Request().Header.Get("X-Contentful-Topic")).Info("cache invalidated by webhook")
	return c.JSON(http.StatusAccepted, map[string]string{"status": "invalidated"})
}

func (a *App) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	var he *echo.HTTPError
	ok := errors.As(err, &he)
	if ok && he.Code == http.StatusNotFound {
		_ = RenderStatus(c, http.StatusNotFound, a.Views.NotFound(a.pageMeta()))
		return
	}
	code := http.StatusInternalServerError
	if ok {
		code = he.Code
	}
	if code >= 500 {
		a.Logger.WithError(err).WithField("uri", c.Request().RequestURI).Error("server error")
		_ = RenderStatus(c, code, a.Views.ServerError(a.pageMeta()))
		return
	}
	a.Echo.DefaultHTTPErrorHandler(err, c)
}
