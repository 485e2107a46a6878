package headlessblog

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/eringen/headlessblog/deploy"
)

// SiteConfig holds all configuration for a headlessblog site.
type SiteConfig struct {
	Name        string `yaml:"name"`                        // Site name (default "Blog")
	URL         string `yaml:"url" validate:"required,url"` // Canonical URL (default "http://localhost:3000")
	Description string `yaml:"description"`                 // Meta description and RSS channel description

	Contentful ContentfulConfig `yaml:"contentful"`
	Deploy     deploy.Config    `yaml:"deploy"` // S3 bucket and CloudFront distribution for `deploy`

	DatabasePath string `yaml:"database_path" validate:"required"` // SQLite snapshot path (default "data/content.db")
	OutputDir    string `yaml:"output_dir" validate:"required"`    // Static build output (default "dist")
	StaticDir    string `yaml:"static_dir"`                        // Copied into the output and served at /public (default "public")
	Stylesheet   string `yaml:"stylesheet"`                        // Linked from every page (default "/public/css/site.css")

	Addr          string        `yaml:"addr" validate:"required"` // Listen address (default ":3000")
	CacheTTL      time.Duration `yaml:"cache_ttl"`                // Index cache TTL in serve mode (default 5min)
	WebhookSecret string        `yaml:"webhook_secret"`           // Shared secret for the publish webhook; empty disables it

	ProbeImages bool   `yaml:"probe_images"` // Fetch image headers at build time for width/height
	Offline     bool   `yaml:"offline"`      // Build from the stored snapshot without contacting the API
	LogLevel    string `yaml:"log_level" validate:"omitempty,oneof=debug info warn warning error"`
}

// ContentfulConfig identifies where posts are sourced from.
type ContentfulConfig struct {
	SpaceID     string `yaml:"space_id" validate:"required_if=Offline false"`
	AccessToken string `yaml:"access_token" validate:"required_if=Offline false"`
	Environment string `yaml:"environment"`                         // default "master"
	Preview     bool   `yaml:"preview"`                             // read drafts through the Preview API
	Host        string `yaml:"host"`                                // override the API host
	ContentType string `yaml:"content_type" validate:"required"`    // default "post"
	Locale      string `yaml:"locale"`
	Order       string `yaml:"order"`
	PageSize    int    `yaml:"page_size" validate:"min=1,max=1000"` // default 100

	// Offline mirrors SiteConfig.Offline so the credentials rule can see it.
	Offline bool `yaml:"-"`
}

func (c *SiteConfig) setDefaults() {
	if c.Name == "" {
		c.Name = "Blog"
	}
	if c.URL == "" {
		c.URL = "http://localhost:3000"
	}
	if c.DatabasePath == "" {
		c.DatabasePath = "data/content.db"
	}
	if c.OutputDir == "" {
		c.OutputDir = "dist"
	}
	if c.StaticDir == "" {
		c.StaticDir = "public"
	}
	if c.Stylesheet == "" {
		c.Stylesheet = "/public/css/site.css"
	}
	if c.Addr == "" {
		c.Addr = ":3000"
	}
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	if c.CacheTTL == 0 {
		c.CacheTTL = 5 * time.Minute
	}
	if c.Contentful.Environment == "" {
		c.Contentful.Environment = "master"
	}
	if c.Contentful.ContentType == "" {
		c.Contentful.ContentType = "post"
	}
	if c.Contentful.PageSize == 0 {
		c.Contentful.PageSize = 100
	}
	c.Contentful.Offline = c.Offline
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the configuration after defaults have been applied.
func (c *SiteConfig) Validate() error {
	c.Contentful.Offline = c.Offline
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("headlessblog: invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("headlessblog: invalid config: %w", err)
	}
	return nil
}

// LoadConfig reads an optional YAML file, loads .env files into the process
// environment, applies environment overrides, then each override func,
// then defaults, and validates.
func LoadConfig(path string, logger *logrus.Logger, overrides ...func(*SiteConfig)) (SiteConfig, error) {
	var cfg SiteConfig
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return SiteConfig{}, fmt.Errorf("headlessblog: read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return SiteConfig{}, fmt.Errorf("headlessblog: parse config %s: %w", path, err)
		}
	}

	LoadEnv(logger)
	applyEnv(&cfg)
	for _, o := range overrides {
		o(&cfg)
	}
	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return SiteConfig{}, err
	}
	return cfg, nil
}

// LoadEnv loads .env and .env.local if present. Variables already set in the
// process environment win.
func LoadEnv(logger *logrus.Logger) {
	for _, file := range []string{".env", ".env.local"} {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			if logger != nil {
				logger.WithError(err).Warnf("failed to load %s", file)
			}
			continue
		}
		if logger != nil {
			logger.Debugf("loaded env file %s", file)
		}
	}
}

func applyEnv(c *SiteConfig) {
	c.Name = EnvOr("SITE_NAME", c.Name)
	c.URL = EnvOr("SITE_URL", c.URL)
	c.Description = EnvOr("SITE_DESCRIPTION", c.Description)
	c.DatabasePath = EnvOr("DATABASE_PATH", c.DatabasePath)
	c.OutputDir = EnvOr("OUTPUT_DIR", c.OutputDir)
	c.StaticDir = EnvOr("STATIC_DIR", c.StaticDir)
	c.Addr = EnvOr("ADDR", c.Addr)
	c.WebhookSecret = EnvOr("WEBHOOK_SECRET", c.WebhookSecret)
	c.LogLevel = EnvOr("LOG_LEVEL", c.LogLevel)
	c.ProbeImages = envBool("PROBE_IMAGES", c.ProbeImages)
	c.Offline = envBool("OFFLINE", c.Offline)
	if v := os.Getenv("CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.CacheTTL = d
		}
	}

	cf := &c.Contentful
	cf.SpaceID = EnvOr("CONTENTFUL_SPACE_ID", cf.SpaceID)
	cf.AccessToken = EnvOr("CONTENTFUL_ACCESS_TOKEN", cf.AccessToken)
	cf.Environment = EnvOr("CONTENTFUL_ENVIRONMENT", cf.Environment)
	cf.Host = EnvOr("CONTENTFUL_HOST", cf.Host)
	cf.ContentType = EnvOr("CONTENTFUL_CONTENT_TYPE", cf.ContentType)
	cf.Locale = EnvOr("CONTENTFUL_LOCALE", cf.Locale)
	cf.Order = EnvOr("CONTENTFUL_ORDER", cf.Order)
	cf.Preview = envBool("CONTENTFUL_PREVIEW", cf.Preview)
	if v := os.Getenv("CONTENTFUL_PAGE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cf.PageSize = n
		}
	}

	d := &c.Deploy
	d.Bucket = EnvOr("DEPLOY_BUCKET", d.Bucket)
	d.Prefix = EnvOr("DEPLOY_PREFIX", d.Prefix)
	d.Region = EnvOr("AWS_REGION", d.Region)
	d.Endpoint = EnvOr("DEPLOY_ENDPOINT", d.Endpoint)
	d.DistributionID = EnvOr("CLOUDFRONT_DISTRIBUTION_ID", d.DistributionID)
}

// EnvOr returns the value of the environment variable key, or fallback if empty.
func EnvOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// Option configures additional App behavior.
type Option func(*App)

// WithLogger replaces the default logger.
func WithLogger(l *logrus.Logger) Option {
	return func(a *App) {
		a.Logger = l
	}
}

// WithSource sets the content source used by Sync. Without it, one is built
// from SiteConfig.Contentful when the configuration is online.
func WithSource(s Source) Option {
	return func(a *App) {
		a.source = s
	}
}

// WithHTTPClient sets the client used to probe image dimensions.
func WithHTTPClient(hc *http.Client) Option {
	return func(a *App) {
		a.httpClient = hc
	}
}
