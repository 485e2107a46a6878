// Package deploy publishes a built site to an S3 bucket and, when a
// CloudFront distribution is configured, invalidates its cache.
package deploy

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	// CloudFrontHost is the global CloudFront API endpoint.
	CloudFrontHost = "https://cloudfront.amazonaws.com"

	cloudFrontAPIVersion = "2020-05-31"
	cloudFrontRegion     = "us-east-1"
	uploadConcurrency    = 4
)

// Config identifies the bucket the site is published to.
type Config struct {
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`     // key prefix inside the bucket
	Region    string `yaml:"region"`     // default us-east-1
	Endpoint  string `yaml:"endpoint"`   // S3-compatible endpoint (MinIO etc.), path-style
	AccessKey string `yaml:"access_key"` // optional, default credential chain when empty
	SecretKey string `yaml:"secret_key"`

	// DistributionID is the CloudFront distribution in front of the bucket.
	// Empty skips invalidation.
	DistributionID     string `yaml:"distribution_id"`
	CloudFrontEndpoint string `yaml:"cloudfront_endpoint"` // default CloudFrontHost
}

// Result summarizes a publish.
type Result struct {
	Uploaded       []string // object keys, sorted
	Bytes          int64
	InvalidationID string
	Duration       time.Duration
}

// Publisher uploads build output to S3.
type Publisher struct {
	client     *s3.Client
	cfg        Config
	creds      aws.CredentialsProvider
	httpClient aws.HTTPClient
	signer     *v4.Signer
	logger     *logrus.Logger
}

// New creates a Publisher. Credentials come from the config when both keys
// are set, otherwise from the default AWS chain (env, shared files, IAM).
func New(ctx context.Context, cfg Config, logger *logrus.Logger) (*Publisher, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("deploy: bucket is required")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.CloudFrontEndpoint == "" {
		cfg.CloudFrontEndpoint = CloudFrontHost
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("deploy: load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}
	s3Opts = append(s3Opts, func(o *s3.Options) {
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
	})

	var hc aws.HTTPClient = http.DefaultClient
	if awsCfg.HTTPClient != nil {
		hc = awsCfg.HTTPClient
	}
	return &Publisher{
		client:     s3.NewFromConfig(awsCfg, s3Opts...),
		cfg:        cfg,
		creds:      awsCfg.Credentials,
		httpClient: hc,
		signer:     v4.NewSigner(),
		logger:     logger,
	}, nil
}

// Key returns the object key for a path relative to the output directory.
func (c Config) Key(rel string) string {
	rel = strings.TrimPrefix(filepath.ToSlash(rel), "/")
	prefix := strings.Trim(c.Prefix, "/")
	if prefix == "" {
		return rel
	}
	return prefix + "/" + rel
}

// Publish uploads every file under dir and then invalidates the distribution
// if one is configured.
func (p *Publisher) Publish(ctx context.Context, dir string) (Result, error) {
	start := time.Now()
	keys, n, err := p.Upload(ctx, dir)
	res := Result{Uploaded: keys, Bytes: n}
	if err != nil {
		return res, err
	}
	if p.cfg.DistributionID != "" {
		id, err := p.Invalidate(ctx, []string{"/*"})
		if err != nil {
			return res, err
		}
		res.InvalidationID = id
	}
	res.Duration = time.Since(start)
	p.logger.WithFields(logrus.Fields{
		"bucket":       p.cfg.Bucket,
		"prefix":       p.cfg.Prefix,
		"objects":      len(res.Uploaded),
		"bytes":        res.Bytes,
		"invalidation": res.InvalidationID,
		"duration":     res.Duration.String(),
	}).Info("site published")
	return res, nil
}

// Upload puts every regular file under dir into the bucket. Assets go first
// and HTML pages last, so a page never references an object not yet
// uploaded.
func (p *Publisher) Upload(ctx context.Context, dir string) ([]string, int64, error) {
	var assets, pages []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		if strings.EqualFold(filepath.Ext(rel), ".html") {
			pages = append(pages, rel)
		} else {
			assets = append(assets, rel)
		}
		return nil
	})
	if err != nil {
		return nil, 0, fmt.Errorf("deploy: scan %s: %w", dir, err)
	}
	if len(pages) == 0 {
		return nil, 0, fmt.Errorf("deploy: no pages in %s; build the site first", dir)
	}

	var (
		mu    sync.Mutex
		keys  []string
		total int64
	)
	for _, batch := range [][]string{assets, pages} {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(uploadConcurrency)
		for _, rel := range batch {
			g.Go(func() error {
				key, n, err := p.putFile(gctx, dir, rel)
				if err != nil {
					return err
				}
				mu.Lock()
				keys = append(keys, key)
				total += n
				mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			sort.Strings(keys)
			return keys, total, err
		}
	}
	sort.Strings(keys)
	return keys, total, nil
}

func (p *Publisher) putFile(ctx context.Context, dir, rel string) (string, int64, error) {
	body, err := os.ReadFile(filepath.Join(dir, rel))
	if err != nil {
		return "", 0, fmt.Errorf("deploy: read %s: %w", rel, err)
	}
	key := p.cfg.Key(rel)
	_, err = p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(p.cfg.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		ContentType:   aws.String(ContentType(rel)),
		CacheControl:  aws.String(CacheControl(rel)),
	})
	if err != nil {
		return "", 0, fmt.Errorf("deploy: upload %s: %w", key, err)
	}
	p.logger.WithFields(logrus.Fields{"key": key, "bytes": len(body)}).Debug("uploaded object")
	return key, int64(len(body)), nil
}

var contentTypes = map[string]string{
	".html": "text/html; charset=utf-8",
	".css":  "text/css; charset=utf-8",
	".js":   "text/javascript; charset=utf-8",
	".xml":  "application/xml; charset=utf-8",
	".txt":  "text/plain; charset=utf-8",
	".json": "application/json",
	".svg":  "image/svg+xml",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
	".ico":  "image/x-icon",
}

// ContentType returns the Content-Type stored with an uploaded file.
func ContentType(rel string) string {
	name := path.Base(filepath.ToSlash(rel))
	if name == "feed.xml" {
		return "application/rss+xml; charset=utf-8"
	}
	ext := strings.ToLower(path.Ext(name))
	if t, ok := contentTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}

// CacheControl matches the preview server: static assets are immutable,
// pages and feeds revalidate after five minutes.
func CacheControl(rel string) string {
	if strings.HasPrefix(filepath.ToSlash(rel), "public/") {
		return "public, max-age=31536000, immutable"
	}
	return "public, max-age=300"
}

type invalidationBatch struct {
	XMLName         xml.Name `xml:"http://cloudfront.amazonaws.com/doc/2020-05-31/ InvalidationBatch"`
	Quantity        int      `xml:"Paths>Quantity"`
	Paths           []string `xml:"Paths>Items>Path"`
	CallerReference string   `xml:"CallerReference"`
}

type invalidationResponse struct {
	ID     string `xml:"Id"`
	Status string `xml:"Status"`
}

type cloudFrontError struct {
	Code      string `xml:"Error>Code"`
	Message   string `xml:"Error>Message"`
	RequestID string `xml:"RequestId"`
}

// APIError is a failed CloudFront API call.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("cloudfront: %s (status %d): %s", e.Code, e.StatusCode, e.Message)
}

// Invalidate creates a CloudFront invalidation for paths and returns its id.
func (p *Publisher) Invalidate(ctx context.Context, paths []string) (string, error) {
	if p.cfg.DistributionID == "" {
		return "", errors.New("deploy: no distribution configured")
	}
	batch := invalidationBatch{
		Quantity:        len(paths),
		Paths:           paths,
		CallerReference: "headlessblog-" + strconv.FormatInt(time.Now().UnixNano(), 10),
	}
	body, err := xml.Marshal(batch)
	if err != nil {
		return "", err
	}
	body = append([]byte(xml.Header), body...)

	endpoint := strings.TrimSuffix(p.cfg.CloudFrontEndpoint, "/") +
		"/" + cloudFrontAPIVersion + "/distribution/" + p.cfg.DistributionID + "/invalidation"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "text/xml")

	creds, err := p.creds.Retrieve(ctx)
	if err != nil {
		return "", fmt.Errorf("deploy: retrieve credentials: %w", err)
	}
	sum := sha256.Sum256(body)
	if err := p.signer.SignHTTP(ctx, creds, req, hex.EncodeToString(sum[:]), "cloudfront", cloudFrontRegion, time.Now()); err != nil {
		return "", fmt.Errorf("deploy: sign invalidation: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("deploy: invalidate: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var cfErr cloudFrontError
		if xml.Unmarshal(raw, &cfErr) == nil && cfErr.Code != "" {
			apiErr.Code = cfErr.Code
			apiErr.Message = cfErr.Message
		}
		return "", apiErr
	}
	var inv invalidationResponse
	if err := xml.Unmarshal(raw, &inv); err != nil {
		return "", fmt.Errorf("deploy: decode invalidation: %w", err)
	}
	p.logger.WithFields(logrus.Fields{
		"distribution": p.cfg.DistributionID,
		"invalidation": inv.ID,
		"status":       inv.Status,
	}).Info("cloudfront invalidation created")
	return inv.ID, nil
}
