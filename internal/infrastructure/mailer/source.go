package mailer

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

//go:embed templates/*.html
var embeddedTemplates embed.FS

// ErrTemplateNotFound is returned when a source has no template with the given name
var ErrTemplateNotFound = errors.New("email template not found")

// TemplateSource loads raw template text by name
type TemplateSource interface {
	Load(ctx context.Context, name string) (string, error)
}

// EmbeddedSource serves the templates compiled into the binary
type EmbeddedSource struct {
	fsys fs.FS
}

// NewEmbeddedSource returns the built-in template set
func NewEmbeddedSource() *EmbeddedSource {
	return &EmbeddedSource{fsys: embeddedTemplates}
}

// Load implements TemplateSource
func (s *EmbeddedSource) Load(_ context.Context, name string) (string, error) {
	data, err := fs.ReadFile(s.fsys, path.Join("templates", name+".html"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
		}
		return "", err
	}
	return string(data), nil
}

// S3GetObjectAPI is the part of the S3 client used to fetch templates
type S3GetObjectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

type cachedTemplate struct {
	text      string
	fetchedAt time.Time
}

// S3Source reads templates from <prefix>/<name>.html in a bucket.
// Results are cached for the TTL and concurrent misses share one fetch.
// A missing object falls back to the embedded template when a fallback is set.
type S3Source struct {
	client   S3GetObjectAPI
	bucket   string
	prefix   string
	ttl      time.Duration
	fallback TemplateSource
	logger   *zap.Logger
	now      func() time.Time

	group singleflight.Group
	mu    sync.RWMutex
	cache map[string]cachedTemplate
}

// S3SourceOption configures an S3Source
type S3SourceOption func(*S3Source)

// WithFallback serves templates from fb when the bucket lacks them
func WithFallback(fb TemplateSource) S3SourceOption {
	return func(s *S3Source) { s.fallback = fb }
}

// WithSourceLogger sets the logger
func WithSourceLogger(logger *zap.Logger) S3SourceOption {
	return func(s *S3Source) { s.logger = logger }
}

// NewS3Source creates an S3-backed template source
func NewS3Source(client S3GetObjectAPI, bucket, prefix string, ttl time.Duration, opts ...S3SourceOption) *S3Source {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	s := &S3Source{
		client: client,
		bucket: bucket,
		prefix: prefix,
		ttl:    ttl,
		logger: zap.NewNop(),
		now:    time.Now,
		cache:  make(map[string]cachedTemplate),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load implements TemplateSource
func (s *S3Source) Load(ctx context.Context, name string) (string, error) {
	s.mu.RLock()
	entry, ok := s.cache[name]
	s.mu.RUnlock()
	if ok && s.now().Sub(entry.fetchedAt) < s.ttl {
		return entry.text, nil
	}

	v, err, _ := s.group.Do(name, func() (any, error) {
		text, err := s.fetch(ctx, name)
		if err != nil {
			return "", err
		}
		s.mu.Lock()
		s.cache[name] = cachedTemplate{text: text, fetchedAt: s.now()}
		s.mu.Unlock()
		return text, nil
	})
	if err != nil {
		// A stale copy beats failing the send
		if ok {
			s.logger.Warn("Serving stale email template", zap.String("template", name), zap.Error(err))
			return entry.text, nil
		}
		return "", err
	}
	return v.(string), nil
}

func (s *S3Source) fetch(ctx context.Context, name string) (string, error) {
	key := path.Join(s.prefix, name+".html")
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			if s.fallback != nil {
				s.logger.Debug("Template missing in bucket, using fallback", zap.String("key", key))
				return s.fallback.Load(ctx, name)
			}
			return "", fmt.Errorf("%w: %s", ErrTemplateNotFound, key)
		}
		return "", fmt.Errorf("get template %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return "", fmt.Errorf("read template %s: %w", key, err)
	}
	return string(data), nil
}
