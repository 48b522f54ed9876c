// Package mailer renders and delivers transactional emails.
package mailer

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/storefront/backend/internal/domain/notification"
	"github.com/storefront/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

// Mailer renders an email job and hands it to the transport
type Mailer struct {
	renderer  *Renderer
	transport Transport
}

// New creates a mailer
func New(renderer *Renderer, transport Transport) *Mailer {
	return &Mailer{renderer: renderer, transport: transport}
}

// Send renders job.Template with job.Context and delivers it
func (m *Mailer) Send(ctx context.Context, job *notification.EmailJob) error {
	body, err := m.renderer.Render(ctx, job.Template, job.Context)
	if err != nil {
		return err
	}
	return m.transport.Send(ctx, Message{
		To:       job.To,
		Subject:  job.Subject,
		HTMLBody: body,
	})
}

// NewFromConfig builds the template source, renderer and transport selected by cfg
func NewFromConfig(ctx context.Context, cfg config.MailConfig, logger *zap.Logger) (*Mailer, error) {
	source, err := newTemplateSource(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	var transport Transport
	switch cfg.Transport {
	case "smtp":
		transport, err = NewSMTPTransport(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password, cfg.From, cfg.FromName)
		if err != nil {
			return nil, err
		}
	case "log", "":
		transport = NewLogTransport(cfg.From, logger)
	default:
		return nil, fmt.Errorf("unknown mail transport %q", cfg.Transport)
	}

	logger.Info("Mailer configured",
		zap.String("transport", cfg.Transport),
		zap.String("template_source", cfg.TemplateSource))
	return New(NewRenderer(source), transport), nil
}

func newTemplateSource(ctx context.Context, cfg config.MailConfig, logger *zap.Logger) (TemplateSource, error) {
	embedded := NewEmbeddedSource()
	if cfg.TemplateSource != "s3" {
		return embedded, nil
	}

	client, err := newS3Client(ctx, cfg.S3)
	if err != nil {
		return nil, err
	}
	return NewS3Source(client, cfg.S3.Bucket, cfg.S3.Prefix, cfg.S3.CacheTTL,
		WithFallback(embedded),
		WithSourceLogger(logger)), nil
}

// newS3Client works with AWS S3 and S3-compatible stores such as MinIO.
// Without static keys the default AWS credential chain applies.
func newS3Client(ctx context.Context, cfg config.S3TemplateConfig) (*s3.Client, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS config: %w", err)
	}

	endpoint := cfg.Endpoint
	if endpoint != "" && !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		endpoint = "https://" + endpoint
	}
	if endpoint != "" {
		if _, err := url.Parse(endpoint); err != nil {
			return nil, fmt.Errorf("invalid s3 endpoint: %w", err)
		}
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	}), nil
}
