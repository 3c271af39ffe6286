// Package storage provides blob storage for paper PDFs and parsed TEI
// documents on any S3-compatible backend (MinIO in development).
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/fx"

	"github.com/litgraph/litgraph/internal/config"
	"github.com/litgraph/litgraph/pkg/logger"
)

var Module = fx.Module("storage",
	fx.Provide(NewService),
)

// Service wraps the S3 client with the bucket bound from config.
type Service struct {
	client *s3.Client
	bucket string
	log    *slog.Logger
}

// NewService creates the storage service and makes sure the bucket
// exists.
func NewService(cfg *config.Config, log *slog.Logger) (*Service, error) {
	log = log.With(logger.Scope("storage"))

	if !cfg.Storage.IsConfigured() {
		return nil, errors.New("storage is not configured: set MINIO_ENDPOINT, MINIO_ACCESS_KEY, MINIO_SECRET_KEY")
	}

	scheme := "http"
	if cfg.Storage.UseSSL {
		scheme = "https"
	}
	endpoint := fmt.Sprintf("%s://%s", scheme, cfg.Storage.Endpoint)

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(cfg.Storage.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.Storage.AccessKeyID, cfg.Storage.SecretAccessKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})

	svc := &Service{
		client: client,
		bucket: cfg.Storage.Bucket,
		log:    log,
	}
	if err := svc.ensureBucket(context.Background()); err != nil {
		return nil, err
	}

	log.Info("storage initialized",
		slog.String("endpoint", endpoint),
		slog.String("bucket", cfg.Storage.Bucket),
	)
	return svc, nil
}

func (s *Service) ensureBucket(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err == nil {
		return nil
	}

	var notFound *types.NotFound
	if !errors.As(err, &notFound) {
		return fmt.Errorf("head bucket %s: %w", s.bucket, err)
	}

	if _, err := s.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(s.bucket)}); err != nil {
		return fmt.Errorf("create bucket %s: %w", s.bucket, err)
	}
	s.log.Info("bucket created", slog.String("bucket", s.bucket))
	return nil
}

// Upload writes an object, overwriting prior content at the same key.
func (s *Service) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	s.log.Debug("object uploaded", slog.String("key", key), slog.Int("size", len(data)))
	return nil
}

// Download reads an object fully into memory.
func (s *Service) Download(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

// Delete removes an object; deleting a missing key is not an error.
func (s *Service) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// PaperKey is the storage key for an uploaded PDF.
func PaperKey(paperID, filename string) string {
	return fmt.Sprintf("papers/%s/%s", paperID, filename)
}

// ParsedKey is the storage key for the TEI produced by parsing.
func ParsedKey(paperID string) string {
	return fmt.Sprintf("parsed/%s.tei.xml", paperID)
}

// FigureKey is the storage key for an extracted figure image.
func FigureKey(paperID string, index int) string {
	return fmt.Sprintf("figures/%s/%d.png", paperID, index)
}
