// Package archive copies processed recordings to an S3-compatible bucket.
package archive

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"helpmeout/internal/logging"
	"helpmeout/internal/metrics"
)

// Config describes the target bucket. Endpoint is only needed for
// S3-compatible services (R2, MinIO); empty uses AWS.
type Config struct {
	Bucket    string
	Prefix    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Archive uploads files to a bucket.
type Archive struct {
	client objectPutter
	bucket string
	prefix string
}

// New builds an S3 client for cfg. Static credentials are used when both
// keys are set, otherwise the default AWS credential chain applies.
func New(ctx context.Context, cfg Config) (*Archive, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("archive bucket is required")
	}

	opts := []func(*config.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	endpoint := strings.TrimRight(cfg.Endpoint, "/")
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	logging.Info("Archive storage initialized: bucket=%s endpoint=%s", cfg.Bucket, valueOr(endpoint, "aws"))
	return newWithClient(client, cfg.Bucket, cfg.Prefix), nil
}

func newWithClient(client objectPutter, bucket, prefix string) *Archive {
	return &Archive{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
	}
}

// Key returns the object key for key under the configured prefix.
func (a *Archive) Key(key string) string {
	if a.prefix == "" {
		return key
	}
	return path.Join(a.prefix, key)
}

// Upload stores the file at filePath under key.
func (a *Archive) Upload(ctx context.Context, key, filePath string) (err error) {
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
		}
		metrics.ArchiveUploadsTotal.WithLabelValues(status).Inc()
	}()

	f, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", filePath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", filePath, err)
	}

	contentType := mime.TypeByExtension(filepath.Ext(filePath))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	objectKey := a.Key(key)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(objectKey),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s to bucket %s: %w", objectKey, a.bucket, err)
	}

	logging.Debug("Archived %s to %s/%s", filePath, a.bucket, objectKey)
	return nil
}

func valueOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
