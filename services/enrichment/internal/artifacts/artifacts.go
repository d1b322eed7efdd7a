// Package artifacts uploads a run's output files to S3.
package artifacts

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/romelikethecity/pecollective/services/enrichment/internal/errors"
)

var contentTypes = map[string]string{
	".json": "application/json",
	".csv":  "text/csv",
	".txt":  "text/plain; charset=utf-8",
}

type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type ClientOptions struct {
	Region      string
	Endpoint    string
	AccessKeyID string
	SecretKey   string
}

// NewS3Client builds a path-style client. A custom endpoint points it at an
// S3-compatible store such as MinIO or LocalStack.
func NewS3Client(ctx context.Context, opts ClientOptions) (*s3.Client, error) {
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(opts.Region)}

	if opts.Endpoint != "" {
		resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
			return aws.Endpoint{
				URL:           opts.Endpoint,
				SigningRegion: opts.Region,
			}, nil
		})
		loadOpts = append(loadOpts, config.WithEndpointResolverWithOptions(resolver))
	}
	if opts.AccessKeyID != "" && opts.SecretKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = true
	}), nil
}

type Uploader struct {
	client objectPutter
	bucket string
	prefix string
	logger *zap.Logger
}

func NewUploader(client *s3.Client, bucket, prefix string, logger *zap.Logger) *Uploader {
	return newUploader(client, bucket, prefix, logger)
}

func newUploader(client objectPutter, bucket, prefix string, logger *zap.Logger) *Uploader {
	return &Uploader{client: client, bucket: bucket, prefix: prefix, logger: logger}
}

// Key returns the object key of a file produced on date.
func (u *Uploader) Key(date time.Time, file string) string {
	return path.Join(u.prefix, date.Format(time.DateOnly), filepath.Base(file))
}

// Upload puts every file under <prefix>/<date>/ and returns the s3:// URIs.
func (u *Uploader) Upload(ctx context.Context, date time.Time, files []string) ([]string, error) {
	uris := make([]string, 0, len(files))
	for _, file := range files {
		uri, err := u.uploadFile(ctx, u.Key(date, file), file)
		if err != nil {
			return uris, err
		}
		uris = append(uris, uri)
	}
	u.logger.Info("uploaded artifacts",
		zap.String("bucket", u.bucket),
		zap.Int("files", len(uris)))
	return uris, nil
}

func (u *Uploader) uploadFile(ctx context.Context, key, file string) (string, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return "", errors.Internal(fmt.Sprintf("reading artifact %s", file), err)
	}

	contentType, ok := contentTypes[filepath.Ext(file)]
	if !ok {
		contentType = "application/octet-stream"
	}

	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", errors.Unavailable(fmt.Sprintf("uploading %s", key), err)
	}
	return fmt.Sprintf("s3://%s/%s", u.bucket, key), nil
}
