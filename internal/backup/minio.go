package backup

import (
	"context"
	"fmt"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioConfig holds MinIO uploader parameters.
type MinioConfig struct {
	BucketURL   string
	Endpoint    string
	Region      string
	AccessKey   string
	SecretKey   string
	UseSSL      bool
	ContentType string
}

// MinioUploader uploads backup files to a MinIO (or other S3-compatible)
// server with the MinIO client.
type MinioUploader struct {
	client      *minio.Client
	bucket      string
	keyPrefix   string
	contentType string
}

// NewMinioUploader constructs an uploader. BucketURL uses the same
// s3://bucket/prefix format as the S3 uploader.
func NewMinioUploader(cfg MinioConfig) (*MinioUploader, error) {
	bucket, prefix, err := parseS3BucketURL(cfg.BucketURL)
	if err != nil {
		return nil, err
	}
	endpoint := strings.TrimSpace(cfg.Endpoint)
	endpoint = strings.TrimPrefix(strings.TrimPrefix(endpoint, "https://"), "http://")
	if endpoint == "" {
		return nil, fmt.Errorf("minio: endpoint is required")
	}
	if strings.TrimSpace(cfg.AccessKey) == "" || strings.TrimSpace(cfg.SecretKey) == "" {
		return nil, fmt.Errorf("minio: access key and secret key are required")
	}
	if strings.TrimSpace(cfg.Region) == "" {
		cfg.Region = "us-east-1"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("minio: new client: %w", err)
	}

	contentType := cfg.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return &MinioUploader{
		client:      client,
		bucket:      bucket,
		keyPrefix:   prefix,
		contentType: contentType,
	}, nil
}

// UploadFile uploads localPath to the configured bucket and key prefix.
func (u *MinioUploader) UploadFile(ctx context.Context, localPath string) error {
	key := objectKey(u.keyPrefix, localPath)
	if _, err := u.client.FPutObject(ctx, u.bucket, key, localPath, minio.PutObjectOptions{
		ContentType: u.contentType,
	}); err != nil {
		return fmt.Errorf("minio: put %s/%s: %w", u.bucket, key, err)
	}
	return nil
}
