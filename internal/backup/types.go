package backup

import (
	"context"
	"time"
)

// Remote upload targets.
const (
	TargetS3    = "s3"
	TargetMinio = "minio"
)

// Config controls periodic catalog backups.
type Config struct {
	Enabled   bool
	Interval  time.Duration
	LocalDir  string
	KeepLast  int
	BucketURL string
	// Target selects the uploader for BucketURL: "s3" (default) or "minio".
	Target string

	S3Endpoint     string
	S3Region       string
	S3AccessKey    string
	S3SecretKey    string
	S3SessionToken string
	S3UseSSL       bool
}

// Snapshotter is the minimal catalog snapshot contract used by Manager.
type Snapshotter interface {
	DBPath() string
	SnapshotTo(ctx context.Context, dstPath string) error
}

// Uploader uploads one backup artifact.
type Uploader interface {
	UploadFile(ctx context.Context, localPath string) error
}
