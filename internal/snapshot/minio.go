package snapshot

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// BucketConfig locates an S3-compatible bucket.
type BucketConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	Bucket    string `mapstructure:"bucket"`
	Prefix    string `mapstructure:"prefix"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Secure    bool   `mapstructure:"secure"`
}

// Enabled reports whether a bucket is configured.
func (c BucketConfig) Enabled() bool {
	return c.Endpoint != "" && c.Bucket != ""
}

// Bucket uploads snapshots to and fetches them from object storage.
type Bucket struct {
	client *minio.Client
	bucket string
	prefix string
}

var _ Uploader = (*Bucket)(nil)

// NewBucket returns a client for cfg. It does not contact the server.
func NewBucket(cfg BucketConfig) (*Bucket, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("creating object storage client: %w", err)
	}
	return &Bucket{client: client, bucket: cfg.Bucket, prefix: strings.Trim(cfg.Prefix, "/")}, nil
}

func (b *Bucket) object(name string) string {
	if b.prefix == "" {
		return name
	}
	return path.Join(b.prefix, name)
}

// Upload stores the file at p under name and returns its s3:// location.
func (b *Bucket) Upload(ctx context.Context, name, p string) (string, error) {
	exists, err := b.client.BucketExists(ctx, b.bucket)
	if err != nil {
		return "", err
	}
	if !exists {
		if err := b.client.MakeBucket(ctx, b.bucket, minio.MakeBucketOptions{}); err != nil {
			return "", fmt.Errorf("creating bucket %s: %w", b.bucket, err)
		}
	}
	obj := b.object(name)
	if _, err := b.client.FPutObject(ctx, b.bucket, obj, p, minio.PutObjectOptions{
		ContentType: "application/x-ndjson",
	}); err != nil {
		return "", err
	}
	return Location(b.bucket, obj), nil
}

// Fetch downloads the object at an s3:// location to dst.
func (b *Bucket) Fetch(ctx context.Context, location, dst string) error {
	bucket, obj, ok := ParseLocation(location)
	if !ok {
		return fmt.Errorf("not an object storage location: %q", location)
	}
	if bucket != b.bucket {
		return fmt.Errorf("snapshot is in bucket %s, configured bucket is %s", bucket, b.bucket)
	}
	return b.client.FGetObject(ctx, bucket, obj, dst, minio.GetObjectOptions{})
}

// Location formats an object location.
func Location(bucket, object string) string {
	return "s3://" + bucket + "/" + object
}

// ParseLocation splits an s3://bucket/object location.
func ParseLocation(loc string) (bucket, object string, ok bool) {
	rest, found := strings.CutPrefix(loc, "s3://")
	if !found {
		return "", "", false
	}
	bucket, object, found = strings.Cut(rest, "/")
	if !found || bucket == "" || object == "" {
		return "", "", false
	}
	return bucket, object, true
}
