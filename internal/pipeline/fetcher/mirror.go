package fetcher

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/nbdc/humandbs-pipeline/internal/config"
	"github.com/nbdc/humandbs-pipeline/pkg/errors"
)

// Mirror receives a copy of every freshly fetched page.
type Mirror interface {
	Store(ctx context.Context, url string, body []byte) error
}

// ObjectMirror uploads raw HTML snapshots to an S3-compatible bucket so that
// crawl inputs can be replayed on machines without the local disk cache.
type ObjectMirror struct {
	client *minio.Client
	bucket string
}

// NewObjectMirror connects to the configured object store and ensures the
// bucket exists.
func NewObjectMirror(ctx context.Context, cfg config.SnapshotConfig) (*ObjectMirror, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeFetch, "failed to create snapshot mirror client")
	}
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeFetch, "failed to probe snapshot bucket")
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeFetch, "failed to create snapshot bucket")
		}
	}
	return &ObjectMirror{client: client, bucket: cfg.Bucket}, nil
}

// Store writes body under the SHA-256 of the URL, mirroring the disk cache
// layout.
func (m *ObjectMirror) Store(ctx context.Context, url string, body []byte) error {
	sum := sha256.Sum256([]byte(url))
	key := hex.EncodeToString(sum[:]) + ".html"
	_, err := m.client.PutObject(ctx, m.bucket, key, bytes.NewReader(body), int64(len(body)),
		minio.PutObjectOptions{ContentType: "text/html; charset=utf-8"})
	return err
}
