// Package archive keeps a content-addressed copy of every exported file in
// an S3-compatible bucket.
package archive

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// objectStore is the subset of *minio.Client the archive uses.
type objectStore interface {
	StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

type MinioArchive struct {
	client objectStore
	bucket string
	logger *zap.Logger
}

// NewMinioArchive connects to the endpoint and creates the bucket when it
// does not exist yet.
func NewMinioArchive(ctx context.Context, cfg Config, logger *zap.Logger) (*MinioArchive, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}
	return newArchive(client, cfg.Bucket, logger), nil
}

func newArchive(client objectStore, bucket string, logger *zap.Logger) *MinioArchive {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MinioArchive{client: client, bucket: bucket, logger: logger}
}

// Key is the object name for data exported from policyID.
func Key(policyID, ext string, data []byte) string {
	sum := sha256.Sum256(data)
	return fmt.Sprintf("exports/%s/%s.%s", policyID, hex.EncodeToString(sum[:]), ext)
}

// Put stores data under its content key. An object that already exists is
// left untouched.
func (a *MinioArchive) Put(ctx context.Context, policyID, ext, mimeType string, data []byte) (string, error) {
	key := Key(policyID, ext, data)

	_, err := a.client.StatObject(ctx, a.bucket, key, minio.StatObjectOptions{})
	if err == nil {
		a.logger.Debug("export already archived", zap.String("key", key))
		return key, nil
	}
	if code := minio.ToErrorResponse(err).Code; code != "NoSuchKey" && code != "NotFound" {
		return "", fmt.Errorf("stat %s: %w", key, err)
	}

	_, err = a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: mimeType,
	})
	if err != nil {
		return "", fmt.Errorf("put %s: %w", key, err)
	}
	a.logger.Info("export archived", zap.String("key", key), zap.Int("bytes", len(data)))
	return key, nil
}
