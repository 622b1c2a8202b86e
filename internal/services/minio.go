package services

import (
	"context"
	"fmt"
	"io"
	"mime"
	"path/filepath"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

const defaultContentType = "application/octet-stream"

// BlobStore holds the bytes of original files, modified files and comment
// images. Object names are opaque to callers outside this package.
type BlobStore interface {
	Put(ctx context.Context, objectName string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, objectName string) (io.ReadCloser, int64, error)
	Delete(ctx context.Context, objectName string) error
	DeletePrefix(ctx context.Context, prefix string) error
}

type MinioService struct {
	Client     *minio.Client
	BucketName string
	logger     *zap.Logger
}

// NewMinioService connects to MinIO and creates the bucket if it doesn't exist.
func NewMinioService(ctx context.Context, endpoint, accessKey, secretKey, bucket string, useSSL bool, logger *zap.Logger) (*MinioService, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}
	log := logger.Named("minio")
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
		log.Info("created bucket", zap.String("bucket", bucket))
	}

	log.Info("connected to MinIO", zap.String("endpoint", endpoint))
	return &MinioService{Client: client, BucketName: bucket, logger: log}, nil
}

// CheckConnection is used by the health endpoint.
func (m *MinioService) CheckConnection(ctx context.Context) error {
	if m == nil || m.Client == nil {
		return fmt.Errorf("minio service not initialized")
	}
	_, err := m.Client.BucketExists(ctx, m.BucketName)
	return err
}

func (m *MinioService) Put(ctx context.Context, objectName string, r io.Reader, size int64, contentType string) error {
	_, err := m.Client.PutObject(ctx, m.BucketName, objectName, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", objectName, err)
	}
	return nil
}

func (m *MinioService) Get(ctx context.Context, objectName string) (io.ReadCloser, int64, error) {
	obj, err := m.Client.GetObject(ctx, m.BucketName, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, 0, fmt.Errorf("get %s: %w", objectName, err)
	}
	info, err := obj.Stat()
	if err != nil {
		_ = obj.Close()
		return nil, 0, fmt.Errorf("stat %s: %w", objectName, err)
	}
	return obj, info.Size, nil
}

func (m *MinioService) Delete(ctx context.Context, objectName string) error {
	return m.Client.RemoveObject(ctx, m.BucketName, objectName, minio.RemoveObjectOptions{})
}

// DeletePrefix removes every object under prefix.
func (m *MinioService) DeletePrefix(ctx context.Context, prefix string) error {
	var keys []string
	for obj := range m.Client.ListObjects(ctx, m.BucketName, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return fmt.Errorf("list %s: %w", prefix, obj.Err)
		}
		keys = append(keys, obj.Key)
	}
	if len(keys) == 0 {
		return nil
	}

	objectsCh := make(chan minio.ObjectInfo, len(keys))
	for _, key := range keys {
		objectsCh <- minio.ObjectInfo{Key: key}
	}
	close(objectsCh)

	for removeErr := range m.Client.RemoveObjects(ctx, m.BucketName, objectsCh, minio.RemoveObjectsOptions{}) {
		if removeErr.Err != nil {
			m.logger.Warn("failed to delete object",
				zap.String("object", removeErr.ObjectName),
				zap.Error(removeErr.Err),
			)
			return removeErr.Err
		}
	}

	m.logger.Info("deleted objects by prefix", zap.String("prefix", prefix), zap.Int("count", len(keys)))
	return nil
}

// ContentTypeFor picks the content type stored with the object from the
// file extension. Unknown extensions, ECU dumps included, are stored as
// application/octet-stream.
func ContentTypeFor(name string) string {
	ext := filepath.Ext(name)
	if ext == "" {
		return defaultContentType
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return defaultContentType
}
