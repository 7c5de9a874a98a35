package file

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Asset namespaces inside the bucket. Original bytes are kept for every
// job; the enhanced object exists only once a job has completed.
const (
	NamespaceOriginal = "original"
	NamespaceEnhanced = "enhanced"
)

// ErrAssetNotFound is returned when no object exists under the requested
// namespace and name.
var ErrAssetNotFound = errors.New("asset not found")

// Storage provides an S3-compatible asset store backed by MinIO. Objects
// are addressed by (namespace, name) inside a single bucket.
type Storage struct {
	client     *minio.Client
	bucketName string
}

// NewStorage creates a new Storage instance connected to the specified MinIO server.
// If the bucket does not exist, it will be created automatically.
func NewStorage(ctx context.Context, endpoint, accessKey, secretKey, bucketName string, useSSL bool) (*Storage, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, bucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to check if bucket exists: %w", err)
	}

	if !exists {
		if err := client.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return &Storage{
		client:     client,
		bucketName: bucketName,
	}, nil
}

// Save uploads the provided reader under the namespace. An existing object
// with the same name is replaced, which is what re-enhancement relies on.
func (s *Storage) Save(ctx context.Context, namespace, name string, src io.Reader, size int64, contentType string) error {
	objectName := path.Join(namespace, name)

	_, err := s.client.PutObject(ctx, s.bucketName, objectName, src, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to save asset: %w", err)
	}

	return nil
}

// Load retrieves the object from the namespace and returns a reader over
// its bytes. Missing objects fail with ErrAssetNotFound.
func (s *Storage) Load(ctx context.Context, namespace, name string) (io.ReadCloser, error) {
	objectName := path.Join(namespace, name)

	// GetObject errors lazily on first read; stat up front so a missing
	// key is reported before any bytes are streamed to the caller.
	if _, err := s.client.StatObject(ctx, s.bucketName, objectName, minio.StatObjectOptions{}); err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, ErrAssetNotFound
		}

		return nil, fmt.Errorf("failed to stat asset: %w", err)
	}

	obj, err := s.client.GetObject(ctx, s.bucketName, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to load asset: %w", err)
	}

	return obj, nil
}

// Delete removes the object from the namespace. Used for upload rollback
// when the job record cannot be written after the asset was stored.
func (s *Storage) Delete(ctx context.Context, namespace, name string) error {
	return s.client.RemoveObject(ctx, s.bucketName, path.Join(namespace, name), minio.RemoveObjectOptions{})
}
