package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/sirupsen/logrus"

	"github.com/leaksopan/SnapMe-sub000/internal/models"
	"github.com/leaksopan/SnapMe-sub000/internal/storage"
)

// MinioService is the S3-compatible storage gateway for photo objects.
type MinioService struct {
	Client     *minio.Client
	BucketName string
	logger     logrus.FieldLogger
}

var _ storage.ObjectStore = (*MinioService)(nil)

func NewMinioService(ctx context.Context, endpoint, accessKey, secretKey, bucket string, useSSL bool, logger logrus.FieldLogger) (*MinioService, error) {
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

	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
		logger.Infof("[MinIO] created bucket: %s", bucket)
	}

	logger.Info("[MinIO] connected")
	return &MinioService{Client: client, BucketName: bucket, logger: logger}, nil
}

// CheckConnection is used by the health endpoint.
func (m *MinioService) CheckConnection(ctx context.Context) error {
	if m == nil || m.Client == nil {
		return fmt.Errorf("minio service not initialized")
	}
	_, err := m.Client.BucketExists(ctx, m.BucketName)
	return err
}

func (m *MinioService) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	_, err := m.Client.PutObject(ctx, m.BucketName, key, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	return err
}

func (m *MinioService) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := m.Client.GetObject(ctx, m.BucketName, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, translateMinioError(err)
	}
	// GetObject is lazy; Stat surfaces a missing key before the caller starts reading.
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		return nil, translateMinioError(err)
	}
	return obj, nil
}

func (m *MinioService) PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error) {
	u, err := m.Client.PresignedGetObject(ctx, m.BucketName, key, expiry, nil)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

func (m *MinioService) Delete(ctx context.Context, key string) error {
	return m.Client.RemoveObject(ctx, m.BucketName, key, minio.RemoveObjectOptions{})
}

func (m *MinioService) DeletePrefix(ctx context.Context, prefix string) error {
	m.logger.Debugf("[MinIO] deleting prefix %s (bucket: %s)", prefix, m.BucketName)

	objectsCh := m.Client.ListObjects(ctx, m.BucketName, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})

	errorCh := m.Client.RemoveObjects(ctx, m.BucketName, objectsCh, minio.RemoveObjectsOptions{})
	return drainRemoveErrors(errorCh, m.logger)
}

// drainRemoveErrors reads errorCh until it is closed and returns the first
// error. RemoveObjects blocks on sending until its channel is consumed.
func drainRemoveErrors(errorCh <-chan minio.RemoveObjectError, logger logrus.FieldLogger) error {
	var first error
	for removeErr := range errorCh {
		if removeErr.Err == nil {
			continue
		}
		logger.Warnf("[MinIO] failed to delete object %s: %v", removeErr.ObjectName, removeErr.Err)
		if first == nil {
			first = removeErr.Err
		}
	}
	return first
}

func translateMinioError(err error) error {
	resp := minio.ToErrorResponse(err)
	if resp.StatusCode == http.StatusNotFound || resp.Code == "NoSuchKey" {
		return models.ErrNotFound
	}
	return err
}
