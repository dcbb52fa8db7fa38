// Package upload stores KYC selfies in S3-compatible object storage.
package upload

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"account-service/internal/account"
	"account-service/internal/config"
	"account-service/internal/logging"
)

var ErrUnsupportedFormat = errors.New("unsupported image format")

// selfieFolder is the logical folder selfies live under inside the bucket.
const selfieFolder = "kyc-selfies"

var allowedContentTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
}

// MinioStore implements account.SelfieStore on top of a MinIO bucket.
type MinioStore struct {
	client    *minio.Client
	bucket    string
	publicURL string
	logger    *logging.Logger
}

// NewMinioStore connects to the object store and ensures the bucket exists.
func NewMinioStore(cfg config.StorageConfig, logger *logging.Logger) (*MinioStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize object storage client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %s: %w", cfg.Bucket, err)
		}
		logger.Info("created storage bucket", "bucket", cfg.Bucket)
	}

	publicURL := cfg.PublicURL
	if publicURL == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		publicURL = fmt.Sprintf("%s://%s", scheme, cfg.Endpoint)
	}

	return &MinioStore{
		client:    client,
		bucket:    cfg.Bucket,
		publicURL: strings.TrimRight(publicURL, "/"),
		logger:    logger,
	}, nil
}

// StoreSelfie uploads a validated selfie and returns its durable URL.
// The format allow-list is re-checked here so no caller can push an
// unsupported file to storage.
func (s *MinioStore) StoreSelfie(ctx context.Context, userID int64, selfie account.Selfie) (string, error) {
	ext, ok := allowedContentTypes[selfie.ContentType]
	if !ok {
		return "", ErrUnsupportedFormat
	}
	if selfie.Size <= 0 {
		return "", fmt.Errorf("selfie file is empty")
	}

	// Object names never reuse the client-supplied filename
	objectName := fmt.Sprintf("%s/%d/%s%s", selfieFolder, userID, uuid.NewString(), ext)

	info, err := s.client.PutObject(ctx, s.bucket, objectName, selfie.Reader, selfie.Size, minio.PutObjectOptions{
		ContentType: selfie.ContentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload selfie: %w", err)
	}

	s.logger.Info("selfie uploaded",
		"user_id", userID,
		"object", objectName,
		"size", info.Size,
		"original_name", filepath.Base(selfie.Filename),
	)

	return fmt.Sprintf("%s/%s/%s", s.publicURL, s.bucket, objectName), nil
}
