package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"versionvibe/config"
	"versionvibe/logger"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var minioClient *minio.Client

// InitMinio initializes the MinIO client and ensures the audio bucket
// exists.
func InitMinio(cfg *config.Config) error {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
		Region: cfg.MinioRegion,
	})
	if err != nil {
		return fmt.Errorf("failed to create MinIO client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.MinioBucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.MinioBucket, minio.MakeBucketOptions{
			Region: cfg.MinioRegion,
		}); err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
		logger.Info("created bucket", logger.String("bucket", cfg.MinioBucket))
	}

	minioClient = client
	logger.Info("minio connected", logger.String("bucket", cfg.MinioBucket))
	return nil
}

// UploadAudio stores an audio object under the given key.
func UploadAudio(ctx context.Context, cfg *config.Config, objectKey string, reader io.Reader, size int64, contentType string) error {
	if minioClient == nil {
		return fmt.Errorf("MinIO client not initialized")
	}

	_, err := minioClient.PutObject(ctx, cfg.MinioBucket, objectKey, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to upload audio object %s: %w", objectKey, err)
	}
	return nil
}

// DeleteAudio removes an audio object. A missing object is not an
// error; deleting a version must succeed even if its file is gone.
func DeleteAudio(ctx context.Context, cfg *config.Config, objectKey string) error {
	if minioClient == nil {
		return fmt.Errorf("MinIO client not initialized")
	}

	err := minioClient.RemoveObject(ctx, cfg.MinioBucket, objectKey, minio.RemoveObjectOptions{})
	if err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" {
			return nil
		}
		return fmt.Errorf("failed to delete audio object %s: %w", objectKey, err)
	}
	return nil
}

// PlayableURL resolves a version's storage path to a streamable URL by
// appending it to the configured public base address.
func PlayableURL(cfg *config.Config, storagePath string) string {
	base := strings.TrimRight(cfg.AudioBaseURL, "/")
	escaped := url.PathEscape(strings.TrimLeft(storagePath, "/"))
	// PathEscape also escapes the path separators themselves; restore them.
	escaped = strings.ReplaceAll(escaped, "%2F", "/")
	return base + "/" + escaped
}

// PresignedURL issues a short-lived direct link to an object, used
// when the bucket is not publicly readable.
func PresignedURL(ctx context.Context, cfg *config.Config, objectKey string, expiry time.Duration) (string, error) {
	if minioClient == nil {
		return "", fmt.Errorf("MinIO client not initialized")
	}

	u, err := minioClient.PresignedGetObject(ctx, cfg.MinioBucket, objectKey, expiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("failed to presign object %s: %w", objectKey, err)
	}
	return u.String(), nil
}

// TestMinio verifies connectivity with a bucket existence check.
func TestMinio(cfg *config.Config) error {
	if minioClient == nil {
		return fmt.Errorf("MinIO client not initialized")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	exists, err := minioClient.BucketExists(ctx, cfg.MinioBucket)
	if err != nil {
		return fmt.Errorf("failed to reach MinIO: %w", err)
	}
	if !exists {
		return fmt.Errorf("bucket %s does not exist", cfg.MinioBucket)
	}
	return nil
}
