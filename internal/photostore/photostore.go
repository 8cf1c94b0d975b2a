// Package photostore keeps photos uploaded through the web form in an
// S3-compatible bucket and hands back public URLs Telegram can fetch.
package photostore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// MaxPhotoSize is Telegram's limit for photos sent by URL.
const MaxPhotoSize = 5 << 20

var ErrUnsupportedPhoto = errors.New("unsupported photo")

var extensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

type objectPutter interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// PublicURL is the externally reachable base of the bucket. Defaults to
	// the endpoint URL followed by the bucket name.
	PublicURL string
}

type Store struct {
	client    objectPutter
	bucket    string
	publicURL string
	logger    *zap.SugaredLogger
}

// New connects to the object store and creates the bucket when missing.
func New(ctx context.Context, cfg Config, logger *zap.SugaredLogger) (*Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client for endpoint %s: %w", cfg.Endpoint, err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %s: %w", cfg.Bucket, err)
		}
		logger.Infof("Created photo bucket %s", cfg.Bucket)
	}

	publicURL := cfg.PublicURL
	if publicURL == "" {
		publicURL = client.EndpointURL().String() + "/" + cfg.Bucket
	}
	return newStore(client, cfg.Bucket, publicURL, logger), nil
}

func newStore(client objectPutter, bucket, publicURL string, logger *zap.SugaredLogger) *Store {
	return &Store{client: client, bucket: bucket, publicURL: strings.TrimRight(publicURL, "/"), logger: logger}
}

// Upload stores one photo under a random name and returns its public URL.
// Only JPEG, PNG and WebP up to MaxPhotoSize are accepted.
func (s *Store) Upload(ctx context.Context, data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty file", ErrUnsupportedPhoto)
	}
	if len(data) > MaxPhotoSize {
		return "", fmt.Errorf("%w: %d bytes exceeds the %d byte limit", ErrUnsupportedPhoto, len(data), MaxPhotoSize)
	}
	contentType := http.DetectContentType(data)
	ext, ok := extensions[contentType]
	if !ok {
		return "", fmt.Errorf("%w: content type %s", ErrUnsupportedPhoto, contentType)
	}

	objectKey := "photos/" + uuid.New().String() + ext
	info, err := s.client.PutObject(ctx, s.bucket, objectKey, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload object %s to bucket %s: %w", objectKey, s.bucket, err)
	}
	s.logger.Debugf("Uploaded photo %s (%d bytes)", info.Key, info.Size)
	return s.publicURL + "/" + objectKey, nil
}
