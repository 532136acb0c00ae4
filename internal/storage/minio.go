package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"ip-workflow-service/internal/config"
)

var (
	ErrNotConfigured = errors.New("blob store is not configured")
	ErrInvalidRef    = errors.New("invalid blob reference")
)

// Prefixes under which objects are written. Certificates are kept apart so
// bucket lifecycle rules can treat them differently.
const (
	PrefixDocuments    = "documents"
	PrefixCertificates = "certificates"
)

var unsafeName = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// MinioStore keeps uploaded files in one S3-compatible bucket. References
// handed out are object keys.
type MinioStore struct {
	client     *minio.Client
	bucket     string
	presignTTL time.Duration
	now        func() time.Time
}

func NewMinioStore(cfg config.StorageConfig) (*MinioStore, error) {
	if cfg.Endpoint == "" {
		return nil, ErrNotConfigured
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &MinioStore{
		client:     client,
		bucket:     cfg.Bucket,
		presignTTL: cfg.PresignTTL,
		now:        time.Now,
	}, nil
}

// EnsureBucket creates the bucket if it doesn't exist.
func (s *MinioStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket: %w", err)
	}
	return nil
}

// Store uploads r under the documents prefix and returns the object key.
func (s *MinioStore) Store(ctx context.Context, r io.Reader, size int64, fileName, mimeType string) (string, error) {
	return s.put(ctx, PrefixDocuments, r, size, fileName, mimeType)
}

// StoreCertificate is Store for issued certificates.
func (s *MinioStore) StoreCertificate(ctx context.Context, r io.Reader, size int64, fileName, mimeType string) (string, error) {
	return s.put(ctx, PrefixCertificates, r, size, fileName, mimeType)
}

func (s *MinioStore) put(ctx context.Context, prefix string, r io.Reader, size int64, fileName, mimeType string) (string, error) {
	key := ObjectKey(prefix, s.now(), uuid.New(), fileName)
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	_, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: mimeType,
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", fileName, err)
	}
	return key, nil
}

func (s *MinioStore) Retrieve(ctx context.Context, ref string) (io.ReadCloser, error) {
	if err := ValidateRef(ref); err != nil {
		return nil, err
	}
	obj, err := s.client.GetObject(ctx, s.bucket, ref, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", ref, err)
	}
	return obj, nil
}

func (s *MinioStore) Exists(ctx context.Context, ref string) (bool, error) {
	if err := ValidateRef(ref); err != nil {
		return false, nil
	}
	_, err := s.client.StatObject(ctx, s.bucket, ref, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchObject":
		return false, nil
	}
	return false, fmt.Errorf("stat %s: %w", ref, err)
}

// PresignedURL returns a time-limited download link for ref.
func (s *MinioStore) PresignedURL(ctx context.Context, ref string) (string, error) {
	if err := ValidateRef(ref); err != nil {
		return "", err
	}
	u, err := s.client.PresignedGetObject(ctx, s.bucket, ref, s.presignTTL, nil)
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", ref, err)
	}
	return u.String(), nil
}

// ObjectKey builds "<prefix>/<yyyy>/<mm>/<id>-<name>" with the file name
// reduced to a safe character set.
func ObjectKey(prefix string, at time.Time, id uuid.UUID, fileName string) string {
	name := SanitizeFileName(fileName)
	return fmt.Sprintf("%s/%04d/%02d/%s-%s", prefix, at.Year(), int(at.Month()), id, name)
}

func SanitizeFileName(fileName string) string {
	name := path.Base(strings.ReplaceAll(fileName, "\\", "/"))
	name = unsafeName.ReplaceAllString(name, "_")
	name = strings.Trim(name, "._")
	if name == "" {
		return "file"
	}
	if len(name) > 120 {
		ext := path.Ext(name)
		if len(ext) > 16 {
			ext = ""
		}
		name = name[:120-len(ext)] + ext
	}
	return name
}

// ValidateRef accepts keys under a known prefix without path traversal.
func ValidateRef(ref string) error {
	if ref == "" || strings.Contains(ref, "..") || strings.HasPrefix(ref, "/") {
		return ErrInvalidRef
	}
	if !strings.HasPrefix(ref, PrefixDocuments+"/") && !strings.HasPrefix(ref, PrefixCertificates+"/") {
		return ErrInvalidRef
	}
	return nil
}
