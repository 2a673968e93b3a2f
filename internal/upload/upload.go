// Package upload stores respondent file attachments in an S3-compatible
// bucket. The submission pipeline delegates here and never inspects file
// content itself.
package upload

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"statq/api/internal/util"
)

// Limits bound what a single submission may attach.
type Limits struct {
	MaxFiles    int
	MaxFileSize int64
	// AllowedTypes is a set of acceptable MIME types. Empty means any.
	AllowedTypes []string
}

// DefaultLimits matches what the hosted product enforces.
var DefaultLimits = Limits{
	MaxFiles:    5,
	MaxFileSize: 10 << 20,
	AllowedTypes: []string{
		"image/png", "image/jpeg", "image/gif", "image/webp",
		"application/pdf", "text/plain", "text/csv",
	},
}

// FileInfo describes a stored attachment.
type FileInfo struct {
	ID   string `json:"id"`
	Path string `json:"path"`
	URL  string `json:"url"`
	Name string `json:"name"`
	Size int64  `json:"size"`
	Type string `json:"type"`
}

// Config holds object-store connection settings.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Service uploads attachments to a MinIO/S3 bucket.
type Service struct {
	client *minio.Client
	bucket string
	limits Limits
}

// New connects to the object store and makes sure the bucket exists.
func New(cfg Config, limits Limits) (*Service, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("connect object store: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}

	return &Service{client: client, bucket: cfg.Bucket, limits: limits}, nil
}

// ValidationError reports a rejected attachment. It is a client error,
// not a store failure.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// Validate checks count, size and type bounds before any bytes move.
func (s *Service) Validate(count int, name, contentType string, size int64) error {
	return validate(s.limits, count, name, contentType, size)
}

func validate(limits Limits, count int, name, contentType string, size int64) error {
	if limits.MaxFiles > 0 && count > limits.MaxFiles {
		return &ValidationError{Reason: fmt.Sprintf("at most %d files per submission", limits.MaxFiles)}
	}
	if strings.TrimSpace(name) == "" {
		return &ValidationError{Reason: "file name is required"}
	}
	if size <= 0 {
		return &ValidationError{Reason: "file is empty"}
	}
	if limits.MaxFileSize > 0 && size > limits.MaxFileSize {
		return &ValidationError{Reason: fmt.Sprintf("file exceeds %d bytes", limits.MaxFileSize)}
	}
	if len(limits.AllowedTypes) > 0 && !typeAllowed(limits.AllowedTypes, contentType) {
		return &ValidationError{Reason: fmt.Sprintf("file type %q not allowed", contentType)}
	}
	return nil
}

func typeAllowed(allowed []string, contentType string) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	for _, a := range allowed {
		if ct == a {
			return true
		}
	}
	return false
}

// Upload validates and stores one attachment under forms/{formID}/ and
// returns its descriptor with a presigned download URL.
func (s *Service) Upload(ctx context.Context, formID, name, contentType string, size int64, r io.Reader) (FileInfo, error) {
	if err := s.Validate(1, name, contentType, size); err != nil {
		return FileInfo{}, err
	}

	id := util.NewID("file")
	objectPath := path.Join("forms", formID, id+"-"+sanitizeName(name))

	if _, err := s.client.PutObject(ctx, s.bucket, objectPath, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	}); err != nil {
		return FileInfo{}, fmt.Errorf("put object %s: %w", objectPath, err)
	}

	url, err := s.client.PresignedGetObject(ctx, s.bucket, objectPath, 7*24*time.Hour, nil)
	if err != nil {
		return FileInfo{}, fmt.Errorf("presign %s: %w", objectPath, err)
	}

	return FileInfo{
		ID:   id,
		Path: objectPath,
		URL:  url.String(),
		Name: name,
		Size: size,
		Type: contentType,
	}, nil
}

// Delete removes a stored attachment.
func (s *Service) Delete(ctx context.Context, objectPath string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, objectPath, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object %s: %w", objectPath, err)
	}
	return nil
}

// sanitizeName strips path separators and whitespace so user-supplied
// names cannot escape the form's prefix.
func sanitizeName(name string) string {
	name = path.Base(name)
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '-'
		}
	}, name)
	return name
}
