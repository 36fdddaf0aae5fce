package storage

import (
	"context"
	"fmt"
	"mime"
	"path"
	"path/filepath"
	"strings"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// Storage uploads finished sheets to an S3-compatible bucket.
type Storage struct {
	client *miniogo.Client
	bucket string
	prefix string
	logger *zap.Logger
}

type StorageConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
	Prefix    string
}

func NewStorage(cfg StorageConfig, logger *zap.Logger) (*Storage, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &Storage{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		logger: logger,
	}, nil
}

func (s *Storage) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, miniogo.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket %s: %w", s.bucket, err)
		}
	}
	return nil
}

// Upload stores each file under <prefix>/<sheetID>/<base name> and returns
// the object keys in order.
func (s *Storage) Upload(ctx context.Context, sheetID string, files ...string) ([]string, error) {
	keys := make([]string, 0, len(files))
	for _, f := range files {
		key := ObjectKey(s.prefix, sheetID, f)
		info, err := s.client.FPutObject(ctx, s.bucket, key, f, miniogo.PutObjectOptions{
			ContentType: contentType(f),
		})
		if err != nil {
			return keys, fmt.Errorf("upload %s: %w", filepath.Base(f), err)
		}
		s.logger.Debug("object uploaded",
			zap.String("bucket", s.bucket),
			zap.String("key", key),
			zap.Int64("size", info.Size),
		)
		keys = append(keys, key)
	}
	return keys, nil
}

// ObjectKey joins the key parts with forward slashes, skipping an empty prefix.
func ObjectKey(prefix, sheetID, file string) string {
	prefix = strings.Trim(prefix, "/")
	name := filepath.Base(file)
	if prefix == "" {
		return path.Join(sheetID, name)
	}
	return path.Join(prefix, sheetID, name)
}

func contentType(file string) string {
	if ct := mime.TypeByExtension(filepath.Ext(file)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
