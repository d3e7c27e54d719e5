package archive

import (
	"context"
	"fmt"
	"sort"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"github.com/satriahrh/voicememo/domain/repositories"
)

// MinIOConfig holds connection and bucket settings
type MinIOConfig struct {
	Endpoint  string // Required: host:port
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string // Required
	Prefix    string
}

// MinIO archives audio in a MinIO or other S3-compatible bucket
type MinIO struct {
	client *minio.Client
	bucket string
	prefix string
	logger *zap.Logger
}

var _ repositories.AudioArchive = (*MinIO)(nil)

// NewMinIO connects and creates the bucket if it does not exist
func NewMinIO(ctx context.Context, cfg MinIOConfig, logger *zap.Logger) (*MinIO, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("minio endpoint is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("archive bucket is required")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
		logger.Info("Created archive bucket", zap.String("bucket", cfg.Bucket))
	}

	return &MinIO{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		logger: logger,
	}, nil
}

func isMinIONotFound(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NotFound"
}

// Put implements repositories.AudioArchive
func (m *MinIO) Put(ctx context.Context, name, srcPath string) error {
	if err := validateName(name); err != nil {
		return err
	}
	key := objectKey(m.prefix, name)
	_, err := m.client.FPutObject(ctx, m.bucket, key, srcPath, minio.PutObjectOptions{ContentType: ContentType})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}
	m.logger.Debug("Audio archived", zap.String("bucket", m.bucket), zap.String("key", key))
	return nil
}

// Exists implements repositories.AudioArchive
func (m *MinIO) Exists(ctx context.Context, name string) (bool, error) {
	if err := validateName(name); err != nil {
		return false, err
	}
	_, err := m.client.StatObject(ctx, m.bucket, objectKey(m.prefix, name), minio.StatObjectOptions{})
	if err != nil {
		if isMinIONotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// List implements repositories.AudioArchive
func (m *MinIO) List(ctx context.Context) ([]repositories.ArchivedAudio, error) {
	// stops the lister goroutine when we return early
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	opts := minio.ListObjectsOptions{Recursive: true}
	if m.prefix != "" {
		opts.Prefix = objectKey(m.prefix, "") + "/"
	}

	var out []repositories.ArchivedAudio
	for obj := range m.client.ListObjects(ctx, m.bucket, opts) {
		if obj.Err != nil {
			return nil, fmt.Errorf("failed to list archive: %w", obj.Err)
		}
		name, ok := nameFromKey(m.prefix, obj.Key)
		if !ok {
			continue
		}
		out = append(out, repositories.ArchivedAudio{Name: name, ModifiedAt: obj.LastModified})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Delete implements repositories.AudioArchive
func (m *MinIO) Delete(ctx context.Context, name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	err := m.client.RemoveObject(ctx, m.bucket, objectKey(m.prefix, name), minio.RemoveObjectOptions{})
	if err != nil && !isMinIONotFound(err) {
		return fmt.Errorf("failed to delete archived audio: %w", err)
	}
	return nil
}
