package archive

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	"github.com/satriahrh/voicememo/domain/repositories"
)

// ContentType of canonical audio
const ContentType = "audio/mpeg"

// S3API is the subset of *s3.Client the archive uses
type S3API interface {
	manager.UploadAPIClient
	s3.ListObjectsV2APIClient
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Config holds bucket settings
type S3Config struct {
	Bucket   string // Required
	Prefix   string // Optional: key prefix, e.g. "stored_audio"
	Region   string // Optional: overrides the default chain
	Endpoint string // Optional: custom endpoint for S3-compatible services
}

// S3 archives audio in an S3 bucket
type S3 struct {
	client   S3API
	uploader *manager.Uploader
	bucket   string
	prefix   string
	logger   *zap.Logger
}

var _ repositories.AudioArchive = (*S3)(nil)

// NewS3Client builds an S3 client from the default AWS credential chain
func NewS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// NewS3 creates an archive over client
func NewS3(client S3API, cfg S3Config, logger *zap.Logger) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("archive bucket is required")
	}
	return &S3{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   cfg.Bucket,
		prefix:   cfg.Prefix,
		logger:   logger,
	}, nil
}

// Put implements repositories.AudioArchive
func (s *S3) Put(ctx context.Context, name, srcPath string) error {
	if err := validateName(name); err != nil {
		return err
	}
	file, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("failed to open source audio: %w", err)
	}
	defer file.Close()

	key := objectKey(s.prefix, name)
	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        file,
		ContentType: aws.String(ContentType),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}

	s.logger.Debug("Audio archived", zap.String("bucket", s.bucket), zap.String("key", key))
	return nil
}

// Exists implements repositories.AudioArchive
func (s *S3) Exists(ctx context.Context, name string) (bool, error) {
	if err := validateName(name); err != nil {
		return false, err
	}
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey(s.prefix, name)),
	})
	if err != nil {
		var nf *types.NotFound
		if errors.As(err, &nf) {
			return false, nil
		}
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// List implements repositories.AudioArchive
func (s *S3) List(ctx context.Context) ([]repositories.ArchivedAudio, error) {
	input := &s3.ListObjectsV2Input{Bucket: aws.String(s.bucket)}
	if s.prefix != "" {
		input.Prefix = aws.String(objectKey(s.prefix, "") + "/")
	}

	var out []repositories.ArchivedAudio
	paginator := s3.NewListObjectsV2Paginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list archive: %w", err)
		}
		for _, obj := range page.Contents {
			name, ok := nameFromKey(s.prefix, aws.ToString(obj.Key))
			if !ok {
				continue
			}
			out = append(out, repositories.ArchivedAudio{Name: name, ModifiedAt: aws.ToTime(obj.LastModified)})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Delete implements repositories.AudioArchive. S3 deletes are idempotent.
func (s *S3) Delete(ctx context.Context, name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey(s.prefix, name)),
	})
	if err != nil {
		return fmt.Errorf("failed to delete archived audio: %w", err)
	}
	return nil
}
