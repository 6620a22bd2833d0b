package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/lyzr/jukebox/common/models"
)

// S3API is the subset of the S3 client the backend uses
type S3API interface {
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Backend stores artifacts as objects under <prefix><kind>/<name>
type S3Backend struct {
	kindFilter
	client S3API
	bucket string
	prefix string
}

// S3Config holds configuration for S3Backend
type S3Config struct {
	Bucket   string
	Region   string
	Endpoint string // MinIO, LocalStack
	Prefix   string
}

// NewS3Backend loads the default AWS credential chain and creates the backend
func NewS3Backend(ctx context.Context, cfg S3Config, options map[string]any) (*S3Backend, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return NewS3BackendWithClient(client, cfg.Bucket, cfg.Prefix, options), nil
}

// NewS3BackendWithClient wires an existing client, used by tests
func NewS3BackendWithClient(client S3API, bucket, prefix string, options map[string]any) *S3Backend {
	return &S3Backend{
		kindFilter: newKindFilter(options),
		client:     client,
		bucket:     bucket,
		prefix:     prefix,
	}
}

func (b *S3Backend) Name() string { return "s3" }

func (b *S3Backend) objectKey(key models.CacheKey) string {
	return b.prefix + key.Kind.Dir() + "/" + key.Name
}

// IsStored issues a HeadObject
func (b *S3Backend) IsStored(ctx context.Context, key models.CacheKey) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	_, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.objectKey(key)),
	})
	if err == nil {
		return true, nil
	}
	if isS3NotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("s3 head failed for %s: %w", key, err)
}

// Store uploads the object with its content type and uploader
func (b *S3Backend) Store(ctx context.Context, key models.CacheKey, r io.Reader, mimeType, clientUID string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if !b.ShouldStore(key.Kind) {
		return fmt.Errorf("%s: %w", key.Kind, models.ErrStorageUnsupported)
	}

	body, size, err := readSeeker(r)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", key, err)
	}

	in := &s3.PutObjectInput{
		Bucket:        aws.String(b.bucket),
		Key:           aws.String(b.objectKey(key)),
		Body:          body,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(mimeType),
	}
	if clientUID != "" {
		in.Metadata = map[string]string{"client-uid": clientUID}
	}

	if _, err := b.client.PutObject(ctx, in); err != nil {
		return fmt.Errorf("s3 put failed for %s: %w", key, err)
	}
	return nil
}

// Provide streams the object body
func (b *S3Backend) Provide(ctx context.Context, key models.CacheKey) (*models.Artifact, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.objectKey(key)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, fmt.Errorf("%s: %w", key, models.ErrNotStored)
		}
		return nil, fmt.Errorf("s3 get failed for %s: %w", key, err)
	}

	artifact := &models.Artifact{
		Key:      key,
		MimeType: aws.ToString(out.ContentType),
		Size:     -1,
		Body:     out.Body,
	}
	if out.ContentLength != nil {
		artifact.Size = *out.ContentLength
	}
	if artifact.MimeType == "" {
		artifact.MimeType = models.MimeDefaultAudio
	}
	return artifact, nil
}

func isS3NotFound(err error) bool {
	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	return errors.As(err, &notFound) || errors.As(err, &noSuchKey)
}
