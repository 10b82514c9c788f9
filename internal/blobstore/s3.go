package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"vignette/internal/models"
)

// S3Config holds configuration for the S3 backend.
type S3Config struct {
	Bucket   string
	Region   string
	Endpoint string // Optional custom endpoint (MinIO, LocalStack)
	Prefix   string // Optional key prefix
}

// S3 stores objects in an S3 bucket. Single PutObject calls are atomic, so
// readers never observe partial content.
type S3 struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3 creates an S3 backend using the default AWS credential chain.
func NewS3(ctx context.Context, cfg S3Config) (*S3, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewS3FromClient(client, cfg.Bucket, cfg.Prefix), nil
}

// NewS3FromClient wraps an existing client.
func NewS3FromClient(client *s3.Client, bucket, prefix string) *S3 {
	return &S3{client: client, bucket: bucket, prefix: prefix}
}

func (s *S3) Name() string { return "s3" }

func (s *S3) Put(ctx context.Context, key string, r io.Reader, mediaType string) (PutResult, error) {
	var zero PutResult
	if err := validateKey(key); err != nil {
		return zero, err
	}
	if r == nil {
		return zero, fmt.Errorf("reader is required")
	}
	// Buffer so the SDK can sign and retry the body.
	data, err := io.ReadAll(r)
	if err != nil {
		return zero, models.StorageIO(key, false, err)
	}
	sum := sha256.Sum256(data)
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.objectKey(key)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(mediaType),
	})
	if err != nil {
		return zero, classifyS3Error(key, err)
	}
	return PutResult{Key: key, SHA256: hex.EncodeToString(sum[:]), SizeBytes: int64(len(data))}, nil
}

func (s *S3) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		return nil, classifyS3Error(key, err)
	}
	return out.Body, nil
}

func (s *S3) Exists(ctx context.Context, key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		err = classifyS3Error(key, err)
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Delete removes an object. S3 reports success for missing keys.
func (s *S3) Delete(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		err = classifyS3Error(key, err)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	return nil
}

func (s *S3) List(ctx context.Context, prefix string) ([]string, error) {
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.objectKey(prefix)),
	})
	keys := []string{}
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, classifyS3Error(prefix, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, strings.TrimPrefix(aws.ToString(obj.Key), s.prefix))
		}
	}
	return keys, nil
}

func (s *S3) objectKey(key string) string {
	return s.prefix + key
}

// classifyS3Error maps SDK errors onto ErrNotFound or a storage error,
// marking throttling, 5xx and network timeouts as transient.
func classifyS3Error(key string, err error) error {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}

	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		status := respErr.HTTPStatusCode()
		if status == http.StatusNotFound {
			return fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		transient := status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
		return models.StorageIO(key, transient, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return models.StorageIO(key, true, err)
	}
	return models.StorageIO(key, false, err)
}
