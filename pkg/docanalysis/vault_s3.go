package docanalysis

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/fairway-labs/fairway/core/pkg/canonicalize"
)

// S3Vault stores document content in S3 under its content hash.
type S3Vault struct {
	client *s3.Client
	bucket string
	prefix string
}

// S3VaultConfig holds configuration for S3Vault.
type S3VaultConfig struct {
	Bucket   string
	Region   string
	Endpoint string // optional custom endpoint (MinIO, LocalStack)
	Prefix   string // optional key prefix
}

func NewS3Vault(ctx context.Context, cfg S3VaultConfig) (*S3Vault, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true // required for MinIO/LocalStack
		}
	})

	return &S3Vault{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (v *S3Vault) Store(ctx context.Context, data []byte) (string, error) {
	hash := canonicalize.HashBytes(data)
	key := v.prefix + hash + ".blob"

	// Content-addressed: if the object exists, the store is a no-op.
	_, err := v.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(v.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return "sha256:" + hash, nil
	}

	_, err = v.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(v.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
	})
	if err != nil {
		return "", fmt.Errorf("s3 put: %w", err)
	}
	return "sha256:" + hash, nil
}

func (v *S3Vault) Retrieve(ctx context.Context, hash string) ([]byte, error) {
	key := v.prefix + strings.TrimPrefix(hash, "sha256:") + ".blob"

	out, err := v.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(v.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("s3 get %s: %w", hash, err)
	}
	defer func() { _ = out.Body.Close() }()

	return io.ReadAll(out.Body)
}
