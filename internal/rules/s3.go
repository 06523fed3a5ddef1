package rules

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type s3ObjectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Backend stores the rule set as a single object. PutObject replaces the
// object atomically, so readers never see a partial document.
type S3Backend struct {
	api    s3ObjectAPI
	bucket string
	key    string
}

// NewS3Backend creates a backend for bucket/key.
func NewS3Backend(api s3ObjectAPI, bucket, key string) *S3Backend {
	if api == nil {
		panic("rules: s3 client cannot be nil")
	}
	if key == "" {
		key = "triage/rules.json"
	}
	return &S3Backend{api: api, bucket: bucket, key: key}
}

func (b *S3Backend) Name() string { return "s3" }

func (b *S3Backend) Read(ctx context.Context) (RuleSet, error) {
	out, err := b.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key),
	})
	if err != nil {
		var noKey *s3types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("rules: s3 get %s/%s: %w", b.bucket, b.key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("rules: s3 read body: %w", err)
	}
	return Decode(data)
}

func (b *S3Backend) Write(ctx context.Context, rs RuleSet) error {
	data, err := Encode(rs)
	if err != nil {
		return err
	}
	_, err = b.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(b.key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("rules: s3 put %s/%s: %w", b.bucket, b.key, err)
	}
	return nil
}
