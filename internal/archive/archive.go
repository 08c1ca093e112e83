// Package archive uploads raw downloaded bhavcopy payloads to S3
package archive

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/nsvirk/bhavcopyapi/pkg/utils/zaplogger"
)

// Archiver stores a raw payload under name
type Archiver interface {
	Archive(ctx context.Context, name string, data []byte) error
}

// Nop discards payloads; used when no bucket is configured
type Nop struct{}

// Archive does nothing
func (Nop) Archive(context.Context, string, []byte) error { return nil }

// ObjectPutter is the part of the S3 client the archiver needs
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3 uploads payloads to a bucket under a key prefix
type S3 struct {
	client ObjectPutter
	bucket string
	prefix string
}

// NewS3 loads the default AWS configuration for region and returns an S3 archiver
func NewS3(ctx context.Context, bucket, region, prefix string) (*S3, error) {
	awsConfig, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}
	return NewS3WithClient(s3.NewFromConfig(awsConfig), bucket, prefix), nil
}

// NewS3WithClient returns an S3 archiver over an existing client
func NewS3WithClient(client ObjectPutter, bucket, prefix string) *S3 {
	return &S3{client: client, bucket: bucket, prefix: prefix}
}

// Archive uploads data to <prefix>/<name>
func (a *S3) Archive(ctx context.Context, name string, data []byte) error {
	key := path.Join(a.prefix, name)

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(http.DetectContentType(data)),
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}

	zaplogger.Info("Payload archived", zaplogger.Fields{"bucket": a.bucket, "key": key, "bytes": len(data)})
	return nil
}
