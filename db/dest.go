package db

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

var ErrDestination = errors.New("unsupported snapshot destination")

// splitDestination returns the lower-cased scheme of dest and the rest of
// it. A plain path has no scheme.
func splitDestination(dest string) (scheme, rest string) {
	scheme, rest, ok := strings.Cut(dest, "://")
	if !ok {
		return "", dest
	}
	return strings.ToLower(scheme), rest
}

// openDestination opens a snapshot destination: a local path, a file://
// URL or s3://bucket/key.
func openDestination(ctx context.Context, dest string, cfg *S3Config) (io.WriteCloser, error) {
	switch scheme, rest := splitDestination(dest); scheme {
	case "", "file":
		f, err := os.Create(rest)
		if err != nil {
			return nil, err
		}
		return f, nil
	case "s3":
		bucket, key, _ := strings.Cut(rest, "/")
		if bucket == "" || key == "" {
			return nil, fmt.Errorf("%w: %s needs a bucket and a key", ErrDestination, dest)
		}
		client, err := newS3Client(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return &s3Object{ctx: ctx, client: client, bucket: bucket, key: key}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrDestination, dest)
	}
}

// newS3Client builds a client from the default AWS chain, overridden by
// whatever cfg sets. A custom endpoint implies path-style addressing.
func newS3Client(ctx context.Context, cfg *S3Config) (*s3.Client, error) {
	if cfg == nil {
		cfg = &S3Config{}
	}
	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint == "" {
			return
		}
		o.BaseEndpoint = aws.String(cfg.Endpoint)
		o.UsePathStyle = true
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
	}), nil
}

// s3Object collects a snapshot in memory and uploads it on Close.
type s3Object struct {
	ctx    context.Context
	client *s3.Client
	bucket string
	key    string
	body   bytes.Buffer
	closed bool
}

func (o *s3Object) Write(p []byte) (int, error) {
	if o.closed {
		return 0, os.ErrClosed
	}
	return o.body.Write(p)
}

func (o *s3Object) Close() error {
	if o.closed {
		return nil
	}
	o.closed = true
	_, err := o.client.PutObject(o.ctx, &s3.PutObjectInput{
		Bucket:      aws.String(o.bucket),
		Key:         aws.String(o.key),
		Body:        bytes.NewReader(o.body.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return fmt.Errorf("uploading s3://%s/%s: %w", o.bucket, o.key, err)
	}
	return nil
}
