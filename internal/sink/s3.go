// internal/sink/s3.go
package sink

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	cfg "github.com/tamzrod/labjack-streamer/internal/config"
)

// objectPutter is the part of the S3 client the sink uses.
type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3 uploads the files written by earlier sinks to
// s3://<bucket>/<prefix>/<run id>/<file>.
type S3 struct {
	client objectPutter
	bucket string
	prefix string
}

// NewS3 builds an uploader using the AWS default credential chain.
func NewS3(ctx context.Context, c cfg.S3SinkConfig) (*S3, error) {
	if c.Bucket == "" {
		return nil, errors.New("s3: bucket is required")
	}

	var opts []func(*awsconfig.LoadOptions) error
	if c.Region != "" {
		opts = append(opts, awsconfig.WithRegion(c.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("s3: load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if c.Endpoint != "" {
		endpoint := c.Endpoint
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = &endpoint
		})
	}
	if c.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}
	return newS3(s3.NewFromConfig(awsCfg, s3Opts...), c.Bucket, c.Prefix), nil
}

func newS3(client objectPutter, bucket, prefix string) *S3 {
	return &S3{client: client, bucket: bucket, prefix: prefix}
}

func (s *S3) Name() string { return "s3" }

func (s *S3) Deliver(ctx context.Context, run *Run) error {
	for _, p := range run.Files {
		key := path.Join(s.prefix, run.ID, filepath.Base(p))
		if err := s.put(ctx, p, key); err != nil {
			return err
		}
		run.Objects = append(run.Objects, "s3://"+s.bucket+"/"+key)
	}
	return nil
}

func (s *S3) put(ctx context.Context, file, key string) error {
	f, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("s3: %w", err)
	}
	defer f.Close()

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(contentType(file)),
	})
	if err != nil {
		return fmt.Errorf("s3: put %s: %w", key, err)
	}
	return nil
}

func (s *S3) Close() error { return nil }

func contentType(file string) string {
	switch filepath.Ext(file) {
	case ".csv":
		return "text/csv"
	case ".msgpack":
		return "application/msgpack"
	default:
		return "application/octet-stream"
	}
}
