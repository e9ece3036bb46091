// Package archive uploads generated PDFs to S3 compatible object storage.
package archive

import (
	"context"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/xid"

	"pdfgateway/internal/domain"
)

// Archiver stores a copy of a generated PDF and returns its object key.
type Archiver interface {
	Store(ctx context.Context, route string, body io.ReadSeeker, size int64) (string, error)
}

// Nop discards everything.
type Nop struct{}

func (Nop) Store(context.Context, string, io.ReadSeeker, int64) (string, error) { return "", nil }

type Options struct {
	Bucket    string
	Region    string
	Endpoint  string
	Prefix    string
	PathStyle bool
	// Static credentials; the default AWS chain is used when AccessKey is empty.
	AccessKey string
	SecretKey string
}

// S3 writes objects under {prefix}/{route}/{yyyy}/{mm}/{dd}/{xid}.pdf.
type S3 struct {
	client *s3.Client
	bucket string
	prefix string
	now    func() time.Time
}

func NewS3(ctx context.Context, opts Options) (*S3, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("archive bucket is empty")
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, "")))
	}
	conf, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(conf, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.PathStyle
	})
	return &S3{client: client, bucket: opts.Bucket, prefix: opts.Prefix, now: time.Now}, nil
}

func (a *S3) Store(ctx context.Context, route string, body io.ReadSeeker, size int64) (string, error) {
	key := Key(a.prefix, route, a.now(), xid.New().String())
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(domain.ContentTypePDF),
	})
	if err != nil {
		return "", fmt.Errorf("put s3://%s/%s: %w", a.bucket, key, err)
	}
	return key, nil
}

// Key builds the object key for a PDF produced by route at t.
func Key(prefix, route string, t time.Time, id string) string {
	t = t.UTC()
	return path.Join(prefix, route, t.Format("2006"), t.Format("01"), t.Format("02"), id+".pdf")
}
