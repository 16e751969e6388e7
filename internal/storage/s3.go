package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// S3API is the subset of *s3.Client that S3Store calls.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// S3Options locates a bucket of model artifacts.
type S3Options struct {
	Bucket   string
	Prefix   string
	Region   string
	Endpoint string // for S3-compatible stores such as MinIO; enables path-style addressing
}

// S3Store is a FileStore over an S3 bucket. Store paths become object
// keys under Prefix.
type S3Store struct {
	api    S3API
	bucket string
	prefix string
}

// NewS3 wraps an existing client.
func NewS3(api S3API, bucket, prefix string) *S3Store {
	return &S3Store{api: api, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

// NewS3FromOptions builds an S3 client from opts. Credentials come from
// AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY and AWS_SESSION_TOKEN; when
// those are unset requests are sent anonymously, which suits public
// model buckets.
func NewS3FromOptions(opts S3Options) (*S3Store, error) {
	if opts.Bucket == "" {
		return nil, errors.New("storage: s3 bucket is required")
	}
	region := opts.Region
	if region == "" {
		region = os.Getenv("AWS_REGION")
	}
	if region == "" {
		region = "us-east-1"
	}

	o := s3.Options{
		Region:      region,
		Credentials: envCredentials(),
	}
	if opts.Endpoint != "" {
		o.BaseEndpoint = aws.String(opts.Endpoint)
		o.UsePathStyle = true
	}
	return NewS3(s3.New(o), opts.Bucket, opts.Prefix), nil
}

func envCredentials() aws.CredentialsProvider {
	id, secret := os.Getenv("AWS_ACCESS_KEY_ID"), os.Getenv("AWS_SECRET_ACCESS_KEY")
	if id == "" || secret == "" {
		return aws.AnonymousCredentials{}
	}
	token := os.Getenv("AWS_SESSION_TOKEN")
	return aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
		return aws.Credentials{
			AccessKeyID:     id,
			SecretAccessKey: secret,
			SessionToken:    token,
			Source:          "environment",
		}, nil
	})
}

func (s *S3Store) key(path string) string {
	path = strings.TrimPrefix(path, "/")
	if s.prefix == "" {
		return path
	}
	return s.prefix + "/" + path
}

func (s *S3Store) Read(ctx context.Context, path string) (io.ReadCloser, error) {
	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(path)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("storage: read s3://%s/%s: %w", s.bucket, s.key(path), os.ErrNotExist)
		}
		return nil, fmt.Errorf("storage: read s3://%s/%s: %w", s.bucket, s.key(path), err)
	}
	return out.Body, nil
}

// Write streams to PutObject through a pipe. Close waits for the upload
// and returns its error.
func (s *S3Store) Write(ctx context.Context, path string) (io.WriteCloser, error) {
	pr, pw := io.Pipe()
	u := &upload{pw: pw, done: make(chan struct{})}
	key := s.key(path)
	go func() {
		defer close(u.done)
		_, err := s.api.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
			Body:   pr,
		})
		if err != nil {
			u.err = fmt.Errorf("storage: write s3://%s/%s: %w", s.bucket, key, err)
		}
		// unblock pending writes if the upload ended early
		pr.CloseWithError(u.err)
	}()
	return u, nil
}

func (s *S3Store) Delete(ctx context.Context, path string) error {
	_, err := s.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(path)),
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("storage: delete s3://%s/%s: %w", s.bucket, s.key(path), err)
	}
	return nil
}

func (s *S3Store) Exists(ctx context.Context, path string) (bool, error) {
	_, err := s.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(path)),
	})
	switch {
	case err == nil:
		return true, nil
	case isNotFound(err):
		return false, nil
	default:
		return false, fmt.Errorf("storage: head s3://%s/%s: %w", s.bucket, s.key(path), err)
	}
}

type upload struct {
	pw   *io.PipeWriter
	done chan struct{}
	err  error
}

func (u *upload) Write(p []byte) (int, error) { return u.pw.Write(p) }

func (u *upload) Close() error {
	u.pw.Close()
	<-u.done
	return u.err
}

// Abort fails the upload so no object is stored.
func (u *upload) Abort() error {
	u.pw.CloseWithError(errAborted)
	<-u.done
	return nil
}

var errAborted = errors.New("storage: write aborted")

func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "NotFound", "NoSuchKey":
		return true
	}
	return false
}

var _ FileStore = (*S3Store)(nil)
