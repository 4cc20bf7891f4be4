package avatar

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// PutObjectAPI is the subset of the S3 client used for uploads.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Config configures an S3-compatible bucket.
type S3Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	BaseURL   string
	PathStyle bool
}

// S3Storage uploads images with PutObject.
type S3Storage struct {
	api     PutObjectAPI
	bucket  string
	prefix  string
	baseURL string
}

var _ Storage = (*S3Storage)(nil)

// NewS3Storage builds an S3 client from cfg using static credentials.
func NewS3Storage(ctx context.Context, cfg S3Config) (*S3Storage, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("avatar: s3 bucket required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, errors.New("avatar: s3 access key and secret key required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(
		ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
		awsconfig.WithHTTPClient(&http.Client{Timeout: 30 * time.Second}),
	)
	if err != nil {
		return nil, err
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if endpoint := strings.TrimSpace(cfg.Endpoint); endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	return NewS3StorageWithAPI(client, cfg), nil
}

// NewS3StorageWithAPI wires an existing client.
func NewS3StorageWithAPI(api PutObjectAPI, cfg S3Config) *S3Storage {
	return &S3Storage{
		api:     api,
		bucket:  cfg.Bucket,
		prefix:  strings.Trim(cfg.Prefix, "/"),
		baseURL: cfg.BaseURL,
	}
}

// Put uploads body as bucket/prefix/name.
func (s *S3Storage) Put(ctx context.Context, name, contentType string, body io.Reader) (string, error) {
	if s == nil || s.api == nil {
		return "", errors.New("avatar: nil s3 storage")
	}
	key := name
	if s.prefix != "" {
		key = fmt.Sprintf("%s/%s", s.prefix, name)
	}
	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	}
	if sized, ok := body.(interface{ Len() int }); ok {
		input.ContentLength = aws.Int64(int64(sized.Len()))
	}
	if _, err := s.api.PutObject(ctx, input); err != nil {
		return "", err
	}
	return publicURL(s.baseURL, key), nil
}
