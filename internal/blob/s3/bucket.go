// Package s3blob stores trade archives in an S3-compatible bucket (AWS,
// MinIO, R2) using the AWS SDK v2.
package s3blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/Hidayat0507/tradebot/internal/domain"
)

// partSize is the multipart chunk size (the S3 minimum).
const partSize int64 = 5 * 1024 * 1024

// ClientConfig describes the archive bucket.
type ClientConfig struct {
	// Endpoint is an S3-compatible endpoint such as "localhost:9000".
	// Empty means AWS.
	Endpoint string
	Region   string
	Bucket   string

	// Static credentials. Both empty selects the default AWS chain.
	AccessKey string
	SecretKey string

	// UseSSL picks the scheme when Endpoint has none.
	UseSSL bool
	// ForcePathStyle is needed by MinIO.
	ForcePathStyle bool
}

// Bucket is a single S3 bucket. It implements domain.BlobWriter and
// domain.BlobReader.
type Bucket struct {
	api      *s3.Client
	uploader *manager.Uploader
	name     string
}

// New builds a Bucket from cfg. It does not contact the service; call Ping.
func New(ctx context.Context, cfg ClientConfig) (*Bucket, error) {
	switch {
	case cfg.Bucket == "":
		return nil, errors.New("s3blob: bucket name is required")
	case cfg.Region == "":
		return nil, errors.New("s3blob: region is required")
	}

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" || cfg.SecretKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("s3blob: load aws config: %w", err)
	}

	api := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(withScheme(cfg.Endpoint, cfg.UseSSL))
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})
	return &Bucket{
		api: api,
		uploader: manager.NewUploader(api, func(u *manager.Uploader) {
			u.PartSize = partSize
		}),
		name: cfg.Bucket,
	}, nil
}

// Ping issues HeadBucket to check reachability and permissions.
func (b *Bucket) Ping(ctx context.Context) error {
	if _, err := b.api.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(b.name)}); err != nil {
		return fmt.Errorf("s3blob: head bucket %s: %w", b.name, err)
	}
	return nil
}

// Put uploads data to path through the transfer manager, which splits
// large bodies into concurrent parts.
func (b *Bucket) Put(ctx context.Context, path string, data io.Reader, contentType string) error {
	_, err := b.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.name),
		Key:         aws.String(path),
		Body:        data,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("s3blob: upload %s/%s: %w", b.name, path, err)
	}
	return nil
}

// Get opens the object at path. The caller closes the body. A missing
// object is domain.ErrNotFound.
func (b *Bucket) Get(ctx context.Context, path string) (io.ReadCloser, error) {
	out, err := b.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.name),
		Key:    aws.String(path),
	})
	if isNotFound(err) {
		return nil, fmt.Errorf("s3blob: get %s: %w", path, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("s3blob: get %s: %w", path, err)
	}
	return out.Body, nil
}

// List returns every object under prefix across all result pages.
func (b *Bucket) List(ctx context.Context, prefix string) ([]domain.BlobInfo, error) {
	pages := s3.NewListObjectsV2Paginator(b.api, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.name),
		Prefix: aws.String(prefix),
	})
	var infos []domain.BlobInfo
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3blob: list %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if strings.HasSuffix(key, "/") {
				continue
			}
			infos = append(infos, domain.BlobInfo{
				Path:         key,
				Size:         aws.ToInt64(obj.Size),
				LastModified: aws.ToTime(obj.LastModified),
			})
		}
	}
	return infos, nil
}

// Exists reports whether path is present. The archiver calls it before
// deleting rows.
func (b *Bucket) Exists(ctx context.Context, path string) (bool, error) {
	_, err := b.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.name),
		Key:    aws.String(path),
	})
	switch {
	case err == nil:
		return true, nil
	case isNotFound(err):
		return false, nil
	default:
		return false, fmt.Errorf("s3blob: head %s: %w", path, err)
	}
}

// isNotFound matches NoSuchKey (GetObject), NotFound (HeadObject) and
// bare 404s from S3-compatible providers.
func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	var respErr *awshttp.ResponseError
	return errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusNotFound
}

func withScheme(endpoint string, useSSL bool) string {
	if strings.Contains(endpoint, "://") {
		return endpoint
	}
	if useSSL {
		return "https://" + endpoint
	}
	return "http://" + endpoint
}

var (
	_ domain.BlobWriter = (*Bucket)(nil)
	_ domain.BlobReader = (*Bucket)(nil)
)
