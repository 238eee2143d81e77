package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	s3manager "github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/semmidev/dbkeeper/internal/config"
	"github.com/semmidev/dbkeeper/internal/domain"
)

const s3Name = "S3"

type s3Store struct {
	client   *s3.Client
	uploader *s3manager.Uploader
	bucket   string
	prefix   string
}

// NewS3 creates an S3 backed storage using AWS SDK v2. Static keys are used
// when configured, the default credential chain otherwise.
func NewS3(ctx context.Context, cfg *config.S3Config, logger Logger) (*RemoteStorage, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	store := &s3Store{
		client:   client,
		uploader: s3manager.NewUploader(client),
		bucket:   cfg.Bucket,
		prefix:   strings.Trim(cfg.Prefix, "/"),
	}
	return newRemote(s3Name, store, logger), nil
}

func (s *s3Store) fullKey(key string) string {
	switch {
	case s.prefix == "":
		return key
	case key == "":
		return s.prefix + "/"
	default:
		return path.Join(s.prefix, key) + trailingSlash(key)
	}
}

func (s *s3Store) put(ctx context.Context, key string, file *os.File, size int64, progress func(int64)) error {
	fullKey := s.fullKey(key)
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(fullKey),
		Body:        &progressReader{r: file, report: progress},
		ContentType: aws.String("application/gzip"),
	})
	if err != nil {
		return classifyS3("upload", fullKey, err)
	}
	return nil
}

func (s *s3Store) list(ctx context.Context, prefix string) ([]domain.StoredArtifact, error) {
	fullPrefix := s.fullKey(prefix)
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(fullPrefix),
	})

	var objects []domain.StoredArtifact
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, classifyS3("list", fullPrefix, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if s.prefix != "" {
				key = strings.TrimPrefix(key, s.prefix+"/")
			}
			objects = append(objects, domain.StoredArtifact{
				Key:        key,
				Name:       path.Base(key),
				Size:       aws.ToInt64(obj.Size),
				ModifiedAt: aws.ToTime(obj.LastModified),
			})
		}
	}
	return objects, nil
}

func (s *s3Store) remove(ctx context.Context, obj domain.StoredArtifact) error {
	fullKey := s.fullKey(obj.Key)
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(fullKey),
	})
	if err != nil {
		return classifyS3("delete", fullKey, err)
	}
	return nil
}

func (s *s3Store) get(ctx context.Context, obj domain.StoredArtifact) (io.ReadCloser, error) {
	fullKey := s.fullKey(obj.Key)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(fullKey),
	})
	if err != nil {
		return nil, classifyS3("download", fullKey, err)
	}
	return out.Body, nil
}

var s3AuthCodes = map[string]bool{
	"AccessDenied":          true,
	"InvalidAccessKeyId":    true,
	"SignatureDoesNotMatch": true,
	"ExpiredToken":          true,
	"InvalidToken":          true,
	"Forbidden":             true,
}

func classifyS3(op, key string, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && s3AuthCodes[apiErr.ErrorCode()] {
		return domain.NewAuthError(s3Name, op, key, err)
	}
	var respErr interface{ HTTPStatusCode() int }
	if errors.As(err, &respErr) && isAuthStatus(respErr.HTTPStatusCode()) {
		return domain.NewAuthError(s3Name, op, key, err)
	}
	return domain.NewNetworkError(s3Name, op, key, err)
}

func trailingSlash(key string) string {
	if strings.HasSuffix(key, "/") {
		return "/"
	}
	return ""
}

// progressReader reports the running byte count of a sequential read.
type progressReader struct {
	r      io.Reader
	read   int64
	report func(int64)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.read += int64(n)
	if p.report != nil && n > 0 {
		p.report(p.read)
	}
	return n, err
}
