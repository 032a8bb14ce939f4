package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/diamondpsi/psiweb/pkg/config"
)

// Compile-time interface check.
var _ Reader = (*s3Reader)(nil)

type s3Reader struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Reader creates a Reader backed by S3-compatible storage.
func NewS3Reader(cfg *config.S3SourceConfig) Reader {
	return &s3Reader{
		client: newS3Client(cfg),
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}
}

// Location returns the bucket URL including the prefix.
func (r *s3Reader) Location() string {
	if r.prefix == "" {
		return "s3://" + r.bucket
	}

	return "s3://" + r.bucket + "/" + r.prefix
}

// ReadFile reads {prefix}/{name} from S3.
// Returns (nil, nil) when the key does not exist.
func (r *s3Reader) ReadFile(ctx context.Context, name string) ([]byte, error) {
	key := r.key(name)

	out, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("getting object %q: %w", key, err)
	}

	defer func() { _ = out.Body.Close() }()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("reading object %q: %w", key, err)
	}

	return data, nil
}

// List returns the object names directly under {prefix}/{dir}/.
func (r *s3Reader) List(ctx context.Context, dir string) ([]string, error) {
	prefix := r.key(dir) + "/"

	paginator := s3.NewListObjectsV2Paginator(
		r.client, &s3.ListObjectsV2Input{
			Bucket:    aws.String(r.bucket),
			Prefix:    aws.String(prefix),
			Delimiter: aws.String("/"),
		},
	)

	names := make([]string, 0, 16)

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing objects under %q: %w", prefix, err)
		}

		for _, obj := range page.Contents {
			if obj.Key != nil {
				names = append(names, path.Base(*obj.Key))
			}
		}
	}

	sort.Strings(names)

	return names, nil
}

func (r *s3Reader) key(name string) string {
	name = strings.Trim(name, "/")
	if r.prefix == "" {
		return name
	}

	return r.prefix + "/" + name
}

func isS3NotFound(err error) bool {
	var nsk *s3types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}

	return strings.Contains(err.Error(), "NoSuchKey")
}

func newS3Client(cfg *config.S3SourceConfig) *s3.Client {
	opts := []func(*s3.Options){
		func(o *s3.Options) {
			if cfg.Region != "" {
				o.Region = cfg.Region
			} else {
				o.Region = "us-east-1"
			}

			if cfg.EndpointURL != "" {
				o.BaseEndpoint = aws.String(cfg.EndpointURL)
			}

			if cfg.ForcePathStyle {
				o.UsePathStyle = true
			}

			if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
				o.Credentials = credentials.NewStaticCredentialsProvider(
					cfg.AccessKeyID, cfg.SecretAccessKey, "",
				)
			}
		},
	}

	return s3.New(s3.Options{}, opts...)
}
