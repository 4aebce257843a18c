package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3API is the subset of the AWS S3 client used by S3BlobStore, narrowed
// so tests can supply a fake.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3BlobStore proxies blob bytes to an S3-compatible bucket. Object
// metadata (filename, uploaded-at) rides along as S3 object metadata
// rather than a sidecar file.
type S3BlobStore struct {
	Bucket string
	Prefix string
	client S3API
}

// S3Options configures an S3BlobStore.
type S3Options struct {
	Bucket          string
	Region          string
	Prefix          string
	Endpoint        string
	UsePathStyle    bool
	AccessKeyID     string
	SecretAccessKey string
}

func NewS3BlobStore(ctx context.Context, opts S3Options) (*S3BlobStore, error) {
	if opts.Bucket == "" {
		return nil, ErrInvalidInput
	}
	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("relay: load aws config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if opts.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) { o.BaseEndpoint = aws.String(opts.Endpoint) })
	}
	if opts.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) { o.UsePathStyle = true })
	}
	client := s3.NewFromConfig(cfg, s3Opts...)

	return &S3BlobStore{Bucket: opts.Bucket, Prefix: opts.Prefix, client: client}, nil
}

// NewS3BlobStoreWithClient is used in tests with a fake S3API.
func NewS3BlobStoreWithClient(bucket, prefix string, client S3API) *S3BlobStore {
	return &S3BlobStore{Bucket: bucket, Prefix: prefix, client: client}
}

func (s *S3BlobStore) s3Key(key string) string {
	return s.Prefix + key
}

func (s *S3BlobStore) Put(ctx context.Context, key string, r io.Reader, size int64, meta ObjectMeta) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.Bucket),
		Key:           aws.String(s.s3Key(key)),
		Body:          strings.NewReader(string(data)),
		ContentLength: aws.Int64(int64(len(data))),
		Metadata: map[string]string{
			"filename":    meta.Filename,
			"uploaded-at": strconv.FormatInt(meta.UploadedAt, 10),
		},
	})
	if err != nil {
		return fmt.Errorf("relay: s3 put: %w", err)
	}
	return nil
}

func (s *S3BlobStore) Get(ctx context.Context, key string) (io.ReadCloser, int64, ObjectMeta, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.s3Key(key)),
	})
	if err != nil {
		var nf *types.NoSuchKey
		if errors.As(err, &nf) {
			return nil, 0, ObjectMeta{}, ErrNotFound
		}
		return nil, 0, ObjectMeta{}, fmt.Errorf("relay: s3 get: %w", err)
	}
	meta := ObjectMeta{Filename: out.Metadata["filename"]}
	if ts, err := strconv.ParseInt(out.Metadata["uploaded-at"], 10, 64); err == nil {
		meta.UploadedAt = ts
	}
	size := int64(0)
	if out.ContentLength != nil {
		size = *out.ContentLength
	}
	return out.Body, size, meta, nil
}

func (s *S3BlobStore) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.s3Key(key)),
	})
	if err != nil {
		return fmt.Errorf("relay: s3 delete: %w", err)
	}
	return nil
}

func (s *S3BlobStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var out []ObjectInfo
	var token *string
	for {
		resp, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.Bucket),
			Prefix:            aws.String(s.s3Key(prefix)),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("relay: s3 list: %w", err)
		}
		for _, obj := range resp.Contents {
			key := strings.TrimPrefix(aws.ToString(obj.Key), s.Prefix)
			size := int64(0)
			if obj.Size != nil {
				size = *obj.Size
			}
			out = append(out, ObjectInfo{Key: key, Size: size})
		}
		if resp.IsTruncated == nil || !*resp.IsTruncated {
			break
		}
		token = resp.NextContinuationToken
	}
	return out, nil
}
