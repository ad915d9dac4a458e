package ps

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"
)

// S3Config contains S3 connection settings. Empty fields fall back to the
// default AWS configuration chain.
type S3Config struct {
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"` // Optional: custom S3-compatible endpoint
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

// S3Store is a Store over an S3 bucket. Version tokens are object ETags and
// writes use conditional requests, so a stale token is rejected by S3 itself.
// S3 has no commits; Revision.Commit carries the object version id when
// bucket versioning is enabled.
type S3Store struct {
	client *s3.Client
	bucket string
	prefix string
	logger *zap.Logger
}

var _ Store = (*S3Store)(nil)

// NewS3Store creates an S3 client for cfg.
func NewS3Store(ctx context.Context, cfg S3Config, logger *zap.Logger) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	client, err := getS3Client(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewS3StoreWithClient(client, cfg.Bucket, cfg.Prefix, logger), nil
}

// NewS3StoreWithClient wraps an existing client.
func NewS3StoreWithClient(client *s3.Client, bucket, prefix string, logger *zap.Logger) *S3Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &S3Store{
		client: client,
		bucket: bucket,
		prefix: cleanPath(prefix),
		logger: logger.Named("S3Store"),
	}
}

// getS3Client creates an S3 client with the given configuration
func getS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	var opts []func(*config.LoadOptions) error

	// Set region if provided
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}

	// Set explicit credentials if provided
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		creds := credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")
		opts = append(opts, config.WithCredentialsProvider(creds))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	clientOpts := []func(*s3.Options){}
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true // For S3-compatible services
		})
	}

	return s3.NewFromConfig(awsCfg, clientOpts...), nil
}

func (s *S3Store) key(path string) string {
	if s.prefix == "" {
		return path
	}
	if path == "" {
		return s.prefix
	}
	return s.prefix + "/" + path
}

// Get reads the object at path. When no such object exists, path is listed
// as a directory instead; an empty listing is ErrNotFound except at the root.
func (s *S3Store) Get(ctx context.Context, path string) (*Object, error) {
	path = cleanPath(path)

	if path != "" {
		resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(s.key(path)),
		})
		if err == nil {
			defer resp.Body.Close()
			content, err := io.ReadAll(resp.Body)
			if err != nil {
				return nil, fmt.Errorf("failed to read s3 object %s: %w", path, err)
			}
			return &Object{
				Path:    path,
				Kind:    KindFile,
				Content: content,
				Token:   aws.ToString(resp.ETag),
			}, nil
		}
		if err = mapS3Error("get", path, err); !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}

	entries, err := s.list(ctx, path)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 && path != "" {
		return nil, fmt.Errorf("get %s: %w", path, ErrNotFound)
	}
	return &Object{Path: path, Kind: KindDir, Entries: entries}, nil
}

// list returns the immediate children of dir, treating "/" as separator.
func (s *S3Store) list(ctx context.Context, dir string) ([]Entry, error) {
	prefix := s.key(dir)
	if prefix != "" {
		prefix += "/"
	}

	var entries []Entry
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, mapS3Error("list", dir, err)
		}
		for _, cp := range page.CommonPrefixes {
			name := strings.TrimSuffix(strings.TrimPrefix(aws.ToString(cp.Prefix), prefix), "/")
			entries = append(entries, Entry{
				Name: name,
				Path: strings.TrimPrefix(dir+"/"+name, "/"),
				Kind: KindDir,
			})
		}
		for _, obj := range page.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), prefix)
			if name == "" {
				continue
			}
			entries = append(entries, Entry{
				Name:  name,
				Path:  strings.TrimPrefix(dir+"/"+name, "/"),
				Kind:  KindFile,
				Token: aws.ToString(obj.ETag),
			})
		}
	}
	return entries, nil
}

// Put writes data with If-None-Match: * for creates and If-Match for updates.
func (s *S3Store) Put(ctx context.Context, path string, data []byte, message string, token string) (Revision, error) {
	path = cleanPath(path)

	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key(path)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType(path)),
		Metadata:    map[string]string{"message": message},
	}
	if token == "" {
		input.IfNoneMatch = aws.String("*")
	} else {
		input.IfMatch = aws.String(token)
	}

	resp, err := s.client.PutObject(ctx, input)
	if err != nil {
		return Revision{}, mapS3Error("put", path, err)
	}

	s.logger.Debug("Wrote object", zap.String("path", path), zap.String("message", message))
	return Revision{
		Token:  aws.ToString(resp.ETag),
		Commit: aws.ToString(resp.VersionId),
	}, nil
}

// Delete removes the object with If-Match: token.
func (s *S3Store) Delete(ctx context.Context, path string, message string, token string) error {
	path = cleanPath(path)

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket:  aws.String(s.bucket),
		Key:     aws.String(s.key(path)),
		IfMatch: aws.String(token),
	})
	if err != nil {
		return mapS3Error("delete", path, err)
	}

	s.logger.Debug("Deleted object", zap.String("path", path), zap.String("message", message))
	return nil
}

// RepositoryExists checks the configured bucket. S3 has no owner, so both
// arguments only appear in the error message.
func (s *S3Store) RepositoryExists(ctx context.Context, owner, repo string) (bool, error) {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err == nil {
		return true, nil
	}
	if err = mapS3Error("head bucket", s.bucket, err); errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return false, fmt.Errorf("%s/%s: %w", owner, repo, err)
}

// mapS3Error turns S3 error codes into the store sentinels.
func mapS3Error(op, path string, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "NoSuchBucket":
			return fmt.Errorf("%s %s: %w", op, path, ErrNotFound)
		case "PreconditionFailed", "ConditionalRequestConflict":
			return fmt.Errorf("%s %s: %w", op, path, ErrConflict)
		}
	}
	return fmt.Errorf("%s %s: %w", op, path, err)
}

func contentType(path string) string {
	switch {
	case strings.HasSuffix(path, ".json"):
		return "application/json"
	case strings.HasSuffix(path, ".md"):
		return "text/markdown"
	default:
		return "application/octet-stream"
	}
}
