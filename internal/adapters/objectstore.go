package adapters

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ErrPathTraversal is returned when a caller-supplied path key escapes
// its store root (§4.10).
var ErrPathTraversal = errors.New("adapters: path traversal rejected")

// ObjectStore is the common contract both the S3-compatible and local
// filesystem variants implement (§4.10).
type ObjectStore interface {
	Upload(ctx context.Context, path string, data []byte, contentType string) (string, error)
	Download(ctx context.Context, path string) ([]byte, error)
	Presign(ctx context.Context, path string, ttl time.Duration) (string, error)
	Delete(ctx context.Context, path string) error
	Exists(ctx context.Context, path string) (bool, error)
}

func validatePath(path string) error {
	if path == "" || strings.Contains(path, "..") || strings.HasPrefix(path, "/") {
		return ErrPathTraversal
	}
	return nil
}

// S3Store is the S3-compatible ObjectStore variant.
type S3Store struct {
	client *s3.Client
	bucket string
}

// S3Config holds the knobs needed to construct an S3-compatible client,
// including a non-AWS endpoint for S3-compatible services (MinIO, R2).
type S3Config struct {
	Bucket      string
	Region      string
	Endpoint    string
	AccessKeyID string
	SecretKey   string
}

func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("adapters: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Store{client: client, bucket: cfg.Bucket}, nil
}

func (s *S3Store) Upload(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	if err := validatePath(path); err != nil {
		return "", err
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(path),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("adapters: s3 upload: %w", err)
	}
	return path, nil
}

func (s *S3Store) Download(ctx context.Context, path string) ([]byte, error) {
	if err := validatePath(path); err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(path)})
	if err != nil {
		return nil, fmt.Errorf("adapters: s3 download: %w", err)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

func (s *S3Store) Presign(ctx context.Context, path string, ttl time.Duration) (string, error) {
	if err := validatePath(path); err != nil {
		return "", err
	}
	presignClient := s3.NewPresignClient(s.client)
	req, err := presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("adapters: s3 presign: %w", err)
	}
	return req.URL, nil
}

func (s *S3Store) Delete(ctx context.Context, path string) error {
	if err := validatePath(path); err != nil {
		return err
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(path)})
	if err != nil {
		return fmt.Errorf("adapters: s3 delete: %w", err)
	}
	return nil
}

func (s *S3Store) Exists(ctx context.Context, path string) (bool, error) {
	if err := validatePath(path); err != nil {
		return false, err
	}
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(path)})
	if err != nil {
		var notFound *s3.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, fmt.Errorf("adapters: s3 head: %w", err)
	}
	return true, nil
}

// LocalStore is the local-filesystem ObjectStore variant, writing via
// temp-file-then-rename with fsync for atomicity (§4.10).
type LocalStore struct {
	root string
}

func NewLocalStore(root string) *LocalStore {
	return &LocalStore{root: root}
}

func (l *LocalStore) resolve(path string) (string, error) {
	if err := validatePath(path); err != nil {
		return "", err
	}
	return filepath.Join(l.root, filepath.FromSlash(path)), nil
}

func (l *LocalStore) Upload(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	full, err := l.resolve(path)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("adapters: local mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("adapters: local tempfile: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("adapters: local write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("adapters: local fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("adapters: local close: %w", err)
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		return "", fmt.Errorf("adapters: local rename: %w", err)
	}
	return path, nil
}

func (l *LocalStore) Download(ctx context.Context, path string) ([]byte, error) {
	full, err := l.resolve(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, fmt.Errorf("adapters: local read: %w", err)
	}
	return data, nil
}

// Presign returns a file:// reference for the local variant; there is no
// real presigned-URL concept without a front-end HTTP server fronting
// LOCAL_STORE_DIR, which is out of this spec's scope.
func (l *LocalStore) Presign(ctx context.Context, path string, ttl time.Duration) (string, error) {
	full, err := l.resolve(path)
	if err != nil {
		return "", err
	}
	return "file://" + full, nil
}

func (l *LocalStore) Delete(ctx context.Context, path string) error {
	full, err := l.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("adapters: local delete: %w", err)
	}
	return nil
}

func (l *LocalStore) Exists(ctx context.Context, path string) (bool, error) {
	full, err := l.resolve(path)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(full)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("adapters: local stat: %w", err)
	}
	return true, nil
}
