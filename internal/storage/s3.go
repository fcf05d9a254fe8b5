package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Config points the store at an S3-compatible endpoint, MinIO included.
type S3Config struct {
	Endpoint   string
	Access     string
	Secret     string
	Bucket     string
	UseSSL     bool
	PathPrefix string
}

// S3Store keeps blobs as objects in one bucket.
type S3Store struct {
	minio      *minio.Client
	bucket     string
	pathPrefix string
}

func NewS3Store(cfg S3Config) (*S3Store, error) {
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.Access, cfg.Secret, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("bucket is required")
	}

	return &S3Store{
		minio:      mc,
		bucket:     cfg.Bucket,
		pathPrefix: strings.Trim(cfg.PathPrefix, "/"),
	}, nil
}

func (s *S3Store) Bucket() string {
	return s.bucket
}

// EnsureBucket creates the bucket when missing. A lost creation race against
// another instance counts as success.
func (s *S3Store) EnsureBucket(ctx context.Context) error {
	exists, err := s.minio.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket existence: %w", err)
	}
	if exists {
		return nil
	}

	if err := s.minio.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		exists, checkErr := s.minio.BucketExists(ctx, s.bucket)
		if checkErr == nil && exists {
			return nil
		}
		return fmt.Errorf("create bucket %s: %w", s.bucket, err)
	}

	return nil
}

func (s *S3Store) Get(ctx context.Context, key string) (Blob, error) {
	objectKey := s.objectKey(key)
	obj, err := s.minio.GetObject(ctx, s.bucket, objectKey, minio.GetObjectOptions{})
	if err != nil {
		return Blob{}, fmt.Errorf("get object %s: %w", objectKey, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if isMissingObject(err) {
			return Blob{}, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return Blob{}, fmt.Errorf("read object %s: %w", objectKey, err)
	}

	blob := Blob{Data: data}
	if info, err := obj.Stat(); err == nil {
		blob.ContentType = info.ContentType
	}
	return blob, nil
}

func (s *S3Store) Put(ctx context.Context, key string, blob Blob) error {
	objectKey := s.objectKey(key)
	_, err := s.minio.PutObject(
		ctx,
		s.bucket,
		objectKey,
		bytes.NewReader(blob.Data),
		int64(len(blob.Data)),
		minio.PutObjectOptions{ContentType: blob.ContentType},
	)
	if err != nil {
		return fmt.Errorf("put object %s: %w", objectKey, err)
	}
	return nil
}

func (s *S3Store) Delete(ctx context.Context, key string) error {
	objectKey := s.objectKey(key)
	if err := s.minio.RemoveObject(ctx, s.bucket, objectKey, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object %s: %w", objectKey, err)
	}
	return nil
}

func (s *S3Store) objectKey(key string) string {
	return path.Join(s.pathPrefix, strings.Trim(key, "/"))
}

func isMissingObject(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.Code == "NoSuchObject"
}
