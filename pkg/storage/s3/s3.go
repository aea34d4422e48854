// Package s3 implements storage.Backend on an S3-compatible object
// store using the AWS SDK v2.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/stormrose-io/filegate/internal/logger"
	"github.com/stormrose-io/filegate/pkg/storage"
)

// Config holds the dependencies for a Store.
type Config struct {
	// Client is the configured S3 client. Required.
	Client *s3.Client

	// Bucket is the per-repository container. Required. It is created
	// lazily on the first write rather than at construction time, so a
	// repository can be configured before its container exists.
	Bucket string

	// KeyPrefix is prepended to every object key. Optional.
	KeyPrefix string
}

// Store persists objects in a single S3 bucket.
//
// Not-found conditions from the SDK (NoSuchKey, NotFound, NoSuchBucket
// on reads) are mapped to storage.ErrObjectNotFound. Rename is
// emulated as get, put, delete-original; a failure between the put and
// the delete leaves both objects in place. The metadata layer is the
// tie-breaker for that window.
type Store struct {
	client    *s3.Client
	bucket    string
	keyPrefix string

	// ensureOnce guards lazy bucket creation; created is only set
	// after a successful (or already-exists) CreateBucket.
	mu      sync.Mutex
	created bool
}

// New validates the configuration and returns a Store. No network
// calls happen here; the bucket is ensured on first write.
func New(cfg Config) (*Store, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("s3 store: client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 store: bucket is required")
	}
	return &Store{
		client:    cfg.Client,
		bucket:    cfg.Bucket,
		keyPrefix: strings.TrimSuffix(cfg.KeyPrefix, "/"),
	}, nil
}

// objectKey prepends the configured prefix to a relative key.
func (s *Store) objectKey(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "..") {
		return "", fmt.Errorf("%w: %q", storage.ErrInvalidKey, key)
	}
	if s.keyPrefix == "" {
		return key, nil
	}
	return s.keyPrefix + "/" + key, nil
}

// ensureBucket creates the bucket on first use. Already-existing
// buckets are not an error.
func (s *Store) ensureBucket(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.created {
		return nil
	}

	_, err := s.client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err != nil {
		var owned *types.BucketAlreadyOwnedByYou
		var exists *types.BucketAlreadyExists
		if !errors.As(err, &owned) && !errors.As(err, &exists) {
			return fmt.Errorf("create bucket %q: %w", s.bucket, err)
		}
	} else {
		logger.Info("created bucket %q", s.bucket)
	}
	s.created = true
	return nil
}

// isNotFound reports whether err is any of the SDK's not-found shapes.
func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	var noSuchBucket *types.NoSuchBucket
	return errors.As(err, &noSuchKey) || errors.As(err, &notFound) || errors.As(err, &noSuchBucket)
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	objKey, err := s.objectKey(key)
	if err != nil {
		return false, err
	}
	_, err = s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objKey),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("head object %q: %w", key, err)
	}
	return true, nil
}

func (s *Store) Save(ctx context.Context, key string, r io.Reader, contentType string) error {
	objKey, err := s.objectKey(key)
	if err != nil {
		return err
	}
	if err := s.ensureBucket(ctx); err != nil {
		return err
	}

	// PutObject needs a seekable body for signing; buffer the stream.
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read content for %q: %w", key, err)
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objKey),
		Body:   bytes.NewReader(data),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("put object %q: %w", key, err)
	}
	return nil
}

func (s *Store) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	objKey, err := s.objectKey(key)
	if err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objKey),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("get object %q: %w", key, storage.ErrObjectNotFound)
		}
		return nil, fmt.Errorf("get object %q: %w", key, err)
	}
	return out.Body, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	objKey, err := s.objectKey(key)
	if err != nil {
		return err
	}
	// DeleteObject succeeds for absent keys, which matches the
	// idempotent delete contract.
	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objKey),
	})
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return fmt.Errorf("delete object %q: %w", key, err)
	}
	return nil
}

// Rename copies oldKey to newKey and deletes the original. The bucket
// has no native rename, so the sequence is get, put, delete; a crash
// after the put leaves both objects present.
func (s *Store) Rename(ctx context.Context, oldKey, newKey string) error {
	oldObjKey, err := s.objectKey(oldKey)
	if err != nil {
		return err
	}
	newObjKey, err := s.objectKey(newKey)
	if err != nil {
		return err
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(oldObjKey),
	})
	if err != nil {
		if isNotFound(err) {
			return fmt.Errorf("rename %q: %w", oldKey, storage.ErrObjectNotFound)
		}
		return fmt.Errorf("rename %q: %w", oldKey, err)
	}
	data, err := io.ReadAll(out.Body)
	out.Body.Close()
	if err != nil {
		return fmt.Errorf("rename %q: read: %w", oldKey, err)
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(newObjKey),
		Body:   bytes.NewReader(data),
	}
	if out.ContentType != nil {
		input.ContentType = out.ContentType
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("rename to %q: put: %w", newKey, err)
	}

	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(oldObjKey),
	}); err != nil {
		return fmt.Errorf("rename %q: delete original: %w", oldKey, err)
	}
	return nil
}
