package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/your-org/coachwatch/internal/config"
)

type MinIOStore struct {
	client *minio.Client
	bucket string
}

func NewMinIOStore(cfg config.MinIOConfig) (*MinIOStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &MinIOStore{
		client: client,
		bucket: cfg.Bucket,
	}, nil
}

// EnsureBucket creates the bucket if it doesn't exist.
func (s *MinIOStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}
	}
	return nil
}

// putObject uploads data to MinIO under the given key.
func (s *MinIOStore) putObject(ctx context.Context, key string, data []byte, contentType string) error {
	reader := bytes.NewReader(data)
	_, err := s.client.PutObject(ctx, s.bucket, key, reader, int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}

// getObject retrieves data from MinIO by key.
func (s *MinIOStore) getObject(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", key, err)
	}
	return data, nil
}

// listObjects returns all object keys under the given prefix, in the order MinIO returns them.
func (s *MinIOStore) listObjects(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list objects %s: %w", prefix, obj.Err)
		}
		keys = append(keys, obj.Key)
	}
	return keys, nil
}

// deleteObjects removes multiple objects from MinIO in a single batch request.
func (s *MinIOStore) deleteObjects(ctx context.Context, keys []string) error {
	objectsCh := make(chan minio.ObjectInfo, len(keys))
	for _, key := range keys {
		objectsCh <- minio.ObjectInfo{Key: key}
	}
	close(objectsCh)
	for result := range s.client.RemoveObjects(ctx, s.bucket, objectsCh, minio.RemoveObjectsOptions{}) {
		if result.Err != nil {
			return fmt.Errorf("delete object %s: %w", result.ObjectName, result.Err)
		}
	}
	return nil
}

// Ping checks MinIO connectivity.
func (s *MinIOStore) Ping(ctx context.Context) error {
	_, err := s.client.BucketExists(ctx, s.bucket)
	return err
}

func enrollmentPrefix(identityID string) string {
	return path.Join("enrollments", identityID) + "/"
}

// PutEnrollmentImage stores the source image an embedding was taken from and
// returns its key.
func (s *MinIOStore) PutEnrollmentImage(ctx context.Context, identityID string, data []byte, contentType string) (string, error) {
	key := enrollmentPrefix(identityID) + time.Now().UTC().Format("20060102T150405.000000000") + imageExt(contentType)
	if err := s.putObject(ctx, key, data, contentType); err != nil {
		return "", err
	}
	return key, nil
}

// DeleteEnrollmentImages removes every stored image of an identity.
func (s *MinIOStore) DeleteEnrollmentImages(ctx context.Context, identityID string) error {
	keys, err := s.listObjects(ctx, enrollmentPrefix(identityID))
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return s.deleteObjects(ctx, keys)
}

// PutRosterBackup writes an exported roster under exports/ and returns its key.
func (s *MinIOStore) PutRosterBackup(ctx context.Context, data []byte) (string, error) {
	key := "exports/roster_" + time.Now().UTC().Format("20060102T150405Z") + ".json"
	if err := s.putObject(ctx, key, data, "application/json"); err != nil {
		return "", err
	}
	return key, nil
}

// GetRosterBackup reads a backup written by PutRosterBackup.
func (s *MinIOStore) GetRosterBackup(ctx context.Context, key string) ([]byte, error) {
	if !isBackupKey(key) {
		return nil, fmt.Errorf("not a roster backup: %s", key)
	}
	return s.getObject(ctx, key)
}

func imageExt(contentType string) string {
	switch contentType {
	case "image/png":
		return ".png"
	case "image/bmp":
		return ".bmp"
	default:
		return ".jpg"
	}
}

func isBackupKey(key string) bool {
	return path.Dir(key) == "exports" && path.Ext(key) == ".json"
}
