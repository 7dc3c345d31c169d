package store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	log "github.com/sirupsen/logrus"
)

var objectNames = map[string]string{
	KindCredentials: "credentials.json",
	KindOAuthState:  "oauth_state.json",
}

// ObjectStoreConfig captures configuration for the S3-compatible backend.
type ObjectStoreConfig struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	Region    string
	Prefix    string
	UseSSL    bool
	PathStyle bool
}

// ObjectStore keeps each session's documents under <prefix>/<namespace>/ in one bucket.
type ObjectStore struct {
	client *minio.Client
	cfg    ObjectStoreConfig

	bucketOnce sync.Once
	bucketErr  error
}

var _ Provider = (*ObjectStore)(nil)

// NewObjectStore initializes an object storage client.
func NewObjectStore(cfg ObjectStoreConfig) (*ObjectStore, error) {
	cfg.Endpoint = strings.TrimSpace(cfg.Endpoint)
	cfg.Bucket = strings.TrimSpace(cfg.Bucket)
	cfg.AccessKey = strings.TrimSpace(cfg.AccessKey)
	cfg.SecretKey = strings.TrimSpace(cfg.SecretKey)
	cfg.Prefix = strings.Trim(cfg.Prefix, "/")

	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("object store: endpoint is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("object store: bucket is required")
	}
	if cfg.AccessKey == "" {
		return nil, fmt.Errorf("object store: access key is required")
	}
	if cfg.SecretKey == "" {
		return nil, fmt.Errorf("object store: secret key is required")
	}

	options := &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	}
	if cfg.PathStyle {
		options.BucketLookup = minio.BucketLookupPath
	}

	client, err := minio.New(cfg.Endpoint, options)
	if err != nil {
		return nil, fmt.Errorf("object store: create client: %w", err)
	}
	return &ObjectStore{client: client, cfg: cfg}, nil
}

// For returns the store scoped to namespace.
func (s *ObjectStore) For(_ context.Context, namespace string) (CredentialStore, error) {
	ns, err := NormalizeNamespace(namespace)
	if err != nil {
		return nil, err
	}
	return &keyedStore{backend: s, namespace: ns}, nil
}

func (s *ObjectStore) load(ctx context.Context, namespace, kind string) ([]byte, error) {
	key := s.objectKey(namespace, kind)
	obj, err := s.client.GetObject(ctx, s.cfg.Bucket, key, minio.GetObjectOptions{})
	if err != nil {
		if isObjectNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("object store: get object %s: %w", key, err)
	}
	defer func() {
		if errClose := obj.Close(); errClose != nil {
			log.Errorf("object store: failed to close object %s: %v", key, errClose)
		}
	}()
	data, err := io.ReadAll(obj)
	if err != nil {
		if isObjectNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("object store: read object %s: %w", key, err)
	}
	return data, nil
}

func (s *ObjectStore) save(ctx context.Context, namespace, kind string, data []byte) error {
	if err := s.ensureBucket(ctx); err != nil {
		return err
	}
	key := s.objectKey(namespace, kind)
	_, err := s.client.PutObject(ctx, s.cfg.Bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("object store: put object %s: %w", key, err)
	}
	return nil
}

func (s *ObjectStore) remove(ctx context.Context, namespace, kind string) error {
	key := s.objectKey(namespace, kind)
	if err := s.client.RemoveObject(ctx, s.cfg.Bucket, key, minio.RemoveObjectOptions{}); err != nil {
		if isObjectNotFound(err) {
			return nil
		}
		return fmt.Errorf("object store: delete object %s: %w", key, err)
	}
	return nil
}

func (s *ObjectStore) ensureBucket(ctx context.Context) error {
	s.bucketOnce.Do(func() {
		exists, err := s.client.BucketExists(ctx, s.cfg.Bucket)
		if err != nil {
			s.bucketErr = fmt.Errorf("object store: check bucket: %w", err)
			return
		}
		if exists {
			return
		}
		if err = s.client.MakeBucket(ctx, s.cfg.Bucket, minio.MakeBucketOptions{Region: s.cfg.Region}); err != nil {
			s.bucketErr = fmt.Errorf("object store: create bucket: %w", err)
		}
	})
	return s.bucketErr
}

func (s *ObjectStore) objectKey(namespace, kind string) string {
	key := namespace + "/" + objectNames[kind]
	if s.cfg.Prefix == "" {
		return key
	}
	return s.cfg.Prefix + "/" + key
}

func isObjectNotFound(err error) bool {
	if err == nil {
		return false
	}
	resp := minio.ToErrorResponse(err)
	if resp.StatusCode == http.StatusNotFound {
		return true
	}
	switch resp.Code {
	case "NoSuchKey", "NotFound", "NoSuchBucket":
		return true
	}
	return false
}
