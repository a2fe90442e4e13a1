package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ErrNotFound is returned by GetObject for a missing key.
var ErrNotFound = errors.New("blob: object not found")

// ErrPresignUnsupported is returned by stores that cannot hand out direct URLs.
var ErrPresignUnsupported = errors.New("blob: presigned urls not supported")

// Store keeps export files.
type Store interface {
	PutObject(ctx context.Context, key string, data []byte, contentType string) (int64, error)
	GetObject(ctx context.Context, key string) ([]byte, error)
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
	DeleteObject(ctx context.Context, key string) error
}

// S3Store implements Store on any S3 compatible object storage.
type S3Store struct {
	client        *s3.Client
	presignClient *s3.PresignClient
	bucket        string
}

// NewS3Store creates a path-style client for endpoint.
func NewS3Store(ctx context.Context, endpoint, region, bucket, accessKeyID, secretKey string) (*S3Store, error) {
	if endpoint == "" || region == "" || bucket == "" || accessKeyID == "" || secretKey == "" {
		return nil, fmt.Errorf("S3 configuration incomplete: endpoint, region, bucket, accessKeyID, and secretKey are required")
	}

	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKeyID, secretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load S3 config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})

	return &S3Store{
		client:        client,
		presignClient: s3.NewPresignClient(client),
		bucket:        bucket,
	}, nil
}

func (s *S3Store) PutObject(ctx context.Context, key string, data []byte, contentType string) (int64, error) {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to put object: %w", err)
	}
	return int64(len(data)), nil
}

// PresignGet generates a presigned GET URL
func (s *S3Store) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	res, err := s.presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("failed to presign GET: %w", err)
	}
	return res.URL, nil
}

func (s *S3Store) DeleteObject(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

func (s *S3Store) GetObject(ctx context.Context, key string) ([]byte, error) {
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object body: %w", err)
	}
	return data, nil
}

// MemoryStore keeps objects in process memory (BLOB_MODE=local).
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

func (m *MemoryStore) PutObject(ctx context.Context, key string, data []byte, contentType string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = append([]byte(nil), data...)
	return int64(len(data)), nil
}

func (m *MemoryStore) GetObject(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

// PresignGet always fails; local objects are streamed by the API itself.
func (m *MemoryStore) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return "", ErrPresignUnsupported
}

func (m *MemoryStore) DeleteObject(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

// Len returns the number of stored objects.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
