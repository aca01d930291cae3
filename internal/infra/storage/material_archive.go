package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Options configure the object store holding study material.
type Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Secure    bool
}

// MaterialArchive keeps the study material a quiz was generated from.
type MaterialArchive struct {
	client *minio.Client
	bucket string
}

func NewMaterialArchive(opts Options) (*MaterialArchive, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &MaterialArchive{client: client, bucket: opts.Bucket}, nil
}

// EnsureBucket creates the bucket if it does not exist yet.
func (a *MaterialArchive) EnsureBucket(ctx context.Context) error {
	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err := a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("make bucket: %w", err)
	}
	return nil
}

func (a *MaterialArchive) Store(ctx context.Context, quizID, content string) error {
	_, err := a.client.PutObject(ctx, a.bucket, ObjectKey(quizID), strings.NewReader(content), int64(len(content)),
		minio.PutObjectOptions{ContentType: "text/plain; charset=utf-8"})
	if err != nil {
		return fmt.Errorf("put material: %w", err)
	}
	return nil
}

// Load returns the archived material of a quiz.
func (a *MaterialArchive) Load(ctx context.Context, quizID string) (string, error) {
	obj, err := a.client.GetObject(ctx, a.bucket, ObjectKey(quizID), minio.GetObjectOptions{})
	if err != nil {
		return "", fmt.Errorf("get material: %w", err)
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		return "", fmt.Errorf("read material: %w", err)
	}
	return string(data), nil
}

func ObjectKey(quizID string) string {
	return "materials/" + quizID + ".txt"
}
