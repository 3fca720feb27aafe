package dht

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// BlobStoreConfig configures the S3-compatible endpoint a BlobStore talks
// to, following the teacher's minio-over-S3-API connection shape.
type BlobStoreConfig struct {
	HostEndpointURL string
	Region          string
	Username        string
	Password        string
}

// Connect builds an s3.Client from config.
func Connect(config BlobStoreConfig) *s3.Client {
	return s3.NewFromConfig(aws.Config{Region: config.Region}, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(config.HostEndpointURL)
		o.Credentials = credentials.NewStaticCredentialsProvider(config.Username, config.Password, "")
	})
}

// BlobStore offloads value bytes too large to keep inline in a LockResponse
// or near-cache entry to an S3-compatible bucket, keyed by lock version so
// each version's payload is addressable independently.
type BlobStore struct {
	client     *s3.Client
	uploader   *manager.Uploader
	downloader *manager.Downloader
	bucket     string
}

// NewBlobStore wraps client for bucket, using the aws-sdk-go-v2 S3 transfer
// manager for chunked multi-part upload/download of large values.
func NewBlobStore(client *s3.Client, bucket string) *BlobStore {
	return &BlobStore{
		client:     client,
		uploader:   manager.NewUploader(client),
		downloader: manager.NewDownloader(client),
		bucket:     bucket,
	}
}

// CreateBucket provisions the backing bucket if it does not already exist.
func (b *BlobStore) CreateBucket(ctx context.Context) error {
	_, err := b.client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(b.bucket),
	})
	if err != nil {
		return fmt.Errorf("dht: couldn't create bucket %s: %w", b.bucket, err)
	}
	return nil
}

// Put uploads value under key (typically "<key>/<lock_version>").
func (b *BlobStore) Put(ctx context.Context, key string, value []byte) error {
	_, err := b.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(value),
	})
	if err != nil {
		return fmt.Errorf("dht: upload %s failed: %w", key, err)
	}
	return nil
}

// Get downloads the value stored under key.
func (b *BlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	buf := manager.NewWriteAtBuffer(nil)
	_, err := b.downloader.Download(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("dht: download %s failed: %w", key, err)
	}
	return buf.Bytes(), nil
}

// Delete removes the object stored under key.
func (b *BlobStore) Delete(ctx context.Context, key string) error {
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("dht: delete %s failed: %w", key, err)
	}
	return nil
}
