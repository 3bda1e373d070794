// Package storage wraps object storage for uploaded study material. The
// rest of the system only sees opaque object keys and URLs.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"study-assistant-backend/config"

	"github.com/aliyun/alibabacloud-oss-go-sdk-v2/oss"
	"github.com/aliyun/alibabacloud-oss-go-sdk-v2/oss/credentials"
)

const presignExpiry = 15 * time.Minute

type Client struct {
	client *oss.Client
	bucket string
	region string
}

func NewClient(cfg config.OSSConfig) *Client {
	ossCfg := &oss.Config{
		Region: oss.Ptr(cfg.Region),
		CredentialsProvider: credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.AccessKeySecret,
		),
	}
	return &Client{
		client: oss.NewClient(ossCfg),
		bucket: cfg.BucketName,
		region: cfg.Region,
	}
}

// Put uploads the blob under the given key and returns its public URL.
func (c *Client) Put(ctx context.Context, data []byte, key, contentType string) (string, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := c.client.PutObject(ctx, &oss.PutObjectRequest{
		Bucket:      oss.Ptr(c.bucket),
		Key:         oss.Ptr(key),
		Body:        bytes.NewReader(data),
		ContentType: oss.Ptr(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to put object %s: %w", key, err)
	}
	return fmt.Sprintf("https://%s.oss-%s.aliyuncs.com/%s", c.bucket, c.region, key), nil
}

// Get downloads the whole object.
func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	result, err := c.client.GetObject(ctx, &oss.GetObjectRequest{
		Bucket: oss.Ptr(c.bucket),
		Key:    oss.Ptr(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get object %s: %w", key, err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object %s: %w", key, err)
	}
	return data, nil
}

// PresignGet returns a time-limited download URL for buckets that are not
// publicly readable.
func (c *Client) PresignGet(ctx context.Context, key string) (string, error) {
	result, err := c.client.Presign(ctx, &oss.GetObjectRequest{
		Bucket: oss.Ptr(c.bucket),
		Key:    oss.Ptr(key),
	}, oss.PresignExpires(presignExpiry))
	if err != nil {
		return "", fmt.Errorf("failed to presign object %s: %w", key, err)
	}
	return result.URL, nil
}

// Delete removes the object; deleting a missing key is not an error.
func (c *Client) Delete(ctx context.Context, key string) error {
	_, err := c.client.DeleteObject(ctx, &oss.DeleteObjectRequest{
		Bucket: oss.Ptr(c.bucket),
		Key:    oss.Ptr(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object %s: %w", key, err)
	}
	return nil
}
