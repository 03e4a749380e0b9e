package oss

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"

	"github.com/qs3c/guild_server/config"
)

type Client struct {
	client     *oss.Client
	bucket     *oss.Bucket
	bucketName string
	cdnDomain  string
}

func NewClient(cfg *config.OSSConfig) (*Client, error) {
	client, err := oss.New(cfg.Endpoint, cfg.AccessKeyID, cfg.AccessKeySecret)
	if err != nil {
		return nil, fmt.Errorf("failed to create OSS client: %w", err)
	}

	bucket, err := client.Bucket(cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to get bucket: %w", err)
	}

	return &Client{
		client:     client,
		bucket:     bucket,
		bucketName: cfg.BucketName,
		cdnDomain:  cfg.CDNDomain,
	}, nil
}

// UploadAvatar 上传用户头像，返回访问 URL
func (c *Client) UploadAvatar(userID int64, data []byte, ext string) (string, error) {
	objectKey := AvatarKey(userID, time.Now(), ext)

	err := c.bucket.PutObject(objectKey, bytes.NewReader(data), oss.ContentType(ContentTypeOf(ext)))
	if err != nil {
		return "", fmt.Errorf("failed to upload avatar: %w", err)
	}

	return c.URLOf(objectKey), nil
}

// URLOf 获取文件访问 URL
func (c *Client) URLOf(objectKey string) string {
	return objectURL(c.cdnDomain, c.bucketName, c.client.Config.Endpoint, objectKey)
}

// AvatarKey 头像对象路径
func AvatarKey(userID int64, at time.Time, ext string) string {
	return fmt.Sprintf("avatars/%d/%d%s", userID, at.Unix(), strings.ToLower(ext))
}

func objectURL(cdnDomain, bucketName, endpoint, objectKey string) string {
	if cdnDomain != "" {
		return fmt.Sprintf("https://%s/%s", cdnDomain, objectKey)
	}
	endpoint = strings.TrimPrefix(strings.TrimPrefix(endpoint, "https://"), "http://")
	return fmt.Sprintf("https://%s.%s/%s", bucketName, endpoint, objectKey)
}

// ContentTypeOf 根据扩展名获取 Content-Type，不支持的扩展名返回空串
func ContentTypeOf(ext string) string {
	switch strings.ToLower(ext) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	default:
		return ""
	}
}
