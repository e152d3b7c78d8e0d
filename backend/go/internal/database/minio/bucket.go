package minio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
)

// Bucket 封装了对单个存储桶的对象读写，案件文档、打包文件和导出文件都存放在这里。
type Bucket struct {
	client *minio.Client
	name   string
}

// NewBucket 创建 Bucket。
func NewBucket(c *minio.Client, name string) *Bucket {
	return &Bucket{client: c, name: name}
}

// Ensure 确保存储桶存在，不存在则创建。
func (b *Bucket) Ensure(ctx context.Context) error {
	exists, err := b.client.BucketExists(ctx, b.name)
	if err != nil {
		return fmt.Errorf("检查存储桶 '%s' 失败: %w", b.name, err)
	}
	if exists {
		return nil
	}
	if err := b.client.MakeBucket(ctx, b.name, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("创建存储桶 '%s' 失败: %w", b.name, err)
	}
	return nil
}

// Put 上传一个对象。
func (b *Bucket) Put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := b.client.PutObject(ctx, b.name, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("上传对象 '%s' 失败: %w", key, err)
	}
	return nil
}

// Get 读取一个对象的全部内容。
func (b *Bucket) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := b.client.GetObject(ctx, b.name, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("读取对象 '%s' 失败: %w", key, err)
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("读取对象 '%s' 内容失败: %w", key, err)
	}
	return data, nil
}

// Delete 删除一个对象，对象不存在不视为错误。
func (b *Bucket) Delete(ctx context.Context, key string) error {
	err := b.client.RemoveObject(ctx, b.name, key, minio.RemoveObjectOptions{})
	if err != nil && minio.ToErrorResponse(err).Code != "NoSuchKey" {
		return fmt.Errorf("删除对象 '%s' 失败: %w", key, err)
	}
	return nil
}

// PresignGet 生成一个有时效的下载链接，downloadName 非空时浏览器会以该文件名保存。
func (b *Bucket) PresignGet(ctx context.Context, key, downloadName string, ttl time.Duration) (string, error) {
	params := url.Values{}
	if downloadName != "" {
		params.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", downloadName))
	}
	u, err := b.client.PresignedGetObject(ctx, b.name, key, ttl, params)
	if err != nil {
		return "", fmt.Errorf("生成下载链接失败: %w", err)
	}
	return u.String(), nil
}
