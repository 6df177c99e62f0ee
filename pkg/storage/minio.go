// Package storage 提供了与对象存储服务（如 MinIO）交互的功能。
package storage

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"evidence-rag-go/internal/config"
)

// Presigner 为证据原文件生成限时下载链接。
type Presigner interface {
	PresignedURL(ctx context.Context, fileMD5, fileName string) (string, error)
}

type minioPresigner struct {
	client *minio.Client
	bucket string
	expiry time.Duration
}

// NewPresigner 创建 MinIO 预签名器。设置 Region 后签名不需要访问服务端查询桶位置。
func NewPresigner(cfg config.MinIOConfig) (Presigner, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化 MinIO 客户端失败: %w", err)
	}
	expiry := time.Duration(cfg.PresignExpiryMinutes) * time.Minute
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}
	return &minioPresigner{client: client, bucket: cfg.BucketName, expiry: expiry}, nil
}

// ObjectName 返回证据文件在桶中的对象路径。
func ObjectName(fileMD5, fileName string) string {
	return fmt.Sprintf("evidence/%s/%s", fileMD5, fileName)
}

func (p *minioPresigner) PresignedURL(ctx context.Context, fileMD5, fileName string) (string, error) {
	params := url.Values{}
	params.Set("response-content-disposition", fmt.Sprintf("inline; filename=%q", fileName))
	u, err := p.client.PresignedGetObject(ctx, p.bucket, ObjectName(fileMD5, fileName), p.expiry, params)
	if err != nil {
		return "", fmt.Errorf("failed to presign %s: %w", fileName, err)
	}
	return u.String(), nil
}
