// Package storage 提供了与对象存储服务（MinIO）交互的功能，用于 schema 快照归档。
package storage

import (
	"bytes"
	"context"

	"datapilot-go/internal/config"
	"datapilot-go/pkg/log"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioClient 是一个全局的 MinIO 客户端实例。
var MinioClient *minio.Client

// InitMinIO 初始化 MinIO 客户端并确保归档存储桶存在。
func InitMinIO(cfg config.MinIOConfig) {
	var err error

	MinioClient, err = minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		log.Fatal("初始化 MinIO 客户端失败", err)
	}

	log.Info("MinIO 客户端初始化成功")

	ctx := context.Background()
	bucketName := cfg.BucketName
	exists, err := MinioClient.BucketExists(ctx, bucketName)
	if err != nil {
		log.Fatal("检查 MinIO 存储桶失败", err)
	}

	if !exists {
		log.Infof("存储桶 '%s' 不存在，正在创建...", bucketName)
		if err := MinioClient.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{}); err != nil {
			log.Fatal("创建 MinIO 存储桶失败", err)
		}
		log.Infof("存储桶 '%s' 创建成功", bucketName)
	}
}

// ArchiveSnapshot 将序列化的 schema 快照写入对象存储，返回对象名。
// 归档用于溯源，是尽力而为的增强，失败由调用方记录后忽略。
func ArchiveSnapshot(ctx context.Context, bucketName, objectName string, snapshot []byte) error {
	_, err := MinioClient.PutObject(ctx, bucketName, objectName,
		bytes.NewReader(snapshot), int64(len(snapshot)),
		minio.PutObjectOptions{ContentType: "application/json"})
	return err
}
