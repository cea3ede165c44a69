package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"

	"genesis/internal/config"
)

// ErrNotConfigured 未配置存储桶时Upload返回，调用方按占位图降级
var ErrNotConfigured = errors.New("media store not configured")

const uploadTimeout = 30 * time.Second

// MediaStore 生成产物的对象存储
type MediaStore struct {
	client *storage.Client
	bucket string
	public string
	log    *logrus.Entry
}

// NewMediaStore 构造GCS存储。桶未配置时返回可用但只产出占位路径的实例。
func NewMediaStore(ctx context.Context, cfg *config.Settings) (*MediaStore, error) {
	log := logrus.WithField("component", "media_store")

	if cfg.GCSBucket == "" {
		log.Warn("GCS_BUCKET not configured, uploads disabled")
		return &MediaStore{bucket: "genesis-assets", log: log}, nil
	}

	var opts []option.ClientOption
	if host := strings.TrimSpace(os.Getenv("STORAGE_EMULATOR_HOST")); host != "" {
		opts = append(opts, option.WithEndpoint("http://"+host+"/storage/v1/"), option.WithoutAuthentication())
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}

	return &MediaStore{
		client: client,
		bucket: cfg.GCSBucket,
		public: strings.TrimRight(cfg.GCSPublicBase, "/"),
		log:    log,
	}, nil
}

// Upload 写入对象并返回可访问URL
func (s *MediaStore) Upload(ctx context.Context, data []byte, path, contentType string) (string, error) {
	if s.client == nil {
		return "", ErrNotConfigured
	}

	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	w := s.client.Bucket(s.bucket).Object(path).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("write object %s: %w", path, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("close object %s: %w", path, err)
	}

	return s.ObjectURL(path), nil
}

// ObjectURL 拼出对象的外部地址。存储未启用时保留gs://形式的逻辑地址，
// 供后续离线合成管线定位。
func (s *MediaStore) ObjectURL(path string) string {
	if s.client == nil {
		return fmt.Sprintf("gs://%s/%s", s.bucket, path)
	}
	if s.public != "" {
		return s.public + "/" + path
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", s.bucket, path)
}

// Close 释放底层客户端
func (s *MediaStore) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}
