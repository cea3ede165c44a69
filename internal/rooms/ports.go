package rooms

import "context"

// ScriptModel 叙事模型端口。实现为volc.ChatModel，测试里用fake替换。
type ScriptModel interface {
	Generate(ctx context.Context, system, user string) (string, error)
}

// ImageModel 画面生成端口
type ImageModel interface {
	GenerateImage(ctx context.Context, prompt, negativePrompt, aspectRatio string) ([]byte, error)
}

// VideoModel 视频生成端口
type VideoModel interface {
	GenerateVideo(ctx context.Context, prompt, referenceImageURL string) (string, error)
}

// MediaStore 媒体存储端口
type MediaStore interface {
	Upload(ctx context.Context, data []byte, path, contentType string) (string, error)
	ObjectURL(path string) string
}
