package volc

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"genesis/internal/config"
)

// ErrNotConfigured 未配置API Key时返回，调用方走降级路径而不是崩溃
var ErrNotConfigured = errors.New("ark api key not configured")

// 视频任务轮询参数
const (
	videoPollInterval = 3 * time.Second
	videoPollDeadline = 4 * time.Minute
)

// mockPixelPNG 1x1 PNG像素，mock模式下充当生成结果
const mockPixelPNG = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAQAAAC1HAwCAAAAC0lEQVR4nGNgYAAAAAMAASsJTYQAAAAASUVORK5CYII="

// ArkClient 火山方舟图片/视频生成客户端
type ArkClient struct {
	BaseURL    string
	APIKey     string
	ImageModel string
	VideoModel string
	HTTPClient *http.Client
	Mock       bool
}

func NewArkClient(cfg *config.Settings) *ArkClient {
	return &ArkClient{
		BaseURL:    cfg.ArkBaseURL,
		APIKey:     cfg.ArkAPIKey,
		ImageModel: cfg.ArkImageModel,
		VideoModel: cfg.ArkVideoModel,
		HTTPClient: &http.Client{Timeout: 60 * time.Second},
		Mock:       cfg.ArkMock,
	}
}

// GenerateImage 生成单张画面并返回图片字节
func (c *ArkClient) GenerateImage(ctx context.Context, prompt, negativePrompt, aspectRatio string) ([]byte, error) {
	if c.Mock {
		return base64.StdEncoding.DecodeString(mockPixelPNG)
	}
	if c.APIKey == "" {
		return nil, ErrNotConfigured
	}

	body := map[string]any{
		"model":           c.ImageModel,
		"prompt":          prompt,
		"size":            sizeForAspect(aspectRatio),
		"response_format": "b64_json",
	}
	if negativePrompt != "" {
		body["negative_prompt"] = negativePrompt
	}

	var resp struct {
		Data []struct {
			B64 string `json:"b64_json"`
			URL string `json:"url"`
		} `json:"data"`
	}
	if err := c.postJSON(ctx, "/api/v3/images/generations", body, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 || resp.Data[0].B64 == "" {
		return nil, errors.New("no image data returned")
	}
	return base64.StdEncoding.DecodeString(resp.Data[0].B64)
}

// GenerateVideo 创建视频生成任务并轮询到完成，返回视频URL
func (c *ArkClient) GenerateVideo(ctx context.Context, prompt, referenceImageURL string) (string, error) {
	if c.Mock {
		return "https://example.com/mock_video.mp4", nil
	}
	if c.APIKey == "" {
		return "", ErrNotConfigured
	}

	taskID, err := c.createVideoTask(ctx, prompt, referenceImageURL)
	if err != nil {
		return "", fmt.Errorf("create video task: %w", err)
	}

	deadline := time.Now().Add(videoPollDeadline)
	for time.Now().Before(deadline) {
		status, url, err := c.getVideoTask(ctx, taskID)
		if err != nil {
			return "", fmt.Errorf("get video task: %w", err)
		}
		switch status {
		case "succeeded", "success", "completed":
			if url == "" {
				return "", errors.New("video succeeded but url empty")
			}
			return url, nil
		case "failed", "error":
			return "", errors.New("video generation failed")
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(videoPollInterval):
		}
	}
	return "", errors.New("video generation timeout")
}

func (c *ArkClient) createVideoTask(ctx context.Context, prompt, referenceImageURL string) (string, error) {
	content := []map[string]any{{"type": "text", "text": prompt}}
	if referenceImageURL != "" {
		content = append(content, map[string]any{
			"type":      "image_url",
			"image_url": map[string]any{"url": referenceImageURL, "role": "reference_image"},
		})
	}

	body := map[string]any{
		"model":   c.VideoModel,
		"content": content,
	}
	var resp map[string]any
	if err := c.postJSON(ctx, "/api/v3/contents/generations/tasks", body, &resp); err != nil {
		return "", err
	}
	if id, ok := resp["task_id"].(string); ok && id != "" {
		return id, nil
	}
	if id, ok := resp["id"].(string); ok && id != "" {
		return id, nil
	}
	return "", errors.New("no task id in response")
}

func (c *ArkClient) getVideoTask(ctx context.Context, taskID string) (string, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/api/v3/contents/generations/tasks?task_id="+taskID, nil)
	if err != nil {
		return "", "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", "application/json")
	res, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", "", err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return "", "", fmt.Errorf("http %d", res.StatusCode)
	}
	var resp map[string]any
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		return "", "", err
	}
	status := getString(resp, "status")
	url := getString(resp, "video_url")
	if url == "" {
		if out, ok := resp["output"].(map[string]any); ok {
			url = getString(out, "video_url")
		}
	}
	return status, url, nil
}

func (c *ArkClient) postJSON(ctx context.Context, path string, body any, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, strings.NewReader(string(b)))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", "application/json")
	res, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	bodyBytes, err := io.ReadAll(res.Body)
	if err != nil {
		return err
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return fmt.Errorf("http %d: %s", res.StatusCode, string(bodyBytes))
	}
	return json.Unmarshal(bodyBytes, out)
}

func sizeForAspect(aspectRatio string) string {
	switch aspectRatio {
	case "3:4":
		return "1536x2048"
	case "16:9":
		return "1920x1080"
	default:
		return "1024x1024"
	}
}

func getString(m map[string]any, k string) string {
	if v, ok := m[k]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
