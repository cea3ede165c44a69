package volc

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"genesis/internal/config"
)

// ChatModel 基于eino编排的叙事模型调用封装
type ChatModel struct {
	runner compose.Runnable[[]*schema.Message, *schema.Message]
}

// NewChatModel 构造chat模型。未配置API Key时返回错误，
// 上层持有nil模型并走降级剧本路径。
func NewChatModel(ctx context.Context, cfg *config.Settings) (*ChatModel, error) {
	if cfg.ArkAPIKey == "" {
		return nil, ErrNotConfigured
	}

	cm, err := ark.NewChatModel(ctx, &ark.ChatModelConfig{
		APIKey:     cfg.ArkAPIKey,
		Model:      cfg.ArkChatModel,
		HTTPClient: &http.Client{Timeout: 120 * time.Second},
	})
	if err != nil {
		return nil, fmt.Errorf("create chat model: %w", err)
	}

	graph := compose.NewGraph[[]*schema.Message, *schema.Message]()
	if err := graph.AddChatModelNode("model", cm); err != nil {
		return nil, fmt.Errorf("add chat model node: %w", err)
	}
	if err := graph.AddEdge(compose.START, "model"); err != nil {
		return nil, fmt.Errorf("add start edge: %w", err)
	}
	if err := graph.AddEdge("model", compose.END); err != nil {
		return nil, fmt.Errorf("add end edge: %w", err)
	}
	runner, err := graph.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile graph: %w", err)
	}

	return &ChatModel{runner: runner}, nil
}

// Generate 以system+user消息调用模型，返回原始文本
func (m *ChatModel) Generate(ctx context.Context, system, user string) (string, error) {
	messages := []*schema.Message{
		schema.SystemMessage(system),
		schema.UserMessage(user),
	}
	res, err := m.runner.Invoke(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("graph invocation failed: %w", err)
	}
	return res.Content, nil
}
