package tools

import (
	"context"
	"encoding/json"
	"errors"

	einotool "github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"genesis/internal/model"
	"genesis/internal/rooms"
)

// ScriptTool 实现eino框架的剧本生成工具，
// 供上层编排agent按需调用编剧室
type ScriptTool struct {
	writers *rooms.WritersRoom
}

// ScriptToolArgs 剧本生成请求参数
type ScriptToolArgs struct {
	HeroName      string `json:"hero_name"`      // 英雄名字
	PowerType     string `json:"power_type"`     // 能力类型
	OriginStory   string `json:"origin_story"`   // 起源故事
	EpisodeNumber int    `json:"episode_number"` // 集数
}

// ScriptToolResp 剧本生成响应
type ScriptToolResp struct {
	Script   *model.Script `json:"script"`   // 生成的剧本
	Fallback bool          `json:"fallback"` // 是否为降级剧本
	Message  string        `json:"message"`  // 提示信息
}

// NewScriptTool 创建剧本生成工具实例
func NewScriptTool(writers *rooms.WritersRoom) *ScriptTool {
	return &ScriptTool{writers: writers}
}

// Info 获取剧本生成工具信息
func (t *ScriptTool) Info(ctx context.Context) (*schema.ToolInfo, error) {
	params := map[string]*schema.ParameterInfo{
		"hero_name":      {Type: schema.String, Required: true, Desc: "英雄名字"},
		"power_type":     {Type: schema.String, Required: true, Desc: "能力类型"},
		"origin_story":   {Type: schema.String, Desc: "起源故事"},
		"episode_number": {Type: schema.Integer, Desc: "集数，默认1"},
	}
	return &schema.ToolInfo{
		Name:        "script_generate",
		Desc:        "为指定英雄生成一集6-10画面的漫画剧本",
		ParamsOneOf: schema.NewParamsOneOfByParams(params),
	}, nil
}

// InvokableRun 执行剧本生成任务
func (t *ScriptTool) InvokableRun(ctx context.Context, argumentsInJSON string, opts ...einotool.Option) (string, error) {
	var args ScriptToolArgs
	if err := json.Unmarshal([]byte(argumentsInJSON), &args); err != nil {
		return "", err
	}

	if args.HeroName == "" {
		return "", errors.New("hero_name required")
	}
	if args.PowerType == "" {
		return "", errors.New("power_type required")
	}
	if args.EpisodeNumber <= 0 {
		args.EpisodeNumber = 1
	}

	script := t.writers.GenerateScript(ctx, &model.WritersRoomInput{
		HeroName:      args.HeroName,
		PowerType:     args.PowerType,
		OriginStory:   args.OriginStory,
		EpisodeNumber: args.EpisodeNumber,
	})

	response := ScriptToolResp{
		Script:   script,
		Fallback: script.Fallback,
		Message:  "script generated",
	}
	if script.Fallback {
		response.Message = "script model unavailable, fallback script returned"
	}

	b, err := json.Marshal(response)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// 确保ScriptTool实现了einotool.InvokableTool接口
var _ einotool.InvokableTool = (*ScriptTool)(nil)
