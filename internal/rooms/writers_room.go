package rooms

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"genesis/internal/model"
)

// WritersRoom 编剧室：英雄档案+上下文 -> 结构化剧本。
// 模型只调用一次，任何失败都落到确定性的降级剧本，
// 因此GenerateScript永远返回可用输出。
type WritersRoom struct {
	model ScriptModel
	log   *logrus.Entry
}

// NewWritersRoom model可以为nil（未配置凭证），此时直接走降级剧本
func NewWritersRoom(m ScriptModel) *WritersRoom {
	return &WritersRoom{
		model: m,
		log:   logrus.WithField("room", "writers"),
	}
}

// GenerateScript 生成单集剧本，永不返回错误
func (w *WritersRoom) GenerateScript(ctx context.Context, in *model.WritersRoomInput) *model.Script {
	prompt := buildEpisodePrompt(in)

	if w.model == nil {
		w.log.Warn("script model not configured, returning fallback script")
		return fallbackScript(in)
	}

	raw, err := w.model.Generate(ctx, scriptSystemPrompt, prompt+"\n"+scriptJSONInstruction)
	if err != nil {
		w.log.Warnf("script generation failed for %s: %v", in.HeroName, err)
		return fallbackScript(in)
	}

	script, err := parseScript(raw)
	if err != nil {
		// 结构性失败和模型缺失同等对待，不重试
		w.log.Warnf("script parse failed for %s: %v", in.HeroName, err)
		return fallbackScript(in)
	}

	if script.Title == "" {
		script.Title = fmt.Sprintf("Episode %d", in.EpisodeNumber)
	}
	return script
}

func parseScript(raw string) (*model.Script, error) {
	text := strings.TrimSpace(raw)
	// 容忍模型包一层markdown代码块
	if strings.HasPrefix(text, "```") {
		lines := strings.Split(text, "\n")
		if len(lines) >= 2 {
			text = strings.Join(lines[1:len(lines)-1], "\n")
		}
	}

	var script model.Script
	if err := json.Unmarshal([]byte(text), &script); err != nil {
		return nil, fmt.Errorf("unmarshal script: %w", err)
	}
	if len(script.Panels) == 0 {
		return nil, fmt.Errorf("script has no panels")
	}

	// 边界校验：编号必须从1开始连续，不满足就按顺序重排
	for i := range script.Panels {
		if script.Panels[i].PanelNumber != i+1 {
			for j := range script.Panels {
				script.Panels[j].PanelNumber = j + 1
			}
			break
		}
	}
	return &script, nil
}

// fallbackScript 确定性降级剧本：8个画面，引用英雄名字和能力
func fallbackScript(in *model.WritersRoomInput) *model.Script {
	name := in.HeroName
	power := strings.ToLower(in.PowerType)

	return &model.Script{
		Title:    fmt.Sprintf("Episode %d: A New Challenge", in.EpisodeNumber),
		Synopsis: fmt.Sprintf("%s faces an unexpected challenge in their journey as a hero.", name),
		Panels: []model.Panel{
			{
				PanelNumber:  1,
				VisualPrompt: fmt.Sprintf("Wide establishing shot of a futuristic city at golden hour. %s stands on a tall building rooftop, cape flowing in the wind. The city skyline stretches into the distance with flying vehicles.", name),
				Caption:      "In a world where heroes are born every day, one stands ready to make their mark...",
				Action:       fmt.Sprintf("%s surveys the city from above", name),
				Dialogue:     []model.Dialogue{},
			},
			{
				PanelNumber:  2,
				VisualPrompt: fmt.Sprintf("Medium shot of %s's face in profile, determined expression. City lights reflect in their eyes. Wind-swept hair adds dynamic movement.", name),
				Action:       "Hero's resolve strengthens",
				Dialogue:     []model.Dialogue{{Character: name, Text: "The city needs me."}},
			},
			{
				PanelNumber:  3,
				VisualPrompt: "Street level view of a chaotic scene. Citizens running in panic. Smoke rises from a nearby building. Emergency lights flash.",
				Caption:      "But tonight, something is different...",
				Action:       "Chaos erupts in the streets below",
				Dialogue:     []model.Dialogue{},
			},
			{
				PanelNumber:  4,
				VisualPrompt: fmt.Sprintf("Dynamic action shot of %s leaping from the rooftop, body in a heroic diving pose. Motion blur emphasizes speed.", name),
				Action:       "Hero launches into action",
				Dialogue:     []model.Dialogue{{Character: name, Text: "Time to be a hero!"}},
			},
			{
				PanelNumber:  5,
				VisualPrompt: fmt.Sprintf("Ground level shot looking up as %s lands dramatically in a three-point stance. Dust and debris scatter from the impact.", name),
				Caption:      "With powers that set them apart from ordinary citizens...",
				Action:       "Hero lands dramatically",
				Dialogue:     []model.Dialogue{},
			},
			{
				PanelNumber:  6,
				VisualPrompt: fmt.Sprintf("Close-up of %s's hands as their %s powers activate. Energy or effects appropriate to their power type surround them.", name, power),
				Action:       "Powers manifest",
				Dialogue:     []model.Dialogue{},
			},
			{
				PanelNumber:  7,
				VisualPrompt: "Wide shot of the hero confronting the source of danger. Dramatic lighting with the threat silhouetted against flames or destruction.",
				Caption:      "Every hero must face their first true test.",
				Action:       "Hero confronts the threat",
				Dialogue:     []model.Dialogue{{Character: name, Text: "This ends now!"}},
			},
			{
				PanelNumber:  8,
				VisualPrompt: fmt.Sprintf("Triumphant shot of %s standing amid cleared rubble, helping a grateful citizen to their feet. Sun breaking through clouds in background.", name),
				Caption:      "And in that moment, a legend begins.",
				Action:       "Hero saves the day",
				Dialogue: []model.Dialogue{
					{Character: "Citizen", Text: "Thank you! You saved us!"},
					{Character: name, Text: "Just doing what's right."},
				},
			},
		},
		Tags:     []string{"action", "origin", "heroic"},
		Fallback: true,
	}
}
