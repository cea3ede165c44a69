package rooms

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"genesis/internal/model"
)

type fakeScriptModel struct {
	out   string
	err   error
	calls int
}

func (f *fakeScriptModel) Generate(ctx context.Context, system, user string) (string, error) {
	f.calls++
	return f.out, f.err
}

func writersInput() *model.WritersRoomInput {
	return &model.WritersRoomInput{
		HeroName:      "Nova Strike",
		PowerType:     "Lightning",
		OriginStory:   "Struck by a rogue satellite during a storm.",
		EpisodeNumber: 3,
	}
}

func TestGenerateScriptFallbackWhenModelMissing(t *testing.T) {
	w := NewWritersRoom(nil)
	script := w.GenerateScript(context.Background(), writersInput())

	require.NotNil(t, script)
	assert.True(t, script.Fallback)
	assert.NotEmpty(t, script.Title)
	assert.GreaterOrEqual(t, len(script.Panels), 6)
	for i, p := range script.Panels {
		assert.Equal(t, i+1, p.PanelNumber)
	}
}

func TestGenerateScriptFallbackReferencesHero(t *testing.T) {
	w := NewWritersRoom(nil)
	script := w.GenerateScript(context.Background(), writersInput())

	found := false
	for _, p := range script.Panels {
		if strings.Contains(p.VisualPrompt, "Nova Strike") {
			found = true
			break
		}
	}
	assert.True(t, found, "fallback panels should reference the hero by name")
}

func TestGenerateScriptFallbackOnModelError(t *testing.T) {
	m := &fakeScriptModel{err: errors.New("rate limited")}
	w := NewWritersRoom(m)
	script := w.GenerateScript(context.Background(), writersInput())

	assert.True(t, script.Fallback)
	// 模型只调用一次，失败不重试
	assert.Equal(t, 1, m.calls)
}

func TestGenerateScriptFallbackOnUnparseableOutput(t *testing.T) {
	m := &fakeScriptModel{out: "sorry, I can't produce JSON today"}
	w := NewWritersRoom(m)
	script := w.GenerateScript(context.Background(), writersInput())

	assert.True(t, script.Fallback)
	assert.Equal(t, 1, m.calls)
}

func TestGenerateScriptParsesModelOutput(t *testing.T) {
	raw, err := json.Marshal(model.Script{
		Title:    "The Storm Returns",
		Synopsis: "Nova faces the satellite's creator.",
		Panels: []model.Panel{
			{PanelNumber: 1, VisualPrompt: "rooftop at dusk", Action: "hero watches"},
			{PanelNumber: 2, VisualPrompt: "lab interior", Action: "villain schemes",
				Dialogue: []model.Dialogue{{Character: "Dr. Voss", Text: "Soon."}}},
		},
		Tags: []string{"mystery"},
	})
	require.NoError(t, err)

	w := NewWritersRoom(&fakeScriptModel{out: string(raw)})
	script := w.GenerateScript(context.Background(), writersInput())

	assert.False(t, script.Fallback)
	assert.Equal(t, "The Storm Returns", script.Title)
	require.Len(t, script.Panels, 2)
	assert.Equal(t, "Dr. Voss", script.Panels[1].Dialogue[0].Character)
}

func TestGenerateScriptStripsMarkdownFence(t *testing.T) {
	raw := "```json\n" + `{"title":"Fenced","synopsis":"s","panels":[{"panel_number":1,"visual_prompt":"x","action":"y"}]}` + "\n```"
	w := NewWritersRoom(&fakeScriptModel{out: raw})
	script := w.GenerateScript(context.Background(), writersInput())

	assert.False(t, script.Fallback)
	assert.Equal(t, "Fenced", script.Title)
}

func TestGenerateScriptRenumbersNonContiguousPanels(t *testing.T) {
	raw := `{"title":"Gaps","synopsis":"s","panels":[
		{"panel_number":2,"visual_prompt":"a","action":"x"},
		{"panel_number":5,"visual_prompt":"b","action":"y"},
		{"panel_number":9,"visual_prompt":"c","action":"z"}]}`
	w := NewWritersRoom(&fakeScriptModel{out: raw})
	script := w.GenerateScript(context.Background(), writersInput())

	require.Len(t, script.Panels, 3)
	for i, p := range script.Panels {
		assert.Equal(t, i+1, p.PanelNumber)
	}
}

func TestGenerateScriptDefaultTitle(t *testing.T) {
	raw := `{"synopsis":"s","panels":[{"panel_number":1,"visual_prompt":"x","action":"y"}]}`
	w := NewWritersRoom(&fakeScriptModel{out: raw})
	script := w.GenerateScript(context.Background(), writersInput())

	assert.Equal(t, "Episode 3", script.Title)
}
