package rooms

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"genesis/internal/model"
)

type fakeVideoModel struct {
	url string
	err error
}

func (f *fakeVideoModel) GenerateVideo(ctx context.Context, prompt, referenceImageURL string) (string, error) {
	return f.url, f.err
}

func studioInput(panelCount int, climax []int) *model.StudioInput {
	panels := make([]model.Panel, panelCount)
	generated := make([]model.GeneratedPanel, panelCount)
	for i := range panels {
		n := i + 1
		panels[i] = model.Panel{
			PanelNumber:  n,
			VisualPrompt: fmt.Sprintf("scene %d", n),
			Action:       "hero acts",
		}
		generated[i] = model.GeneratedPanel{
			PanelNumber: n,
			ImageURL:    fmt.Sprintf("https://cdn.test/panel_%d.png", n),
			SafetyScore: 1.0,
		}
	}
	return &model.StudioInput{
		HeroID:                     "hero-1",
		HeroName:                   "Nova Strike",
		EpisodeNumber:              1,
		Script:                     &model.Script{Title: "T", Panels: panels},
		GeneratedPanels:            generated,
		ClimaxPanelNumbers:         climax,
		IncludeGenerativeHighlight: true,
	}
}

func TestComposeVideoAllParallax(t *testing.T) {
	s := NewStudio(nil, &fakeMediaStore{})
	out := s.ComposeVideo(context.Background(), studioInput(8, nil))

	require.Equal(t, model.StatusCompleted, out.Status)
	require.Len(t, out.Segments, 8)
	for _, seg := range out.Segments {
		assert.Equal(t, model.SegmentParallax, seg.SegmentType)
		assert.Equal(t, 5.0, seg.DurationSeconds)
		assert.Equal(t, model.StatusCompleted, seg.Status)
	}
	require.NotNil(t, out.Video)
	assert.InDelta(t, 40.0, out.Video.DurationSeconds, 1e-6)
	assert.InDelta(t, 80.0, out.Video.FileSizeMB, 1e-6)
	assert.Equal(t, "1080p", out.Video.Resolution)
	assert.Equal(t, "mp4", out.Video.Format)
}

func TestComposeVideoClimaxTreatment(t *testing.T) {
	s := NewStudio(&fakeVideoModel{url: "https://cdn.test/highlight.mp4"}, &fakeMediaStore{})
	out := s.ComposeVideo(context.Background(), studioInput(10, []int{9, 10}))

	require.Len(t, out.Segments, 10)
	for i, seg := range out.Segments {
		// 片段按画面编号升序排列，每个画面恰好一个片段
		assert.Equal(t, i+1, seg.PanelNumber)
		if seg.PanelNumber >= 9 {
			assert.Equal(t, model.SegmentGenerative, seg.SegmentType)
			assert.Equal(t, 10.0, seg.DurationSeconds)
		} else {
			assert.Equal(t, model.SegmentParallax, seg.SegmentType)
			assert.Equal(t, 5.0, seg.DurationSeconds)
		}
	}
	require.NotNil(t, out.Video)
	assert.InDelta(t, 60.0, out.Video.DurationSeconds, 1e-6)
}

func TestComposeVideoIgnoresClimaxWhenHighlightDisabled(t *testing.T) {
	in := studioInput(4, []int{3, 4})
	in.IncludeGenerativeHighlight = false

	s := NewStudio(&fakeVideoModel{url: "unused"}, &fakeMediaStore{})
	out := s.ComposeVideo(context.Background(), in)

	for _, seg := range out.Segments {
		assert.Equal(t, model.SegmentParallax, seg.SegmentType)
	}
}

func TestComposeVideoDurationAdditivity(t *testing.T) {
	// 生成式片段失败仍占用时长，总时长是所有片段之和
	s := NewStudio(&fakeVideoModel{err: errors.New("model down")}, &fakeMediaStore{})
	out := s.ComposeVideo(context.Background(), studioInput(6, []int{5, 6}))

	require.Equal(t, model.StatusCompleted, out.Status)
	sum := 0.0
	failedCount := 0
	for _, seg := range out.Segments {
		sum += seg.DurationSeconds
		if seg.Status == model.StatusFailed {
			failedCount++
		}
	}
	assert.Equal(t, 2, failedCount)
	require.NotNil(t, out.Video)
	assert.True(t, math.Abs(out.Video.DurationSeconds-sum) < 1e-6)
	assert.InDelta(t, 40.0, out.Video.DurationSeconds, 1e-6)
}

func TestComposeVideoDialogueTiming(t *testing.T) {
	in := studioInput(3, []int{3})
	in.Script.Panels[0].Dialogue = []model.Dialogue{
		{Character: "Nova", Text: "Ready."},                // 6字符 -> 0.3s
		{Character: "Echo", Text: "Go!"},                   // 3字符 -> 0.15s
	}
	in.Script.Panels[2].Dialogue = []model.Dialogue{
		{Character: "Nova", Text: "This ends now!"}, // 14字符 -> 0.7s
	}

	s := NewStudio(nil, &fakeMediaStore{})
	out := s.ComposeVideo(context.Background(), in)

	var dialogue []model.AudioTrack
	var music []model.AudioTrack
	for _, tr := range out.AudioTracks {
		switch tr.TrackType {
		case model.TrackDialogue:
			dialogue = append(dialogue, tr)
		case model.TrackMusic:
			music = append(music, tr)
		}
	}

	require.Len(t, dialogue, 3)
	// 画面1的两句台词都从0开始
	assert.InDelta(t, 0.0, dialogue[0].StartTime, 1e-6)
	assert.InDelta(t, 0.30, dialogue[0].Duration, 1e-6)
	assert.InDelta(t, 0.0, dialogue[1].StartTime, 1e-6)
	assert.InDelta(t, 0.15, dialogue[1].Duration, 1e-6)
	// 画面3的台词从前两个片段时长之和开始
	assert.InDelta(t, 10.0, dialogue[2].StartTime, 1e-6)
	assert.InDelta(t, 0.70, dialogue[2].Duration, 1e-6)

	// 恰好一条背景音乐，覆盖全片
	require.Len(t, music, 1)
	assert.InDelta(t, 0.0, music[0].StartTime, 1e-6)
	assert.InDelta(t, 20.0, music[0].Duration, 1e-6)
}

func TestComposeVideoNoSegmentsFails(t *testing.T) {
	in := studioInput(0, nil)
	s := NewStudio(nil, &fakeMediaStore{})
	out := s.ComposeVideo(context.Background(), in)

	assert.Equal(t, model.StatusFailed, out.Status)
	assert.NotEmpty(t, out.ErrorMessage)
	assert.Nil(t, out.Video)
}

func TestComposeVideoNilVideoModelStillCompletes(t *testing.T) {
	s := NewStudio(nil, &fakeMediaStore{})
	out := s.ComposeVideo(context.Background(), studioInput(4, []int{4}))

	require.Equal(t, model.StatusCompleted, out.Status)
	last := out.Segments[len(out.Segments)-1]
	assert.Equal(t, model.SegmentGenerative, last.SegmentType)
	assert.Equal(t, model.StatusCompleted, last.Status)
	assert.NotEmpty(t, last.VideoURL)
}
