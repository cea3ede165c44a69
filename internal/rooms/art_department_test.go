package rooms

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"genesis/internal/model"
	"genesis/internal/store"
)

// fakeImageModel 按提示词计数，支持前N次失败
type fakeImageModel struct {
	mu           sync.Mutex
	failPerCall  int               // 每个提示词前几次调用失败
	failForever  map[string]bool   // 含该子串的提示词永远失败
	callsByPanel map[string]int
}

func (f *fakeImageModel) GenerateImage(ctx context.Context, prompt, negativePrompt, aspectRatio string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.callsByPanel == nil {
		f.callsByPanel = map[string]int{}
	}
	f.callsByPanel[prompt]++

	for marker := range f.failForever {
		if strings.Contains(prompt, marker) {
			return nil, errors.New("model refused")
		}
	}
	if f.callsByPanel[prompt] <= f.failPerCall {
		return nil, errors.New("transient error")
	}
	return []byte{0x89, 0x50, 0x4e, 0x47}, nil
}

// fakeMediaStore 记录上传路径
type fakeMediaStore struct {
	mu    sync.Mutex
	paths []string
	err   error
}

func (f *fakeMediaStore) Upload(ctx context.Context, data []byte, path, contentType string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.mu.Lock()
	f.paths = append(f.paths, path)
	f.mu.Unlock()
	return "https://cdn.test/" + path, nil
}

func (f *fakeMediaStore) ObjectURL(path string) string {
	return "https://cdn.test/" + path
}

func artInput(panelCount int) *model.ArtDepartmentInput {
	panels := make([]model.Panel, panelCount)
	for i := range panels {
		panels[i] = model.Panel{
			PanelNumber:  i + 1,
			VisualPrompt: fmt.Sprintf("scene number %d unfolds", i+1),
			Action:       "hero acts",
		}
	}
	return &model.ArtDepartmentInput{
		HeroID:        "hero-1",
		HeroName:      "Nova Strike",
		EpisodeNumber: 7,
		Panels:        panels,
		StylePreset:   "comic_book",
	}
}

func TestGenerateImagesNilModelAllPlaceholders(t *testing.T) {
	d := NewArtDepartment(nil, &fakeMediaStore{})
	panels, failed := d.GenerateImages(context.Background(), artInput(8))

	require.Len(t, panels, 8)
	assert.Len(t, failed, 8)
	for _, p := range panels {
		assert.Equal(t, fmt.Sprintf("placeholder://panel_%d", p.PanelNumber), p.ImageURL)
		assert.Zero(t, p.SafetyScore)
		assert.Equal(t, 3, p.RetryCount)
	}
}

func TestGenerateImagesCoversEveryPanelExactlyOnce(t *testing.T) {
	m := &fakeImageModel{failForever: map[string]bool{"scene number 3 unfolds": true}}
	st := &fakeMediaStore{}
	d := NewArtDepartment(m, st)

	panels, failed := d.GenerateImages(context.Background(), artInput(6))

	require.Len(t, panels, 6)
	seen := map[int]int{}
	for _, p := range panels {
		seen[p.PanelNumber]++
	}
	for n := 1; n <= 6; n++ {
		assert.Equal(t, 1, seen[n], "panel %d should appear exactly once", n)
	}

	// 只有3号画面失败，其余不受影响
	assert.Equal(t, []int{3}, failed)
	for _, p := range panels {
		if p.PanelNumber == 3 {
			assert.Zero(t, p.SafetyScore)
			assert.Equal(t, 3, p.RetryCount)
			continue
		}
		assert.Equal(t, 1.0, p.SafetyScore)
		assert.Contains(t, p.ImageURL, "https://cdn.test/heroes/hero-1/episodes/7/panel_")
	}
}

func TestGenerateImagesRetriesTransientFailure(t *testing.T) {
	m := &fakeImageModel{failPerCall: 1}
	d := NewArtDepartment(m, &fakeMediaStore{})

	panels, failed := d.GenerateImages(context.Background(), artInput(1))

	require.Len(t, panels, 1)
	assert.Empty(t, failed)
	assert.Equal(t, 1.0, panels[0].SafetyScore)
	assert.Equal(t, 1, panels[0].RetryCount)
}

func TestGenerateImagesStoreNotConfigured(t *testing.T) {
	m := &fakeImageModel{}
	d := NewArtDepartment(m, &fakeMediaStore{err: store.ErrNotConfigured})

	panels, failed := d.GenerateImages(context.Background(), artInput(2))

	require.Len(t, panels, 2)
	assert.Len(t, failed, 2)
	for _, p := range panels {
		assert.True(t, strings.HasPrefix(p.ImageURL, "placeholder://"))
	}
}

func TestGenerateImagesUploadPathsUnique(t *testing.T) {
	m := &fakeImageModel{}
	st := &fakeMediaStore{}
	d := NewArtDepartment(m, st)

	_, failed := d.GenerateImages(context.Background(), artInput(8))
	require.Empty(t, failed)

	unique := map[string]bool{}
	for _, p := range st.paths {
		unique[p] = true
	}
	assert.Len(t, unique, 8)
}
