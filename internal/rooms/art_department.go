package rooms

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"genesis/internal/model"
	"genesis/internal/store"
)

const (
	// 同时在途的生图请求上限，控制外部配额
	panelBatchSize = 4
	// 单个画面最多尝试次数
	maxImageAttempts = 3
	// 两次尝试之间的间隔
	imageRetryDelay = time.Second
	// 漫画画面宽高比
	panelAspectRatio = "3:4"
)

// ArtDepartment 美术部：剧本画面 -> 生成图并落存储。
// 单个画面失败只产生占位图，永不让整个阶段报错。
type ArtDepartment struct {
	model ImageModel
	store MediaStore
	log   *logrus.Entry
}

// NewArtDepartment model可以为nil（未配置凭证），所有画面直接占位
func NewArtDepartment(m ImageModel, store MediaStore) *ArtDepartment {
	return &ArtDepartment{
		model: m,
		store: store,
		log:   logrus.WithField("room", "art"),
	}
}

// GenerateImages 为剧本每个画面生成图片。
// 返回值覆盖每个输入画面恰好一次：成功或占位，占位的编号进failed列表。
func (d *ArtDepartment) GenerateImages(ctx context.Context, in *model.ArtDepartmentInput) ([]model.GeneratedPanel, []int) {
	results := make([]model.GeneratedPanel, len(in.Panels))

	// 固定大小的子批次串行推进，批内并发
	for start := 0; start < len(in.Panels); start += panelBatchSize {
		end := start + panelBatchSize
		if end > len(in.Panels) {
			end = len(in.Panels)
		}

		var g errgroup.Group
		for i := start; i < end; i++ {
			idx := i
			g.Go(func() error {
				results[idx] = d.generatePanel(ctx, in, in.Panels[idx])
				return nil
			})
		}
		_ = g.Wait()
	}

	var failed []int
	for _, p := range results {
		if p.SafetyScore == 0 {
			failed = append(failed, p.PanelNumber)
		}
	}
	sort.Ints(failed)
	return results, failed
}

func (d *ArtDepartment) generatePanel(ctx context.Context, in *model.ArtDepartmentInput, panel model.Panel) model.GeneratedPanel {
	prompt := buildImagePrompt(panel, in.HeroName, in.StylePreset, in.CharacterSheet)

	if d.model == nil {
		d.log.Warnf("image model not configured, placeholder for panel %d", panel.PanelNumber)
		return placeholderPanel(panel.PanelNumber, prompt)
	}

	attempts := 0
	for attempts < maxImageAttempts {
		data, err := d.model.GenerateImage(ctx, prompt, negativePrompt, panelAspectRatio)
		if err == nil {
			url, upErr := d.uploadPanel(ctx, in, panel.PanelNumber, data)
			if upErr == nil {
				return model.GeneratedPanel{
					PanelNumber:      panel.PanelNumber,
					ImageURL:         url,
					GenerationPrompt: prompt,
					SafetyScore:      1.0,
					RetryCount:       attempts,
				}
			}
			// 存储未配置属于部署形态而非瞬时故障，重试无意义
			if errors.Is(upErr, store.ErrNotConfigured) {
				d.log.Warnf("media store not configured, placeholder for panel %d", panel.PanelNumber)
				return placeholderPanel(panel.PanelNumber, prompt)
			}
			err = upErr
		}

		attempts++
		d.log.Warnf("panel %d attempt %d failed: %v", panel.PanelNumber, attempts, err)
		if attempts < maxImageAttempts {
			select {
			case <-ctx.Done():
				return placeholderPanel(panel.PanelNumber, prompt)
			case <-time.After(imageRetryDelay):
			}
		}
	}

	d.log.Errorf("panel %d failed after %d attempts", panel.PanelNumber, maxImageAttempts)
	return placeholderPanel(panel.PanelNumber, prompt)
}

func (d *ArtDepartment) uploadPanel(ctx context.Context, in *model.ArtDepartmentInput, panelNumber int, data []byte) (string, error) {
	path := fmt.Sprintf("heroes/%s/episodes/%d/panel_%d_%s.png",
		in.HeroID, in.EpisodeNumber, panelNumber, shortID())
	return d.store.Upload(ctx, data, path, "image/png")
}

// placeholderPanel 哨兵画面：不可解析的URL协议+零安全分，供后续审核识别
func placeholderPanel(panelNumber int, prompt string) model.GeneratedPanel {
	return model.GeneratedPanel{
		PanelNumber:      panelNumber,
		ImageURL:         fmt.Sprintf("placeholder://panel_%d", panelNumber),
		GenerationPrompt: prompt,
		SafetyScore:      0.0,
		RetryCount:       maxImageAttempts,
	}
}

// GenerateCharacterSheet 生成角色参考图，存在episode 0下
func (d *ArtDepartment) GenerateCharacterSheet(ctx context.Context, hero *model.Hero, visualDesc, costumeDesc string) *model.CharacterSheet {
	sheet := &model.CharacterSheet{
		HeroID:             hero.ID,
		HeroName:           hero.HeroName,
		VisualDescription:  visualDesc,
		CostumeDescription: costumeDesc,
	}
	if d.model == nil {
		d.log.Warn("image model not configured for character sheet")
		return sheet
	}

	prompt := fmt.Sprintf("Character reference sheet for comic book hero. "+
		"Character name: %s. Appearance: %s. Costume: %s. Powers: %s. "+
		"Show character in T-pose with front view, clean background, full body visible, %s",
		hero.HeroName, visualDesc, costumeDesc, hero.PowerType, stylePresets["comic_book"])

	data, err := d.model.GenerateImage(ctx, prompt, negativePrompt, "1:1")
	if err != nil {
		d.log.Warnf("character sheet generation failed for %s: %v", hero.ID, err)
		return sheet
	}

	path := fmt.Sprintf("heroes/%s/episodes/0/panel_0_%s.png", hero.ID, shortID())
	url, err := d.store.Upload(ctx, data, path, "image/png")
	if err != nil {
		d.log.Warnf("character sheet upload failed for %s: %v", hero.ID, err)
		return sheet
	}
	sheet.ReferenceImages = []string{url}
	return sheet
}

// shortID 8位随机标识，避免并发写同名对象
func shortID() string {
	return uuid.NewString()[:8]
}
