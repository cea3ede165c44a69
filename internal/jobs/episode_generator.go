package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"genesis/internal/model"
)

// 批次大小未指定时的默认值
const defaultBatchSize = 50

// 每集取回的上下文规模
const (
	recentSummaryLimit = 5
	canonEventLimit    = 5
	climaxPanelCount   = 2
)

// Repository 单集生成所需的图库读写
type Repository interface {
	ListHeroesNeedingEpisodes(ctx context.Context) ([]model.Hero, error)
	GetHero(ctx context.Context, heroID string) (*model.Hero, error)
	GetRecentSummaries(ctx context.Context, heroID string, limit int) (string, error)
	GetActiveCanonEvents(ctx context.Context, limit int) ([]model.CanonEvent, error)
	SaveEpisode(ctx context.Context, ep *model.Episode) error
}

// Notifier 单集就绪通知，尽力而为
type Notifier interface {
	EpisodeReady(ctx context.Context, heroID, episodeID, title string) bool
}

// ScriptStage 编剧阶段
type ScriptStage interface {
	GenerateScript(ctx context.Context, in *model.WritersRoomInput) *model.Script
}

// ImageStage 生图阶段
type ImageStage interface {
	GenerateImages(ctx context.Context, in *model.ArtDepartmentInput) ([]model.GeneratedPanel, []int)
}

// VideoStage 视频编排阶段
type VideoStage interface {
	ComposeVideo(ctx context.Context, in *model.StudioInput) *model.StudioResult
}

// EpisodeGenerator 每日单集生产任务：遍历待生成英雄，
// 依次走编剧->美术->制片厂三个阶段并持久化结果。
// 单个英雄失败不影响同批次其他英雄。
type EpisodeGenerator struct {
	repo     Repository
	writers  ScriptStage
	art      ImageStage
	studio   VideoStage
	notifier Notifier

	stylePreset string
	log         *logrus.Entry
}

func NewEpisodeGenerator(repo Repository, writers ScriptStage, art ImageStage, studio VideoStage, notifier Notifier, stylePreset string) *EpisodeGenerator {
	if stylePreset == "" {
		stylePreset = "comic_book"
	}
	return &EpisodeGenerator{
		repo:        repo,
		writers:     writers,
		art:         art,
		studio:      studio,
		notifier:    notifier,
		stylePreset: stylePreset,
		log:         logrus.WithField("job", "episode_generator"),
	}
}

// RunBatch 为所有待生成英雄各产出一集。
// 英雄按batchSize分批，批内并发、批间串行，控制同时在途的外部调用。
func (g *EpisodeGenerator) RunBatch(ctx context.Context, batchSize int) *model.RunStats {
	stats := &model.RunStats{StartedAt: time.Now().UTC()}
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	heroes, err := g.repo.ListHeroesNeedingEpisodes(ctx)
	if err != nil {
		g.log.Errorf("list heroes failed: %v", err)
		stats.Errors = append(stats.Errors, model.RunError{Message: err.Error()})
		finishStats(stats)
		return stats
	}
	g.log.Infof("generating episodes for %d heroes", len(heroes))

	var mu sync.Mutex
	for start := 0; start < len(heroes); start += batchSize {
		end := start + batchSize
		if end > len(heroes) {
			end = len(heroes)
		}

		var wg errgroup.Group
		for i := start; i < end; i++ {
			hero := heroes[i]
			wg.Go(func() error {
				ep, err := g.safeGenerate(ctx, &hero)

				mu.Lock()
				defer mu.Unlock()
				stats.HeroesProcessed++
				if err != nil {
					stats.Failures++
					stats.Errors = append(stats.Errors, model.RunError{
						HeroID:  hero.ID,
						Message: err.Error(),
					})
					return nil
				}
				stats.EpisodesGenerated++
				g.log.Infof("episode %d generated for hero %s (%s)", ep.EpisodeNumber, hero.ID, hero.HeroName)
				return nil
			})
		}
		_ = wg.Wait()
	}

	finishStats(stats)
	g.log.Infof("batch done: %d processed, %d generated, %d failed in %.1fs",
		stats.HeroesProcessed, stats.EpisodesGenerated, stats.Failures, stats.DurationSeconds)
	return stats
}

// RunForHero 为指定英雄生成一集，英雄不存在时透传repo.ErrHeroNotFound
func (g *EpisodeGenerator) RunForHero(ctx context.Context, heroID string) (*model.Episode, error) {
	hero, err := g.repo.GetHero(ctx, heroID)
	if err != nil {
		return nil, err
	}
	return g.generateEpisode(ctx, hero)
}

// safeGenerate 吸收单个英雄任务里的panic，保护批次其余部分
func (g *EpisodeGenerator) safeGenerate(ctx context.Context, hero *model.Hero) (ep *model.Episode, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic generating episode for hero %s: %v", hero.ID, r)
			g.log.Error(err)
		}
	}()
	return g.generateEpisode(ctx, hero)
}

func (g *EpisodeGenerator) generateEpisode(ctx context.Context, hero *model.Hero) (*model.Episode, error) {
	episodeNumber := hero.EpisodeCount + 1

	summary, _ := g.repo.GetRecentSummaries(ctx, hero.ID, recentSummaryLimit)
	canonEvents, _ := g.repo.GetActiveCanonEvents(ctx, canonEventLimit)

	script := g.writers.GenerateScript(ctx, &model.WritersRoomInput{
		HeroName:                hero.HeroName,
		PowerType:               hero.PowerType,
		OriginStory:             hero.OriginStory,
		CurrentLocation:         hero.CurrentLocation,
		EpisodeNumber:           episodeNumber,
		PreviousEpisodesSummary: summary,
		ActiveCanonEvents:       canonEvents,
		ContentSettings:         hero.ContentSettings,
	})

	panels, failedPanels := g.art.GenerateImages(ctx, &model.ArtDepartmentInput{
		HeroID:         hero.ID,
		HeroName:       hero.HeroName,
		EpisodeNumber:  episodeNumber,
		CharacterSheet: hero.CharacterSheet,
		Panels:         script.Panels,
		StylePreset:    g.stylePreset,
	})
	if len(failedPanels) > 0 {
		g.log.Warnf("hero %s episode %d: %d panels degraded to placeholders",
			hero.ID, episodeNumber, len(failedPanels))
	}

	// 画面URL回填进剧本，成片和阅读端共用同一份数据
	imageByPanel := make(map[int]string, len(panels))
	for _, p := range panels {
		imageByPanel[p.PanelNumber] = p.ImageURL
	}
	for i := range script.Panels {
		script.Panels[i].ImageURL = imageByPanel[script.Panels[i].PanelNumber]
	}

	studioOut := g.studio.ComposeVideo(ctx, &model.StudioInput{
		HeroID:                     hero.ID,
		HeroName:                   hero.HeroName,
		EpisodeNumber:              episodeNumber,
		Script:                     script,
		GeneratedPanels:            panels,
		ClimaxPanelNumbers:         climaxPanels(script.Panels),
		IncludeGenerativeHighlight: true,
	})
	if studioOut.Status == model.StatusFailed {
		g.log.Warnf("hero %s episode %d: video composition failed: %s",
			hero.ID, episodeNumber, studioOut.ErrorMessage)
	}

	ep := &model.Episode{
		ID:              uuid.NewString(),
		HeroID:          hero.ID,
		EpisodeNumber:   episodeNumber,
		Title:           script.Title,
		Synopsis:        script.Synopsis,
		Script:          script,
		Panels:          panels,
		Video:           studioOut.Video,
		Tags:            script.Tags,
		CanonReferences: script.CanonReferences,
		GeneratedAt:     time.Now().UTC(),
	}

	if err := g.repo.SaveEpisode(ctx, ep); err != nil {
		return nil, err
	}

	if g.notifier != nil {
		// 通知不在关键路径上，失败只记日志
		go func(heroID, episodeID, title string) {
			notifyCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if !g.notifier.EpisodeReady(notifyCtx, heroID, episodeID, title) {
				g.log.Warnf("episode ready notification dropped for hero %s", heroID)
			}
		}(hero.ID, ep.ID, ep.Title)
	}
	return ep, nil
}

// climaxPanels 取剧本最后两个画面作为高潮段落
func climaxPanels(panels []model.Panel) []int {
	n := len(panels)
	if n == 0 {
		return nil
	}
	start := n - climaxPanelCount
	if start < 0 {
		start = 0
	}
	out := make([]int, 0, climaxPanelCount)
	for _, p := range panels[start:] {
		out = append(out, p.PanelNumber)
	}
	return out
}

func finishStats(stats *model.RunStats) {
	stats.CompletedAt = time.Now().UTC()
	stats.DurationSeconds = stats.CompletedAt.Sub(stats.StartedAt).Seconds()
}
