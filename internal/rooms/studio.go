package rooms

import (
	"context"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"genesis/internal/model"
)

const (
	// 普通画面的视差动画时长（秒）
	parallaxDuration = 5.0
	// 高潮画面的生成式视频时长（秒）
	generativeDuration = 10.0
	// 台词时长按字符数折算
	dialogueSecondsPerChar = 0.05
	// 成片体积估算系数（MB/秒）
	megabytesPerSecond = 2.0

	videoResolution = "1080p"
	videoFormat     = "mp4"
)

// Studio 制片厂：画面序列 -> 分段视频 + 音轨 + 成片。
// 普通画面走视差动画，高潮画面走生成式视频；
// 单段失败不阻断合成，只要还有成功片段就出成片。
type Studio struct {
	model VideoModel
	store MediaStore
	log   *logrus.Entry
}

// NewStudio model可以为nil（未配置凭证），高潮片段退化为视差同等的占位成片
func NewStudio(m VideoModel, store MediaStore) *Studio {
	return &Studio{
		model: m,
		store: store,
		log:   logrus.WithField("room", "studio"),
	}
}

// ComposeVideo 合成单集视频，永不返回错误；全部片段失败时Status为failed
func (s *Studio) ComposeVideo(ctx context.Context, in *model.StudioInput) *model.StudioResult {
	result := &model.StudioResult{
		HeroID:        in.HeroID,
		EpisodeNumber: in.EpisodeNumber,
		Status:        model.StatusCompleted,
	}

	climax := make(map[int]bool, len(in.ClimaxPanelNumbers))
	if in.IncludeGenerativeHighlight {
		for _, n := range in.ClimaxPanelNumbers {
			climax[n] = true
		}
	}

	var parallaxPanels, generativePanels []model.GeneratedPanel
	for _, p := range in.GeneratedPanels {
		if climax[p.PanelNumber] {
			generativePanels = append(generativePanels, p)
		} else {
			parallaxPanels = append(parallaxPanels, p)
		}
	}

	segments := make([]model.PanelVideoSegment, 0, len(in.GeneratedPanels))

	// 视差片段纯本地合成，可以全部并发
	parallaxOut := make([]model.PanelVideoSegment, len(parallaxPanels))
	var g errgroup.Group
	for i, p := range parallaxPanels {
		idx, panel := i, p
		g.Go(func() error {
			parallaxOut[idx] = s.parallaxSegment(in, panel)
			return nil
		})
	}
	_ = g.Wait()
	segments = append(segments, parallaxOut...)

	// 生成式片段调用外部模型，串行执行避免配额冲突
	for _, p := range generativePanels {
		segments = append(segments, s.generativeSegment(ctx, in, p))
	}

	sort.Slice(segments, func(i, j int) bool {
		return segments[i].PanelNumber < segments[j].PanelNumber
	})
	result.Segments = segments

	result.AudioTracks = s.buildAudioTracks(in, segments)

	completed := 0
	total := 0.0
	for _, seg := range segments {
		total += seg.DurationSeconds
		if seg.Status == model.StatusCompleted {
			completed++
		}
	}
	if completed == 0 {
		result.Status = model.StatusFailed
		result.ErrorMessage = "no video segments could be generated"
		return result
	}

	finalPath := fmt.Sprintf("heroes/%s/episodes/%d/final_%s.mp4",
		in.HeroID, in.EpisodeNumber, shortID())
	result.Video = &model.VideoComposition{
		VideoURL:        s.store.ObjectURL(finalPath),
		DurationSeconds: total,
		Resolution:      videoResolution,
		Format:          videoFormat,
		FileSizeMB:      total * megabytesPerSecond,
	}
	return result
}

// parallaxSegment 静态画面加相机推拉的片段，本地渲染不会失败
func (s *Studio) parallaxSegment(in *model.StudioInput, panel model.GeneratedPanel) model.PanelVideoSegment {
	path := fmt.Sprintf("heroes/%s/episodes/%d/parallax_panel_%d_%s.mp4",
		in.HeroID, in.EpisodeNumber, panel.PanelNumber, shortID())
	return model.PanelVideoSegment{
		PanelNumber:     panel.PanelNumber,
		SegmentType:     model.SegmentParallax,
		DurationSeconds: parallaxDuration,
		VideoURL:        s.store.ObjectURL(path),
		Status:          model.StatusCompleted,
	}
}

func (s *Studio) generativeSegment(ctx context.Context, in *model.StudioInput, panel model.GeneratedPanel) model.PanelVideoSegment {
	seg := model.PanelVideoSegment{
		PanelNumber:     panel.PanelNumber,
		SegmentType:     model.SegmentGenerative,
		DurationSeconds: generativeDuration,
		Status:          model.StatusCompleted,
	}

	if s.model == nil {
		path := fmt.Sprintf("heroes/%s/episodes/%d/generative_panel_%d_%s.mp4",
			in.HeroID, in.EpisodeNumber, panel.PanelNumber, shortID())
		seg.VideoURL = s.store.ObjectURL(path)
		return seg
	}

	prompt := buildHighlightPrompt(panelByNumber(in.Script, panel.PanelNumber))
	url, err := s.model.GenerateVideo(ctx, prompt, panel.ImageURL)
	if err != nil {
		s.log.Warnf("generative segment failed for panel %d: %v", panel.PanelNumber, err)
		seg.Status = model.StatusFailed
		return seg
	}
	seg.VideoURL = url
	return seg
}

// buildAudioTracks 按片段时间轴排布台词音轨，外加一条全程背景音乐
func (s *Studio) buildAudioTracks(in *model.StudioInput, segments []model.PanelVideoSegment) []model.AudioTrack {
	panels := make(map[int]model.Panel, len(in.Script.Panels))
	for _, p := range in.Script.Panels {
		panels[p.PanelNumber] = p
	}

	// 同一画面的多句台词都从该画面片段的起点开始
	var tracks []model.AudioTrack
	elapsed := 0.0
	for _, seg := range segments {
		for _, d := range panels[seg.PanelNumber].Dialogue {
			path := fmt.Sprintf("heroes/%s/episodes/%d/audio/dialogue_%s.mp3",
				in.HeroID, in.EpisodeNumber, shortID())
			tracks = append(tracks, model.AudioTrack{
				TrackType: model.TrackDialogue,
				AudioURL:  s.store.ObjectURL(path),
				StartTime: elapsed,
				Duration:  float64(len([]rune(d.Text))) * dialogueSecondsPerChar,
			})
		}
		elapsed += seg.DurationSeconds
	}

	musicPath := fmt.Sprintf("heroes/%s/episodes/%d/audio/music_%s.mp3",
		in.HeroID, in.EpisodeNumber, shortID())
	tracks = append(tracks, model.AudioTrack{
		TrackType: model.TrackMusic,
		AudioURL:  s.store.ObjectURL(musicPath),
		StartTime: 0,
		Duration:  elapsed,
	})
	return tracks
}

func panelByNumber(script *model.Script, number int) model.Panel {
	for _, p := range script.Panels {
		if p.PanelNumber == number {
			return p
		}
	}
	return model.Panel{PanelNumber: number}
}
