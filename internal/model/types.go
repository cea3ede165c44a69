package model

import "time"

// ContentSettings 内容安全设置
type ContentSettings struct {
	ViolenceLevel  int  `json:"violence_level"`  // 暴力等级 1=轻微 2=中等 3=动作密集
	LanguageFilter bool `json:"language_filter"` // 是否开启语言过滤
}

// CharacterSheet 角色设定表，保证多集画面中角色一致
type CharacterSheet struct {
	HeroID             string   `json:"hero_id"`
	HeroName           string   `json:"hero_name"`
	VisualDescription  string   `json:"visual_description"`  // 外貌描述
	CostumeDescription string   `json:"costume_description"` // 服装描述
	ColorPalette       []string `json:"color_palette,omitempty"`
	ReferenceImages    []string `json:"reference_images,omitempty"` // 参考图URL列表
}

// Hero 用户的英雄角色
type Hero struct {
	ID              string          `json:"id"`
	HeroName        string          `json:"hero_name"`
	PowerType       string          `json:"power_type"`
	OriginStory     string          `json:"origin_story"`
	CurrentLocation string          `json:"current_location"`
	EpisodeCount    int             `json:"episode_count"`
	Status          string          `json:"status"`
	ContentSettings ContentSettings `json:"content_settings"`
	CharacterSheet  *CharacterSheet `json:"character_sheet,omitempty"`
	LastEpisodeDate *time.Time      `json:"last_episode_date,omitempty"`
}

// CanonEvent 世界观正史事件
type CanonEvent struct {
	Title             string  `json:"title"`
	Description       string  `json:"description"`
	SignificanceScore float64 `json:"significance_score"`
}

// Dialogue 画面内一句台词
type Dialogue struct {
	Character string `json:"character"`
	Text      string `json:"text"`
}

// Panel 剧本中的一个叙事画面
type Panel struct {
	PanelNumber  int        `json:"panel_number"` // 从1开始连续编号
	VisualPrompt string     `json:"visual_prompt"`
	Action       string     `json:"action"`
	Dialogue     []Dialogue `json:"dialogue"`
	Caption      string     `json:"caption,omitempty"`
	Mood         string     `json:"mood,omitempty"`
	TimeOfDay    string     `json:"time_of_day,omitempty"`
	Location     string     `json:"location,omitempty"`
	ImageURL     string     `json:"image_url,omitempty"` // 编排阶段回填的画面URL
}

// Script 编剧室输出的完整剧本
type Script struct {
	Title           string   `json:"title"`
	Synopsis        string   `json:"synopsis"`
	Panels          []Panel  `json:"panels"`
	CanonReferences []string `json:"canon_references,omitempty"`
	Tags            []string `json:"tags,omitempty"`
	Fallback        bool     `json:"fallback,omitempty"` // 模型不可用时的降级剧本标记
}

// GeneratedPanel 美术部输出的单个画面结果
type GeneratedPanel struct {
	PanelNumber      int     `json:"panel_number"`
	ImageURL         string  `json:"image_url"` // 占位时为 placeholder:// 协议
	GenerationPrompt string  `json:"generation_prompt"`
	SafetyScore      float64 `json:"safety_score"` // [0,1]，占位图固定为0
	RetryCount       int     `json:"retry_count"`
}

// 视频片段处理方式
const (
	SegmentParallax   = "parallax"
	SegmentGenerative = "generative"
)

// 片段与合成状态
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// PanelVideoSegment 每个画面对应的一段视频
type PanelVideoSegment struct {
	PanelNumber     int     `json:"panel_number"`
	SegmentType     string  `json:"segment_type"` // parallax 或 generative
	DurationSeconds float64 `json:"duration_seconds"`
	VideoURL        string  `json:"video_url,omitempty"`
	Status          string  `json:"status"`
}

// 音轨类型
const (
	TrackDialogue = "dialogue"
	TrackMusic    = "music"
)

// AudioTrack 带时间轴的音频片段
type AudioTrack struct {
	TrackType string  `json:"track_type"` // dialogue 或 music
	AudioURL  string  `json:"audio_url"`
	StartTime float64 `json:"start_time"`
	Duration  float64 `json:"duration"`
}

// VideoComposition 最终合成的视频
type VideoComposition struct {
	VideoURL        string  `json:"video_url"`
	DurationSeconds float64 `json:"duration_seconds"` // 等于所有片段时长之和
	Resolution      string  `json:"resolution"`
	Format          string  `json:"format"`
	FileSizeMB      float64 `json:"file_size_mb"`
}

// StudioResult 制片厂阶段的完整输出
type StudioResult struct {
	HeroID        string              `json:"hero_id"`
	EpisodeNumber int                 `json:"episode_number"`
	Video         *VideoComposition   `json:"video,omitempty"`
	Segments      []PanelVideoSegment `json:"segments"`
	AudioTracks   []AudioTrack        `json:"audio_tracks"`
	Status        string              `json:"status"`
	ErrorMessage  string              `json:"error_message,omitempty"`
}

// Episode 持久化的单集聚合
type Episode struct {
	ID              string            `json:"id"`
	HeroID          string            `json:"hero_id"`
	EpisodeNumber   int               `json:"episode_number"` // 严格等于英雄已有集数+1
	Title           string            `json:"title"`
	Synopsis        string            `json:"synopsis"`
	Script          *Script           `json:"script"`
	Panels          []GeneratedPanel  `json:"panels"`
	Video           *VideoComposition `json:"video,omitempty"`
	Tags            []string          `json:"tags,omitempty"`
	CanonReferences []string          `json:"canon_references,omitempty"`
	GeneratedAt     time.Time         `json:"generated_at"`
}

// RunError 批次中单个英雄的失败记录
type RunError struct {
	HeroID  string `json:"hero_id,omitempty"`
	Message string `json:"error"`
}

// RunStats 一次批量生成的统计信息
type RunStats struct {
	StartedAt         time.Time  `json:"started_at"`
	CompletedAt       time.Time  `json:"completed_at"`
	HeroesProcessed   int        `json:"heroes_processed"`
	EpisodesGenerated int        `json:"episodes_generated"`
	Failures          int        `json:"failures"`
	Errors            []RunError `json:"errors"`
	DurationSeconds   float64    `json:"duration_seconds"`
}

// WritersRoomInput 编剧室输入
type WritersRoomInput struct {
	HeroName                string          `json:"hero_name"`
	PowerType               string          `json:"power_type"`
	OriginStory             string          `json:"origin_story"`
	CurrentLocation         string          `json:"current_location"`
	EpisodeNumber           int             `json:"episode_number"`
	PreviousEpisodesSummary string          `json:"previous_episodes_summary"`
	ActiveCanonEvents       []CanonEvent    `json:"active_canon_events"`
	ContentSettings         ContentSettings `json:"content_settings"`
	IncludeCrossover        bool            `json:"include_crossover"`
	CrossoverHero           *Hero           `json:"crossover_hero,omitempty"`
}

// ArtDepartmentInput 美术部输入
type ArtDepartmentInput struct {
	HeroID         string          `json:"hero_id"`
	HeroName       string          `json:"hero_name"`
	EpisodeNumber  int             `json:"episode_number"`
	CharacterSheet *CharacterSheet `json:"character_sheet,omitempty"`
	Panels         []Panel         `json:"panels"`
	StylePreset    string          `json:"style_preset"`
}

// StudioInput 制片厂输入
type StudioInput struct {
	HeroID                     string           `json:"hero_id"`
	HeroName                   string           `json:"hero_name"`
	EpisodeNumber              int              `json:"episode_number"`
	Script                     *Script          `json:"script"`
	GeneratedPanels            []GeneratedPanel `json:"generated_panels"`
	ClimaxPanelNumbers         []int            `json:"climax_panel_numbers"`
	IncludeGenerativeHighlight bool             `json:"include_generative_highlight"`
}

// EmergentEvent 从当日单集中提取出的候选事件
type EmergentEvent struct {
	Type      string `json:"type"` // tag 或 canon_reference
	Value     string `json:"value"`
	EpisodeID string `json:"episode_id"`
	HeroID    string `json:"hero_id"`
}

// CanonUpdateStats 正史更新任务统计
type CanonUpdateStats struct {
	StartedAt       time.Time  `json:"started_at"`
	CompletedAt     time.Time  `json:"completed_at"`
	EventsAnalyzed  int        `json:"events_analyzed"`
	EventsPromoted  int        `json:"events_promoted"`
	NPCsUpdated     int        `json:"npcs_updated"`
	Errors          []RunError `json:"errors"`
	DurationSeconds float64    `json:"duration_seconds"`
}
