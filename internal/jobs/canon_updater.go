package jobs

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"genesis/internal/model"
)

const (
	// 事件进入正史层的重要性门槛
	canonSignificanceThreshold = 50.0
	// 单次出现的基础分
	emergentBaseScore = 5.0
	// 未出现过的事件标题的新颖度加成
	noveltyMultiplier = 1.5
)

// CanonRepository 正史更新所需的图库操作
type CanonRepository interface {
	ListTodayEmergentEvents(ctx context.Context) ([]model.EmergentEvent, error)
	ListCanonEventTitles(ctx context.Context) ([]string, error)
	PromoteCanonEvent(ctx context.Context, title, description string, score float64) error
	UpdateNPCAwareness(ctx context.Context, worldSummary string) (int, error)
}

// DescriptionModel 正史事件描述的生成模型
type DescriptionModel interface {
	Generate(ctx context.Context, system, user string) (string, error)
}

// CanonUpdater 夜间正史维护任务：汇总当日单集里冒出的事件，
// 给高频且新颖的事件打分，超过门槛的晋升为世界正史，
// 最后把世界状态摘要推给所有活跃NPC。
type CanonUpdater struct {
	repo  CanonRepository
	model DescriptionModel
	log   *logrus.Entry
}

// NewCanonUpdater model可以为nil，事件描述退化为模板文本
func NewCanonUpdater(repo CanonRepository, m DescriptionModel) *CanonUpdater {
	return &CanonUpdater{
		repo:  repo,
		model: m,
		log:   logrus.WithField("job", "canon_updater"),
	}
}

// Run 执行一轮正史更新
func (u *CanonUpdater) Run(ctx context.Context) *model.CanonUpdateStats {
	stats := &model.CanonUpdateStats{StartedAt: time.Now().UTC()}
	defer func() {
		stats.CompletedAt = time.Now().UTC()
		stats.DurationSeconds = stats.CompletedAt.Sub(stats.StartedAt).Seconds()
	}()

	events, err := u.repo.ListTodayEmergentEvents(ctx)
	if err != nil {
		u.log.Errorf("gather emergent events failed: %v", err)
		stats.Errors = append(stats.Errors, model.RunError{Message: err.Error()})
		return stats
	}
	stats.EventsAnalyzed = len(events)
	if len(events) == 0 {
		u.log.Info("no emergent events today")
		return stats
	}

	knownTitles, err := u.repo.ListCanonEventTitles(ctx)
	if err != nil {
		u.log.Warnf("list canon titles failed, treating all events as known: %v", err)
	}
	known := make(map[string]bool, len(knownTitles))
	for _, t := range knownTitles {
		known[strings.ToLower(t)] = true
	}

	var promoted []string
	for _, cand := range scoreEvents(events, known) {
		if cand.score < canonSignificanceThreshold {
			continue
		}
		description := u.describeEvent(ctx, cand.value, cand.count)
		if err := u.repo.PromoteCanonEvent(ctx, cand.value, description, cand.score); err != nil {
			u.log.Errorf("promote event %q failed: %v", cand.value, err)
			stats.Errors = append(stats.Errors, model.RunError{Message: err.Error()})
			continue
		}
		stats.EventsPromoted++
		promoted = append(promoted, cand.value)
		u.log.Infof("promoted emergent event %q (score %.1f)", cand.value, cand.score)
	}

	updated, err := u.repo.UpdateNPCAwareness(ctx, worldSummary(promoted))
	if err != nil {
		u.log.Errorf("npc awareness update failed: %v", err)
		stats.Errors = append(stats.Errors, model.RunError{Message: err.Error()})
		return stats
	}
	stats.NPCsUpdated = updated
	u.log.Infof("canon update done: %d analyzed, %d promoted, %d NPCs updated",
		stats.EventsAnalyzed, stats.EventsPromoted, stats.NPCsUpdated)
	return stats
}

type scoredEvent struct {
	value string
	count int
	score float64
}

// scoreEvents 按"类型:值"聚合计数，
// 分数 = 基础分 * (1 + 出现次数*0.1)，未见过的事件再乘新颖度加成
func scoreEvents(events []model.EmergentEvent, known map[string]bool) []scoredEvent {
	counts := make(map[string]int)
	values := make(map[string]string)
	for _, ev := range events {
		if ev.Value == "" {
			continue
		}
		key := ev.Type + ":" + ev.Value
		counts[key]++
		values[key] = ev.Value
	}

	out := make([]scoredEvent, 0, len(counts))
	for key, count := range counts {
		value := values[key]
		score := emergentBaseScore * (1 + float64(count)*0.1)
		if !known[strings.ToLower(value)] {
			score *= noveltyMultiplier
		}
		out = append(out, scoredEvent{value: value, count: count, score: score})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].score > out[j].score })
	return out
}

func (u *CanonUpdater) describeEvent(ctx context.Context, value string, count int) string {
	fallback := fmt.Sprintf("A significant event occurred: %s", value)
	if u.model == nil {
		return fallback
	}

	prompt := fmt.Sprintf(
		"An event called %q appeared in %d hero episodes today across The Genesis Protocol universe. "+
			"Write a 1-2 sentence in-universe news description of this event, suitable for a shared comic book canon. "+
			"Output the description only.", value, count)
	desc, err := u.model.Generate(ctx, "You are the canon keeper of a shared superhero universe.", prompt)
	if err != nil || strings.TrimSpace(desc) == "" {
		u.log.Warnf("event description generation failed for %q: %v", value, err)
		return fallback
	}
	return strings.TrimSpace(desc)
}

// worldSummary NPC可感知的世界状态一句话摘要
func worldSummary(promoted []string) string {
	if len(promoted) == 0 {
		return "The world remains calm. No major events have shaken the universe recently."
	}
	return fmt.Sprintf("Recent major events in the universe: %s.", strings.Join(promoted, "; "))
}
