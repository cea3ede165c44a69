package repo

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"genesis/internal/model"
)

// ListTodayEmergentEvents 展开当日所有单集的标签和正史引用，作为候选事件
func (r *HeroRepository) ListTodayEmergentEvents(ctx context.Context) ([]model.EmergentEvent, error) {
	query := `
		MATCH (e:Episode)
		WHERE date(e.generated_at) = date()
		RETURN e {.id, .hero_id, .tags, .canon_references} AS episode`

	records, err := r.readRecords(ctx, query, nil)
	if err != nil {
		return nil, fmt.Errorf("gather episode events: %w", err)
	}

	var events []model.EmergentEvent
	for _, rec := range records {
		m, ok := recordMap(rec, "episode")
		if !ok {
			continue
		}
		episodeID := stringProp(m, "id")
		heroID := stringProp(m, "hero_id")
		for _, tag := range stringSliceProp(m, "tags") {
			events = append(events, model.EmergentEvent{
				Type: "tag", Value: tag, EpisodeID: episodeID, HeroID: heroID,
			})
		}
		for _, ref := range stringSliceProp(m, "canon_references") {
			events = append(events, model.EmergentEvent{
				Type: "canon_reference", Value: ref, EpisodeID: episodeID, HeroID: heroID,
			})
		}
	}
	return events, nil
}

// ListCanonEventTitles 已有正史事件标题，用于新颖度判断
func (r *HeroRepository) ListCanonEventTitles(ctx context.Context) ([]string, error) {
	query := `
		MATCH (e:Event)
		WHERE e.layer = 'canon'
		RETURN e.title AS title`

	records, err := r.readRecords(ctx, query, nil)
	if err != nil {
		return nil, fmt.Errorf("list canon event titles: %w", err)
	}

	titles := make([]string, 0, len(records))
	for _, rec := range records {
		if v, ok := rec.Get("title"); ok {
			if s, ok := v.(string); ok {
				titles = append(titles, s)
			}
		}
	}
	return titles, nil
}

// PromoteCanonEvent 把高分事件写入正史层
func (r *HeroRepository) PromoteCanonEvent(ctx context.Context, title, description string, score float64) error {
	query := `
		CREATE (e:Event {
			id: $id,
			title: $title,
			description: $description,
			layer: 'canon',
			significance_score: $score,
			status: 'active',
			created_at: datetime(),
			start_date: date(),
			source: 'emergent'
		})`

	session := r.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: r.database,
		AccessMode:   neo4j.AccessModeWrite,
	})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, query, map[string]any{
			"id":          uuid.NewString(),
			"title":       title,
			"description": description,
			"score":       score,
		})
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("promote canon event %q: %w", title, err)
	}
	return nil
}

// UpdateNPCAwareness 把世界状态摘要同步给所有活跃NPC，返回更新数量
func (r *HeroRepository) UpdateNPCAwareness(ctx context.Context, worldSummary string) (int, error) {
	query := `
		MATCH (n:NPC)
		WHERE n.status = 'active'
		SET n.world_state_summary = $summary,
			n.world_state_updated = datetime()
		RETURN count(n) AS updated`

	session := r.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: r.database,
		AccessMode:   neo4j.AccessModeWrite,
	})
	defer session.Close(ctx)

	out, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, query, map[string]any{"summary": worldSummary})
		if err != nil {
			return nil, err
		}
		record, err := result.Single(ctx)
		if err != nil {
			return nil, err
		}
		v, _ := record.Get("updated")
		if n, ok := v.(int64); ok {
			return int(n), nil
		}
		return 0, nil
	})
	if err != nil {
		return 0, fmt.Errorf("update npc awareness: %w", err)
	}
	count, _ := out.(int)
	return count, nil
}

func stringSliceProp(m map[string]any, key string) []string {
	v, ok := m[key]
	if !ok {
		return nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}
