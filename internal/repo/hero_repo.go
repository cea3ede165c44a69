package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
	"github.com/sirupsen/logrus"

	"genesis/internal/config"
	"genesis/internal/model"
)

// ErrHeroNotFound 英雄ID不存在
var ErrHeroNotFound = errors.New("hero not found")

// HeroRepository Neo4j图库上的英雄/单集/正史读写
type HeroRepository struct {
	driver   neo4j.DriverWithContext
	database string
	log      *logrus.Entry
}

func NewHeroRepository(ctx context.Context, cfg *config.Settings) (*HeroRepository, error) {
	if cfg.Neo4jURI == "" {
		return nil, errors.New("NEO4J_URI not configured")
	}

	auth := neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPassword, "")
	driver, err := neo4j.NewDriverWithContext(cfg.Neo4jURI, auth, func(c *neo4j.Config) {
		c.MaxConnectionPoolSize = cfg.Neo4jMaxPool
		c.SocketConnectTimeout = 10 * time.Second
	})
	if err != nil {
		return nil, fmt.Errorf("init neo4j driver: %w", err)
	}

	verifyCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := driver.VerifyConnectivity(verifyCtx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("verify neo4j connectivity: %w", err)
	}

	return &HeroRepository{
		driver:   driver,
		database: cfg.Neo4jDatabase,
		log:      logrus.WithField("component", "hero_repo"),
	}, nil
}

func (r *HeroRepository) Close(ctx context.Context) error {
	return r.driver.Close(ctx)
}

// ListHeroesNeedingEpisodes 查出今天还没有生成过单集的活跃英雄
func (r *HeroRepository) ListHeroesNeedingEpisodes(ctx context.Context) ([]model.Hero, error) {
	query := `
		MATCH (h:Hero)
		WHERE h.status = 'active'
		AND (h.last_episode_date IS NULL OR h.last_episode_date < date())
		RETURN h {
			.id, .hero_name, .power_type, .origin_story,
			.current_location, .episode_count, .status, .last_episode_date,
			.content_settings_json, .character_sheet_json
		} AS hero
		ORDER BY h.last_episode_date ASC`

	records, err := r.readRecords(ctx, query, nil)
	if err != nil {
		return nil, fmt.Errorf("list heroes needing episodes: %w", err)
	}

	heroes := make([]model.Hero, 0, len(records))
	for _, rec := range records {
		if m, ok := recordMap(rec, "hero"); ok {
			heroes = append(heroes, heroFromMap(m))
		}
	}
	return heroes, nil
}

// GetHero 按ID读英雄，不存在时返回ErrHeroNotFound
func (r *HeroRepository) GetHero(ctx context.Context, heroID string) (*model.Hero, error) {
	query := `
		MATCH (h:Hero {id: $hero_id})
		RETURN h {
			.id, .hero_name, .power_type, .origin_story,
			.current_location, .episode_count, .status, .last_episode_date,
			.content_settings_json, .character_sheet_json
		} AS hero`

	records, err := r.readRecords(ctx, query, map[string]any{"hero_id": heroID})
	if err != nil {
		return nil, fmt.Errorf("get hero %s: %w", heroID, err)
	}
	if len(records) == 0 {
		return nil, ErrHeroNotFound
	}
	m, ok := recordMap(records[0], "hero")
	if !ok {
		return nil, ErrHeroNotFound
	}
	hero := heroFromMap(m)
	return &hero, nil
}

// GetRecentSummaries 取最近若干集的剧情概要拼成上文。
// 查询失败按"有过冒险"处理，不中断管线。
func (r *HeroRepository) GetRecentSummaries(ctx context.Context, heroID string, limit int) (string, error) {
	query := `
		MATCH (h:Hero {id: $hero_id})-[:HAS_EPISODE]->(e:Episode)
		RETURN e.synopsis AS synopsis
		ORDER BY e.episode_number DESC
		LIMIT $limit`

	records, err := r.readRecords(ctx, query, map[string]any{"hero_id": heroID, "limit": limit})
	if err != nil {
		r.log.Warnf("could not fetch episode history for %s: %v", heroID, err)
		return "The hero has had previous adventures.", nil
	}
	if len(records) == 0 {
		return "This is the hero's first adventure.", nil
	}

	summaries := make([]string, 0, 3)
	for _, rec := range records {
		if v, ok := rec.Get("synopsis"); ok {
			if s, ok := v.(string); ok && s != "" {
				summaries = append(summaries, s)
			}
		}
		if len(summaries) == 3 {
			break
		}
	}
	if len(summaries) == 0 {
		return "The hero has had previous adventures.", nil
	}
	out := summaries[0]
	for _, s := range summaries[1:] {
		out += " " + s
	}
	return out, nil
}

// GetActiveCanonEvents 取当前生效的正史事件，按重要性排序
func (r *HeroRepository) GetActiveCanonEvents(ctx context.Context, limit int) ([]model.CanonEvent, error) {
	query := `
		MATCH (e:Event)
		WHERE e.status = 'active'
		AND e.start_date <= date()
		AND (e.end_date IS NULL OR e.end_date >= date())
		RETURN e {.title, .description, .significance_score} AS event
		ORDER BY e.significance_score DESC
		LIMIT $limit`

	records, err := r.readRecords(ctx, query, map[string]any{"limit": limit})
	if err != nil {
		r.log.Warnf("could not fetch canon events: %v", err)
		return nil, nil
	}

	events := make([]model.CanonEvent, 0, len(records))
	for _, rec := range records {
		m, ok := recordMap(rec, "event")
		if !ok {
			continue
		}
		events = append(events, model.CanonEvent{
			Title:             stringProp(m, "title"),
			Description:       stringProp(m, "description"),
			SignificanceScore: floatProp(m, "significance_score"),
		})
	}
	return events, nil
}

// SaveEpisode 在同一个写事务里创建单集节点并推进英雄计数，
// 两个效果同生同灭，保证集数单调递增。
func (r *HeroRepository) SaveEpisode(ctx context.Context, ep *model.Episode) error {
	scriptJSON, err := json.Marshal(ep.Script)
	if err != nil {
		return fmt.Errorf("marshal script: %w", err)
	}
	panelsJSON, err := json.Marshal(ep.Panels)
	if err != nil {
		return fmt.Errorf("marshal panels: %w", err)
	}
	videoJSON := []byte("null")
	videoURL := ""
	if ep.Video != nil {
		if videoJSON, err = json.Marshal(ep.Video); err != nil {
			return fmt.Errorf("marshal video: %w", err)
		}
		videoURL = ep.Video.VideoURL
	}

	query := `
		MATCH (h:Hero {id: $hero_id})
		CREATE (e:Episode {
			id: $id,
			hero_id: $hero_id,
			episode_number: $episode_number,
			title: $title,
			synopsis: $synopsis,
			tags: $tags,
			canon_references: $canon_references,
			script_json: $script_json,
			panels_json: $panels_json,
			video_json: $video_json,
			video_url: $video_url,
			generated_at: datetime($generated_at)
		})
		CREATE (h)-[:HAS_EPISODE]->(e)
		SET h.episode_count = $episode_number,
			h.last_episode_date = date()
		RETURN e.id AS id`

	params := map[string]any{
		"id":               ep.ID,
		"hero_id":          ep.HeroID,
		"episode_number":   ep.EpisodeNumber,
		"title":            ep.Title,
		"synopsis":         ep.Synopsis,
		"tags":             toAnySlice(ep.Tags),
		"canon_references": toAnySlice(ep.CanonReferences),
		"script_json":      string(scriptJSON),
		"panels_json":      string(panelsJSON),
		"video_json":       string(videoJSON),
		"video_url":        videoURL,
		"generated_at":     ep.GeneratedAt.UTC().Format(time.RFC3339Nano),
	}

	session := r.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: r.database,
		AccessMode:   neo4j.AccessModeWrite,
	})
	defer session.Close(ctx)

	_, err = session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		if !result.Next(ctx) {
			return nil, ErrHeroNotFound
		}
		return nil, result.Err()
	})
	if err != nil {
		return fmt.Errorf("save episode %d for hero %s: %w", ep.EpisodeNumber, ep.HeroID, err)
	}
	return nil
}

// SaveCharacterSheet 更新英雄的角色设定表
func (r *HeroRepository) SaveCharacterSheet(ctx context.Context, heroID string, sheet *model.CharacterSheet) error {
	b, err := json.Marshal(sheet)
	if err != nil {
		return fmt.Errorf("marshal character sheet: %w", err)
	}

	query := `
		MATCH (h:Hero {id: $hero_id})
		SET h.character_sheet_json = $sheet
		RETURN h.id AS id`

	session := r.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: r.database,
		AccessMode:   neo4j.AccessModeWrite,
	})
	defer session.Close(ctx)

	_, err = session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, query, map[string]any{"hero_id": heroID, "sheet": string(b)})
		if err != nil {
			return nil, err
		}
		if !result.Next(ctx) {
			return nil, ErrHeroNotFound
		}
		return nil, result.Err()
	})
	if err != nil {
		return fmt.Errorf("save character sheet for hero %s: %w", heroID, err)
	}
	return nil
}

func (r *HeroRepository) readRecords(ctx context.Context, query string, params map[string]any) ([]*neo4j.Record, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: r.database,
		AccessMode:   neo4j.AccessModeRead,
	})
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		return result.Collect(ctx)
	})
	if err != nil {
		return nil, err
	}
	records, _ := out.([]*neo4j.Record)
	return records, nil
}

func recordMap(rec *neo4j.Record, key string) (map[string]any, bool) {
	v, ok := rec.Get(key)
	if !ok {
		return nil, false
	}
	m, ok := v.(map[string]any)
	return m, ok
}

func heroFromMap(m map[string]any) model.Hero {
	hero := model.Hero{
		ID:              stringProp(m, "id"),
		HeroName:        stringProp(m, "hero_name"),
		PowerType:       stringProp(m, "power_type"),
		OriginStory:     stringProp(m, "origin_story"),
		CurrentLocation: stringProp(m, "current_location"),
		EpisodeCount:    intProp(m, "episode_count"),
		Status:          stringProp(m, "status"),
	}

	if raw := stringProp(m, "content_settings_json"); raw != "" {
		_ = json.Unmarshal([]byte(raw), &hero.ContentSettings)
	}
	if raw := stringProp(m, "character_sheet_json"); raw != "" {
		var sheet model.CharacterSheet
		if err := json.Unmarshal([]byte(raw), &sheet); err == nil {
			hero.CharacterSheet = &sheet
		}
	}
	if v, ok := m["last_episode_date"]; ok {
		if d, ok := v.(dbtype.Date); ok {
			t := d.Time()
			hero.LastEpisodeDate = &t
		}
	}
	return hero
}

func stringProp(m map[string]any, key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func intProp(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

func floatProp(m map[string]any, key string) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	}
	return 0
}

func toAnySlice(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}
