package jobs

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"genesis/internal/model"
)

type fakeCanonRepo struct {
	events      []model.EmergentEvent
	eventsErr   error
	knownTitles []string
	promoted    []string
	promoteErr  error
	summary     string
	npcCount    int
}

func (f *fakeCanonRepo) ListTodayEmergentEvents(ctx context.Context) ([]model.EmergentEvent, error) {
	return f.events, f.eventsErr
}

func (f *fakeCanonRepo) ListCanonEventTitles(ctx context.Context) ([]string, error) {
	return f.knownTitles, nil
}

func (f *fakeCanonRepo) PromoteCanonEvent(ctx context.Context, title, description string, score float64) error {
	if f.promoteErr != nil {
		return f.promoteErr
	}
	f.promoted = append(f.promoted, title)
	return nil
}

func (f *fakeCanonRepo) UpdateNPCAwareness(ctx context.Context, worldSummary string) (int, error) {
	f.summary = worldSummary
	return f.npcCount, nil
}

func tagEvents(value string, n int) []model.EmergentEvent {
	out := make([]model.EmergentEvent, n)
	for i := range out {
		out[i] = model.EmergentEvent{
			Type:      "tag",
			Value:     value,
			EpisodeID: fmt.Sprintf("ep-%d", i),
			HeroID:    fmt.Sprintf("hero-%d", i),
		}
	}
	return out
}

func TestScoreEventsNoveltyBonus(t *testing.T) {
	events := tagEvents("dragon-invasion", 10)
	scored := scoreEvents(events, map[string]bool{})

	require.Len(t, scored, 1)
	// 5.0 * (1 + 10*0.1) * 1.5
	assert.InDelta(t, 15.0, scored[0].score, 1e-6)
	assert.Equal(t, 10, scored[0].count)

	known := scoreEvents(events, map[string]bool{"dragon-invasion": true})
	assert.InDelta(t, 10.0, known[0].score, 1e-6)
}

func TestScoreEventsSeparatesTypes(t *testing.T) {
	events := append(tagEvents("storm", 2), model.EmergentEvent{
		Type: "canon_reference", Value: "storm", EpisodeID: "ep-x", HeroID: "hero-x",
	})
	scored := scoreEvents(events, map[string]bool{})
	assert.Len(t, scored, 2)
}

func TestCanonUpdaterPromotesAboveThreshold(t *testing.T) {
	// 5.0 * (1 + 600*0.1) * 1.5 = 457.5，远超门槛
	r := &fakeCanonRepo{events: tagEvents("dragon-invasion", 600), npcCount: 12}
	u := NewCanonUpdater(r, nil)

	stats := u.Run(context.Background())

	assert.Equal(t, 600, stats.EventsAnalyzed)
	assert.Equal(t, 1, stats.EventsPromoted)
	assert.Equal(t, 12, stats.NPCsUpdated)
	require.Len(t, r.promoted, 1)
	assert.Equal(t, "dragon-invasion", r.promoted[0])
	assert.Contains(t, r.summary, "dragon-invasion")
}

func TestCanonUpdaterSkipsBelowThreshold(t *testing.T) {
	r := &fakeCanonRepo{events: tagEvents("minor-skirmish", 3), npcCount: 4}
	u := NewCanonUpdater(r, nil)

	stats := u.Run(context.Background())

	assert.Equal(t, 3, stats.EventsAnalyzed)
	assert.Zero(t, stats.EventsPromoted)
	assert.Empty(t, r.promoted)
	// 无晋升事件时NPC仍收到平静的世界摘要
	assert.Equal(t, 4, stats.NPCsUpdated)
	assert.Contains(t, r.summary, "calm")
}

func TestCanonUpdaterNoEvents(t *testing.T) {
	r := &fakeCanonRepo{}
	u := NewCanonUpdater(r, nil)

	stats := u.Run(context.Background())

	assert.Zero(t, stats.EventsAnalyzed)
	assert.Zero(t, stats.EventsPromoted)
	assert.Empty(t, r.summary)
}

func TestCanonUpdaterGatherFailure(t *testing.T) {
	r := &fakeCanonRepo{eventsErr: errors.New("neo4j unavailable")}
	u := NewCanonUpdater(r, nil)

	stats := u.Run(context.Background())

	require.Len(t, stats.Errors, 1)
	assert.Zero(t, stats.EventsPromoted)
}

func TestDescribeEventFallbackTemplate(t *testing.T) {
	u := NewCanonUpdater(&fakeCanonRepo{}, nil)
	desc := u.describeEvent(context.Background(), "dragon-invasion", 5)
	assert.Equal(t, "A significant event occurred: dragon-invasion", desc)
}
