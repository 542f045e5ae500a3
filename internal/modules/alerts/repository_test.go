package alerts

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/aristath/vigil/internal/domain"
	"github.com/aristath/vigil/internal/events"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func setupTestRepo(t *testing.T) *Repository {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := NewRepository(db, zerolog.Nop())
	require.NoError(t, repo.EnsureSchema())
	return repo
}

func breachEvent(id string) events.Event {
	return events.Event{
		ID:        id,
		Type:      events.LimitBreach,
		Timestamp: time.Now().UTC(),
		Module:    "limits",
		Data: &events.LimitBreachData{
			PortfolioID: "p1",
			Breaches:    []domain.LimitBreach{{LimitName: "max_var", Configured: 100, Observed: 150}},
		},
	}
}

func TestRepository_RecordAndList(t *testing.T) {
	repo := setupTestRepo(t)
	require.NoError(t, repo.Record(breachEvent("a1")))

	alerts, err := repo.List(10, false)
	require.NoError(t, err)
	require.Len(t, alerts, 1)

	a := alerts[0]
	assert.Equal(t, "a1", a.ID)
	assert.Equal(t, string(events.LimitBreach), a.Type)
	assert.Equal(t, "p1", a.PortfolioID)
	assert.False(t, a.Acknowledged)
	assert.Contains(t, string(a.Payload), "max_var")
}

func TestRepository_Acknowledge(t *testing.T) {
	repo := setupTestRepo(t)
	require.NoError(t, repo.Record(breachEvent("a1")))
	require.NoError(t, repo.Record(breachEvent("a2")))

	require.NoError(t, repo.Acknowledge("a1"))

	unacked, err := repo.List(0, true)
	require.NoError(t, err)
	require.Len(t, unacked, 1)
	assert.Equal(t, "a2", unacked[0].ID)

	all, err := repo.List(0, false)
	require.NoError(t, err)
	for _, a := range all {
		if a.ID == "a1" {
			assert.True(t, a.Acknowledged)
			assert.NotNil(t, a.AcknowledgedAt)
		}
	}

	// Acknowledging twice is idempotent.
	assert.NoError(t, repo.Acknowledge("a1"))
}

func TestRepository_AcknowledgeUnknown(t *testing.T) {
	repo := setupTestRepo(t)
	err := repo.Acknowledge("nope")
	assert.True(t, domain.IsNotFound(err))
}

func TestRecorder_PersistsPublishedEvents(t *testing.T) {
	repo := setupTestRepo(t)
	bus := events.NewBus(zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	NewRecorder(repo, bus, zerolog.Nop()).Start(ctx)

	bus.Publish("limits", &events.LimitBreachData{PortfolioID: "p1"})

	require.Eventually(t, func() bool {
		alerts, err := repo.List(0, false)
		return err == nil && len(alerts) == 1
	}, 2*time.Second, 10*time.Millisecond)
}
