package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robotparty/game-server/internal/model"
	"github.com/robotparty/game-server/internal/repository/memory"
)

func TestCleanupJob(t *testing.T) {
	t.Run("creates job with correct interval", func(t *testing.T) {
		job := NewCleanupJob(nil, 24*time.Hour, 5*time.Minute)

		assert.NotNil(t, job)
		assert.Equal(t, 5*time.Minute, job.interval)
		assert.Equal(t, 24*time.Hour, job.ttl)
	})

	t.Run("starts and stops without panic", func(t *testing.T) {
		store := memory.NewStore()
		job := NewCleanupJob(store.Repos().Sessions, time.Hour, 100*time.Millisecond)

		job.Start()
		time.Sleep(50 * time.Millisecond)
		job.Stop()
	})

	t.Run("deletes stale pending rooms only", func(t *testing.T) {
		ctx := context.Background()
		store := memory.NewStore()
		base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		now := base
		store.Now = func() time.Time { return now }
		sessions := store.Repos().Sessions

		stale, err := sessions.Create(ctx, model.CreateSessionParams{Code: "AAAAAA", RoundLength: 60, RoundCount: 1, GuessTimer: 60})
		require.NoError(t, err)
		now = base.Add(23 * time.Hour)
		fresh, err := sessions.Create(ctx, model.CreateSessionParams{Code: "BBBBBB", RoundLength: 60, RoundCount: 1, GuessTimer: 60})
		require.NoError(t, err)

		job := NewCleanupJob(sessions, 24*time.Hour, time.Hour)
		job.now = func() time.Time { return base.Add(25 * time.Hour) }
		job.cleanup()

		gone, err := sessions.FindByID(ctx, stale.ID)
		require.NoError(t, err)
		assert.Nil(t, gone)

		kept, err := sessions.FindByID(ctx, fresh.ID)
		require.NoError(t, err)
		assert.NotNil(t, kept)
	})
}
