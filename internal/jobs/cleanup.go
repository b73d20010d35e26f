package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/robotparty/game-server/internal/repository"
)

// CleanupJob deletes rooms that were never started once they are older
// than the configured TTL.
type CleanupJob struct {
	sessionRepo repository.SessionRepository
	ttl         time.Duration
	interval    time.Duration
	now         func() time.Time
	done        chan struct{}
}

func NewCleanupJob(sessionRepo repository.SessionRepository, ttl, interval time.Duration) *CleanupJob {
	return &CleanupJob{
		sessionRepo: sessionRepo,
		ttl:         ttl,
		interval:    interval,
		now:         time.Now,
		done:        make(chan struct{}),
	}
}

func (j *CleanupJob) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Dur("ttl", j.ttl).Msg("cleanup job started")
}

func (j *CleanupJob) Stop() {
	close(j.done)
	log.Info().Msg("cleanup job stopped")
}

func (j *CleanupJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.cleanup()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.cleanup()
		}
	}
}

func (j *CleanupJob) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	count, err := j.sessionRepo.DeletePendingBefore(ctx, j.now().Add(-j.ttl))
	if err != nil {
		log.Error().Err(err).Msg("failed to cleanup pending rooms")
	} else if count > 0 {
		log.Info().Int64("count", count).Msg("cleaned up pending rooms")
	}
}
