package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

type RoundAdvancer interface {
	AdvanceRounds(ctx context.Context) error
}

type GameFinalizer interface {
	FinalizeGames(ctx context.Context) error
}

// tickJob runs one pass of fn on every tick until stopped.
type tickJob struct {
	name     string
	fn       func(ctx context.Context) error
	interval time.Duration
	timeout  time.Duration
	done     chan struct{}
}

func newTickJob(name string, interval time.Duration, fn func(ctx context.Context) error) *tickJob {
	return &tickJob{
		name:     name,
		fn:       fn,
		interval: interval,
		timeout:  30 * time.Second,
		done:     make(chan struct{}),
	}
}

func (j *tickJob) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Msgf("%s job started", j.name)
}

func (j *tickJob) Stop() {
	close(j.done)
	log.Info().Msgf("%s job stopped", j.name)
}

func (j *tickJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.tick()
		}
	}
}

func (j *tickJob) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	if err := j.fn(ctx); err != nil {
		log.Error().Err(err).Msgf("%s pass failed", j.name)
	}
}

// RoundAdvancerJob closes expired rounds and opens the next one.
type RoundAdvancerJob struct {
	*tickJob
}

func NewRoundAdvancerJob(rounds RoundAdvancer, interval time.Duration) *RoundAdvancerJob {
	return &RoundAdvancerJob{newTickJob("round advancer", interval, rounds.AdvanceRounds)}
}

// GameFinalizerJob scores games whose guessing deadline has passed.
type GameFinalizerJob struct {
	*tickJob
}

func NewGameFinalizerJob(finalizer GameFinalizer, interval time.Duration) *GameFinalizerJob {
	return &GameFinalizerJob{newTickJob("game finalizer", interval, finalizer.FinalizeGames)}
}
