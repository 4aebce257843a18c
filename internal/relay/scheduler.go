package relay

import (
	"context"
	"log"
	"math/rand"
	"time"
)

// Scheduler periodically invokes Cleanup on an Actor. Cleanup is
// idempotent and already runs at the start of every actor op, so the
// cadence here is not load-bearing; it only bounds how long an orphaned
// expired/stuck token can sit unswept when no other traffic touches it.
type Scheduler struct {
	actor    *Actor
	interval time.Duration
	jitter   float64
	rng      *rand.Rand
}

func NewScheduler(actor *Actor, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Scheduler{
		actor:    actor,
		interval: interval,
		jitter:   0.1,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Run blocks until ctx is done, invoking Cleanup on each jittered tick.
func (s *Scheduler) Run(ctx context.Context) {
	timer := time.NewTimer(s.nextInterval())
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			if err := s.actor.Cleanup(); err != nil {
				log.Printf("relay: scheduled cleanup failed: %v", err)
			}
			timer.Reset(s.nextInterval())
		}
	}
}

func (s *Scheduler) nextInterval() time.Duration {
	if s.jitter <= 0 {
		return s.interval
	}
	factor := 1 + (s.rng.Float64()*2-1)*s.jitter
	return time.Duration(float64(s.interval) * factor)
}
