// Package scheduler runs the periodic subscriber broadcast.
//
// Subjects are broadcast one after another on every tick, and a tick that
// fires while the previous run is still going is skipped, so two broadcasts
// of the same subject never overlap within one process.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-newsletter-backend/internal/services"
)

// Broadcaster is satisfied by *services.SendService.
type Broadcaster interface {
	SendToAllSubscribers(ctx context.Context, subjectID uint) services.BroadcastResult
}

// Scheduler broadcasts Subjects every Interval.
type Scheduler struct {
	Broadcaster Broadcaster
	Subjects    []uint
	Interval    time.Duration
	// RunOnStart triggers one run immediately instead of waiting a full
	// interval.
	RunOnStart bool

	running sync.Mutex
}

// Run ticks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	if s.Interval <= 0 || len(s.Subjects) == 0 {
		log.Info().Msg("broadcast scheduler disabled")
		return
	}
	log.Info().Dur("interval", s.Interval).Interface("subjects", s.Subjects).Msg("broadcast scheduler started")

	if s.RunOnStart {
		s.tick(ctx)
	}
	t := time.NewTicker(s.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("broadcast scheduler stopped")
			return
		case <-t.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if !s.running.TryLock() {
		log.Warn().Msg("previous broadcast run still in progress; skipping tick")
		return
	}
	defer s.running.Unlock()
	s.RunOnce(ctx)
}

// RunOnce broadcasts every subject sequentially and returns the results in
// subject order. Failures are logged; they never stop the remaining subjects.
func (s *Scheduler) RunOnce(ctx context.Context) []services.BroadcastResult {
	out := make([]services.BroadcastResult, 0, len(s.Subjects))
	for _, id := range s.Subjects {
		if ctx.Err() != nil {
			break
		}
		res := s.Broadcaster.SendToAllSubscribers(ctx, id)
		ev := log.Info()
		if !res.Success {
			ev = log.Warn().Str("error", res.Error)
		}
		ev.Uint("subject_id", id).
			Bool("success", res.Success).
			Int("sequence", res.SequenceNumber).
			Int("sent", res.TotalSent).
			Int("failed", res.TotalFailed).
			Msg("scheduled broadcast")
		out = append(out, res)
	}
	return out
}
