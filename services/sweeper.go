package services

import (
	"context"
	"log"
	"time"
)

const sweepBatchSize = 100

// ExpirySweeper periodically finalizes sessions left in progress past their
// expiry. It only narrows the window in which storage shows a stale
// in-progress session; Answer still detects timeouts on its own.
type ExpirySweeper struct {
	engine   *QuizEngine
	interval time.Duration
}

func NewExpirySweeper(engine *QuizEngine, interval time.Duration) *ExpirySweeper {
	return &ExpirySweeper{engine: engine, interval: interval}
}

// Run sweeps once immediately and then every interval until ctx is cancelled.
func (s *ExpirySweeper) Run(ctx context.Context) {
	log.Printf("Expiry sweeper started (interval %s)", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.Sweep(ctx)

		select {
		case <-ctx.Done():
			log.Println("Expiry sweeper stopped")
			return
		case <-ticker.C:
		}
	}
}

// Sweep finalizes overdue sessions in batches until none are left.
func (s *ExpirySweeper) Sweep(ctx context.Context) int {
	total := 0
	for {
		n, err := s.engine.ExpireOverdue(ctx, sweepBatchSize)
		total += n
		if err != nil {
			if ctx.Err() == nil {
				log.Printf("Expiry sweep failed: %v", err)
			}
			break
		}
		if n < sweepBatchSize {
			break
		}
	}
	if total > 0 {
		log.Printf("Expiry sweeper finalized %d sessions", total)
	}
	return total
}
