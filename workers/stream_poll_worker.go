package workers

import (
	"context"
	"log"
	"time"

	"match-wager-system/services"
)

// StreamPollWorker periodically probes the linked channels of every
// stream-verified match still gated in READY_CHECK and feeds the results to
// the checklist. Probe failures are logged and retried on the next tick.
type StreamPollWorker struct {
	controller *services.MatchController
	interval   time.Duration
}

func NewStreamPollWorker(controller *services.MatchController, interval time.Duration) *StreamPollWorker {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &StreamPollWorker{
		controller: controller,
		interval:   interval,
	}
}

func (w *StreamPollWorker) Start(ctx context.Context) {
	log.Println("🔁 Starting Stream Poll Worker (stream gateway → checklist)…")
	go w.run(ctx)
}

func (w *StreamPollWorker) run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.pollOnce(ctx)
		case <-ctx.Done():
			log.Println("⏹️ Stream Poll Worker stopped")
			return
		}
	}
}

func (w *StreamPollWorker) pollOnce(ctx context.Context) {
	matches, err := w.controller.ListReadyCheckStreamMatches()
	if err != nil {
		log.Printf("[STREAMS] ❌ Failed to list gated matches: %v", err)
		return
	}
	if len(matches) == 0 {
		return
	}

	log.Printf("[STREAMS] 📡 Probing %d gated match(es)…", len(matches))
	for _, m := range matches {
		if err := w.controller.CheckStreams(ctx, m.ID); err != nil {
			log.Printf("[STREAMS] ⚠️ Probe pass failed for %s: %v", m.ID, err)
		}
	}
}
