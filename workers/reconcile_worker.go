package workers

import (
	"context"
	"log"
	"time"

	"match-wager-system/services"
)

// ReconcileWorker periodically re-arms the time-driven transitions for
// matches left in READY_CHECK or COUNTDOWN without a live timer (after a
// restart the in-memory timers are gone) and evicts terminal matches from
// the controller's arena. The first sweep runs immediately on Start so a
// restarted process recovers lapsed windows without waiting a full tick.
type ReconcileWorker struct {
	controller *services.MatchController
	interval   time.Duration
}

func NewReconcileWorker(controller *services.MatchController, interval time.Duration) *ReconcileWorker {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	return &ReconcileWorker{
		controller: controller,
		interval:   interval,
	}
}

func (w *ReconcileWorker) Start(ctx context.Context) {
	log.Println("🔁 Starting Reconcile Worker (timer re-arm + arena sweep)…")
	go w.run(ctx)
}

func (w *ReconcileWorker) run(ctx context.Context) {
	w.sweepOnce()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.sweepOnce()
		case <-ctx.Done():
			log.Println("⏹️ Reconcile Worker stopped")
			return
		}
	}
}

func (w *ReconcileWorker) sweepOnce() {
	w.controller.ReconcileTimers()
	if removed := w.controller.SweepArena(); removed > 0 {
		log.Printf("[LIFECYCLE] 🧹 Swept %d settled match(es) from the arena", removed)
	}
}
