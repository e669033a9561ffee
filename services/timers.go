package services

import (
	"log"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
)

// TimerPurpose names the single timer slot a match may hold per concern.
type TimerPurpose string

const (
	TimerReadyCheck TimerPurpose = "ready_check"
	TimerCountdown  TimerPurpose = "countdown"
	TimerDisputeSLA TimerPurpose = "dispute_sla"
)

type timerKey struct {
	matchID string
	purpose TimerPurpose
}

// TimerScheduler runs delayed, cancelable callbacks keyed by
// (matchID, purpose), at most one live timer per key. Cancellation wins over
// firing: a generation counter is claimed under the mutex before the
// callback runs, so a job that fires after Cancel (or after a reschedule)
// claims nothing and does nothing.
type TimerScheduler struct {
	sched gocron.Scheduler

	mu     sync.Mutex
	gen    uint64
	active map[timerKey]uint64
	jobs   map[timerKey]uuid.UUID
}

func NewTimerScheduler() (*TimerScheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	sched.Start()
	return &TimerScheduler{
		sched:  sched,
		active: make(map[timerKey]uint64),
		jobs:   make(map[timerKey]uuid.UUID),
	}, nil
}

// Schedule arms (or re-arms) the timer for (matchID, purpose). An existing
// timer on the same key is canceled first.
func (t *TimerScheduler) Schedule(matchID string, purpose TimerPurpose, delay time.Duration, fn func()) {
	key := timerKey{matchID: matchID, purpose: purpose}

	t.mu.Lock()
	t.removeLocked(key)
	t.gen++
	gen := t.gen
	t.active[key] = gen
	t.mu.Unlock()

	job, err := t.sched.NewJob(
		gocron.OneTimeJob(gocron.OneTimeJobStartDateTime(time.Now().Add(delay))),
		gocron.NewTask(func() {
			if t.claim(key, gen) {
				fn()
			}
		}),
	)
	if err != nil {
		log.Printf("[TIMER] Failed to schedule %s/%s: %v", matchID, purpose, err)
		t.mu.Lock()
		if t.active[key] == gen {
			delete(t.active, key)
		}
		t.mu.Unlock()
		return
	}

	t.mu.Lock()
	// A concurrent Schedule/Cancel may have superseded this generation while
	// the job was being created; only record the job id if we still own the slot.
	if t.active[key] == gen {
		t.jobs[key] = job.ID()
	} else {
		_ = t.sched.RemoveJob(job.ID())
	}
	t.mu.Unlock()
}

// Cancel disarms the timer for (matchID, purpose). Canceling a timer that
// already fired, or was never armed, is a benign no-op.
func (t *TimerScheduler) Cancel(matchID string, purpose TimerPurpose) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.removeLocked(timerKey{matchID: matchID, purpose: purpose})
}

// Armed reports whether a live timer holds the (matchID, purpose) slot.
func (t *TimerScheduler) Armed(matchID string, purpose TimerPurpose) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.active[timerKey{matchID: matchID, purpose: purpose}]
	return ok
}

// claim consumes the timer slot iff gen is still the live generation.
func (t *TimerScheduler) claim(key timerKey, gen uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active[key] != gen {
		return false
	}
	delete(t.active, key)
	delete(t.jobs, key)
	return true
}

func (t *TimerScheduler) removeLocked(key timerKey) {
	if id, ok := t.jobs[key]; ok {
		_ = t.sched.RemoveJob(id)
		delete(t.jobs, key)
	}
	delete(t.active, key)
}

// Shutdown stops the underlying scheduler; pending timers are dropped.
func (t *TimerScheduler) Shutdown() error {
	return t.sched.Shutdown()
}
