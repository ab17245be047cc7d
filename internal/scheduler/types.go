package scheduler

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Outcome is what a run did.
type Outcome string

const (
	OutcomeRendered Outcome = "rendered"
	OutcomeSkipped  Outcome = "skipped"
	OutcomeFailed   Outcome = "failed"
)

// Result describes one run. Skipped runs and lookups of unknown plugins
// carry no ID and are not delivered to observers.
type Result struct {
	ID        uuid.UUID     `json:"id"`
	Plugin    string        `json:"plugin"`
	Forced    bool          `json:"forced"`
	Outcome   Outcome       `json:"outcome"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration_ns"`
	Error     string        `json:"error,omitempty"`
}

// Success reports whether the plugin rendered.
func (r Result) Success() bool {
	return r.Outcome == OutcomeRendered
}

// Status is one row of ListPlugins.
type Status struct {
	Name           string        `json:"name"`
	Description    string        `json:"description"`
	UpdateInterval time.Duration `json:"-"`
	LastRun        *time.Time    `json:"last_run"`
	NeedsUpdate    bool          `json:"needs_update"`
	IsCurrent      bool          `json:"is_current"`
}

// IntervalSeconds returns the effective update interval in whole seconds.
func (s Status) IntervalSeconds() int {
	return int(s.UpdateInterval / time.Second)
}

// Observer receives the result of every attempted render, after the
// scheduler has released its lock.
type Observer interface {
	OnRun(Result)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Result)

func (f ObserverFunc) OnRun(r Result) { f(r) }

// AddObserver registers an observer.
func (s *Scheduler) AddObserver(o Observer) {
	s.observersMu.Lock()
	defer s.observersMu.Unlock()
	s.observers = append(s.observers, o)
}

func (s *Scheduler) notify(res Result) {
	if res.ID == uuid.Nil {
		return
	}

	s.observersMu.RLock()
	observers := append([]Observer(nil), s.observers...)
	s.observersMu.RUnlock()

	for _, o := range observers {
		s.deliver(o, res)
	}
}

func (s *Scheduler) deliver(o Observer, res Result) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Run observer panicked", zap.Any("panic", r))
		}
	}()
	o.OnRun(res)
}
