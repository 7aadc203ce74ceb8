package view

import (
	"log/slog"
	"sync"
	"time"
)

// DefaultPersistDelay is the quiescence window before a settled state is
// written out. Continuous gestures keep pushing the write back.
const DefaultPersistDelay = 300 * time.Millisecond

// Saver stores transform state durably.
type Saver interface {
	SaveViewState(State) error
}

// Persister debounces transform changes into a Saver. A small window of
// potential loss on abrupt close is accepted in exchange for not writing
// on every wheel tick.
type Persister struct {
	saver Saver
	delay time.Duration

	mu      sync.Mutex
	pending State
	dirty   bool
	timer   *time.Timer

	logger *slog.Logger
}

// NewPersister creates a debounced persister. Wire its Changed method into
// Transform.OnChange.
func NewPersister(saver Saver, delay time.Duration, logger *slog.Logger) *Persister {
	if delay <= 0 {
		delay = DefaultPersistDelay
	}
	return &Persister{
		saver:  saver,
		delay:  delay,
		logger: logger,
	}
}

// Changed records a new state and (re)arms the debounce timer.
func (p *Persister) Changed(s State) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.pending = s
	p.dirty = true

	if p.timer == nil {
		p.timer = time.AfterFunc(p.delay, p.flush)
		return
	}
	p.timer.Reset(p.delay)
}

// Close writes any pending state immediately and stops the timer.
func (p *Persister) Close() {
	p.mu.Lock()
	if p.timer != nil {
		p.timer.Stop()
	}
	p.mu.Unlock()
	p.flush()
}

func (p *Persister) flush() {
	p.mu.Lock()
	if !p.dirty {
		p.mu.Unlock()
		return
	}
	s := p.pending
	p.dirty = false
	p.mu.Unlock()

	if err := p.saver.SaveViewState(s); err != nil {
		p.logger.Error("persisting view state", slog.String("error", err.Error()))
	}
}
