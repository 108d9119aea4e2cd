// Package manual holds the step-by-step accumulators behind manual readings:
// one coin toss or one card draw at a time until the reading is complete.
package manual

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Yanchun-Li/ai-divination/internal/domain"
)

// machine accumulates steps of type S until target is reached, then derives
// the result R exactly once. A step is taken in two phases: begin marks the
// machine busy, commit appends. Only one step may be pending at a time.
type machine[S, R any] struct {
	mu     sync.Mutex
	target int
	steps  []S
	busy   bool
	ticket uint64
	result *R
	derive func([]S) (R, error)
	settle func()
}

func newMachine[S, R any](target int, derive func([]S) (R, error)) *machine[S, R] {
	return &machine[S, R]{
		target: target,
		steps:  make([]S, 0, target),
		derive: derive,
		settle: func() {},
	}
}

// begin reserves the next step. check runs under the lock before anything changes.
func (m *machine[S, R]) begin(check func(steps []S) error) (uint64, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.steps) >= m.target {
		return 0, 0, fmt.Errorf("%w: %d of %d steps recorded", domain.ErrAlreadyComplete, len(m.steps), m.target)
	}
	if m.busy {
		return 0, 0, domain.ErrStepInProgress
	}
	if check != nil {
		if err := check(m.steps); err != nil {
			return 0, 0, err
		}
	}
	m.busy = true
	m.ticket++
	return m.ticket, len(m.steps), nil
}

// commit appends s for the pending step identified by ticket. When the new
// step reaches target the result is derived and cached.
func (m *machine[S, R]) commit(ticket uint64, s S) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.busy || ticket != m.ticket {
		return domain.ErrStale
	}

	steps := append(m.steps, s)
	if len(steps) == m.target {
		r, err := m.derive(steps)
		if err != nil {
			m.release()
			return err
		}
		m.result = &r
	}
	m.steps = steps
	m.release()
	return nil
}

func (m *machine[S, R]) abort(ticket uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.busy && ticket == m.ticket {
		m.release()
	}
}

func (m *machine[S, R]) release() {
	m.busy = false
	m.settle()
}

// reset clears everything and invalidates any pending step.
func (m *machine[S, R]) reset() { m.resetWith(nil) }

// resetWith is reset that also runs fn under the lock.
func (m *machine[S, R]) resetWith(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if fn != nil {
		fn()
	}
	m.steps = make([]S, 0, m.target)
	m.result = nil
	m.ticket++
	m.release()
}

// snapshot copies the steps under the lock and hands them to fn.
func (m *machine[S, R]) snapshot(fn func(steps []S, busy bool, result *R)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	steps := make([]S, len(m.steps))
	copy(steps, m.steps)
	fn(steps, m.busy, m.result)
}

func (m *machine[S, R]) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.steps)
}

func (m *machine[S, R]) complete() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.result != nil
}

func (m *machine[S, R]) cached() (R, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.result == nil {
		var zero R
		return zero, false
	}
	return *m.result, true
}

// pause waits for d or until ctx is done.
func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
