package monitor

import (
	"context"
	"sync/atomic"
	"time"
)

const (
	DefaultStaleAfter = 10 * time.Second
	DefaultPeriod     = time.Second
)

// Monitor derives a binary connectivity state from the time since the
// last received reading. Touch and Connected may be called from
// different goroutines; the shared timestamp is an atomic.
type Monitor struct {
	staleAfter time.Duration
	lastMilli  atomic.Int64
}

func New(staleAfter time.Duration) *Monitor {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &Monitor{staleAfter: staleAfter}
}

// Touch records the arrival of a reading.
func (m *Monitor) Touch(at time.Time) {
	m.lastMilli.Store(at.UnixMilli())
}

// Connected reports whether the stream is live at the given instant.
// Idempotent and side-effect free. A stream that has never received a
// reading is disconnected.
func (m *Monitor) Connected(now time.Time) bool {
	last := m.lastMilli.Load()
	if last == 0 {
		return false
	}
	return now.UnixMilli()-last < m.staleAfter.Milliseconds()
}

func (m *Monitor) LastReading() time.Time {
	last := m.lastMilli.Load()
	if last == 0 {
		return time.Time{}
	}
	return time.UnixMilli(last)
}

// Run ticks the monitor until the context is cancelled, invoking
// onChange only when the derived state flips. The first tick always
// reports, so subscribers start from a known state.
func (m *Monitor) Run(ctx context.Context, period time.Duration, onChange func(connected bool)) {
	if period <= 0 {
		period = DefaultPeriod
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	reported := false
	prev := false
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			cur := m.Connected(now)
			if !reported || cur != prev {
				onChange(cur)
				reported = true
				prev = cur
			}
		}
	}
}
