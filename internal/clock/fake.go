package clock

import (
	"sync"
	"time"
)

// Fake is a manually-advanced Clock for deterministic tests of the
// disable-expiry loop, match timer, dedup window, and liveness
// classification.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*fakeTicker
}

// NewFake creates a Fake clock starting at t.
func NewFake(t time.Time) *Fake {
	return &Fake{now: t}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Advance moves the clock forward by d, firing any ticker whose period
// has elapsed (possibly more than once if d spans multiple periods).
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now.Add(d)
	tickers := append([]*fakeTicker(nil), f.tickers...)
	f.mu.Unlock()

	for _, t := range tickers {
		t.fireUpTo(target)
	}

	f.mu.Lock()
	f.now = target
	f.mu.Unlock()
}

func (f *Fake) NewTicker(d time.Duration) Ticker {
	t := &fakeTicker{
		period: d,
		ch:     make(chan time.Time, 1),
		next:   f.Now().Add(d),
	}
	f.mu.Lock()
	f.tickers = append(f.tickers, t)
	f.mu.Unlock()
	return t
}

func (f *Fake) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- f.Now().Add(d)
	return ch
}

type fakeTicker struct {
	mu     sync.Mutex
	period time.Duration
	next   time.Time
	ch     chan time.Time
	done   bool
}

func (t *fakeTicker) fireUpTo(target time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return
	}
	for !t.next.After(target) {
		select {
		case t.ch <- t.next:
		default:
		}
		t.next = t.next.Add(t.period)
	}
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }
func (t *fakeTicker) Stop() {
	t.mu.Lock()
	t.done = true
	t.mu.Unlock()
}
