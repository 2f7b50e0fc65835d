package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"progresspal-web/internal/models"
)

const defaultTickInterval = time.Second

// Ticker re-runs a callback on a fixed interval until Stop is called, the
// context ends, or the callback returns false.
type Ticker struct {
	interval time.Duration
	stopChan chan struct{}
	stopOnce sync.Once
}

func NewTicker(interval time.Duration) *Ticker {
	if interval <= 0 {
		interval = defaultTickInterval
	}
	return &Ticker{
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// Stop ends Run. It is safe to call more than once and from any goroutine.
func (t *Ticker) Stop() {
	t.stopOnce.Do(func() { close(t.stopChan) })
}

// Run blocks until the loop ends. The callback runs once immediately.
func (t *Ticker) Run(ctx context.Context, tickFn func(now time.Time) bool) {
	if !tickFn(time.Now()) {
		return
	}

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stopChan:
			return
		case now := <-ticker.C:
			if !tickFn(now) {
				return
			}
		}
	}
}

// Watch loads the live session once and renders it on every tick against
// that same snapshot. It returns once the session is no longer live.
func (s *LiveSessionService) Watch(ctx context.Context, userID uuid.UUID, ticker *Ticker, render func(models.LiveView)) error {
	state, err := s.Live(ctx, userID)
	if err != nil {
		return err
	}
	if state == nil {
		return errNoLiveSession
	}

	ticker.Run(ctx, func(now time.Time) bool {
		view := BuildView(state.Snapshot, state.Stale, now)
		render(view)
		return view.Session.IsLive()
	})
	return nil
}
