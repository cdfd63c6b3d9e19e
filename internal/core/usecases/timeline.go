package usecases

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var ErrYearOutOfRange = errors.New("year out of range")

// TimelineState is a snapshot of the year selector.
type TimelineState struct {
	Years   []int `json:"years"`
	Active  int   `json:"active"`
	Playing bool  `json:"playing"`
}

// Timeline selects the active NDVI year and can autoplay through the years.
type Timeline struct {
	first, last int
	interval    time.Duration

	mu      sync.Mutex
	active  int
	playing bool
	cancel  context.CancelFunc
	// done is closed when the running autoplay loop exits
	done chan struct{}
}

// NewTimeline creates a timeline over [first, last], starting at first.
func NewTimeline(first, last int, interval time.Duration) (*Timeline, error) {
	if last < first {
		return nil, fmt.Errorf("timeline: last year %d before first year %d", last, first)
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Timeline{first: first, last: last, interval: interval, active: first}, nil
}

// State returns the current selector state.
func (t *Timeline) State() TimelineState {
	t.mu.Lock()
	defer t.mu.Unlock()
	years := make([]int, 0, t.last-t.first+1)
	for y := t.first; y <= t.last; y++ {
		years = append(years, y)
	}
	return TimelineState{Years: years, Active: t.active, Playing: t.playing}
}

// Active returns the selected year.
func (t *Timeline) Active() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

// Select jumps to year.
func (t *Timeline) Select(year int) error {
	if year < t.first || year > t.last {
		return fmt.Errorf("select %d: %w", year, ErrYearOutOfRange)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.active = year
	return nil
}

// Next advances one year, staying on the last year.
func (t *Timeline) Next() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active < t.last {
		t.active++
	}
	return t.active
}

// Previous steps back one year, staying on the first year.
func (t *Timeline) Previous() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active > t.first {
		t.active--
	}
	return t.active
}

// Playing reports whether autoplay is running.
func (t *Timeline) Playing() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.playing
}

// Play starts advancing one year per interval until the last year is
// reached, Pause is called or ctx ends. Playing twice is a no-op.
func (t *Timeline) Play(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.playing {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	t.playing = true
	t.cancel = cancel
	t.done = make(chan struct{})
	go t.run(ctx, cancel, t.done)
}

// Pause stops autoplay and waits for the loop to exit.
func (t *Timeline) Pause() {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (t *Timeline) run(ctx context.Context, cancel context.CancelFunc, done chan struct{}) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	defer func() {
		cancel()
		t.mu.Lock()
		t.playing = false
		t.cancel = nil
		t.done = nil
		t.mu.Unlock()
		close(done)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.mu.Lock()
			if t.active >= t.last {
				t.mu.Unlock()
				return
			}
			t.active++
			t.mu.Unlock()
		}
	}
}
