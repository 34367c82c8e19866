// Package transition moves a current value toward a target value in the
// background, one step per tick, so outputs can ramp instead of jump.
package transition

import (
	"sync"
	"time"
)

// DefaultTick is how often the animation loop wakes without a notification.
const DefaultTick = 100 * time.Millisecond

type Result int

const (
	Unchanged Result = iota
	Changed
	Finished
)

// StepFunc advances current toward target given the time elapsed since the
// previous step.
type StepFunc[T any] func(elapsed time.Duration, current *T, target T) Result

type Config[T any] struct {
	Initial T
	Step    StepFunc[T]
	// Equal reports whether current reached target. Steps stop once it does
	// and resume on the next SetTarget.
	Equal func(a, b T) bool
	// OnStep receives the current value after every step that changed it.
	// It runs on the transitioner goroutine without the lock held.
	OnStep func(current T)
	Tick   time.Duration
}

type Transitioner[T any] struct {
	mu      sync.Mutex
	current T
	target  T
	pending bool

	step   StepFunc[T]
	equal  func(a, b T) bool
	onStep func(T)
	tick   time.Duration

	wake     chan struct{}
	done     chan struct{}
	exited   chan struct{}
	stopOnce sync.Once
}

// New starts the animation loop. Call Close to stop it.
func New[T any](cfg Config[T]) *Transitioner[T] {
	if cfg.Step == nil {
		cfg.Step = Instant[T]()
	}
	if cfg.Tick <= 0 {
		cfg.Tick = DefaultTick
	}
	t := &Transitioner[T]{
		current: cfg.Initial,
		target:  cfg.Initial,
		step:    cfg.Step,
		equal:   cfg.Equal,
		onStep:  cfg.OnStep,
		tick:    cfg.Tick,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		exited:  make(chan struct{}),
	}
	go t.run()
	return t
}

// SetTarget replaces the target and wakes the loop. Safe for concurrent use.
func (t *Transitioner[T]) SetTarget(target T) {
	t.mu.Lock()
	t.target = target
	t.pending = true
	t.mu.Unlock()

	select {
	case t.wake <- struct{}{}:
	default:
	}
}

func (t *Transitioner[T]) Target() T {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.target
}

func (t *Transitioner[T]) Current() T {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// Close stops the loop and blocks until it has exited.
func (t *Transitioner[T]) Close() {
	t.stopOnce.Do(func() { close(t.done) })
	<-t.exited
}

func (t *Transitioner[T]) run() {
	defer close(t.exited)

	ticker := time.NewTicker(t.tick)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
		case <-t.wake:
		}

		now := time.Now()
		elapsed := now.Sub(last)
		last = now

		t.mu.Lock()
		if !t.pending {
			t.mu.Unlock()
			continue
		}
		res := t.step(elapsed, &t.current, t.target)
		if res == Finished || (res == Changed && t.equal != nil && t.equal(t.current, t.target)) {
			t.pending = false
		}
		current := t.current
		t.mu.Unlock()

		if res != Unchanged && t.onStep != nil {
			t.onStep(current)
		}
	}
}
