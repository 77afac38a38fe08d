// Package chaos injects feed faults into a frame stream: drops, duplicates,
// bounded reordering and per-frame delay.
package chaos

import (
	"math/rand"
	"time"

	"github.com/yanun0323/errors"

	"tickcore/pkg/exception"
)

// Delayed is one released item and how long to hold it before sending.
type Delayed[T any] struct {
	Value T
	Delay time.Duration
}

// Config controls fault injection.
type Config struct {
	Seed          int64
	DropRate      float64
	DuplicateRate float64
	ReorderWindow int
	MaxDelay      time.Duration
}

// Enabled reports whether the config injects any fault at all.
func (c Config) Enabled() bool {
	return c.DropRate > 0 || c.DuplicateRate > 0 || c.ReorderWindow > 1 || c.MaxDelay > 0
}

// Validate ensures the config is within supported ranges.
func (c Config) Validate() error {
	if c.DropRate < 0 || c.DropRate > 1 {
		return errors.Wrap(exception.ErrConfigInvalid, "drop rate must be between 0 and 1")
	}
	if c.DuplicateRate < 0 || c.DuplicateRate > 1 {
		return errors.Wrap(exception.ErrConfigInvalid, "duplicate rate must be between 0 and 1")
	}
	if c.ReorderWindow <= 0 {
		return errors.Wrap(exception.ErrConfigInvalid, "reorder window must be >= 1")
	}
	if c.MaxDelay < 0 {
		return errors.Wrap(exception.ErrConfigInvalid, "max delay must be >= 0")
	}
	return nil
}

// Engine applies the configured faults. It is not safe for concurrent use;
// give every connection its own engine.
type Engine[T any] struct {
	cfg     Config
	rng     *rand.Rand
	pending []Delayed[T]
}

// NewEngine validates cfg and seeds the engine. A zero seed uses the clock.
func NewEngine[T any](cfg Config) (*Engine[T], error) {
	if cfg.ReorderWindow == 0 {
		cfg.ReorderWindow = 1
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}
	return &Engine[T]{
		cfg: cfg,
		rng: rand.New(rand.NewSource(cfg.Seed)),
	}, nil
}

// Process feeds one item through the engine and returns the items that are
// ready to send, in send order. A nil engine passes items through.
func (e *Engine[T]) Process(v T) []Delayed[T] {
	if e == nil {
		return []Delayed[T]{{Value: v}}
	}
	if e.shouldDrop() {
		return nil
	}
	f := Delayed[T]{Value: v, Delay: e.delay()}
	if e.cfg.ReorderWindow <= 1 {
		return e.duplicate(f)
	}
	e.pending = append(e.pending, f)
	if len(e.pending) < e.cfg.ReorderWindow {
		return nil
	}
	return e.duplicate(e.take())
}

// Flush releases every item still held by the reorder window.
func (e *Engine[T]) Flush() []Delayed[T] {
	if e == nil || len(e.pending) == 0 {
		return nil
	}
	out := make([]Delayed[T], 0, len(e.pending))
	for len(e.pending) > 0 {
		out = append(out, e.duplicate(e.take())...)
	}
	return out
}

// Pending is the number of items held by the reorder window.
func (e *Engine[T]) Pending() int {
	if e == nil {
		return 0
	}
	return len(e.pending)
}

func (e *Engine[T]) take() Delayed[T] {
	idx := e.rng.Intn(len(e.pending))
	f := e.pending[idx]
	e.pending = append(e.pending[:idx], e.pending[idx+1:]...)
	return f
}

func (e *Engine[T]) shouldDrop() bool {
	return e.cfg.DropRate > 0 && e.rng.Float64() < e.cfg.DropRate
}

func (e *Engine[T]) duplicate(f Delayed[T]) []Delayed[T] {
	out := []Delayed[T]{f}
	if e.cfg.DuplicateRate > 0 && e.rng.Float64() < e.cfg.DuplicateRate {
		out = append(out, Delayed[T]{Value: f.Value})
	}
	return out
}

func (e *Engine[T]) delay() time.Duration {
	max := e.cfg.MaxDelay.Nanoseconds()
	if max <= 0 {
		return 0
	}
	return time.Duration(e.rng.Int63n(max + 1))
}
