package resilience

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// ErrQueueFull is returned when every slot is busy and the wait queue is at depth
var ErrQueueFull = errors.New("admission queue is full")

// Gate bounds concurrent calls to an upstream. Up to Capacity calls run at
// once, up to QueueDepth more wait in FIFO order, anything beyond is rejected
// immediately with ErrQueueFull.
type Gate struct {
	name       string
	capacity   int64
	queueDepth int64
	sem        *semaphore.Weighted

	inFlight atomic.Int64
	waiting  atomic.Int64

	onChange func(name string, inFlight, waiting int64)
	onReject func(name string)
}

// GateOption customizes a Gate
type GateOption func(*Gate)

// WithGateObserver registers callbacks for occupancy changes and rejections
func WithGateObserver(onChange func(name string, inFlight, waiting int64), onReject func(name string)) GateOption {
	return func(g *Gate) {
		g.onChange = onChange
		g.onReject = onReject
	}
}

// NewGate creates a gate. capacity below 1 is raised to 1; a negative queue
// depth is treated as zero.
func NewGate(name string, capacity, queueDepth int, opts ...GateOption) *Gate {
	if capacity < 1 {
		capacity = 1
	}
	if queueDepth < 0 {
		queueDepth = 0
	}
	g := &Gate{
		name:       name,
		capacity:   int64(capacity),
		queueDepth: int64(queueDepth),
		sem:        semaphore.NewWeighted(int64(capacity)),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Acquire takes a slot, waiting in the queue if needed. The returned release
// func must be called exactly once; extra calls are ignored.
func (g *Gate) Acquire(ctx context.Context) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if !g.sem.TryAcquire(1) {
		if g.waiting.Add(1) > g.queueDepth {
			g.waiting.Add(-1)
			if g.onReject != nil {
				g.onReject(g.name)
			}
			return nil, ErrQueueFull
		}
		g.notify()

		err := g.sem.Acquire(ctx, 1)
		g.waiting.Add(-1)
		if err != nil {
			g.notify()
			return nil, err
		}
	}

	g.inFlight.Add(1)
	g.notify()

	var once sync.Once
	return func() {
		once.Do(func() {
			g.inFlight.Add(-1)
			g.sem.Release(1)
			g.notify()
		})
	}, nil
}

// Run acquires a slot, runs fn and releases the slot.
func (g *Gate) Run(ctx context.Context, fn func(context.Context) error) error {
	release, err := g.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	return fn(ctx)
}

// Name returns the gate name
func (g *Gate) Name() string { return g.name }

// Capacity returns the number of concurrent slots
func (g *Gate) Capacity() int { return int(g.capacity) }

// InFlight returns the number of calls holding a slot
func (g *Gate) InFlight() int64 { return g.inFlight.Load() }

// Waiting returns the number of queued calls
func (g *Gate) Waiting() int64 { return g.waiting.Load() }

func (g *Gate) notify() {
	if g.onChange != nil {
		g.onChange(g.name, g.inFlight.Load(), g.waiting.Load())
	}
}
