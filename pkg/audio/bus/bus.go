// Package bus implements the frame bus: a bounded FIFO between the capture
// loop (single producer) and whichever component currently holds the
// active-consumer role.
//
// Push never blocks. When the bus is full the oldest frame is evicted so the
// capture loop cannot be stalled by a slow consumer.
//
// The active consumer is switched with [Bus.Acquire]. Each acquisition starts
// a new epoch; frames pushed before it are stale and are discarded by the new
// reader instead of being flushed from the queue, and readers from earlier
// epochs are superseded.
package bus

import (
	"context"
	"errors"
	"sync"
)

// ErrSuperseded is returned by a [Reader] after another consumer has called
// [Bus.Acquire].
var ErrSuperseded = errors.New("bus: reader superseded by a newer consumer")

// DefaultCapacity holds roughly two seconds of 30 ms frames.
const DefaultCapacity = 64

// Observer receives bus events. Implementations must not block.
type Observer interface {
	FrameDropped()
	FrameStale()
}

// Option configures a [Bus].
type Option func(*Bus)

// WithObserver attaches an observer for drop and stale events.
func WithObserver(o Observer) Option {
	return func(b *Bus) { b.observer = o }
}

// Bus is a bounded, epoch-tagged frame queue. It is safe for one producer and
// one active consumer running concurrently; [Bus.Acquire] may be called from
// any goroutine.
type Bus struct {
	mu       sync.Mutex
	ring     []item
	head     int // index of the oldest element
	size     int
	epoch    uint64
	dropped  uint64
	changed  chan struct{} // closed and replaced on every push or acquire
	observer Observer
}

type item struct {
	frame Frame
}

// New returns a Bus holding at most capacity frames. A non-positive capacity
// selects [DefaultCapacity].
func New(capacity int, opts ...Option) *Bus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	b := &Bus{
		ring:    make([]item, capacity),
		changed: make(chan struct{}),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Push appends f, tagging it with the current epoch. If the bus is full the
// oldest frame is dropped. Push never blocks.
func (b *Bus) Push(f Frame) {
	b.mu.Lock()
	f.Epoch = b.epoch
	dropped := false
	if b.size == len(b.ring) {
		b.ring[b.head] = item{}
		b.head = (b.head + 1) % len(b.ring)
		b.size--
		b.dropped++
		dropped = true
	}
	b.ring[(b.head+b.size)%len(b.ring)] = item{frame: f}
	b.size++
	b.broadcastLocked()
	b.mu.Unlock()

	if dropped && b.observer != nil {
		b.observer.FrameDropped()
	}
}

func (b *Bus) broadcastLocked() {
	close(b.changed)
	b.changed = make(chan struct{})
}

// Acquire makes the caller the active consumer. It advances the epoch, which
// marks every queued frame stale and supersedes all earlier readers.
func (b *Bus) Acquire() *Reader {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.epoch++
	// Wake a reader blocked in Next so it observes supersession.
	b.broadcastLocked()
	return &Reader{bus: b, epoch: b.epoch}
}

// Len returns the number of queued frames, stale ones included.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Cap returns the bus capacity.
func (b *Bus) Cap() int { return len(b.ring) }

// Dropped returns the number of frames evicted because the bus was full.
func (b *Bus) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Epoch returns the current epoch.
func (b *Bus) Epoch() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.epoch
}

// pop removes the oldest fresh frame for epoch. Stale frames ahead of it are
// discarded. When no fresh frame is queued ok is false and wait is closed on
// the next push or acquire.
func (b *Bus) pop(epoch uint64) (f Frame, ok bool, stale int, wait <-chan struct{}, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.epoch != epoch {
		return Frame{}, false, 0, nil, ErrSuperseded
	}
	for b.size > 0 {
		it := b.ring[b.head]
		b.ring[b.head] = item{}
		b.head = (b.head + 1) % len(b.ring)
		b.size--
		if it.frame.Epoch < epoch {
			stale++
			continue
		}
		return it.frame, true, stale, nil, nil
	}
	return Frame{}, false, stale, b.changed, nil
}

// latest empties the queue and returns the newest fresh frame for epoch.
// Older fresh frames are skipped along with stale ones; only the stale
// count is reported.
func (b *Bus) latest(epoch uint64) (f Frame, ok bool, stale int, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.epoch != epoch {
		return Frame{}, false, 0, ErrSuperseded
	}
	for b.size > 0 {
		it := b.ring[b.head]
		b.ring[b.head] = item{}
		b.head = (b.head + 1) % len(b.ring)
		b.size--
		if it.frame.Epoch < epoch {
			stale++
			continue
		}
		f, ok = it.frame, true
	}
	return f, ok, stale, nil
}

// Reader is the handle of one active-consumer epoch.
type Reader struct {
	bus   *Bus
	epoch uint64
}

// Epoch returns the epoch this reader was acquired in.
func (r *Reader) Epoch() uint64 { return r.epoch }

// Next blocks until a fresh frame is available, ctx is done, or the reader
// is superseded. A context deadline acts as the pop timeout.
func (r *Reader) Next(ctx context.Context) (Frame, error) {
	for {
		f, ok, stale, wait, err := r.bus.pop(r.epoch)
		r.reportStale(stale)
		if err != nil {
			return Frame{}, err
		}
		if ok {
			return f, nil
		}
		select {
		case <-ctx.Done():
			return Frame{}, ctx.Err()
		case <-wait:
		}
	}
}

// TryNext returns the next fresh frame without blocking. ok is false when
// none is queued or the reader was superseded.
func (r *Reader) TryNext() (Frame, bool) {
	f, ok, stale, _, err := r.bus.pop(r.epoch)
	r.reportStale(stale)
	if err != nil {
		return Frame{}, false
	}
	return f, ok
}

// Latest returns the most recently pushed fresh frame without blocking and
// discards everything queued before it. ok is false when no fresh frame is
// queued or the reader was superseded.
func (r *Reader) Latest() (Frame, bool) {
	f, ok, stale, err := r.bus.latest(r.epoch)
	r.reportStale(stale)
	if err != nil {
		return Frame{}, false
	}
	return f, ok
}

func (r *Reader) reportStale(n int) {
	if n == 0 || r.bus.observer == nil {
		return
	}
	for range n {
		r.bus.observer.FrameStale()
	}
}
