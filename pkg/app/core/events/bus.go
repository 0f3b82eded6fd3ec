package events

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Sink receives every published event, in sequence order.
type Sink interface {
	Name() string
	Publish(ctx context.Context, ev Event) error
}

// Bus decouples the exchange from its transports. Publish never blocks on a
// sink; sink failures are logged and otherwise ignored.
type Bus struct {
	mu     sync.RWMutex
	ch     chan Event
	sinks  []Sink
	closed bool
	log    *zap.SugaredLogger
}

func NewBus(buffer int, log *zap.SugaredLogger) *Bus {
	if buffer <= 0 {
		buffer = 1024
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Bus{ch: make(chan Event, buffer), log: log}
}

// Attach registers a sink. Attach before Run.
func (b *Bus) Attach(s Sink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sinks = append(b.sinks, s)
}

// Publish enqueues events. When the buffer is full the event is dropped and
// logged; persisted events can still be replayed from storage.
func (b *Bus) Publish(evs ...Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, ev := range evs {
		select {
		case b.ch <- ev:
		default:
			b.log.Warnw("event_dropped", "seq", ev.Seq, "kind", ev.Kind)
		}
	}
}

// Close stops accepting events. Run drains what is queued and returns.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		close(b.ch)
	}
}

// Run delivers queued events until the bus is closed and drained. When ctx
// is done it delivers what is already queued and returns.
func (b *Bus) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			b.drain(context.WithoutCancel(ctx))
			return
		case ev, ok := <-b.ch:
			if !ok {
				return
			}
			b.deliver(ctx, ev)
		}
	}
}

func (b *Bus) drain(ctx context.Context) {
	for {
		select {
		case ev, ok := <-b.ch:
			if !ok {
				return
			}
			b.deliver(ctx, ev)
		default:
			return
		}
	}
}

func (b *Bus) deliver(ctx context.Context, ev Event) {
	b.mu.RLock()
	sinks := b.sinks
	b.mu.RUnlock()
	for _, s := range sinks {
		if err := s.Publish(ctx, ev); err != nil {
			b.log.Errorw("sink_publish_failed", "sink", s.Name(), "seq", ev.Seq, "kind", ev.Kind, "err", err)
		}
	}
}

// Recorder is an in-memory sink.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Name() string { return "recorder" }

func (r *Recorder) Publish(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}
