package eventbus

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/churnai/retention-engine/pkg/conversation"
	"github.com/churnai/retention-engine/pkg/metrics"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultQueueSize is the number of events buffered before new ones are dropped.
	DefaultQueueSize = 1024
	// DefaultWriteTimeout bounds a single sink write.
	DefaultWriteTimeout = 5 * time.Second
)

// Sink is a destination for emitted events.
type Sink interface {
	Name() string
	Write(ctx context.Context, e *conversation.Event) error
}

// Config tunes the emitter.
type Config struct {
	QueueSize    int
	WriteTimeout time.Duration
}

// Emitter delivers events to its sinks from a single background worker.
// Emit never blocks: when the queue is full the event is dropped and counted.
type Emitter struct {
	cfg   Config
	sinks []Sink
	queue chan *conversation.Event
	done  chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewEmitter creates an emitter and starts its worker.
func NewEmitter(cfg Config, sinks ...Sink) *Emitter {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}

	e := &Emitter{
		cfg:   cfg,
		sinks: sinks,
		queue: make(chan *conversation.Event, cfg.QueueSize),
		done:  make(chan struct{}),
	}
	go e.run()

	names := make([]string, 0, len(sinks))
	for _, s := range sinks {
		names = append(names, s.Name())
	}
	logrus.Infof("event emitter started with sinks %v (queue %d)", names, cfg.QueueSize)

	return e
}

// Emit enqueues an event without blocking.
func (e *Emitter) Emit(_ context.Context, ev *conversation.Event) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		logrus.Warnf("emitter closed, dropping %s event for tenant %s", ev.Type, ev.TenantID)
		metrics.EventsDroppedTotal.Inc()
		return
	}

	select {
	case e.queue <- ev:
	default:
		logrus.Warnf("event queue full, dropping %s event for tenant %s", ev.Type, ev.TenantID)
		metrics.EventsDroppedTotal.Inc()
	}
}

// Close stops accepting events and waits for queued ones to be written.
func (e *Emitter) Close(ctx context.Context) error {
	e.mu.Lock()
	if !e.closed {
		e.closed = true
		close(e.queue)
	}
	e.mu.Unlock()

	select {
	case <-e.done:
		logrus.Info("event emitter drained")
		return nil
	case <-ctx.Done():
		return errors.New("event emitter did not drain before shutdown")
	}
}

func (e *Emitter) run() {
	defer close(e.done)

	for ev := range e.queue {
		for _, s := range e.sinks {
			ctx, cancel := context.WithTimeout(context.Background(), e.cfg.WriteTimeout)
			if err := s.Write(ctx, ev); err != nil {
				logrus.Errorf("failed to write %s event to %s: %v", ev.Type, s.Name(), err)
				metrics.EventSinkFailuresTotal.WithLabelValues(s.Name()).Inc()
			}
			cancel()
		}
	}
}

// StoreSink writes events to an event store.
type StoreSink struct {
	store conversation.EventStore
}

func NewStoreSink(store conversation.EventStore) *StoreSink {
	return &StoreSink{store: store}
}

func (s *StoreSink) Name() string { return "store" }

func (s *StoreSink) Write(ctx context.Context, e *conversation.Event) error {
	return s.store.InsertEvent(ctx, e)
}
