package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/ApparyllisOrg/SimplyPluralApi-sub000/data/store"
	"github.com/ApparyllisOrg/SimplyPluralApi-sub000/logger"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const CollQueuedEvents = "queuedEvents"

// QueuedEvent is a deferred unit of work, unique per (uid, event).
// Rescheduling the same key overwrites in place; bursty triggers
// naturally coalesce.
type QueuedEvent struct {
	Uid     string    `bson:"uid"`
	Event   string    `bson:"event"`
	DueAt   time.Time `bson:"dueAt"`
	Payload store.M   `bson:"payload,omitempty"`
}

type HandlerFunc func(ctx context.Context, ev QueuedEvent) error

// Scheduler drives the persisted due-time queue. The queuedEvents
// collection is the single cross-process source of truth; any number of
// processes may tick against it with upsert-by-key semantics.
//
// Delivery is fire-at-most-once, best effort: selected rows are deleted
// after the tick whether or not their handler succeeded. A failure is
// logged, never retried.
type Scheduler struct {
	store store.Store
	clock func() time.Time
	tick  time.Duration
	ready func(ctx context.Context) error

	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

type Option func(*Scheduler)

func WithClock(clock func() time.Time) Option {
	return func(s *Scheduler) { s.clock = clock }
}

func WithTick(tick time.Duration) Option {
	return func(s *Scheduler) { s.tick = tick }
}

// WithReadyCheck gates the tick loop on the backing store being
// reachable; Run polls it before the first tick.
func WithReadyCheck(ready func(ctx context.Context) error) Option {
	return func(s *Scheduler) { s.ready = ready }
}

func New(st store.Store, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:    st,
		clock:    time.Now,
		tick:     300 * time.Millisecond,
		handlers: make(map[string]HandlerFunc),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register binds a handler to an event name. Call before Run.
func (s *Scheduler) Register(event string, h HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[event] = h
}

func (s *Scheduler) handler(event string) (HandlerFunc, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.handlers[event]
	return h, ok
}

// Enqueue upserts the (uid, event) row. A second enqueue for the same
// key replaces dueAt and payload rather than adding a row.
func (s *Scheduler) Enqueue(ctx context.Context, uid, event string, dueAt time.Time, payload store.M) error {
	return s.store.Upsert(ctx, CollQueuedEvents,
		store.M{"uid": uid, "event": event},
		store.M{"$set": store.M{"dueAt": dueAt, "payload": payload}})
}

// Cancel deletes the (uid, event) row outright. The only cancellation
// primitive that exists; there is no handle into an in-flight tick.
func (s *Scheduler) Cancel(ctx context.Context, uid, event string) error {
	return s.store.DeleteOne(ctx, CollQueuedEvents, store.M{"uid": uid, "event": event})
}

// Tick runs one selection pass: every row with dueAt <= now fires, each
// handler inside its own failure boundary, then all selected rows are
// deleted. Exported so tests can drive time explicitly.
func (s *Scheduler) Tick(ctx context.Context) error {
	now := s.clock()
	var due []QueuedEvent
	if err := s.store.Find(ctx, CollQueuedEvents, store.M{"dueAt": store.M{"$lte": now}}, &due); err != nil {
		return errors.Wrap(err, "select due events")
	}

	for _, ev := range due {
		s.invoke(ctx, ev)
	}

	for _, ev := range due {
		// Delete bounded by the selection time so a handler that
		// re-enqueued its own key at a later due time keeps that row.
		err := s.store.DeleteMany(ctx, CollQueuedEvents,
			store.M{"uid": ev.Uid, "event": ev.Event, "dueAt": store.M{"$lte": now}})
		if err != nil {
			logger.Error("scheduler: delete fired event",
				zap.String("uid", ev.Uid), zap.String("event", ev.Event), zap.Error(err))
		}
	}
	return nil
}

func (s *Scheduler) invoke(ctx context.Context, ev QueuedEvent) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("scheduler: handler panic",
				zap.String("uid", ev.Uid), zap.String("event", ev.Event), zap.Any("panic", r))
		}
	}()

	h, ok := s.handler(ev.Event)
	if !ok {
		logger.Warn("scheduler: no handler registered",
			zap.String("uid", ev.Uid), zap.String("event", ev.Event))
		return
	}
	if err := h(ctx, ev); err != nil {
		logger.Error("scheduler: handler failed",
			zap.String("uid", ev.Uid), zap.String("event", ev.Event), zap.Error(err))
	}
}

// Run blocks until ctx is done, ticking at the configured interval.
// With a ready check configured it polls until the store answers before
// the first tick.
func (s *Scheduler) Run(ctx context.Context) {
	if s.ready != nil {
		for {
			if err := s.ready(ctx); err == nil {
				break
			} else if ctx.Err() != nil {
				return
			} else {
				logger.Warnf("scheduler: store not ready: %v", err)
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
		}
	}

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Tick(ctx); err != nil {
				logger.Error("scheduler: tick", zap.Error(err))
			}
		}
	}
}

// DecodePayload decodes the loose payload map into a typed struct using
// json field tags.
func DecodePayload[T any](ev QueuedEvent) (*T, error) {
	var out T
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           &out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(ev.Payload); err != nil {
		return nil, errors.Wrap(err, "decode payload")
	}
	return &out, nil
}
