package events

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// LocalBus dispatches events synchronously to in-process handlers.
type LocalBus struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[Type]map[int]Handler
	logger   logrus.FieldLogger
}

func NewLocalBus(logger logrus.FieldLogger) *LocalBus {
	return &LocalBus{handlers: make(map[Type]map[int]Handler), logger: logger}
}

func (b *LocalBus) Publish(ctx context.Context, e Event) error {
	b.mu.RLock()
	hs := make([]Handler, 0, len(b.handlers[e.Type]))
	for _, h := range b.handlers[e.Type] {
		hs = append(hs, h)
	}
	b.mu.RUnlock()

	for _, h := range hs {
		if err := h(ctx, e); err != nil {
			b.logger.WithFields(logrus.Fields{"event": e.Type, "event_id": e.ID}).Warnf("event handler failed: %v", err)
		}
	}
	return nil
}

func (b *LocalBus) Subscribe(t Type, h Handler) (Unsubscribe, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	if b.handlers[t] == nil {
		b.handlers[t] = make(map[int]Handler)
	}
	b.handlers[t][id] = h

	var once sync.Once
	return func() error {
		once.Do(func() {
			b.mu.Lock()
			delete(b.handlers[t], id)
			b.mu.Unlock()
		})
		return nil
	}, nil
}

func (b *LocalBus) Close() error { return nil }
