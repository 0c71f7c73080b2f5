package service

import (
	"sync"

	"go.uber.org/zap"

	"github.com/syndicatehq/syndicate/internal/models"
)

type EventKind string

const (
	EventPublished     EventKind = "publication.published"
	EventPublishFailed EventKind = "publication.failed"
)

// Event is emitted after every terminal publication transition.
type Event struct {
	Kind        EventKind
	ContentID   string
	Integration *models.Integration
	Publication *models.Publication
	Reason      string
}

// EventBus delivers publication events to in-process subscribers,
// synchronously and in subscription order. Consumers that need decoupling
// hand the event off to their own goroutine.
type EventBus struct {
	mu          sync.RWMutex
	subscribers []func(Event)
	logger      *zap.Logger
}

func NewEventBus(logger *zap.Logger) *EventBus {
	return &EventBus{logger: logger}
}

func (b *EventBus) Subscribe(fn func(Event)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = append(b.subscribers, fn)
}

func (b *EventBus) Emit(event Event) {
	b.mu.RLock()
	subscribers := make([]func(Event), len(b.subscribers))
	copy(subscribers, b.subscribers)
	b.mu.RUnlock()

	for _, fn := range subscribers {
		b.dispatch(fn, event)
	}
}

// dispatch shields the emitter from a misbehaving subscriber.
func (b *EventBus) dispatch(fn func(Event), event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Event subscriber panicked",
				zap.String("kind", string(event.Kind)),
				zap.Any("panic", r))
		}
	}()
	fn(event)
}
