// Package eventbus provides the topic-based implementation of the EventBus interface.
package eventbus

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"

	"github.com/tejashwikalptaru/tubetune/internal/concurrency"
	"github.com/tejashwikalptaru/tubetune/internal/domain"
	"github.com/tejashwikalptaru/tubetune/internal/ports"
)

// TaskCreator schedules cooperative tasks. *concurrency.Registry implements it.
type TaskCreator interface {
	CreateTask(name string, fn concurrency.TaskFunc) (*concurrency.Task, error)
}

// TopicBus is an asynchronous, topic-based event bus.
//
// Publish never calls subscribers on the publisher's stack. Each publish becomes one
// cooperative task named "<topic> handler #<n>" that calls the topic's subscribers in
// subscription order. Because the scheduler runs ready tasks in FIFO order, dispatch order
// across publishes equals publish order.
//
// Thread-safety: This implementation is thread-safe. Multiple goroutines can
// publish events and subscribe/unsubscribe handlers concurrently.
type TopicBus struct {
	// Dependencies
	logger *slog.Logger
	tasks  TaskCreator

	// topics maps declared topics to their subscriptions, in subscription order
	topics map[domain.Topic][]subscription

	// mu protects topics and the counters
	mu sync.RWMutex

	// idCounter generates unique subscription IDs
	idCounter uint64

	// publishCounter numbers dispatch tasks
	publishCounter uint64
}

// a subscription represents a single topic subscription.
type subscription struct {
	id         domain.SubscriptionID
	subscriber ports.Subscriber
}

// NewTopicBus creates a bus that dispatches through tasks.
func NewTopicBus(logger *slog.Logger, tasks TaskCreator) *TopicBus {
	return &TopicBus{
		logger: logger,
		tasks:  tasks,
		topics: make(map[domain.Topic][]subscription),
	}
}

// DeclareStandardTopics declares the full topic catalogue.
func DeclareStandardTopics(bus ports.EventBus) {
	for _, topic := range domain.AllTopics() {
		_ = bus.DeclareTopic(topic)
	}
}

// DeclareTopic registers a topic. A second declaration is a warning and leaves the
// existing subscribers untouched.
func (bus *TopicBus) DeclareTopic(topic domain.Topic) error {
	bus.mu.Lock()
	defer bus.mu.Unlock()

	if _, ok := bus.topics[topic]; ok {
		bus.logger.Warn("topic already declared", slog.String("topic", string(topic)))
		return domain.ErrTopicExists
	}
	bus.topics[topic] = nil
	return nil
}

// HasTopic reports whether the topic is declared.
func (bus *TopicBus) HasTopic(topic domain.Topic) bool {
	bus.mu.RLock()
	defer bus.mu.RUnlock()
	_, ok := bus.topics[topic]
	return ok
}

// Subscribe appends a subscriber to a declared topic.
func (bus *TopicBus) Subscribe(topic domain.Topic, subscriber ports.Subscriber) (domain.SubscriptionID, error) {
	if subscriber == nil {
		panic("event subscriber cannot be nil")
	}

	bus.mu.Lock()
	defer bus.mu.Unlock()

	subs, ok := bus.topics[topic]
	if !ok {
		bus.logger.Warn("subscribe to undeclared topic", slog.String("topic", string(topic)))
		return "", domain.ErrTopicNotDeclared
	}
	for _, sub := range subs {
		if sameSubscriber(sub.subscriber, subscriber) {
			bus.logger.Warn("subscriber already registered",
				slog.String("topic", string(topic)),
				slog.String("subscription", string(sub.id)))
			return sub.id, domain.ErrAlreadySubscribed
		}
	}

	bus.idCounter++
	id := domain.SubscriptionID(fmt.Sprintf("sub-%d", bus.idCounter))
	bus.topics[topic] = append(subs, subscription{id: id, subscriber: subscriber})
	return id, nil
}

// Unsubscribe removes a subscription, keeping the order of the others.
// Unknown IDs are a no-op.
func (bus *TopicBus) Unsubscribe(id domain.SubscriptionID) {
	bus.mu.Lock()
	defer bus.mu.Unlock()

	for topic, subs := range bus.topics {
		for i, sub := range subs {
			if sub.id == id {
				bus.topics[topic] = append(subs[:i:i], subs[i+1:]...)
				return
			}
		}
	}
}

// Publish schedules one dispatch task for the event.
// Panics in subscribers are recovered and logged, but do not stop other subscribers
// from being called.
func (bus *TopicBus) Publish(event domain.Event) error {
	if event == nil {
		return nil
	}
	topic := event.Topic()

	bus.mu.Lock()
	subs, ok := bus.topics[topic]
	if !ok {
		bus.mu.Unlock()
		bus.logger.Warn("publish to undeclared topic", slog.String("topic", string(topic)))
		return domain.ErrTopicNotDeclared
	}
	bus.publishCounter++
	name := fmt.Sprintf("%s handler #%d", topic, bus.publishCounter)
	snapshot := make([]subscription, len(subs))
	copy(snapshot, subs)
	bus.mu.Unlock()

	_, err := bus.tasks.CreateTask(name, func(ctx context.Context) error {
		for _, sub := range snapshot {
			bus.callSubscriber(ctx, sub, event)
		}
		return nil
	})
	if err != nil {
		bus.logger.Warn("event dropped", slog.String("topic", string(topic)), slog.Any("error", err))
	}
	return err
}

// callSubscriber calls a subscriber and recovers from panics.
func (bus *TopicBus) callSubscriber(ctx context.Context, sub subscription, event domain.Event) {
	defer func() {
		if r := recover(); r != nil {
			bus.logger.Error("event subscriber panicked",
				slog.Any("panic", r),
				slog.String("topic", string(event.Topic())),
				slog.String("subscription", string(sub.id)))
		}
	}()

	bus.logger.Debug("event dispatched",
		slog.String("topic", string(event.Topic())),
		slog.String("subscription", string(sub.id)))
	sub.subscriber.HandleEvent(ctx, event)
}

// SubscriberCount returns the number of subscriptions for a topic.
func (bus *TopicBus) SubscriberCount(topic domain.Topic) int {
	bus.mu.RLock()
	defer bus.mu.RUnlock()
	return len(bus.topics[topic])
}

// Topics returns the number of declared topics.
func (bus *TopicBus) Topics() int {
	bus.mu.RLock()
	defer bus.mu.RUnlock()
	return len(bus.topics)
}

// sameSubscriber compares subscribers by identity when their dynamic type allows it.
func sameSubscriber(a, b ports.Subscriber) bool {
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}
	return a == b
}

// Verify that TopicBus implements the EventBus interface
var _ ports.EventBus = (*TopicBus)(nil)
