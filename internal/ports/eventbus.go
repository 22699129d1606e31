// Package ports define the EventBus interface for event-driven communication.
// The event bus decouples state-change producers from their consumers by topic.
package ports

import (
	"context"

	"github.com/tejashwikalptaru/tubetune/internal/domain"
)

// Subscriber receives the events of the topics it is subscribed to.
//
// Pointer subscribers are compared by identity, so subscribing the same pointer twice
// to one topic is rejected. SubscriberFunc values cannot be compared and are never
// considered duplicates.
type Subscriber interface {
	// HandleEvent runs inside the cooperative dispatch task of one publish.
	// ctx belongs to that task; handlers may suspend on it.
	HandleEvent(ctx context.Context, event domain.Event)
}

// SubscriberFunc adapts a plain function to the Subscriber interface.
type SubscriberFunc func(ctx context.Context, event domain.Event)

// HandleEvent calls f(ctx, event).
func (f SubscriberFunc) HandleEvent(ctx context.Context, event domain.Event) {
	f(ctx, event)
}

// EventBus is the interface for publishing and subscribing to named topics.
//
// Example usage:
//
//	bus.DeclareTopic(domain.TopicAudioTrackStart)
//	id, _ := bus.Subscribe(domain.TopicAudioTrackStart, ports.SubscriberFunc(func(ctx context.Context, e domain.Event) {
//	    started := e.(domain.TrackEvent)
//	    view.ShowTrack(started.Track)
//	}))
//	bus.Publish(domain.NewTrackEvent(domain.TopicAudioTrackStart, "mix", track, 0))
//
// Thread-safety: Implementations must be thread-safe; the download listener publishes
// from its own goroutine.
type EventBus interface {
	// DeclareTopic registers a topic. Declaring an existing topic is a logged no-op
	// that returns domain.ErrTopicExists.
	DeclareTopic(topic domain.Topic) error

	// Subscribe adds a subscriber at the end of the topic's subscriber list.
	// Unknown topics and duplicate subscribers are logged and rejected.
	Subscribe(topic domain.Topic, subscriber Subscriber) (domain.SubscriptionID, error)

	// Unsubscribe removes a subscription. Unknown IDs are ignored.
	Unsubscribe(id domain.SubscriptionID)

	// Publish dispatches the event asynchronously: the subscribers run later, in
	// subscription order, inside one new cooperative task. Publishing to an unknown
	// topic is logged and dropped.
	Publish(event domain.Event) error

	// HasTopic reports whether the topic is declared.
	HasTopic(topic domain.Topic) bool
}
