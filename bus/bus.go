// Package bus defines the topic-based publish/subscribe contract the fabric
// core consumes from an external message bus, plus two implementations: a
// Redis-backed Bus for production and integration tests, and an in-process
// Bus for unit tests and single-process embeddings.
//
// The core never imports a concrete bus; every subsystem that needs to
// publish or subscribe takes a Bus interface value at construction time.
package bus

import (
	"context"
	"strings"
)

// Message is the envelope delivered to subscribers.
type Message struct {
	Topic   string
	Payload map[string]any
	Headers map[string]string
}

// Handler processes a delivered message. Invocation may be concurrent, and
// handlers must not block longer than they're willing to delay other
// subscribers on the same process.
type Handler func(ctx context.Context, topic string, payload map[string]any)

// Bus is the topic-based pub/sub contract. Delivery is at-least-once;
// consumers must be idempotent. Ordering per topic per publisher is
// preserved; ordering across topics is not guaranteed.
type Bus interface {
	// Publish delivers message to all active subscribers whose pattern
	// matches topic. A trailing "#" in a subscription pattern matches any
	// suffix, e.g. "lifecycle.state.#" matches "lifecycle.state.comp-1".
	Publish(ctx context.Context, topic string, payload map[string]any, headers map[string]string) error

	// Subscribe registers handler for all future messages whose topic
	// matches pattern. Returns an unsubscribe function.
	Subscribe(ctx context.Context, pattern string, handler Handler) (func() error, error)

	// Close releases bus resources.
	Close() error
}

// Reserved topic names and prefixes used by the fabric core (spec §6).
const (
	TopicRegistrationRequest   = "tekton.registration.request"
	TopicRegistrationCompleted = "tekton.registration.completed"
	TopicRegistrationRevoked   = "tekton.registration.revoked"
	TopicRegistrationHeartbeat = "tekton.registration.heartbeat"
	TopicDeadlockDetected      = "lifecycle.deadlock.detected"
)

// RegistrationResponseTopic builds the per-component registration response topic.
func RegistrationResponseTopic(componentID string) string {
	return "tekton.registration.response." + componentID
}

// ComponentStatusTopic builds the per-component status topic.
func ComponentStatusTopic(componentID string) string {
	return "components/status/" + componentID
}

// ComponentEventTopic builds the per-component, per-event topic.
func ComponentEventTopic(componentID, event string) string {
	return "components/events/" + componentID + "/" + event
}

// ComponentCommandTopic builds the per-component, per-command topic.
func ComponentCommandTopic(componentID, command string) string {
	return "components/commands/" + componentID + "/" + command
}

// LifecycleStateTopic builds the per-component lifecycle state topic.
func LifecycleStateTopic(componentID string) string {
	return "lifecycle.state." + componentID
}

// matchTopic reports whether topic matches pattern. A pattern ending in "#"
// matches any topic sharing its prefix (up to and including the separator);
// any other pattern must match the topic exactly.
func matchTopic(pattern, topic string) bool {
	if strings.HasSuffix(pattern, "#") {
		prefix := strings.TrimSuffix(pattern, "#")
		return strings.HasPrefix(topic, prefix)
	}
	return pattern == topic
}
