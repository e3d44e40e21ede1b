// Package pubsub defines the small Publisher/Subscriber contract the scan
// orchestrator depends on, the same shape the original service was built
// against, kept here as a thin interface so the orchestrator never imports
// a transport package directly.
package pubsub

import "context"

// Publisher sends a message body to a named topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, body []byte) error
}

// Handler processes one message off a subscribed topic/channel. Returning
// an error causes the message to be re-enqueued by the transport.
type Handler interface {
	HandleMessage(body []byte) error
}

// Subscriber drives a Handler over messages read from a topic/channel.
type Subscriber interface {
	Start() error
	Stop()
}
