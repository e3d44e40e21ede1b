// Package nsq adapts github.com/nsqio/go-nsq to the pubsub.Publisher and
// pubsub.Subscriber contracts, the transport the orchestrator was built
// against.
package nsq

import (
	"context"
	"time"

	gonsq "github.com/nsqio/go-nsq"

	"github.com/pescan-dev/pescan/pkg/pubsub"
)

// Publisher publishes to a single nsqd instance.
type Publisher struct {
	producer *gonsq.Producer
}

// NewPublisher dials nsqd at addr (host:port).
func NewPublisher(addr string) (*Publisher, error) {
	cfg := gonsq.NewConfig()
	p, err := gonsq.NewProducer(addr, cfg)
	if err != nil {
		return nil, err
	}
	return &Publisher{producer: p}, nil
}

// Publish implements pubsub.Publisher. ctx is accepted for interface
// symmetry; go-nsq's Publish call has no context parameter of its own.
func (p *Publisher) Publish(ctx context.Context, topic string, body []byte) error {
	return p.producer.Publish(topic, body)
}

// Stop tears down the underlying producer connection.
func (p *Publisher) Stop() { p.producer.Stop() }

var _ pubsub.Publisher = (*Publisher)(nil)

// handlerFunc adapts a pubsub.Handler to gonsq.Handler.
type handlerFunc struct {
	h pubsub.Handler
}

func (hf handlerFunc) HandleMessage(m *gonsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}
	return hf.h.HandleMessage(m.Body)
}

// Subscriber drives a pubsub.Handler over a topic/channel pair, fanning
// out across concurrency NSQ consumer goroutines.
type Subscriber struct {
	consumer *gonsq.Consumer
	lookupds []string
}

// NewSubscriber builds a consumer bound to topic/channel with the given
// handler concurrency, connecting to the supplied nsqlookupd addresses
// once Start is called.
func NewSubscriber(topic, channel string, lookupds []string, concurrency int, handler pubsub.Handler) (*Subscriber, error) {
	cfg := gonsq.NewConfig()
	cfg.MaxInFlight = concurrency
	cfg.LookupdPollInterval = 15 * time.Second

	c, err := gonsq.NewConsumer(topic, channel, cfg)
	if err != nil {
		return nil, err
	}
	c.AddConcurrentHandlers(handlerFunc{h: handler}, concurrency)

	return &Subscriber{consumer: c, lookupds: lookupds}, nil
}

// Start implements pubsub.Subscriber.
func (s *Subscriber) Start() error {
	return s.consumer.ConnectToNSQLookupds(s.lookupds)
}

// Stop implements pubsub.Subscriber.
func (s *Subscriber) Stop() {
	s.consumer.Stop()
	<-s.consumer.StopChan
}

var _ pubsub.Subscriber = (*Subscriber)(nil)
