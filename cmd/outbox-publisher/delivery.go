package main

import (
	"context"
	"errors"
	"strconv"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
)

type publisherFactory func(topic string) publisher

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
	Stop()
}

type publishResult interface {
	Get(context.Context) (string, error)
}

// topicPublishers hands out one publisher per topic for the life of the
// loop. Pub/Sub publishers batch in background goroutines, so each one is
// created once and stopped on shutdown to flush.
type topicPublishers struct {
	factory publisherFactory
	byTopic map[string]publisher
}

func newTopicPublishers(factory publisherFactory) *topicPublishers {
	if factory == nil {
		return nil
	}
	return &topicPublishers{factory: factory, byTopic: map[string]publisher{}}
}

func (p *topicPublishers) forTopic(topic string) publisher {
	if pub, ok := p.byTopic[topic]; ok {
		return pub
	}
	pub := p.factory(topic)
	if pub != nil {
		p.byTopic[topic] = pub
	}
	return pub
}

func (p *topicPublishers) stopAll() {
	if p == nil {
		return
	}
	for topic, pub := range p.byTopic {
		pub.Stop()
		delete(p.byTopic, topic)
	}
}

// outboxMessage carries the stored envelope verbatim; attributes let
// subscribers filter without decoding the body.
func outboxMessage(event models.OutboxEvent, envelope outbox.PayloadEnvelope) *gcppubsub.Message {
	attrs := map[string]string{
		"event_id":       envelope.EventID,
		"event_type":     string(event.EventType),
		"aggregate_type": string(event.AggregateType),
		"aggregate_id":   event.AggregateID.String(),
		"created_at":     event.CreatedAt.Format(time.RFC3339Nano),
	}
	if envelope.Version > 0 {
		attrs["envelope_version"] = strconv.Itoa(envelope.Version)
	}
	return &gcppubsub.Message{Data: event.Payload, Attributes: attrs}
}

// gcpPublisher adapts the SDK publisher. When ordering is on, messages are
// keyed by aggregate id; a failed publish pauses that key in the SDK until
// ResumePublish, which the result does once the failure has been observed.
type gcpPublisher struct {
	pub     *gcppubsub.Publisher
	ordered bool
}

func newGCPPublisher(p *gcppubsub.Publisher, ordered bool) publisher {
	if p == nil {
		return nil
	}
	return gcpPublisher{pub: p, ordered: ordered}
}

func (p gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	if p.ordered {
		msg.OrderingKey = msg.Attributes["aggregate_id"]
	}
	return gcpResult{res: p.pub.Publish(ctx, msg), resume: func() {
		if msg.OrderingKey != "" {
			p.pub.ResumePublish(msg.OrderingKey)
		}
	}}
}

func (p gcpPublisher) Stop() { p.pub.Stop() }

type gcpResult struct {
	res    *gcppubsub.PublishResult
	resume func()
}

func (r gcpResult) Get(ctx context.Context) (string, error) {
	if r.res == nil {
		return "", errors.New("publish result is nil")
	}
	id, err := r.res.Get(ctx)
	if err != nil {
		r.resume()
	}
	return id, err
}
