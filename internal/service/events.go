package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"grts/pkg/config"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"
)

// Event is the wire form of a reconciliation change published for downstream consumers.
type Event struct {
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Change     *Change   `json:"change,omitempty"`
	ActorID    string    `json:"actor_id,omitempty"`
	Reason     string    `json:"reason,omitempty"`
}

type EventPublisher interface {
	Publish(ctx context.Context, ev Event) error
}

type PubSubPublisher struct {
	client *pubsub.Client
	topic  *pubsub.Topic
	logger *zap.Logger
}

// NewEventPublisher returns a no-op publisher when Pub/Sub is not configured.
func NewEventPublisher(ctx context.Context, cfg *config.PubSubConfig, logger *zap.Logger) (EventPublisher, func(), error) {
	if cfg.ProjectID == "" || cfg.TopicID == "" {
		logger.Info("Pub/Sub not configured, reconciliation events disabled")
		return NopPublisher{}, func() {}, nil
	}

	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create pubsub client: %w", err)
	}
	topic := client.Topic(cfg.TopicID)

	p := &PubSubPublisher{client: client, topic: topic, logger: logger}
	closeFn := func() {
		topic.Stop()
		if err := client.Close(); err != nil {
			logger.Warn("Failed to close pubsub client", zap.Error(err))
		}
	}
	return p, closeFn, nil
}

func (p *PubSubPublisher) Publish(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{"type": ev.Type},
	})
	id, err := result.Get(ctx)
	if err != nil {
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}

	p.logger.Debug("Event published", zap.String("type", ev.Type), zap.String("message_id", id))
	return nil
}

type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }

func eventEffect(p EventPublisher, ev Event) SideEffect {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	return SideEffect{
		Name: "event:" + ev.Type,
		Run: func(ctx context.Context) error {
			return p.Publish(ctx, ev)
		},
	}
}
