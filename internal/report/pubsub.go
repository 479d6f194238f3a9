package report

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"github.com/stationcheck/stationcheck/internal/contract"
)

// PubSubConfig holds configuration for the Pub/Sub publisher.
type PubSubConfig struct {
	ProjectID string
	TopicID   string
	Logger    zerolog.Logger

	// ClientOptions are passed to the Pub/Sub client (optional).
	ClientOptions []option.ClientOption
}

// PubSubPublisher publishes each report as one JSON message.
type PubSubPublisher struct {
	client    *pubsub.Client
	publisher *pubsub.Publisher
	topicID   string
	logger    zerolog.Logger
}

// NewPubSubPublisher creates a publisher for the given topic.
func NewPubSubPublisher(ctx context.Context, cfg PubSubConfig) (*PubSubPublisher, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID, cfg.ClientOptions...)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	return &PubSubPublisher{
		client:    client,
		publisher: client.Publisher(cfg.TopicID),
		topicID:   cfg.TopicID,
		logger:    cfg.Logger,
	}, nil
}

// Publish sends the report and waits for the server to acknowledge it.
func (p *PubSubPublisher) Publish(ctx context.Context, r *contract.Report) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}

	result := p.publisher.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"report_id": r.ID,
			"failed":    strconv.FormatBool(r.Failed()),
		},
	})
	serverID, err := result.Get(ctx)
	if err != nil {
		return fmt.Errorf("publishing report to %s: %w", p.topicID, err)
	}

	p.logger.Info().
		Str("report_id", r.ID).
		Str("topic", p.topicID).
		Str("message_id", serverID).
		Msg("published contract report")
	return nil
}

// Close flushes pending messages and closes the client.
func (p *PubSubPublisher) Close() error {
	p.publisher.Stop()
	return p.client.Close()
}
