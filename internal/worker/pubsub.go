package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"github.com/stationcheck/stationcheck/internal/station"
)

// Job types carried in trigger messages.
const (
	JobContractRun = "contract_run"
	JobHealthCheck = "health_check"
)

// ErrUnknownJobType is returned for trigger messages with an unsupported job type.
var ErrUnknownJobType = errors.New("unknown job type")

// TriggerMessage requests a job.
type TriggerMessage struct {
	JobType    string  `json:"job_type"`
	StationIDs []int64 `json:"station_ids,omitempty"`
}

// PubSubHandler runs jobs in response to Pub/Sub messages.
type PubSubHandler struct {
	client           *pubsub.Client
	subscriber       *pubsub.Subscriber
	subscriptionName string
	job              *ContractJob
	logger           zerolog.Logger
}

// PubSubConfig holds configuration for the Pub/Sub handler.
type PubSubConfig struct {
	ProjectID        string
	SubscriptionName string
	Job              *ContractJob
	Logger           zerolog.Logger

	// ClientOptions are passed to the Pub/Sub client (optional).
	ClientOptions []option.ClientOption
}

// NewPubSubHandler creates a new Pub/Sub handler.
func NewPubSubHandler(ctx context.Context, cfg PubSubConfig) (*PubSubHandler, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID, cfg.ClientOptions...)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	subscriber := client.Subscriber(cfg.SubscriptionName)

	// Contract runs hold station state; process one at a time.
	subscriber.ReceiveSettings.MaxOutstandingMessages = 1
	subscriber.ReceiveSettings.MaxExtension = 10 * time.Minute

	return &PubSubHandler{
		client:           client,
		subscriber:       subscriber,
		subscriptionName: cfg.SubscriptionName,
		job:              cfg.Job,
		logger:           cfg.Logger,
	}, nil
}

// Start processes messages until ctx is cancelled.
func (h *PubSubHandler) Start(ctx context.Context) error {
	h.logger.Info().
		Str("subscription", h.subscriptionName).
		Msg("starting pubsub handler")

	return h.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		h.handleMessage(ctx, msg)
	})
}

// Close closes the Pub/Sub client.
func (h *PubSubHandler) Close() error {
	return h.client.Close()
}

func (h *PubSubHandler) handleMessage(ctx context.Context, msg *pubsub.Message) {
	logger := h.logger.With().
		Str("message_id", msg.ID).
		Str("publish_time", msg.PublishTime.Format(time.RFC3339)).
		Logger()

	logger.Debug().Msg("received pubsub message")

	err := h.job.Handle(ctx, msg.Data)
	switch {
	case errors.Is(err, ErrUnknownJobType):
		logger.Warn().Err(err).Msg("dropping message")
		msg.Ack()
	case err != nil:
		logger.Error().Err(err).Msg("job failed")
		msg.Nack()
	default:
		msg.Ack()
	}
}

// Handle decodes a trigger message and runs the requested job. A run that
// finds contract violations is not an error; the report carries them.
func (j *ContractJob) Handle(ctx context.Context, data []byte) error {
	var msg TriggerMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("%w: %v", ErrUnknownJobType, err)
	}

	switch msg.JobType {
	case JobContractRun:
		ids := make([]station.StationID, 0, len(msg.StationIDs))
		for _, id := range msg.StationIDs {
			ids = append(ids, station.StationID(id))
		}
		rep, err := j.Run(ctx, ids)
		if err != nil {
			return err
		}
		j.logger.Info().
			Str("report_id", rep.ID).
			Int("failed", rep.Summary.Failed).
			Msg("contract run completed")
		return nil
	case JobHealthCheck:
		return j.HealthCheck(ctx)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownJobType, msg.JobType)
	}
}
