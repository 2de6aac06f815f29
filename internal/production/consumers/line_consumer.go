package consumers

import (
	"context"
	"fmt"

	"github.com/scanflow/scanflow-backend/internal/production/repository"
	"github.com/scanflow/scanflow-backend/pkg/logger"
	"github.com/scanflow/scanflow-backend/pkg/messaging"
)

// LineStatusConsumer applies line status changes coming from the plant
// supervision system.
type LineStatusConsumer struct {
	consumer *messaging.Consumer
	lines    *repository.LineRepository
	logger   *logger.Logger
}

// NewLineStatusConsumer creates and wires the consumer to the line
// events exchange.
func NewLineStatusConsumer(rmq *messaging.RabbitMQ, lines *repository.LineRepository, log *logger.Logger) (*LineStatusConsumer, error) {
	consumer, err := messaging.NewConsumer(rmq, "scan-service.line-status", log)
	if err != nil {
		return nil, err
	}

	if err := consumer.Subscribe(messaging.ExchangeLineEvents, messaging.EventLineStatusChanged); err != nil {
		return nil, err
	}

	c := &LineStatusConsumer{
		consumer: consumer,
		lines:    lines,
		logger:   log.WithComponent("line-status-consumer"),
	}
	consumer.RegisterHandler(messaging.EventLineStatusChanged, c.handleStatusChanged)
	return c, nil
}

// Start begins consuming line status events
func (c *LineStatusConsumer) Start(ctx context.Context) error {
	return c.consumer.Start(ctx)
}

func (c *LineStatusConsumer) handleStatusChanged(ctx context.Context, event *messaging.Event) error {
	var payload messaging.LineStatusChangedEvent
	if err := event.UnmarshalData(&payload); err != nil {
		return fmt.Errorf("failed to unmarshal line status event: %w", err)
	}

	switch payload.Status {
	case repository.LineStatusActive, repository.LineStatusMaintenance, repository.LineStatusStopped:
	default:
		return fmt.Errorf("unknown line status %q", payload.Status)
	}

	if err := c.lines.UpdateStatus(ctx, payload.LineID, payload.Status); err != nil {
		return fmt.Errorf("failed to update line %s: %w", payload.LineID, err)
	}

	c.logger.Info().
		Str("line_id", payload.LineID).
		Str("status", payload.Status).
		Msg("line status updated from supervision event")
	return nil
}
