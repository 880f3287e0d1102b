package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// OperatorConsumer reads the order topic and raises incomplete checkouts
// (orphaned orders and unreconciled stock) as error logs for follow-up.
type OperatorConsumer struct {
	reader messageReader
	alerts func(Event)
}

func NewOperatorConsumer(reader *kafka.Reader) *OperatorConsumer {
	return &OperatorConsumer{reader: reader, alerts: logAlert}
}

// Run blocks until ctx is cancelled or the reader is closed.
func (c *OperatorConsumer) Run(ctx context.Context) {
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				log.Info().Msg("Operator consumer stopped")
				return
			}
			log.Error().Err(err).Msg("Error reading order event")
			continue
		}
		c.processMessage(msg)
	}
}

func (c *OperatorConsumer) Close() error {
	return c.reader.Close()
}

func (c *OperatorConsumer) processMessage(msg kafka.Message) {
	var event Event
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		log.Error().Err(err).Str("key", string(msg.Key)).Msg("Error unmarshalling order event")
		return
	}

	switch event.Type {
	case OrderItemsFailed, OrderStockWarning:
		c.alerts(event)
	case OrderCreated:
		log.Debug().Str("order_id", event.OrderID).Msg("Order created")
	default:
		log.Warn().Str("type", event.Type).Msg("Unknown order event")
	}
}

func logAlert(event Event) {
	log.Error().
		Str("type", event.Type).
		Str("order_id", event.OrderID).
		Interface("data", event.Data).
		Msg("Order needs operator follow-up")
}
