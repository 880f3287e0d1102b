package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/streadway/amqp"
)

const publishTimeout = 5 * time.Second

// AMQPPublisher sends events to a topic exchange with the event type as
// routing key and waits for the broker confirm.
type AMQPPublisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	confirms chan amqp.Confirmation
	// deliveryTag is the tag the broker assigned to the last publish.
	deliveryTag uint64
}

func NewAMQPPublisher(url, exchange string) (*AMQPPublisher, error) {
	log.Info().Str("exchange", exchange).Msg("Connecting to RabbitMQ")
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to dial RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		conn.Close()
		return nil, fmt.Errorf("channel could not be put into confirm mode: %w", err)
	}
	if err := ch.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}

	return &AMQPPublisher{
		conn:     conn,
		channel:  ch,
		exchange: exchange,
		confirms: ch.NotifyPublish(make(chan amqp.Confirmation, 1)),
	}, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	// One publish in flight at a time so confirms line up with messages.
	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.channel.Publish(
		p.exchange, // exchange
		event.Type, // routing key
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    event.ID,
			Timestamp:    event.OccurredAt,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	p.deliveryTag++
	return awaitConfirm(ctx, p.confirms, p.deliveryTag, publishTimeout)
}

// awaitConfirm waits for the confirm of tag. Confirms left over from earlier
// publishes that gave up waiting are skipped.
func awaitConfirm(ctx context.Context, confirms <-chan amqp.Confirmation, tag uint64, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case confirm, ok := <-confirms:
			if !ok {
				return errors.New("confirm channel closed")
			}
			if confirm.DeliveryTag < tag {
				continue
			}
			if !confirm.Ack {
				return errors.New("event published but not confirmed by broker")
			}
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return errors.New("publish confirmation timeout")
		}
	}
}

func (p *AMQPPublisher) Close() error {
	if err := p.channel.Close(); err != nil {
		log.Error().Err(err).Msg("Error closing RabbitMQ channel")
	}
	return p.conn.Close()
}
