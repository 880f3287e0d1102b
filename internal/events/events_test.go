package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/streadway/amqp"
)

type fakeWriter struct {
	messages []kafka.Message
	err      error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestKafkaPublisherKeysByTypeAndOrder(t *testing.T) {
	w := &fakeWriter{}
	p := &KafkaPublisher{writer: w}

	event := NewEvent(OrderCreated, "o-1", "u-1", map[string]string{"state": "done"})
	if err := p.Publish(context.Background(), event); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(w.messages) != 1 {
		t.Fatalf("Expected 1 message, got %d", len(w.messages))
	}
	if key := string(w.messages[0].Key); key != "order.created.o-1" {
		t.Errorf("Expected key order.created.o-1, got %s", key)
	}

	var decoded Event
	if err := json.Unmarshal(w.messages[0].Value, &decoded); err != nil {
		t.Fatalf("Expected JSON payload, got %v", err)
	}
	if decoded.ID == "" || decoded.OrderID != "o-1" || decoded.Type != OrderCreated {
		t.Errorf("Unexpected event %+v", decoded)
	}
}

func TestKafkaPublisherReturnsWriteError(t *testing.T) {
	boom := errors.New("broker down")
	p := &KafkaPublisher{writer: &fakeWriter{err: boom}}
	if err := p.Publish(context.Background(), NewEvent(OrderCreated, "o-1", "", nil)); !errors.Is(err, boom) {
		t.Errorf("Expected broker error, got %v", err)
	}
}

type fakeReader struct {
	messages []kafka.Message
}

func (r *fakeReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.messages) == 0 {
		return kafka.Message{}, context.Canceled
	}
	msg := r.messages[0]
	r.messages = r.messages[1:]
	return msg, nil
}

func (r *fakeReader) Close() error { return nil }

func TestOperatorConsumerAlertsOnIncompleteCheckouts(t *testing.T) {
	var alerted []string
	messages := make([]kafka.Message, 0, 4)
	for _, e := range []Event{
		NewEvent(OrderCreated, "o-1", "", nil),
		NewEvent(OrderItemsFailed, "o-2", "", nil),
		NewEvent(OrderStockWarning, "o-3", "", nil),
	} {
		payload, _ := json.Marshal(e)
		messages = append(messages, kafka.Message{Key: []byte(e.Key()), Value: payload})
	}
	messages = append(messages, kafka.Message{Value: []byte("not json")})

	c := &OperatorConsumer{
		reader: &fakeReader{messages: messages},
		alerts: func(e Event) { alerted = append(alerted, e.OrderID) },
	}
	c.Run(context.Background())

	if len(alerted) != 2 || alerted[0] != "o-2" || alerted[1] != "o-3" {
		t.Errorf("Expected alerts for o-2 and o-3, got %v", alerted)
	}
}

func TestAwaitConfirmSkipsStaleConfirms(t *testing.T) {
	tests := []struct {
		name     string
		confirms []amqp.Confirmation
		tag      uint64
		wantErr  bool
	}{
		{"Own ack", []amqp.Confirmation{{DeliveryTag: 1, Ack: true}}, 1, false},
		{"Stale nack then own ack", []amqp.Confirmation{{DeliveryTag: 1, Ack: false}, {DeliveryTag: 2, Ack: true}}, 2, false},
		{"Stale ack then own nack", []amqp.Confirmation{{DeliveryTag: 1, Ack: true}, {DeliveryTag: 2, Ack: false}}, 2, true},
		{"Only stale ack", []amqp.Confirmation{{DeliveryTag: 1, Ack: true}}, 2, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch := make(chan amqp.Confirmation, len(tt.confirms))
			for _, c := range tt.confirms {
				ch <- c
			}
			err := awaitConfirm(context.Background(), ch, tt.tag, 20*time.Millisecond)
			if (err != nil) != tt.wantErr {
				t.Errorf("Expected error %v, got %v", tt.wantErr, err)
			}
		})
	}
}
