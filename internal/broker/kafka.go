// Package broker publishes order lifecycle events to Kafka.
package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/order"
)

// DefaultTopic receives every order event.
const DefaultTopic = "storefront.orders"

// messageWriter is the subset of *kafka.Writer the publisher needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

var _ order.Publisher = (*Publisher)(nil)

// Publisher writes order events keyed by order ID, so all events of one
// order land on the same partition in order.
type Publisher struct {
	writer messageWriter
	now    func() time.Time
}

// NewPublisher creates a Publisher writing to topic on brokers.
func NewPublisher(brokers []string, topic string) *Publisher {
	if topic == "" {
		topic = DefaultTopic
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		MaxAttempts:            3,
		WriteTimeout:           10 * time.Second,
		AllowAutoTopicCreation: true,
	}
	return &Publisher{writer: w, now: time.Now}
}

// Publish implements order.Publisher.
func (p *Publisher) Publish(ctx context.Context, e order.Event) error {
	msg := kafka.Message{
		Key:   []byte(e.Order.ID),
		Value: encodeEvent(e, p.now()),
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(e.Type)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("writing %s event for order %q: %w", e.Type, e.Order.ID, err)
	}

	zctx.From(ctx).Debug("Published order event",
		zap.String("type", string(e.Type)),
		zap.String("order_id", e.Order.ID),
	)
	return nil
}

// Close flushes pending messages and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

func encodeEvent(e order.Event, at time.Time) []byte {
	o := e.Order
	var w jx.Encoder
	w.ObjStart()
	w.FieldStart("type")
	w.Str(string(e.Type))
	w.FieldStart("occurredAt")
	w.Str(at.UTC().Format(time.RFC3339Nano))
	w.FieldStart("orderId")
	w.Str(o.ID)
	w.FieldStart("userId")
	w.Str(o.UserID)
	w.FieldStart("status")
	w.Str(string(o.Status))
	w.FieldStart("totalAmount")
	w.Str(o.TotalAmount.StringFixed(2))
	w.FieldStart("appliedCoupons")
	w.ArrStart()
	for _, c := range o.AppliedCoupons {
		w.Str(c)
	}
	w.ArrEnd()
	w.FieldStart("items")
	w.ArrStart()
	for _, it := range o.Items {
		w.ObjStart()
		w.FieldStart("productId")
		w.Str(it.ProductID)
		w.FieldStart("quantity")
		w.Int(it.Quantity)
		w.ObjEnd()
	}
	w.ArrEnd()
	if o.AdminNote != "" {
		w.FieldStart("adminNote")
		w.Str(o.AdminNote)
	}
	w.ObjEnd()
	return w.Bytes()
}
