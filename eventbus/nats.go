package eventbus

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/nats-io/nats.go"
)

var _ Bus = (*NatsConn[Event])(nil)

// NatsConn publishes JSON messages on NATS subjects and decodes received
// ones into T.
type NatsConn[T any] struct {
	nc     *nats.Conn
	logger *slog.Logger
}

func NewNatsBus[T any](url string, opts ...nats.Option) (*NatsConn[T], error) {
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, err
	}
	return &NatsConn[T]{nc: nc, logger: slog.Default()}, nil
}

func (eb *NatsConn[T]) Publish(topic string, msg any) error {
	var data []byte
	if m, ok := msg.(Message); ok {
		data = m.Serialize()
	} else {
		var err error
		if data, err = json.Marshal(msg); err != nil {
			return err
		}
	}
	return eb.nc.Publish(topic, data)
}

func (eb *NatsConn[T]) Subscribe(topic string, handler MessageReceiver) {
	_, err := eb.nc.Subscribe(topic, eb.consumedMessages(context.Background(), handler.Receive))
	if err != nil {
		panic(err)
	}
}

func (eb *NatsConn[T]) consumedMessages(ctx context.Context, receiver func(ctx context.Context, msg any)) func(*nats.Msg) {
	return func(msg *nats.Msg) {
		v, err := deserialize[T](msg)
		if err != nil {
			eb.logger.Warn("dropping undecodable message", "subject", msg.Subject, "error", err)
			return
		}
		receiver(ctx, v)
	}
}

// Flush waits until the server has processed every published message.
func (eb *NatsConn[T]) Flush() error {
	return eb.nc.Flush()
}

// Close drains subscriptions and closes the connection.
func (eb *NatsConn[T]) Close() error {
	return eb.nc.Drain()
}

func deserialize[T any](message *nats.Msg) (T, error) {
	var msg T
	err := json.Unmarshal(message.Data, &msg)
	return msg, err
}
