package events

import (
	"context"
	"encoding/json"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// AMQPPublisher mirrors ticket lifecycle events onto a RabbitMQ topic
// exchange so external consumers (dashboards, audit sinks) can follow along.
type AMQPPublisher struct {
	conn     *amqp091.Connection
	channel  *amqp091.Channel
	exchange string
	logger   *zap.Logger
}

// NewAMQPPublisher connects and declares the exchange. url may be empty, in
// which case the publisher is disabled and every method is a no-op.
func NewAMQPPublisher(url, exchange string, logger *zap.Logger) (*AMQPPublisher, error) {
	if url == "" {
		return nil, nil
	}
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, err
	}
	return &AMQPPublisher{conn: conn, channel: ch, exchange: exchange, logger: logger}, nil
}

// BindTo subscribes the publisher to every lifecycle event on the dispatcher.
func (p *AMQPPublisher) BindTo(dispatcher Dispatcher) {
	if p == nil {
		return
	}
	for _, eventType := range []EventType{
		EventTicketOpened,
		EventTicketClaimed,
		EventTicketTransferred,
		EventTicketClosed,
		EventTicketSuspended,
		EventCloseScheduled,
		EventCloseCanceled,
		EventWatchersNotified,
	} {
		dispatcher.Subscribe(eventType, p.publish)
	}
}

func (p *AMQPPublisher) publish(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	err = p.channel.PublishWithContext(ctx, p.exchange, "ticket."+string(event.Type), false, false, amqp091.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
	if err != nil {
		p.logger.Warn("amqp publish failed", zap.String("event_type", string(event.Type)), zap.Error(err))
	}
	return err
}

// Close terminates the connection.
func (p *AMQPPublisher) Close() error {
	if p == nil {
		return nil
	}
	if err := p.channel.Close(); err != nil {
		p.logger.Warn("amqp channel close failed", zap.Error(err))
	}
	return p.conn.Close()
}
