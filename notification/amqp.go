package notification

import (
	"context"
	"encoding/json"
	"time"

	extErrors "github.com/pkg/errors"
	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

const notificationExchange string = "marketplace_notification"

// AMQPNotifier publishes notification events to RabbitMQ, where the mailer
// workers consume them
type AMQPNotifier struct {
	connection *amqp.Connection
	channel    *amqp.Channel
	logger     *zap.Logger
}

var _ Notifier = &AMQPNotifier{}

// NewAMQPNotifier returns a Notifier over RabbitMQ
func NewAMQPNotifier(logger *zap.Logger, amqpURI string) (*AMQPNotifier, error) {
	amqpConn, err := amqp.Dial(amqpURI)
	if err != nil {
		return nil, extErrors.Wrap(err, "Cannot connect to Message Broker")
	}
	amqpChan, err := amqpConn.Channel()
	if err != nil {
		return nil, extErrors.Wrap(err, "Cannot create broker channel")
	}
	notifier := &AMQPNotifier{
		connection: amqpConn,
		channel:    amqpChan,
		logger:     logger,
	}
	if err := notifier.setupExchange(); err != nil {
		return nil, extErrors.Wrap(err, "Cannot declare exchange for notifications")
	}
	return notifier, nil
}

func (a *AMQPNotifier) setupExchange() error {
	return a.channel.ExchangeDeclare(
		notificationExchange, // name
		"topic",              // type
		true,                 // durable
		false,                // auto-deleted
		false,                // internal
		false,                // no-wait
		nil,                  // arguments
	)
}

// Close will close the channel and connection to release resources
func (a *AMQPNotifier) Close() {
	a.channel.Close()
	a.connection.Close()
}

// Emit publishes the event with the event type as routing key. Publish
// failures are logged only: notification loss must not affect the state
// transition that produced the event
func (a *AMQPNotifier) Emit(ctx context.Context, event Event) {
	if event.At.IsZero() {
		event.At = time.Now()
	}
	body, err := json.Marshal(&event)
	if err != nil {
		a.logger.Error("Cannot encode notification event",
			zap.String("Type", event.Type),
			zap.Error(err),
		)
		return
	}
	if err := a.channel.Publish(
		notificationExchange,
		event.Type,
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	); err != nil {
		// fail through: as long as database state is consistent, a lost
		// notification is acceptable
		a.logger.Error("Cannot publish notification event",
			zap.String("Type", event.Type),
			zap.String("RecipientID", event.RecipientID),
			zap.Error(err),
		)
	}
}
