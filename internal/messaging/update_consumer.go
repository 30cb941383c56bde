package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"
	amqp "github.com/streadway/amqp"
)

// ReportRefresher recomputes the cached reports of one portfolio.
type ReportRefresher interface {
	RefreshReports(ctx context.Context, portfolioID string) error
}

// PortfolioUpdateConsumer consumes portfolio.updated events and triggers a
// report refresh for the affected dataset.
type PortfolioUpdateConsumer struct {
	conn      *amqp.Connection
	channel   *amqp.Channel
	queueName string
	refresher ReportRefresher
	logger    *logrus.Logger
}

// NewPortfolioUpdateConsumer creates the consumer and binds its queue to the
// update exchange.
func NewPortfolioUpdateConsumer(rabbitURL, exchange, queueName string, refresher ReportRefresher, logger *logrus.Logger) (*PortfolioUpdateConsumer, error) {
	conn, err := amqp.Dial(rabbitURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	err = channel.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	queue, err := channel.QueueDeclare(
		queueName, // name
		true,      // durable
		false,     // delete when unused
		false,     // exclusive
		false,     // no-wait
		nil,       // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	err = channel.QueueBind(
		queue.Name,
		"portfolio.updated", // routing key
		exchange,
		false,
		nil,
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to bind queue: %w", err)
	}

	logger.Infof("Portfolio update consumer initialized (queue: %s)", queueName)

	return &PortfolioUpdateConsumer{
		conn:      conn,
		channel:   channel,
		queueName: queueName,
		refresher: refresher,
		logger:    logger,
	}, nil
}

// Start consumes update events in the background until ctx is cancelled.
func (c *PortfolioUpdateConsumer) Start(ctx context.Context) error {
	msgs, err := c.channel.Consume(
		c.queueName, // queue
		"",          // consumer tag
		false,       // auto-ack
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	c.logger.Info("Portfolio update consumer started")

	go func() {
		for {
			select {
			case <-ctx.Done():
				c.logger.Info("Portfolio update consumer shutting down")
				return

			case msg, ok := <-msgs:
				if !ok {
					c.logger.Warn("Message channel closed")
					return
				}
				c.handle(ctx, msg)
			}
		}
	}()

	return nil
}

func (c *PortfolioUpdateConsumer) handle(ctx context.Context, msg amqp.Delivery) {
	var event PortfolioUpdatedMessage
	if err := json.Unmarshal(msg.Body, &event); err != nil {
		c.logger.Errorf("Failed to unmarshal update event: %v", err)
		msg.Nack(false, false)
		return
	}

	if event.PortfolioID == "" {
		c.logger.Warnf("Update event without portfolio_id (correlation_id: %s)", event.CorrelationID)
		msg.Nack(false, false)
		return
	}

	c.logger.WithFields(logrus.Fields{
		"portfolio_id":   event.PortfolioID,
		"correlation_id": event.CorrelationID,
	}).Debug("Portfolio update event received")

	if err := c.refresher.RefreshReports(ctx, event.PortfolioID); err != nil {
		c.logger.Errorf("Failed to refresh reports for portfolio %s: %v", event.PortfolioID, err)
		// Requeue once; broker redelivery handles transient store outages
		msg.Nack(false, !msg.Redelivered)
		return
	}

	msg.Ack(false)
}

// Close closes the consumer channel and connection.
func (c *PortfolioUpdateConsumer) Close() error {
	if err := c.channel.Close(); err != nil {
		c.logger.Warnf("Error closing channel: %v", err)
	}
	if err := c.conn.Close(); err != nil {
		return fmt.Errorf("failed to close connection: %w", err)
	}
	return nil
}
