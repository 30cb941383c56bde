package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	amqp "github.com/streadway/amqp"

	"creditrisk-api/internal/analytics"
)

// AlertPublisher publishes covenant breach alerts for downstream consumers
// (risk desks, notification services).
type AlertPublisher struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	exchange   string
	routingKey string
	logger     *logrus.Logger
}

// NewAlertPublisher creates the publisher and declares the alert exchange.
func NewAlertPublisher(rabbitURL, exchange, routingKey string, logger *logrus.Logger) (*AlertPublisher, error) {
	conn, err := amqp.Dial(rabbitURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	// Declare exchange (idempotent)
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

	logger.Infof("Alert publisher initialized (exchange: %s, routing_key: %s)", exchange, routingKey)

	return &AlertPublisher{
		conn:       conn,
		channel:    channel,
		exchange:   exchange,
		routingKey: routingKey,
		logger:     logger,
	}, nil
}

// PublishCovenantBreach publishes an alert summarizing a covenant report
// with at least one breached loan.
func (p *AlertPublisher) PublishCovenantBreach(ctx context.Context, portfolioID string, report *analytics.CovenantReport) error {
	alert := CovenantBreachAlert{
		CorrelationID:  uuid.New().String(),
		PortfolioID:    portfolioID,
		BreachedLoans:  report.TotalLoans - report.CompliantCount - report.DataUnavailableCount,
		TotalLoans:     report.TotalLoans,
		BreachExposure: report.BreachExposure,
		CompliantPct:   report.CompliantPct,
		Timestamp:      time.Now(),
	}

	body, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	err = p.channel.Publish(
		p.exchange,
		p.routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			CorrelationId: alert.CorrelationID,
			ContentType:   "application/json",
			Body:          body,
			Timestamp:     time.Now(),
			DeliveryMode:  amqp.Persistent,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish alert: %w", err)
	}

	p.logger.WithFields(logrus.Fields{
		"portfolio_id":   portfolioID,
		"breached_loans": alert.BreachedLoans,
	}).Info("Covenant breach alert published")

	return nil
}

// Close closes the publisher channel and connection.
func (p *AlertPublisher) Close() error {
	if err := p.channel.Close(); err != nil {
		p.logger.Warnf("Error closing channel: %v", err)
	}
	if err := p.conn.Close(); err != nil {
		return fmt.Errorf("failed to close connection: %w", err)
	}
	return nil
}
