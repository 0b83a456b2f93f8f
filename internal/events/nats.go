package events

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// DefaultSubject is the NATS subject capture events are published on
const DefaultSubject = "snapd.captures"

type publisher interface {
	Publish(subject string, data []byte) error
}

// NATSPublisher publishes capture events to a NATS subject
type NATSPublisher struct {
	conn    publisher
	nc      *nats.Conn
	subject string
	logger  zerolog.Logger
}

// ConnectNATS connects to the NATS server at url
func ConnectNATS(url, subject, name string, logger zerolog.Logger) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info().Str("url", c.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	p := newNATSPublisher(nc, subject, logger)
	p.nc = nc
	return p, nil
}

func newNATSPublisher(conn publisher, subject string, logger zerolog.Logger) *NATSPublisher {
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATSPublisher{
		conn:    conn,
		subject: subject,
		logger:  logger,
	}
}

// Notify publishes the event as JSON. Publish errors are logged and dropped.
func (p *NATSPublisher) Notify(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		p.logger.Error().Err(err).Msg("Failed to marshal capture event")
		return
	}

	if err := p.conn.Publish(p.subject, data); err != nil {
		p.logger.Warn().Err(err).Str("subject", p.subject).Msg("Failed to publish capture event")
	}
}

// Subject returns the subject events are published on
func (p *NATSPublisher) Subject() string {
	return p.subject
}

// Close drains pending messages and closes the connection
func (p *NATSPublisher) Close() error {
	if p.nc == nil {
		return nil
	}
	if err := p.nc.Drain(); err != nil {
		p.nc.Close()
		return fmt.Errorf("failed to drain NATS connection: %w", err)
	}
	return nil
}
