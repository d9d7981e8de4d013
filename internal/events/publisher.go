package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/digkill/NabiBot/internal/models"
)

// CreationEvent is published once per generation that reached the user.
type CreationEvent struct {
	Phone     string            `json:"phone"`
	Type      models.IntentType `json:"type"`
	ResultURL string            `json:"result_url"`
	CreatedAt time.Time         `json:"created_at"`
}

type conn interface {
	Publish(subject string, data []byte) error
}

// Publisher sends creation events to a NATS subject. A nil *Publisher is a
// valid no-op, used when NATS is not configured.
type Publisher struct {
	nc      conn
	subject string
	log     *slog.Logger
}

// Connect dials url and returns a Publisher plus a close func that drains the
// connection.
func Connect(url, subject string, log *slog.Logger) (*Publisher, func(), error) {
	nc, err := nats.Connect(url,
		nats.Name("nabibot"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", "err", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("connect nats: %w", err)
	}
	closeFn := func() {
		if err := nc.Drain(); err != nil {
			log.Warn("nats drain", "err", err)
		}
	}
	return newPublisher(nc, subject, log), closeFn, nil
}

func newPublisher(nc conn, subject string, log *slog.Logger) *Publisher {
	return &Publisher{nc: nc, subject: subject, log: log}
}

// PublishCreation is fire-and-forget: failures are logged.
func (p *Publisher) PublishCreation(_ context.Context, event CreationEvent) {
	if p == nil || p.nc == nil {
		return
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(event)
	if err != nil {
		p.log.Error("marshal creation event", "err", err)
		return
	}
	if err := p.nc.Publish(p.subject, data); err != nil {
		p.log.Warn("publish creation event", "subject", p.subject, "phone", event.Phone, "err", err)
		return
	}
	p.log.Debug("creation event published", "subject", p.subject, "type", event.Type)
}
