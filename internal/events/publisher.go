// Anidex - Anime & Manga Catalog Mirror
// Copyright 2026 K. Ishibashi (kitsunebi-dev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kitsunebi-dev/anidex

package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	natsgo "github.com/nats-io/nats.go"

	"github.com/kitsunebi-dev/anidex/internal/config"
	"github.com/kitsunebi-dev/anidex/internal/logging"
	"github.com/kitsunebi-dev/anidex/internal/metrics"
)

// defaultEventsSubject is used when the config leaves the subject empty.
const defaultEventsSubject = "catalog.entity.ingested"

// Publisher emits entity-ingested events to NATS JetStream. Implements
// the scheduler's EventPublisher contract. Safe for concurrent use.
type Publisher struct {
	publisher message.Publisher
	subject   string

	mu     sync.Mutex
	closed bool

	now func() time.Time
}

// NewPublisher connects a Watermill NATS publisher to the given server
// URL. The JetStream stream is auto-provisioned on first publish, and
// message IDs are tracked for deduplication.
func NewPublisher(cfg *config.NATSConfig, url string) (*Publisher, error) {
	logger := NewWatermillLogger()

	natsOpts := []natsgo.Option{
		natsgo.Name("anidex-events"),
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(time.Second),
		natsgo.DisconnectErrHandler(func(nc *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("NATS disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("NATS reconnected", watermill.LogFields{
				"url": nc.ConnectedUrl(),
			})
		}),
	}

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         url,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			Disabled:      false,
			AutoProvision: true,
			TrackMsgId:    true,
			PublishOptions: []natsgo.PubOpt{
				natsgo.RetryAttempts(3),
				natsgo.RetryWait(100 * time.Millisecond),
			},
		},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create watermill publisher: %w", err)
	}

	subject := cfg.EventsSubject
	if subject == "" {
		subject = defaultEventsSubject
	}

	return &Publisher{
		publisher: pub,
		subject:   subject,
		now:       time.Now,
	}, nil
}

// PublishEntityIngested emits one entity-ingested event. The event ID is
// set as the NATS message ID so redeliveries deduplicate server-side.
func (p *Publisher) PublishEntityIngested(ctx context.Context, entityType string, malID int, title string) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return fmt.Errorf("event publisher is closed")
	}
	p.mu.Unlock()

	event := &EntityIngestedEvent{
		SchemaVersion: SchemaVersion,
		EventID:       uuid.New().String(),
		EntityType:    entityType,
		MalID:         malID,
		Title:         title,
		IngestedAt:    p.now().UTC(),
	}

	data, err := SerializeEvent(event)
	if err != nil {
		return err
	}

	msg := message.NewMessage(event.EventID, data)
	msg.Metadata.Set("entity_type", entityType)
	msg.Metadata.Set(natsgo.MsgIdHdr, event.EventID)

	if err := p.publisher.Publish(p.subject, msg); err != nil {
		return fmt.Errorf("failed to publish event %s: %w", event.EventID, err)
	}

	metrics.EventsPublished.WithLabelValues(entityType).Inc()
	logging.Ctx(ctx).Debug().
		Str("event_id", event.EventID).
		Str("entity_type", entityType).
		Int("mal_id", malID).
		Msg("Entity-ingested event published")
	return nil
}

// Close shuts down the underlying publisher. Idempotent.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.publisher.Close()
}
