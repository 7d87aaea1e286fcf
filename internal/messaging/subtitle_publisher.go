/*
 * This file is part of Loqa (https://github.com/loqalabs/loqa).
 * Copyright (C) 2025 Loqa Labs
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program. If not, see <https://www.gnu.org/licenses/>.
 */

package messaging

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/loqalabs/loqa-subtitles/internal/config"
	"github.com/loqalabs/loqa-subtitles/internal/events"
	"github.com/loqalabs/loqa-subtitles/internal/logging"
	"github.com/loqalabs/loqa-subtitles/internal/security"
)

// DefaultSubjectPrefix is prepended to the stream id to form the subject
const DefaultSubjectPrefix = "loqa.subtitles"

// Publisher is the part of *nats.Conn the subtitle publisher needs
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Connect establishes a connection to the NATS server with reconnect handling
func Connect(cfg config.NATSConfig) (*nats.Conn, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("NATS URL is empty")
	}
	reconnectWait := cfg.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}

	logging.LogNATSEvent("", "connecting", zap.String("url", security.RedactURL(cfg.URL)))

	opts := []nats.Option{
		nats.Name("loqa-subtitles"),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(cfg.MaxReconnect),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logging.Sugar.Warnw("⚠️  NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logging.Sugar.Infow("🔄 NATS reconnected", "url", security.RedactURL(nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logging.Sugar.Infow("🔌 NATS connection closed")
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	logging.Sugar.Infow("✅ Connected to NATS server", "url", security.RedactURL(conn.ConnectedUrl()))
	return conn, nil
}

// Subject returns the subject subtitles of streamID are published on
func Subject(prefix, streamID string) string {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return strings.TrimSuffix(prefix, ".") + "." + streamID
}

// SubtitlePublisher fans subtitle events out over NATS
type SubtitlePublisher struct {
	conn   Publisher
	prefix string

	published atomic.Uint64
	failed    atomic.Uint64
}

// NewSubtitlePublisher creates a publisher on conn
func NewSubtitlePublisher(conn Publisher, prefix string) *SubtitlePublisher {
	return &SubtitlePublisher{conn: conn, prefix: prefix}
}

// Deliver publishes sub as JSON on the stream's subject
func (p *SubtitlePublisher) Deliver(_ context.Context, sub *events.Subtitle) error {
	data, err := sub.Encode(events.FormatJSON)
	if err != nil {
		return err
	}

	subject := Subject(p.prefix, sub.StreamID)
	if err := p.conn.Publish(subject, data); err != nil {
		p.failed.Add(1)
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}

	p.published.Add(1)
	logging.Sugar.Debugw("📤 Published subtitle to NATS", "subject", subject, "seq", sub.Seq)
	return nil
}

// Published returns how many subtitles were published and how many failed
func (p *SubtitlePublisher) Published() (uint64, uint64) {
	return p.published.Load(), p.failed.Load()
}

// Subscribe delivers decoded subtitles of streamID to handler. Malformed
// messages are logged and skipped.
func Subscribe(nc *nats.Conn, prefix, streamID string, handler func(*events.Subtitle)) (*nats.Subscription, error) {
	if nc == nil {
		return nil, fmt.Errorf("NATS connection not established")
	}

	subject := Subject(prefix, streamID)
	sub, err := nc.Subscribe(subject, func(msg *nats.Msg) {
		event, err := events.Decode(msg.Data)
		if err != nil {
			logging.Sugar.Warnw("❌ Error unmarshaling subtitle", "subject", msg.Subject, "error", err)
			return
		}
		handler(event)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}

	logging.LogNATSEvent(subject, "subscribed")
	return sub, nil
}
