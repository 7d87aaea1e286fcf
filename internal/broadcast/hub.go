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

package broadcast

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/loqalabs/loqa-subtitles/internal/events"
	"github.com/loqalabs/loqa-subtitles/internal/logging"
)

var (
	// ErrSlowConsumer is returned by Send when a client's outbound queue is full
	ErrSlowConsumer = errors.New("client outbound queue full")
	// ErrClientClosed is returned by Send after Close
	ErrClientClosed = errors.New("client closed")
	// ErrTooManyClients is returned by Register once the hub is full
	ErrTooManyClients = errors.New("maximum clients reached")
)

const defaultMaxClients = 100

// Client is one subscriber connection. Send must not block.
type Client interface {
	ID() string
	Send(msg []byte) error
	Close()
}

// Stats summarizes hub activity
type Stats struct {
	Clients   int    `json:"clients"`
	Delivered uint64 `json:"delivered"`
	Dropped   uint64 `json:"dropped"`
}

// Hub fans subtitles out to every connected client
type Hub struct {
	mutex      sync.RWMutex
	clients    map[string]Client
	maxClients int
	format     string

	delivered atomic.Uint64
	dropped   atomic.Uint64
}

// NewHub creates a hub that encodes subtitles in format
func NewHub(format string, maxClients int) *Hub {
	if maxClients <= 0 {
		maxClients = defaultMaxClients
	}
	if format == "" {
		format = events.FormatJSON
	}
	return &Hub{
		clients:    make(map[string]Client),
		maxClients: maxClients,
		format:     format,
	}
}

// Register adds a client to the hub
func (h *Hub) Register(c Client) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if len(h.clients) >= h.maxClients {
		return fmt.Errorf("%w: %d", ErrTooManyClients, h.maxClients)
	}
	h.clients[c.ID()] = c

	logging.LogBroadcast("client_registered", zap.String("client_id", c.ID()), zap.Int("clients", len(h.clients)))
	return nil
}

// Unregister removes and closes a client. Unknown ids are ignored.
func (h *Hub) Unregister(id string) {
	h.mutex.Lock()
	c, exists := h.clients[id]
	if exists {
		delete(h.clients, id)
	}
	remaining := len(h.clients)
	h.mutex.Unlock()

	if exists {
		c.Close()
		logging.LogBroadcast("client_removed", zap.String("client_id", id), zap.Int("clients", remaining))
	}
}

// Broadcast sends msg to every client and returns how many accepted it.
// A client whose Send fails is removed; the others are unaffected.
func (h *Hub) Broadcast(msg []byte) int {
	h.mutex.RLock()
	snapshot := make([]Client, 0, len(h.clients))
	for _, c := range h.clients {
		snapshot = append(snapshot, c)
	}
	h.mutex.RUnlock()

	delivered := 0
	for _, c := range snapshot {
		if err := c.Send(msg); err != nil {
			h.dropped.Add(1)
			logging.Sugar.Warnw("📴 Dropping subtitle client", "client_id", c.ID(), "error", err)
			h.Unregister(c.ID())
			continue
		}
		delivered++
	}

	h.delivered.Add(uint64(delivered))
	return delivered
}

// Deliver encodes sub in the hub's format and broadcasts it
func (h *Hub) Deliver(_ context.Context, sub *events.Subtitle) error {
	msg, err := sub.Encode(h.format)
	if err != nil {
		return err
	}
	h.Broadcast(msg)
	return nil
}

// Count returns the number of connected clients
func (h *Hub) Count() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// CloseAll disconnects every client
func (h *Hub) CloseAll() {
	h.mutex.Lock()
	clients := h.clients
	h.clients = make(map[string]Client)
	h.mutex.Unlock()

	for _, c := range clients {
		c.Close()
	}
	if len(clients) > 0 {
		logging.LogBroadcast("clients_closed", zap.Int("clients", len(clients)))
	}
}

// Stats returns a snapshot of hub counters
func (h *Hub) Stats() Stats {
	return Stats{
		Clients:   h.Count(),
		Delivered: h.delivered.Load(),
		Dropped:   h.dropped.Load(),
	}
}
