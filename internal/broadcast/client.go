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
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/loqalabs/loqa-subtitles/internal/logging"
)

const (
	writeWait      = 10 * time.Second
	pingPeriod     = 20 * time.Second
	pongWait       = 10 * time.Second
	maxMessageSize = 1 << 20
)

// WSClient is a websocket subscriber with a bounded outbound queue
type WSClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte

	done      chan struct{}
	closeOnce sync.Once
}

// NewWSClient wraps an upgraded connection
func NewWSClient(conn *websocket.Conn, queueSize int) *WSClient {
	if queueSize <= 0 {
		queueSize = 16
	}
	return &WSClient{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, queueSize),
		done: make(chan struct{}),
	}
}

// ID implements Client
func (c *WSClient) ID() string {
	return c.id
}

// Send queues msg without blocking
func (c *WSClient) Send(msg []byte) error {
	select {
	case <-c.done:
		return ErrClientClosed
	default:
	}

	select {
	case c.send <- msg:
		return nil
	default:
		return ErrSlowConsumer
	}
}

// Close stops the client's pumps. Safe to call more than once.
func (c *WSClient) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Done is closed once the client is closed
func (c *WSClient) Done() <-chan struct{} {
	return c.done
}

// Run pumps queued messages to the peer until the connection fails or
// Close is called, then closes the connection.
func (c *WSClient) Run() {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.readPump()
	}()

	c.writePump()
	_ = c.conn.Close()
	wg.Wait()
}

// readPump discards peer messages and keeps the read deadline alive on pong
func (c *WSClient) readPump() {
	defer c.Close()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pingPeriod + pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pingPeriod + pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logging.Sugar.Debugw("Websocket read failed", "client_id", c.id, "error", err)
			}
			return
		}
	}
}

func (c *WSClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "server shutdown"),
				time.Now().Add(writeWait))
			return

		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				logging.Sugar.Debugw("Websocket write failed", "client_id", c.id, "error", err)
				c.Close()
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		}
	}
}
