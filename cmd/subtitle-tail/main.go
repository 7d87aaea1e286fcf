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

// subtitle-tail prints subtitles from a running loqa-subtitles server,
// either over its websocket feed or from NATS.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/loqalabs/loqa-subtitles/internal/config"
	"github.com/loqalabs/loqa-subtitles/internal/events"
	"github.com/loqalabs/loqa-subtitles/internal/messaging"
)

func main() {
	var (
		server   = flag.String("server", "http://localhost:8000", "loqa-subtitles server URL")
		natsURL  = flag.String("nats", "", "read from NATS instead of the websocket feed")
		prefix   = flag.String("prefix", messaging.DefaultSubjectPrefix, "NATS subject prefix")
		streamID = flag.String("stream", "main", "stream ID to follow on NATS")
		source   = flag.Bool("source", false, "also print the recognized source text")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	if *natsURL != "" {
		err = tailNATS(ctx, *natsURL, *prefix, *streamID, *source)
	} else {
		err = tailWebSocket(ctx, *server, *source)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "✖ %v\n", err)
		os.Exit(1)
	}
}

// websocketURL converts http(s) URLs to ws(s) and defaults the path to /ws
func websocketURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("failed to parse server URL: %w", err)
	}

	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/ws"
	}
	return u.String(), nil
}

// formatMessage renders one feed message. Plain text feeds are printed as is.
func formatMessage(data []byte, withSource bool) string {
	sub, err := events.Decode(data)
	if err != nil {
		return string(data)
	}
	return formatSubtitle(sub, withSource)
}

func formatSubtitle(sub *events.Subtitle, withSource bool) string {
	line := fmt.Sprintf("[%s #%d] %s", sub.Timestamp.Local().Format(time.TimeOnly), sub.Seq, sub.Text)
	if sub.Degraded {
		line += " (dictionary)"
	}
	if withSource && sub.SourceText != "" {
		line += fmt.Sprintf("\n    %s: %s", sub.SourceLang, sub.SourceText)
	}
	return line
}

func tailWebSocket(ctx context.Context, server string, withSource bool) error {
	wsURL, err := websocketURL(server)
	if err != nil {
		return err
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil && resp.Body != nil {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			_ = resp.Body.Close()
			return fmt.Errorf("failed to connect to %s: %w (%s: %s)", wsURL, err, resp.Status, body)
		}
		return fmt.Errorf("failed to connect to %s: %w", wsURL, err)
	}
	defer conn.Close()
	fmt.Fprintf(os.Stderr, "✓ Connected to %s\n", wsURL)

	go func() {
		<-ctx.Done()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("connection lost: %w", err)
		}
		fmt.Println(formatMessage(data, withSource))
	}
}

func tailNATS(ctx context.Context, natsURL, prefix, streamID string, withSource bool) error {
	nc, err := messaging.Connect(config.NATSConfig{
		URL:           natsURL,
		MaxReconnect:  -1,
		ReconnectWait: 2 * time.Second,
	})
	if err != nil {
		return err
	}
	defer nc.Close()

	sub, err := messaging.Subscribe(nc, prefix, streamID, func(s *events.Subtitle) {
		fmt.Println(formatSubtitle(s, withSource))
	})
	if err != nil {
		return err
	}
	defer func() { _ = sub.Unsubscribe() }()
	fmt.Fprintf(os.Stderr, "✓ Subscribed to %s\n", messaging.Subject(prefix, streamID))

	<-ctx.Done()
	return nil
}
