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

package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Subtitle wire formats
const (
	FormatJSON = "json"
	FormatText = "text"
)

// Subtitle is one translated segment as delivered to subscribers
type Subtitle struct {
	Type       string    `json:"type"`
	ID         string    `json:"id"`
	StreamID   string    `json:"stream_id"`
	Seq        uint64    `json:"seq"`
	Text       string    `json:"text"`
	SourceText string    `json:"source_text"`
	SourceLang string    `json:"source_lang"`
	TargetLang string    `json:"target_lang"`
	Provider   string    `json:"provider"`
	Cached     bool      `json:"cached"`
	Degraded   bool      `json:"degraded"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewSubtitle creates a Subtitle with a generated ID and the current timestamp
func NewSubtitle(streamID string, seq uint64) *Subtitle {
	return &Subtitle{
		Type:      "subtitle",
		ID:        uuid.NewString(),
		StreamID:  streamID,
		Seq:       seq,
		Timestamp: time.Now().UTC(),
	}
}

// Encode renders the subtitle for websocket and NATS subscribers
func (s *Subtitle) Encode(format string) ([]byte, error) {
	switch format {
	case FormatText:
		return []byte(s.Text), nil
	case FormatJSON, "":
		data, err := json.Marshal(s)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal subtitle: %w", err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("unknown subtitle format %q", format)
	}
}

// Decode parses a JSON subtitle
func Decode(data []byte) (*Subtitle, error) {
	var s Subtitle
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal subtitle: %w", err)
	}
	return &s, nil
}

// IsValid performs basic validation on the subtitle
func (s *Subtitle) IsValid() error {
	if s.ID == "" {
		return fmt.Errorf("id is required")
	}
	if s.StreamID == "" {
		return fmt.Errorf("stream_id is required")
	}
	if s.Text == "" {
		return fmt.Errorf("text is required")
	}
	if s.TargetLang == "" {
		return fmt.Errorf("target_lang is required")
	}
	if s.Timestamp.IsZero() {
		return fmt.Errorf("timestamp is required")
	}
	return nil
}

// String returns a human-readable representation of the subtitle
func (s *Subtitle) String() string {
	return fmt.Sprintf("Subtitle{Seq: %d, %s->%s, Provider: %s, Text: %q}",
		s.Seq, s.SourceLang, s.TargetLang, s.Provider, s.Text)
}
