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

package pipeline

import (
	"context"
	"sync"

	"github.com/loqalabs/loqa-subtitles/internal/events"
)

// Sink receives every delivered subtitle. Errors are logged by the session
// and never stop delivery to other sinks.
type Sink interface {
	Deliver(ctx context.Context, sub *events.Subtitle) error
}

// SinkFunc adapts a function to Sink
type SinkFunc func(ctx context.Context, sub *events.Subtitle) error

// Deliver calls f
func (f SinkFunc) Deliver(ctx context.Context, sub *events.Subtitle) error {
	return f(ctx, sub)
}

// History keeps the most recent subtitles in memory
type History struct {
	mutex sync.RWMutex
	items []*events.Subtitle
	next  int
	full  bool
}

// NewHistory creates a ring holding size subtitles
func NewHistory(size int) *History {
	if size <= 0 {
		size = 50
	}
	return &History{items: make([]*events.Subtitle, size)}
}

// Deliver implements Sink
func (h *History) Deliver(_ context.Context, sub *events.Subtitle) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.items[h.next] = sub
	h.next = (h.next + 1) % len(h.items)
	if h.next == 0 {
		h.full = true
	}
	return nil
}

// Recent returns up to limit of the newest subtitles, oldest first
func (h *History) Recent(_ context.Context, limit int) ([]*events.Subtitle, error) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	count := h.next
	if h.full {
		count = len(h.items)
	}
	if limit <= 0 || limit > count {
		limit = count
	}

	out := make([]*events.Subtitle, 0, limit)
	for i := count - limit; i < count; i++ {
		idx := i
		if h.full {
			idx = (h.next + i) % len(h.items)
		}
		out = append(out, h.items[idx])
	}
	return out, nil
}
