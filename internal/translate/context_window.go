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

package translate

import "sync"

// ContextWindow keeps the most recent flushed source texts, oldest first
type ContextWindow struct {
	mu    sync.Mutex
	size  int
	items []string
}

// NewContextWindow creates a window holding at most size texts
func NewContextWindow(size int) *ContextWindow {
	if size < 1 {
		size = 1
	}
	return &ContextWindow{size: size, items: make([]string, 0, size)}
}

// Add appends text, evicting the oldest entry when full
func (w *ContextWindow) Add(text string) {
	if text == "" {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.items) == w.size {
		copy(w.items, w.items[1:])
		w.items = w.items[:len(w.items)-1]
	}
	w.items = append(w.items, text)
}

// Items returns a copy of the window contents
func (w *ContextWindow) Items() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]string, len(w.items))
	copy(out, w.items)
	return out
}
