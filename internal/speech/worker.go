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

package speech

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/loqalabs/loqa-subtitles/internal/events"
	"github.com/loqalabs/loqa-subtitles/internal/logging"
	"github.com/loqalabs/loqa-subtitles/internal/security"
)

// Stats counts speech worker outcomes
type Stats struct {
	Spoken  uint64 `json:"spoken"`
	Failed  uint64 `json:"failed"`
	Dropped uint64 `json:"dropped"`
	Queued  int    `json:"queued"`
}

// Worker speaks subtitles one at a time from a bounded queue
type Worker struct {
	synth  Synthesizer
	player Player
	queue  chan string

	spoken  atomic.Uint64
	failed  atomic.Uint64
	dropped atomic.Uint64
}

// NewWorker creates a worker whose queue holds queueSize texts
func NewWorker(synth Synthesizer, player Player, queueSize int) *Worker {
	if queueSize <= 0 {
		queueSize = 5
	}
	return &Worker{
		synth:  synth,
		player: player,
		queue:  make(chan string, queueSize),
	}
}

// Enqueue queues text without blocking. It reports false when the queue is
// full and the text was dropped.
func (w *Worker) Enqueue(text string) bool {
	select {
	case w.queue <- text:
		return true
	default:
		w.dropped.Add(1)
		logging.LogWarn("Speech queue full, dropping subtitle",
			zap.String("component", "tts"),
			zap.String("text", security.SanitizeLogInput(text)),
		)
		return false
	}
}

// Deliver queues the subtitle's translated text
func (w *Worker) Deliver(_ context.Context, sub *events.Subtitle) error {
	w.Enqueue(sub.Text)
	return nil
}

// Run speaks queued texts until ctx is cancelled. Items still queued at
// cancellation are discarded.
func (w *Worker) Run(ctx context.Context) error {
	logging.LogTTSOperation("worker_started", zap.Int("queue_size", cap(w.queue)))
	defer logging.LogTTSOperation("worker_stopped")

	for {
		select {
		case <-ctx.Done():
			return nil
		case text := <-w.queue:
			w.speak(ctx, text)
		}
	}
}

func (w *Worker) speak(ctx context.Context, text string) {
	audio, err := w.synth.Synthesize(ctx, text)
	if err != nil {
		if ctx.Err() == nil {
			w.failed.Add(1)
			logging.LogError(err, "Speech synthesis failed", zap.String("component", "tts"))
		}
		return
	}

	if err := w.player.Play(ctx, audio); err != nil {
		if ctx.Err() == nil {
			w.failed.Add(1)
			logging.LogError(err, "Speech playback failed", zap.String("component", "tts"))
		}
		return
	}
	w.spoken.Add(1)
}

// Stats returns a snapshot of worker counters
func (w *Worker) Stats() Stats {
	return Stats{
		Spoken:  w.spoken.Load(),
		Failed:  w.failed.Load(),
		Dropped: w.dropped.Load(),
		Queued:  len(w.queue),
	}
}
