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

package monitor

import (
	"sync"
	"time"

	"github.com/loqalabs/loqa-subtitles/internal/logging"
)

// LatencyMonitor tracks how long flushed buffers spend in translation and
// delivery, and how often they fail to become subtitles
type LatencyMonitor struct {
	mutex sync.RWMutex
	now   func() time.Time

	started time.Time

	subtitles        uint64
	totalTranslation time.Duration
	maxTranslation   time.Duration
	minTranslation   time.Duration
	totalDelivery    time.Duration
	maxDelivery      time.Duration

	degraded   uint64
	discarded  uint64
	sinkErrors uint64
}

// LatencySnapshot is a point-in-time view of a LatencyMonitor
type LatencySnapshot struct {
	Subtitles           uint64   `json:"subtitles"`
	AverageTranslateMs  int64    `json:"average_translate_ms"`
	MaxTranslateMs      int64    `json:"max_translate_ms"`
	MinTranslateMs      int64    `json:"min_translate_ms"`
	AverageDeliverMs    int64    `json:"average_deliver_ms"`
	MaxDeliverMs        int64    `json:"max_deliver_ms"`
	SubtitlesPerMinute  float64  `json:"subtitles_per_minute"`
	Degraded            uint64   `json:"degraded"`
	Discarded           uint64   `json:"discarded"`
	SinkErrors          uint64   `json:"sink_errors"`
	DiscardRatePercent  float64  `json:"discard_rate_percent"`
	DegradedRatePercent float64  `json:"degraded_rate_percent"`
	Recommendations     []string `json:"recommendations"`
}

// NewLatencyMonitor creates a new latency monitor
func NewLatencyMonitor() *LatencyMonitor {
	m := &LatencyMonitor{now: time.Now}
	m.started = m.now()
	return m
}

// RecordSubtitle records a delivered subtitle
func (m *LatencyMonitor) RecordSubtitle(translation, delivery time.Duration, degraded bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.subtitles++
	m.totalTranslation += translation
	m.totalDelivery += delivery

	if translation > m.maxTranslation {
		m.maxTranslation = translation
	}
	if m.subtitles == 1 || translation < m.minTranslation {
		m.minTranslation = translation
	}
	if delivery > m.maxDelivery {
		m.maxDelivery = delivery
	}
	if degraded {
		m.degraded++
	}
}

// RecordDiscard records a flush that produced no subtitle
func (m *LatencyMonitor) RecordDiscard() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.discarded++
}

// RecordSinkError records a sink that refused a subtitle
func (m *LatencyMonitor) RecordSinkError() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.sinkErrors++
}

// Snapshot returns the current metrics
func (m *LatencyMonitor) Snapshot() LatencySnapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	snap := LatencySnapshot{
		Subtitles:      m.subtitles,
		MaxTranslateMs: m.maxTranslation.Milliseconds(),
		MinTranslateMs: m.minTranslation.Milliseconds(),
		MaxDeliverMs:   m.maxDelivery.Milliseconds(),
		Degraded:       m.degraded,
		Discarded:      m.discarded,
		SinkErrors:     m.sinkErrors,
	}

	if m.subtitles > 0 {
		//nolint:gosec // subtitle counts stay far below the int64 range
		n := time.Duration(m.subtitles)
		snap.AverageTranslateMs = (m.totalTranslation / n).Milliseconds()
		snap.AverageDeliverMs = (m.totalDelivery / n).Milliseconds()
		snap.DegradedRatePercent = float64(m.degraded) / float64(m.subtitles) * 100
	}
	if flushes := m.subtitles + m.discarded; flushes > 0 {
		snap.DiscardRatePercent = float64(m.discarded) / float64(flushes) * 100
	}
	if elapsed := m.now().Sub(m.started).Minutes(); elapsed > 0 {
		snap.SubtitlesPerMinute = float64(m.subtitles) / elapsed
	}

	snap.Recommendations = recommendations(snap)
	return snap
}

func recommendations(s LatencySnapshot) []string {
	recs := []string{}

	if s.AverageTranslateMs > 2000 {
		recs = append(recs,
			"Translation latency is high (>2s). Consider a closer provider or a shorter provider timeout.")
	}
	if s.AverageDeliverMs > 250 {
		recs = append(recs,
			"Subtitle delivery is slow (>250ms). Check the archive disk and NATS connection.")
	}
	if s.Subtitles >= 20 && s.DegradedRatePercent > 20 {
		recs = append(recs,
			"More than 20% of subtitles used the dictionary fallback. Check translation provider availability.")
	}
	if s.Subtitles+s.Discarded >= 20 && s.DiscardRatePercent > 5 {
		recs = append(recs,
			"High discard rate (>5%). Buffers are being dropped without a translation.")
	}
	if s.SinkErrors > 0 {
		recs = append(recs,
			"Subtitle sinks are failing. Check NATS and archive logs.")
	}
	return recs
}

// LogSummary logs the current metrics
func (m *LatencyMonitor) LogSummary() {
	snap := m.Snapshot()

	logging.Sugar.Infow("📊 Subtitle latency summary",
		"subtitles", snap.Subtitles,
		"avg_translate_ms", snap.AverageTranslateMs,
		"max_translate_ms", snap.MaxTranslateMs,
		"avg_deliver_ms", snap.AverageDeliverMs,
		"subtitles_per_minute", snap.SubtitlesPerMinute,
		"discarded", snap.Discarded,
	)

	if len(snap.Recommendations) > 0 {
		logging.Sugar.Warnw("Performance recommendations", "recommendations", snap.Recommendations)
	}
}

// Reset clears all metrics
func (m *LatencyMonitor) Reset() {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.started = m.now()
	m.subtitles = 0
	m.totalTranslation = 0
	m.maxTranslation = 0
	m.minTranslation = 0
	m.totalDelivery = 0
	m.maxDelivery = 0
	m.degraded = 0
	m.discarded = 0
	m.sinkErrors = 0
}
