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
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/loqalabs/loqa-subtitles/internal/audio"
	"github.com/loqalabs/loqa-subtitles/internal/events"
	"github.com/loqalabs/loqa-subtitles/internal/logging"
	"github.com/loqalabs/loqa-subtitles/internal/monitor"
	"github.com/loqalabs/loqa-subtitles/internal/security"
	"github.com/loqalabs/loqa-subtitles/internal/segment"
	"github.com/loqalabs/loqa-subtitles/internal/translate"
)

// Recognizer turns an audio source into transcript fragments
type Recognizer interface {
	Run(ctx context.Context, src io.Reader, out chan<- string) error
}

// Translator produces the subtitle text for a flushed buffer
type Translator interface {
	Translate(ctx context.Context, text string) (translate.Result, error)
}

// State is the session lifecycle state
type State string

const (
	StateConnecting State = "connecting"
	StateRunning    State = "running"
	StateBackoff    State = "backoff"
	StateStopped    State = "stopped"
	StateFailed     State = "failed"
)

// ErrReconnectExhausted is returned once the source failed more often than allowed
var ErrReconnectExhausted = errors.New("audio source reconnect attempts exhausted")

// SessionConfig tunes a session
type SessionConfig struct {
	StreamID          string
	Segment           segment.Config
	ReconnectInitial  time.Duration
	ReconnectMax      time.Duration
	ReconnectAttempts int                     // 0 retries forever
	Latency           *monitor.LatencyMonitor // optional
}

// Stats counts session activity
type Stats struct {
	State      State  `json:"state"`
	Fragments  uint64 `json:"fragments"`
	Flushes    uint64 `json:"flushes"`
	Suppressed uint64 `json:"suppressed"`
	Delivered  uint64 `json:"delivered"`
	Discarded  uint64 `json:"discarded"`
	Reconnects uint64 `json:"reconnects"`
}

// Session runs the event loop for one stream: it owns the segmenter, hands
// flushes to the translator one at a time and delivers subtitles in order.
type Session struct {
	cfg        SessionConfig
	open       audio.Opener
	recognizer Recognizer
	translator Translator
	sinks      []Sink
	segmenter  *segment.Segmenter
	now        func() time.Time

	seq        atomic.Uint64
	state      atomic.Value
	fragments  atomic.Uint64
	flushes    atomic.Uint64
	suppressed atomic.Uint64
	delivered  atomic.Uint64
	discarded  atomic.Uint64
	reconnects atomic.Uint64
}

// NewSession wires a session
func NewSession(cfg SessionConfig, open audio.Opener, recognizer Recognizer, translator Translator, sinks ...Sink) *Session {
	if cfg.StreamID == "" {
		cfg.StreamID = "main"
	}
	if cfg.ReconnectInitial <= 0 {
		cfg.ReconnectInitial = time.Second
	}
	if cfg.ReconnectMax < cfg.ReconnectInitial {
		cfg.ReconnectMax = 30 * time.Second
		if cfg.ReconnectMax < cfg.ReconnectInitial {
			cfg.ReconnectMax = cfg.ReconnectInitial
		}
	}

	s := &Session{
		cfg:        cfg,
		open:       open,
		recognizer: recognizer,
		translator: translator,
		sinks:      sinks,
		segmenter:  segment.New(cfg.Segment),
		now:        time.Now,
	}
	s.state.Store(StateStopped)
	return s
}

// StreamID returns the id subtitles are tagged with
func (s *Session) StreamID() string {
	return s.cfg.StreamID
}

// Run processes the stream until ctx is cancelled, reconnecting with
// exponential backoff when the source or recognizer fails. It returns nil on
// cancellation and ErrReconnectExhausted once the attempts are used up.
// A partially filled buffer is discarded on cancellation.
func (s *Session) Run(ctx context.Context) error {
	backoff := s.cfg.ReconnectInitial
	attempts := 0

	logging.LogPipelineEvent(s.cfg.StreamID, "session_started")

	for {
		started := s.now()
		err := s.runOnce(ctx)
		if ctx.Err() != nil {
			s.segmenter.Reset()
			s.setState(StateStopped)
			logging.LogPipelineEvent(s.cfg.StreamID, "session_stopped")
			return nil
		}

		if s.now().Sub(started) >= s.cfg.ReconnectMax {
			attempts = 0
			backoff = s.cfg.ReconnectInitial
		}
		attempts++

		if s.cfg.ReconnectAttempts > 0 && attempts > s.cfg.ReconnectAttempts {
			s.setState(StateFailed)
			return fmt.Errorf("%w after %d attempts: %w", ErrReconnectExhausted, s.cfg.ReconnectAttempts, err)
		}

		s.setState(StateBackoff)
		s.reconnects.Add(1)
		logging.Sugar.Warnw("🔁 Audio stream interrupted, reconnecting",
			"stream_id", s.cfg.StreamID,
			"attempt", attempts,
			"backoff", backoff,
			"error", err,
		)

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.segmenter.Reset()
			s.setState(StateStopped)
			return nil
		case <-timer.C:
		}

		backoff *= 2
		if backoff > s.cfg.ReconnectMax {
			backoff = s.cfg.ReconnectMax
		}
	}
}

// runOnce opens the source and runs the event loop until the recognizer
// stops or ctx is cancelled
func (s *Session) runOnce(ctx context.Context) error {
	s.setState(StateConnecting)

	src, err := s.open(ctx)
	if err != nil {
		return fmt.Errorf("failed to open audio source: %w", err)
	}
	// every return below happens after the recognizer goroutine has exited
	defer s.release(src)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	fragments := make(chan string, 16)
	errc := make(chan error, 1)
	go func() {
		errc <- s.recognizer.Run(runCtx, src, fragments)
	}()

	s.setState(StateRunning)
	logging.LogPipelineEvent(s.cfg.StreamID, "stream_connected")

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		s.armTimer(timer)

		select {
		case <-ctx.Done():
			cancel()
			_ = src.Close()
			<-errc
			return ctx.Err()

		case fragment := <-fragments:
			s.handleFragment(ctx, fragment)

		case <-timer.C:
			if f, ok := s.segmenter.Tick(s.now()); ok {
				s.dispatch(ctx, f)
			}

		case err := <-errc:
			// the recognizer may have queued fragments before it stopped
			for drained := false; !drained; {
				select {
				case fragment := <-fragments:
					s.handleFragment(ctx, fragment)
				default:
					drained = true
				}
			}
			return err
		}
	}
}

// release closes src and waits for a process-backed source to exit. It must
// only run once the recognizer has stopped reading.
func (s *Session) release(src io.ReadCloser) {
	_ = src.Close()
	r, ok := src.(audio.Reaper)
	if !ok {
		return
	}
	if err := r.Reap(); err != nil {
		logging.LogWarn("Failed to reap audio source",
			zap.String("stream_id", s.cfg.StreamID),
			zap.Error(err),
		)
	}
}

func (s *Session) armTimer(timer *time.Timer) {
	deadline, ok := s.segmenter.Deadline()
	if !ok {
		timer.Stop()
		return
	}
	wait := deadline.Sub(s.now())
	if wait < 0 {
		wait = 0
	}
	timer.Reset(wait)
}

func (s *Session) handleFragment(ctx context.Context, fragment string) {
	s.fragments.Add(1)
	if f, ok := s.segmenter.Add(fragment, s.now()); ok {
		s.dispatch(ctx, f)
	}
}

// dispatch translates a flush and delivers the subtitle to every sink
func (s *Session) dispatch(ctx context.Context, f segment.Flush) {
	s.flushes.Add(1)
	logging.LogPipelineEvent(s.cfg.StreamID, "flush",
		zap.String("reason", string(f.Reason)),
		zap.Int("words", f.Words),
		zap.Bool("suppressed", f.Suppressed),
	)

	if f.Suppressed {
		s.suppressed.Add(1)
		return
	}

	started := time.Now()
	res, err := s.translator.Translate(ctx, f.Text)
	translated := time.Now()
	if err != nil || res.Text == "" {
		s.discarded.Add(1)
		if s.cfg.Latency != nil {
			s.cfg.Latency.RecordDiscard()
		}
		logging.Sugar.Warnw("Discarding untranslated buffer",
			"stream_id", s.cfg.StreamID,
			"text", security.SanitizeLogInput(f.Text),
			"error", err,
		)
		return
	}

	sub := events.NewSubtitle(s.cfg.StreamID, s.seq.Add(1))
	sub.Text = res.Text
	sub.SourceText = res.SourceText
	sub.SourceLang = res.SourceLang
	sub.TargetLang = res.TargetLang
	sub.Provider = res.Provider
	sub.Cached = res.Cached
	sub.Degraded = res.Degraded

	for _, sink := range s.sinks {
		if err := sink.Deliver(ctx, sub); err != nil {
			logging.LogWarn("Subtitle sink failed",
				zap.String("stream_id", s.cfg.StreamID),
				zap.String("sink", fmt.Sprintf("%T", sink)),
				zap.Uint64("seq", sub.Seq),
				zap.Error(err),
			)
			if s.cfg.Latency != nil {
				s.cfg.Latency.RecordSinkError()
			}
		}
	}
	s.delivered.Add(1)
	if s.cfg.Latency != nil {
		s.cfg.Latency.RecordSubtitle(translated.Sub(started), time.Since(translated), sub.Degraded)
	}

	logging.Sugar.Infow("💬 Subtitle",
		"stream_id", s.cfg.StreamID,
		"seq", sub.Seq,
		"source_lang", sub.SourceLang,
		"provider", sub.Provider,
		"text", security.SanitizeLogInput(sub.Text),
	)
}

func (s *Session) setState(state State) {
	s.state.Store(state)
}

// State returns the current lifecycle state
func (s *Session) State() State {
	return s.state.Load().(State)
}

// Stats returns a snapshot of session counters
func (s *Session) Stats() Stats {
	return Stats{
		State:      s.State(),
		Fragments:  s.fragments.Load(),
		Flushes:    s.flushes.Load(),
		Suppressed: s.suppressed.Load(),
		Delivered:  s.delivered.Load(),
		Discarded:  s.discarded.Load(),
		Reconnects: s.reconnects.Load(),
	}
}
