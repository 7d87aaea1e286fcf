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
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loqalabs/loqa-subtitles/internal/audio"
	"github.com/loqalabs/loqa-subtitles/internal/events"
	"github.com/loqalabs/loqa-subtitles/internal/langid"
	"github.com/loqalabs/loqa-subtitles/internal/monitor"
	"github.com/loqalabs/loqa-subtitles/internal/segment"
	"github.com/loqalabs/loqa-subtitles/internal/translate"
)

// scriptedRecognizer emits fragments, then either ends with err or waits
// for cancellation when hold is set
type scriptedRecognizer struct {
	mu    sync.Mutex
	runs  [][]string
	calls int
	err   error
	hold  bool
	gap   time.Duration
}

func (r *scriptedRecognizer) Run(ctx context.Context, _ io.Reader, out chan<- string) error {
	r.mu.Lock()
	var fragments []string
	if r.calls < len(r.runs) {
		fragments = r.runs[r.calls]
	}
	r.calls++
	r.mu.Unlock()

	for _, f := range fragments {
		select {
		case out <- f:
		case <-ctx.Done():
			return ctx.Err()
		}
		if r.gap > 0 {
			time.Sleep(r.gap)
		}
	}
	if r.hold {
		<-ctx.Done()
		return ctx.Err()
	}
	if r.err != nil {
		return r.err
	}
	return audio.ErrSourceEnded
}

func nopOpener(context.Context) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("")), nil
}

type collector struct {
	mu   sync.Mutex
	subs []*events.Subtitle
}

func (c *collector) Deliver(_ context.Context, sub *events.Subtitle) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs = append(c.subs, sub)
	return nil
}

func (c *collector) all() []*events.Subtitle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*events.Subtitle(nil), c.subs...)
}

type upperTranslator struct {
	fail atomic.Bool
}

func (u *upperTranslator) Translate(_ context.Context, text string) (translate.Result, error) {
	if u.fail.Load() {
		return translate.Result{}, translate.ErrNoTranslation
	}
	return translate.Result{
		Text:       strings.ToUpper(text),
		SourceText: text,
		SourceLang: "en",
		TargetLang: "tr",
		Provider:   "fake",
	}, nil
}

func testConfig() SessionConfig {
	return SessionConfig{
		StreamID: "main",
		Segment: segment.Config{
			MinWords:         3,
			MaxWords:         15,
			PauseThreshold:   80 * time.Millisecond,
			RepeatSimilarity: 0.9,
		},
		ReconnectInitial: time.Millisecond,
		ReconnectMax:     5 * time.Millisecond,
	}
}

func runSession(t *testing.T, s *Session) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	t.Cleanup(cancel)
	return cancel, done
}

func wait(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(3 * time.Second):
		t.Fatal("session did not stop")
		return nil
	}
}

func TestSession_PunctuationFlushThroughDispatcher(t *testing.T) {
	rec := &scriptedRecognizer{runs: [][]string{{"hello world how are you today ?"}}, hold: true}
	provider := providerFunc(func(_ context.Context, req translate.Request) (string, error) {
		return "merhaba dünya bugün nasılsın ?", nil
	})
	dispatcher := translate.NewDispatcher(translate.DispatcherConfig{
		Target:   "tr",
		Detector: langid.Fixed("en"),
		Glossary: translate.NewPhraseBook(nil),
	}, provider)
	sink := &collector{}

	s := NewSession(testConfig(), nopOpener, rec, dispatcher, sink)
	cancel, done := runSession(t, s)

	require.Eventually(t, func() bool { return len(sink.all()) == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, wait(t, done))

	sub := sink.all()[0]
	assert.Equal(t, "merhaba dünya bugün nasılsın ?", sub.Text)
	assert.Equal(t, "en", sub.SourceLang)
	assert.Equal(t, "tr", sub.TargetLang)
	assert.Equal(t, "fake-provider", sub.Provider)
	assert.Equal(t, uint64(1), sub.Seq)
	assert.Equal(t, StateStopped, s.State())
}

type providerFunc func(ctx context.Context, req translate.Request) (string, error)

func (f providerFunc) Name() string { return "fake-provider" }

func (f providerFunc) Translate(ctx context.Context, req translate.Request) (string, error) {
	return f(ctx, req)
}

func TestSession_SilenceFlush(t *testing.T) {
	rec := &scriptedRecognizer{runs: [][]string{{"hello", "hello", "hello", "hello", "hello"}}, hold: true}
	sink := &collector{}
	s := NewSession(testConfig(), nopOpener, rec, &upperTranslator{}, sink)

	_, _ = runSession(t, s)

	require.Eventually(t, func() bool { return len(sink.all()) == 1 }, time.Second, 5*time.Millisecond,
		"the pause timer flushes without another fragment")
	assert.Equal(t, "HELLO HELLO HELLO HELLO HELLO", sink.all()[0].Text)

	stats := s.Stats()
	assert.Equal(t, uint64(5), stats.Fragments)
	assert.Equal(t, uint64(1), stats.Flushes)
	assert.Equal(t, StateRunning, stats.State)
}

func TestSession_ShortBufferWaitsAndIsDiscardedOnShutdown(t *testing.T) {
	rec := &scriptedRecognizer{runs: [][]string{{"hello", "world"}}, hold: true}
	sink := &collector{}
	s := NewSession(testConfig(), nopOpener, rec, &upperTranslator{}, sink)

	cancel, done := runSession(t, s)
	time.Sleep(250 * time.Millisecond)
	assert.Empty(t, sink.all(), "two words never reach the minimum")

	cancel()
	require.NoError(t, wait(t, done))
	assert.Empty(t, sink.all(), "the partial buffer is not flushed on shutdown")
}

func TestSession_OrderedSequentialDelivery(t *testing.T) {
	var fragments []string
	for i := 0; i < 10; i++ {
		fragments = append(fragments, "sentence number "+strings.Repeat("x", i+1)+" done.")
	}
	rec := &scriptedRecognizer{runs: [][]string{fragments}, hold: true}
	sink := &collector{}
	s := NewSession(testConfig(), nopOpener, rec, &upperTranslator{}, sink)

	_, _ = runSession(t, s)
	require.Eventually(t, func() bool { return len(sink.all()) == 10 }, time.Second, 5*time.Millisecond)

	for i, sub := range sink.all() {
		assert.Equal(t, uint64(i+1), sub.Seq)
		assert.Contains(t, sub.Text, strings.ToUpper(strings.Repeat("x", i+1)+" done."))
	}
}

func TestSession_RepeatSuppressed(t *testing.T) {
	rec := &scriptedRecognizer{runs: [][]string{{"thank you very much.", "Thank you very much!", "see you next week."}}, hold: true}
	sink := &collector{}
	s := NewSession(testConfig(), nopOpener, rec, &upperTranslator{}, sink)

	_, _ = runSession(t, s)
	require.Eventually(t, func() bool { return len(sink.all()) == 2 }, time.Second, 5*time.Millisecond)

	subs := sink.all()
	assert.Equal(t, "THANK YOU VERY MUCH.", subs[0].Text)
	assert.Equal(t, "SEE YOU NEXT WEEK.", subs[1].Text)
	assert.Equal(t, uint64(2), subs[1].Seq, "suppressed flushes consume no sequence number")
	assert.Equal(t, uint64(1), s.Stats().Suppressed)
}

func TestSession_FailedTranslationIsDiscarded(t *testing.T) {
	rec := &scriptedRecognizer{runs: [][]string{{"first one here.", "second one here."}}, hold: true, gap: 150 * time.Millisecond}
	translator := &upperTranslator{}
	translator.fail.Store(true)
	sink := &collector{}
	cfg := testConfig()
	cfg.Latency = monitor.NewLatencyMonitor()
	s := NewSession(cfg, nopOpener, rec, translator, sink)

	_, _ = runSession(t, s)
	require.Eventually(t, func() bool { return s.Stats().Discarded == 1 }, time.Second, 5*time.Millisecond)
	translator.fail.Store(false)

	require.Eventually(t, func() bool { return len(sink.all()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "SECOND ONE HERE.", sink.all()[0].Text)

	require.Eventually(t, func() bool { return cfg.Latency.Snapshot().Subtitles == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, uint64(1), cfg.Latency.Snapshot().Discarded)
}

func TestSession_FailingSinkDoesNotBlockOthers(t *testing.T) {
	rec := &scriptedRecognizer{runs: [][]string{{"one two three.", "four five six."}}, hold: true}
	failing := SinkFunc(func(context.Context, *events.Subtitle) error { return errors.New("subscriber gone") })
	sink := &collector{}
	cfg := testConfig()
	cfg.Latency = monitor.NewLatencyMonitor()
	s := NewSession(cfg, nopOpener, rec, &upperTranslator{}, failing, sink)

	_, _ = runSession(t, s)
	require.Eventually(t, func() bool { return len(sink.all()) == 2 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return cfg.Latency.Snapshot().Subtitles == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, uint64(2), s.Stats().Delivered)
	assert.Equal(t, uint64(2), cfg.Latency.Snapshot().SinkErrors)
}

func TestSession_ReconnectsAfterSourceEnds(t *testing.T) {
	rec := &scriptedRecognizer{runs: [][]string{
		{"first run ends."},
		{"second run here."},
	}}

	sink := &collector{}
	cfg := testConfig()
	cfg.ReconnectAttempts = 0
	s := NewSession(cfg, nopOpener, rec, &upperTranslator{}, sink)

	cancel, done := runSession(t, s)
	require.Eventually(t, func() bool { return len(sink.all()) == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, wait(t, done))

	assert.GreaterOrEqual(t, s.Stats().Reconnects, uint64(2))
	assert.Equal(t, uint64(2), sink.all()[1].Seq)
}

func TestSession_ReconnectExhausted(t *testing.T) {
	var opens atomic.Int32
	opener := func(context.Context) (io.ReadCloser, error) {
		opens.Add(1)
		return nil, errors.New("connection refused")
	}
	cfg := testConfig()
	cfg.ReconnectAttempts = 3
	cfg.ReconnectMax = time.Hour
	s := NewSession(cfg, opener, &scriptedRecognizer{}, &upperTranslator{}, &collector{})

	_, done := runSession(t, s)
	err := wait(t, done)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrReconnectExhausted)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, int32(4), opens.Load(), "one initial attempt plus three retries")
	assert.Equal(t, StateFailed, s.State())
}

func TestSession_CancelDuringBackoff(t *testing.T) {
	opener := func(context.Context) (io.ReadCloser, error) {
		return nil, errors.New("connection refused")
	}
	cfg := testConfig()
	cfg.ReconnectInitial = time.Hour
	cfg.ReconnectMax = 2 * time.Hour
	s := NewSession(cfg, opener, &scriptedRecognizer{}, &upperTranslator{}, &collector{})

	cancel, done := runSession(t, s)
	require.Eventually(t, func() bool { return s.State() == StateBackoff }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, wait(t, done))
}

// processSource stands in for a subprocess-backed source and records the
// order of Close, the end of reading and Reap
type processSource struct {
	pr *io.PipeReader
	pw *io.PipeWriter

	mu     sync.Mutex
	events []string
}

func newProcessSource() *processSource {
	pr, pw := io.Pipe()
	return &processSource{pr: pr, pw: pw}
}

func (p *processSource) record(event string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *processSource) recorded() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

func (p *processSource) Read(b []byte) (int, error) {
	n, err := p.pr.Read(b)
	if err != nil {
		p.record("read_done")
	}
	return n, err
}

func (p *processSource) Close() error {
	p.record("close")
	return p.pw.Close()
}

func (p *processSource) Reap() error {
	p.record("reap")
	return nil
}

// drainingRecognizer reads its source to the end and ignores ctx
type drainingRecognizer struct{}

func (drainingRecognizer) Run(_ context.Context, src io.Reader, _ chan<- string) error {
	_, err := io.Copy(io.Discard, src)
	if err != nil {
		return err
	}
	return audio.ErrSourceEnded
}

func TestSession_ReapsSourceAfterReadsEnd(t *testing.T) {
	src := newProcessSource()
	var opens atomic.Int32
	opener := func(context.Context) (io.ReadCloser, error) {
		opens.Add(1)
		return src, nil
	}
	s := NewSession(testConfig(), opener, drainingRecognizer{}, &upperTranslator{}, &collector{})

	cancel, done := runSession(t, s)
	require.Eventually(t, func() bool { return s.State() == StateRunning }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, wait(t, done))

	assert.Equal(t, int32(1), opens.Load())
	assert.Equal(t, []string{"close", "read_done", "close", "reap"}, src.recorded(),
		"the process is reaped only after the recognizer stopped reading")
}

func TestHistory(t *testing.T) {
	h := NewHistory(3)
	ctx := context.Background()

	empty, err := h.Recent(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, empty)

	for i := 1; i <= 5; i++ {
		require.NoError(t, h.Deliver(ctx, events.NewSubtitle("main", uint64(i))))
	}

	all, err := h.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []uint64{3, 4, 5}, []uint64{all[0].Seq, all[1].Seq, all[2].Seq})

	last, err := h.Recent(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []uint64{4, 5}, []uint64{last[0].Seq, last[1].Seq})
}
