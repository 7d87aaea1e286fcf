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

package recognizer

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loqalabs/loqa-subtitles/internal/audio"
)

// scriptedDecoder returns one scripted result per chunk
type scriptedDecoder struct {
	results []*Result
	errAt   int
	calls   int
	chunks  [][]byte
	flushed *Result
}

func (d *scriptedDecoder) Decode(_ context.Context, chunk []byte) (*Result, error) {
	d.calls++
	d.chunks = append(d.chunks, append([]byte(nil), chunk...))
	if d.errAt > 0 && d.calls == d.errAt {
		return nil, errors.New("model crashed")
	}
	if d.calls-1 < len(d.results) {
		return d.results[d.calls-1], nil
	}
	return nil, nil
}

type flushingDecoder struct {
	scriptedDecoder
}

func (d *flushingDecoder) Flush(context.Context) (*Result, error) {
	return d.flushed, nil
}

func collect(t *testing.T, a *Adapter, src io.Reader) ([]string, error) {
	t.Helper()
	out := make(chan string, 16)
	err := a.Run(context.Background(), src, out)
	close(out)

	var got []string
	for s := range out {
		got = append(got, s)
	}
	return got, err
}

func TestAdapter_ForwardsTrimmedText(t *testing.T) {
	dec := &scriptedDecoder{results: []*Result{
		nil,
		{Text: "  hello world  "},
		{Text: "   "},
		{Text: "[BLANK_AUDIO]"},
		{Text: "how are you [MUSIC]"},
	}}
	a := NewAdapter(dec, 4, 0)

	got, err := collect(t, a, bytes.NewReader(make([]byte, 20)))

	assert.ErrorIs(t, err, audio.ErrSourceEnded)
	assert.Equal(t, []string{"hello world", "how are you"}, got)
	assert.Equal(t, 5, dec.calls)
}

func TestAdapter_ShortFinalChunk(t *testing.T) {
	dec := &scriptedDecoder{}
	a := NewAdapter(dec, 4, 0)

	_, err := collect(t, a, bytes.NewReader([]byte{1, 2, 3, 4, 5, 6}))

	assert.ErrorIs(t, err, audio.ErrSourceEnded)
	require.Len(t, dec.chunks, 2)
	assert.Equal(t, []byte{1, 2, 3, 4}, dec.chunks[0])
	assert.Equal(t, []byte{5, 6}, dec.chunks[1])
}

func TestAdapter_DecoderErrorIsFatal(t *testing.T) {
	dec := &scriptedDecoder{errAt: 2}
	a := NewAdapter(dec, 2, 0)

	_, err := collect(t, a, bytes.NewReader(make([]byte, 100)))

	require.Error(t, err)
	assert.NotErrorIs(t, err, audio.ErrSourceEnded)
	assert.Contains(t, err.Error(), "model crashed")
	assert.Equal(t, 2, dec.calls, "no retries after a decoder error")
}

func TestAdapter_ReadError(t *testing.T) {
	a := NewAdapter(&scriptedDecoder{}, 4, 0)

	_, err := collect(t, a, io.MultiReader(bytes.NewReader([]byte{1, 2}), errReader{}))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "audio source read failed")
}

type errReader struct{}

func (errReader) Read([]byte) (int, error) {
	return 0, errors.New("connection reset")
}

func TestAdapter_FlushesAtEndOfStream(t *testing.T) {
	dec := &flushingDecoder{}
	dec.flushed = &Result{Text: "last words"}
	a := NewAdapter(dec, 4, 0)

	got, err := collect(t, a, bytes.NewReader(make([]byte, 8)))

	assert.ErrorIs(t, err, audio.ErrSourceEnded)
	assert.Equal(t, []string{"last words"}, got)
}

func TestAdapter_MinConfidence(t *testing.T) {
	dec := &scriptedDecoder{results: []*Result{
		{Text: "mumble", Confidence: 0.2},
		{Text: "clear speech", Confidence: 0.9},
		{Text: "no score"},
	}}
	a := NewAdapter(dec, 2, 0.5)

	got, _ := collect(t, a, bytes.NewReader(make([]byte, 6)))

	assert.Equal(t, []string{"clear speech", "no score"}, got)
}

func TestAdapter_StopsOnCancel(t *testing.T) {
	dec := &scriptedDecoder{results: []*Result{{Text: "blocked"}}}
	a := NewAdapter(dec, 2, 0)

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan string) // nobody reads

	done := make(chan error, 1)
	go func() { done <- a.Run(ctx, bytes.NewReader(make([]byte, 10)), out) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}
