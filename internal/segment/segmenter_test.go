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

package segment

import (
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func at(d time.Duration) time.Time {
	return t0.Add(d)
}

func TestSegmenter_FlushOnTerminalPunctuation(t *testing.T) {
	s := New(Config{MinWords: 3, MaxWords: 10, PauseThreshold: time.Second})

	var flushes []Flush
	for i, fragment := range []string{"hello", "world how", "are you today ?"} {
		if f, ok := s.Add(fragment, at(time.Duration(i)*100*time.Millisecond)); ok {
			flushes = append(flushes, f)
		}
	}

	require.Len(t, flushes, 1)
	assert.Equal(t, "hello world how are you today ?", flushes[0].Text)
	assert.Equal(t, ReasonPunctuation, flushes[0].Reason)
	assert.Equal(t, 7, flushes[0].Words)
	assert.Empty(t, s.Pending())
}

func TestSegmenter_FlushAfterSilence(t *testing.T) {
	s := New(Config{MinWords: 1, MaxWords: 50, PauseThreshold: time.Second})

	for i := 0; i < 5; i++ {
		_, ok := s.Add("hello", at(time.Duration(i)*100*time.Millisecond))
		require.False(t, ok, "fragment %d must not flush", i)
	}
	last := at(400 * time.Millisecond)

	_, ok := s.Tick(last.Add(999 * time.Millisecond))
	assert.False(t, ok, "silence shorter than the pause must not flush")

	deadline, ok := s.Deadline()
	require.True(t, ok)
	assert.Equal(t, last.Add(time.Second), deadline)

	f, ok := s.Tick(last.Add(time.Second))
	require.True(t, ok)
	assert.Equal(t, "hello hello hello hello hello", f.Text)
	assert.Equal(t, ReasonSilence, f.Reason)

	_, ok = s.Tick(last.Add(5 * time.Second))
	assert.False(t, ok, "empty buffer must not flush twice")
}

func TestSegmenter_MaxWordsCap(t *testing.T) {
	s := New(Config{MinWords: 3, MaxWords: 5, PauseThreshold: time.Minute})

	_, ok := s.Add("one two three", at(0))
	require.False(t, ok)

	f, ok := s.Add("four five six", at(time.Millisecond))
	require.True(t, ok)
	assert.Equal(t, ReasonMaxWords, f.Reason)
	assert.Equal(t, "one two three four five six", f.Text)
	assert.Equal(t, 0, s.Words())
}

func TestSegmenter_PunctuationBelowMinWords(t *testing.T) {
	s := New(Config{MinWords: 3, MaxWords: 10, PauseThreshold: time.Minute})

	_, ok := s.Add("Yes.", at(0))
	assert.False(t, ok, "short sentence keeps accumulating")

	f, ok := s.Add("I agree completely.", at(time.Second))
	require.True(t, ok)
	assert.Equal(t, "Yes. I agree completely.", f.Text)
}

func TestSegmenter_PauseOnAdd(t *testing.T) {
	s := New(Config{MinWords: 3, MaxWords: 20, PauseThreshold: time.Second})

	_, ok := s.Add("so the", at(0))
	require.False(t, ok)

	f, ok := s.Add("next point", at(1500*time.Millisecond))
	require.True(t, ok)
	assert.Equal(t, ReasonPause, f.Reason)
	assert.Equal(t, "so the next point", f.Text)
}

func TestSegmenter_PauseRequiresMinWords(t *testing.T) {
	s := New(Config{MinWords: 4, MaxWords: 20, PauseThreshold: time.Second})

	_, ok := s.Add("um", at(0))
	require.False(t, ok)
	_, ok = s.Add("well", at(3*time.Second))
	assert.False(t, ok, "pause alone must not flush a short buffer")

	_, ok = s.Tick(at(time.Hour))
	assert.False(t, ok, "silence alone must not flush a short buffer")

	_, ok = s.Deadline()
	assert.False(t, ok)
	assert.Equal(t, "um well", s.Pending())
}

func TestSegmenter_ClockRestartsAfterFlush(t *testing.T) {
	s := New(Config{MinWords: 2, MaxWords: 20, PauseThreshold: time.Second})

	_, ok := s.Add("first sentence.", at(0))
	require.True(t, ok)

	// Elapsed time counts from the previous flush
	f, ok := s.Add("and then", at(5*time.Second))
	require.True(t, ok)
	assert.Equal(t, ReasonPause, f.Reason)
	assert.Equal(t, "and then", f.Text)

	_, ok = s.Add("one more", at(5*time.Second+500*time.Millisecond))
	assert.False(t, ok, "the clock restarted at the pause flush")
}

func TestSegmenter_ClockStartsWithFirstFragment(t *testing.T) {
	s := New(Config{MinWords: 2, MaxWords: 20, PauseThreshold: time.Second})

	_, ok := s.Add("good evening", at(time.Hour))
	assert.False(t, ok, "a fresh segmenter has no previous flush to measure from")

	s.Reset()
	_, ok = s.Add("welcome back", at(2*time.Hour))
	assert.False(t, ok, "reset stops the clock")
}

func TestSegmenter_IgnoresBlankFragments(t *testing.T) {
	s := New(Config{MinWords: 1, MaxWords: 5, PauseThreshold: time.Second})

	_, ok := s.Add("   \t\n", at(0))
	assert.False(t, ok)
	assert.Empty(t, s.Pending())

	_, ok = s.Add("  spaced    out  ", at(0))
	assert.False(t, ok)
	assert.Equal(t, "spaced out", s.Pending())
}

func TestSegmenter_RepeatSuppression(t *testing.T) {
	s := New(Config{MinWords: 2, MaxWords: 20, PauseThreshold: time.Second, RepeatSimilarity: 0.8})

	f, ok := s.Add("Thank you very much.", at(0))
	require.True(t, ok)
	assert.False(t, f.Suppressed)

	f, ok = s.Add("thank you very much!", at(time.Second))
	require.True(t, ok)
	assert.True(t, f.Suppressed, "near-identical repeat is suppressed")
	assert.Empty(t, s.Pending(), "suppressed buffer is cleared")

	f, ok = s.Add("See you next week.", at(2*time.Second))
	require.True(t, ok)
	assert.False(t, f.Suppressed)
}

func TestSegmenter_RepeatSuppressionDisabled(t *testing.T) {
	s := New(Config{MinWords: 1, MaxWords: 20, PauseThreshold: time.Second})

	for i := 0; i < 3; i++ {
		f, ok := s.Add("again.", at(time.Duration(i)*time.Second))
		require.True(t, ok)
		assert.False(t, f.Suppressed)
	}
}

func TestSegmenter_Reset(t *testing.T) {
	s := New(Config{MinWords: 1, MaxWords: 20, PauseThreshold: time.Second})

	s.Add("partial", at(0))
	s.Reset()

	assert.Empty(t, s.Pending())
	assert.Equal(t, 0, s.Words())
	_, ok := s.Tick(at(time.Hour))
	assert.False(t, ok)
}

func TestNew_ClampsThresholds(t *testing.T) {
	s := New(Config{MinWords: 0, MaxWords: -1, PauseThreshold: time.Second})

	f, ok := s.Add("word", at(0))
	require.True(t, ok, "max words is raised to min words")
	assert.Equal(t, ReasonMaxWords, f.Reason)
}

// Random fragment streams: the buffer never holds MaxWords words or more when
// the next fragment arrives, and every pause or silence flush meets MinWords.
func TestSegmenter_Properties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	vocabulary := []string{"alpha", "beta", "gamma", "delta.", "epsilon?", "zeta", "eta!", "theta"}

	for run := 0; run < 200; run++ {
		cfg := Config{
			MinWords:       1 + rng.Intn(5),
			PauseThreshold: time.Duration(200+rng.Intn(1500)) * time.Millisecond,
		}
		cfg.MaxWords = cfg.MinWords + rng.Intn(15)
		s := New(cfg)

		now := t0
		for i := 0; i < 100; i++ {
			require.Less(t, s.Words(), cfg.MaxWords, "run %d step %d", run, i)

			n := 1 + rng.Intn(6)
			words := make([]string, n)
			for j := range words {
				words[j] = vocabulary[rng.Intn(len(vocabulary))]
			}
			now = now.Add(time.Duration(rng.Intn(900)) * time.Millisecond)

			if f, ok := s.Add(strings.Join(words, " "), now); ok {
				if f.Reason == ReasonPause || f.Reason == ReasonPunctuation {
					require.GreaterOrEqual(t, f.Words, cfg.MinWords)
				}
			}

			if rng.Intn(4) == 0 {
				now = now.Add(time.Duration(rng.Intn(3000)) * time.Millisecond)
				if f, ok := s.Tick(now); ok {
					require.Equal(t, ReasonSilence, f.Reason)
					require.GreaterOrEqual(t, f.Words, cfg.MinWords)
				}
			}
		}
	}
}

func TestJaccard(t *testing.T) {
	s := New(Config{MinWords: 1, MaxWords: 10, PauseThreshold: time.Second})

	tests := []struct {
		a, b string
		want float64
	}{
		{"hello world", "Hello, world!", 1},
		{"hello world", "goodbye moon", 0},
		{"a b c d", "a b", 0.5},
		{"Merhaba DÜNYA", "merhaba dünya", 1},
	}

	for _, tt := range tests {
		got := jaccard(s.wordSet(tt.a), s.wordSet(tt.b))
		assert.InDelta(t, tt.want, got, 1e-9, "%q vs %q", tt.a, tt.b)
	}
}
