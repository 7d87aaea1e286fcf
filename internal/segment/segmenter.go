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

// Package segment decides when a rolling transcript is ready to be translated.
//
// Fragments from the recognizer accumulate in a buffer. After each fragment the
// buffer is flushed when it reaches MaxWords, when it ends a sentence and holds
// at least MinWords, or when PauseThreshold has passed since the previous flush
// and it holds at least MinWords. A separate Tick flushes the buffer once the speaker has been
// silent for PauseThreshold.
package segment

import (
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/cases"
)

// Reason names the rule that triggered a flush
type Reason string

const (
	ReasonMaxWords    Reason = "max_words"
	ReasonPunctuation Reason = "punctuation"
	ReasonPause       Reason = "pause"
	ReasonSilence     Reason = "silence"
)

// Config holds the segmentation thresholds
type Config struct {
	MinWords         int
	MaxWords         int
	PauseThreshold   time.Duration
	RepeatSimilarity float64 // 0 disables repeat suppression
}

// Flush is a finalized buffer handed to translation.
// Suppressed flushes repeat the previous one and must not be translated.
type Flush struct {
	Text       string
	Words      int
	Reason     Reason
	Suppressed bool
	At         time.Time
}

// Segmenter accumulates fragments for a single stream. It is not safe for
// concurrent use; the session event loop owns it.
type Segmenter struct {
	cfg Config

	text           string
	words          int
	startedAt      time.Time
	lastFragmentAt time.Time

	lastEmitted map[string]struct{}
	fold        cases.Caser
}

// New creates a Segmenter. MinWords below one is treated as one and MaxWords
// is never allowed below MinWords.
func New(cfg Config) *Segmenter {
	if cfg.MinWords < 1 {
		cfg.MinWords = 1
	}
	if cfg.MaxWords < cfg.MinWords {
		cfg.MaxWords = cfg.MinWords
	}
	return &Segmenter{
		cfg:  cfg,
		fold: cases.Fold(),
	}
}

// Add appends a fragment and reports whether the buffer was flushed.
// Blank fragments are ignored.
func (s *Segmenter) Add(fragment string, now time.Time) (Flush, bool) {
	fragment = strings.Join(strings.Fields(fragment), " ")
	if fragment == "" {
		return Flush{}, false
	}

	// the clock starts with the first fragment and restarts at every flush
	if s.startedAt.IsZero() {
		s.startedAt = now
	}
	if s.text == "" {
		s.text = fragment
	} else {
		s.text += " " + fragment
	}
	s.words = len(strings.Fields(s.text))
	s.lastFragmentAt = now

	switch {
	case s.words >= s.cfg.MaxWords:
		return s.flush(ReasonMaxWords, now), true
	case endsSentence(s.text) && s.words >= s.cfg.MinWords:
		return s.flush(ReasonPunctuation, now), true
	case now.Sub(s.startedAt) >= s.cfg.PauseThreshold && s.words >= s.cfg.MinWords:
		return s.flush(ReasonPause, now), true
	}
	return Flush{}, false
}

// Tick flushes the buffer when no fragment arrived for PauseThreshold and it
// holds at least MinWords. A short buffer keeps waiting for more speech.
func (s *Segmenter) Tick(now time.Time) (Flush, bool) {
	if s.words == 0 || s.words < s.cfg.MinWords {
		return Flush{}, false
	}
	if now.Sub(s.lastFragmentAt) < s.cfg.PauseThreshold {
		return Flush{}, false
	}
	return s.flush(ReasonSilence, now), true
}

// Deadline returns the instant at which Tick would flush the current buffer
// if no further fragment arrives.
func (s *Segmenter) Deadline() (time.Time, bool) {
	if s.words == 0 || s.words < s.cfg.MinWords {
		return time.Time{}, false
	}
	return s.lastFragmentAt.Add(s.cfg.PauseThreshold), true
}

// Pending returns the unflushed text
func (s *Segmenter) Pending() string {
	return s.text
}

// Words returns the word count of the unflushed text
func (s *Segmenter) Words() int {
	return s.words
}

// Reset drops the buffer without emitting it and stops the pause clock.
// Repeat history is kept.
func (s *Segmenter) Reset() {
	s.clear()
	s.startedAt = time.Time{}
}

func (s *Segmenter) clear() {
	s.text = ""
	s.words = 0
}

func (s *Segmenter) flush(reason Reason, now time.Time) Flush {
	f := Flush{
		Text:   s.text,
		Words:  s.words,
		Reason: reason,
		At:     now,
	}
	s.clear()
	s.startedAt = now

	set := s.wordSet(f.Text)
	if s.cfg.RepeatSimilarity > 0 && s.lastEmitted != nil && jaccard(set, s.lastEmitted) >= s.cfg.RepeatSimilarity {
		f.Suppressed = true
		return f
	}
	s.lastEmitted = set
	return f
}

func (s *Segmenter) wordSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(text) {
		w = strings.TrimFunc(w, func(r rune) bool {
			return unicode.IsPunct(r) || unicode.IsSymbol(r)
		})
		if w == "" {
			continue
		}
		set[s.fold.String(w)] = struct{}{}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	inter := 0
	for w := range a {
		if _, ok := b[w]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

func endsSentence(text string) bool {
	switch text[len(text)-1] {
	case '.', '!', '?':
		return true
	}
	return false
}
