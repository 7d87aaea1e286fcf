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

// Package translate turns flushed transcript text into the target language.
//
// A Dispatcher tries, in order: the domain glossary, the translation cache,
// each configured remote Provider with its own timeout, and finally a
// whole-word dictionary substitution that always yields text.
package translate

import (
	"context"
	"errors"
	"regexp"
	"strings"
)

var (
	// ErrEmptyResult is returned by a provider that answered without any text
	ErrEmptyResult = errors.New("provider returned an empty translation")

	// ErrUntranslated is returned when a provider echoed the source text back
	ErrUntranslated = errors.New("provider returned the text untranslated")

	// ErrNoTranslation is returned when dispatch was cancelled before any tier answered
	ErrNoTranslation = errors.New("no translation available")
)

// Request is a single translation call
type Request struct {
	Text    string
	Source  string
	Target  string
	Context []string // previously flushed source texts, oldest first
}

// Provider is a remote translation backend
type Provider interface {
	Name() string
	Translate(ctx context.Context, req Request) (string, error)
}

// ContextReader is implemented by providers that read Request.Context. The
// dispatcher keeps no context window unless one of its providers does.
type ContextReader interface {
	ReadsContext() bool
}

// Tier names where a translation came from
const (
	TierPassthrough = "passthrough"
	TierGlossary    = "glossary"
	TierCache       = "cache"
	TierDictionary  = "dictionary"
)

// Result is the outcome of a dispatch
type Result struct {
	Text       string `json:"text"`
	SourceText string `json:"source_text"`
	SourceLang string `json:"source_lang"`
	TargetLang string `json:"target_lang"`
	Provider   string `json:"provider"`
	Cached     bool   `json:"cached"`
	Degraded   bool   `json:"degraded"` // produced by the dictionary tier
}

var (
	disallowedChars = regexp.MustCompile(`[^\p{L}\p{N}\s.,!?'\-]+`)
	whitespaceRun   = regexp.MustCompile(`\s+`)
)

// CleanText strips characters recognizers emit as noise and collapses whitespace
func CleanText(text string) string {
	text = disallowedChars.ReplaceAllString(text, " ")
	text = whitespaceRun.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
