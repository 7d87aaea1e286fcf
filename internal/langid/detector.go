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

package langid

import (
	"strings"

	"github.com/abadojack/whatlanggo"
)

// Detection is the language guessed for a flushed buffer
type Detection struct {
	Lang       string // ISO 639-1 code
	Confidence float64
	Fallback   bool // true when Lang is the configured default rather than a detection
}

// Detector identifies the language of a piece of text
type Detector interface {
	Detect(text string) Detection
}

// WhatlangDetector detects languages with trigram statistics from whatlanggo
type WhatlangDetector struct {
	minConfidence float64
	defaultLang   string
}

// NewWhatlangDetector creates a detector that answers defaultLang whenever the
// detection is less confident than minConfidence.
func NewWhatlangDetector(minConfidence float64, defaultLang string) *WhatlangDetector {
	return &WhatlangDetector{
		minConfidence: minConfidence,
		defaultLang:   defaultLang,
	}
}

// Detect returns the most likely language of text
func (d *WhatlangDetector) Detect(text string) Detection {
	if strings.TrimSpace(text) == "" {
		return Detection{Lang: d.defaultLang, Fallback: true}
	}

	info := whatlanggo.Detect(text)
	// no script means no letters at all
	if info.Script == nil || info.Confidence < d.minConfidence {
		return Detection{Lang: d.defaultLang, Confidence: info.Confidence, Fallback: true}
	}

	code := info.Lang.Iso6391()
	if code == "" {
		return Detection{Lang: d.defaultLang, Confidence: info.Confidence, Fallback: true}
	}

	return Detection{Lang: code, Confidence: info.Confidence}
}

// Fixed always reports the same language. Used when the recognizer was told
// which language it is listening to.
type Fixed string

// Detect returns the fixed language
func (f Fixed) Detect(string) Detection {
	return Detection{Lang: string(f), Confidence: 1}
}
