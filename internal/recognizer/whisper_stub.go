//go:build !whisper

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
	"context"
	"fmt"
)

// WhisperTranscriber is unavailable without the whisper build tag
type WhisperTranscriber struct{}

// NewWhisperTranscriber fails so that startup aborts with a clear message
func NewWhisperTranscriber(modelPath, language string) (*WhisperTranscriber, error) {
	return nil, fmt.Errorf("whisper support not compiled in (build with -tags whisper to load %s)", modelPath)
}

// Transcribe always fails
func (wt *WhisperTranscriber) Transcribe(context.Context, []int16, int) (Transcription, error) {
	return Transcription{}, fmt.Errorf("whisper transcription disabled (build with -tags whisper to enable)")
}

// Close does nothing
func (wt *WhisperTranscriber) Close() error {
	return nil
}
