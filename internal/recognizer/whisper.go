//go:build whisper

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
	"os"
	"strings"
	"sync"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/loqalabs/loqa-subtitles/internal/audio"
	"github.com/loqalabs/loqa-subtitles/internal/logging"
)

// WhisperTranscriber runs a local whisper.cpp model
type WhisperTranscriber struct {
	mu        sync.Mutex
	model     whisper.Model
	modelPath string
	language  string
}

// NewWhisperTranscriber loads the model at modelPath
func NewWhisperTranscriber(modelPath, language string) (*WhisperTranscriber, error) {
	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("whisper model not found at %s", modelPath)
	}

	model, err := whisper.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load whisper model: %w", err)
	}

	logging.Sugar.Infow("✅ Whisper model loaded", "path", modelPath)
	return &WhisperTranscriber{
		model:     model,
		modelPath: modelPath,
		language:  language,
	}, nil
}

// Transcribe implements Transcriber. whisper.cpp expects 16 kHz mono audio.
func (wt *WhisperTranscriber) Transcribe(ctx context.Context, samples []int16, sampleRate int) (Transcription, error) {
	if sampleRate != whisper.SampleRate {
		return Transcription{}, fmt.Errorf("whisper requires %d Hz audio, got %d", whisper.SampleRate, sampleRate)
	}
	if err := ctx.Err(); err != nil {
		return Transcription{}, err
	}

	wt.mu.Lock()
	defer wt.mu.Unlock()

	if wt.model == nil {
		return Transcription{}, fmt.Errorf("whisper model not initialized")
	}

	wctx, err := wt.model.NewContext()
	if err != nil {
		return Transcription{}, fmt.Errorf("failed to create whisper context: %w", err)
	}
	if wt.language != "" {
		if err := wctx.SetLanguage(wt.language); err != nil {
			return Transcription{}, fmt.Errorf("failed to set whisper language %q: %w", wt.language, err)
		}
	}

	if err := wctx.Process(audio.ToFloat32(samples), nil, nil, nil); err != nil {
		return Transcription{}, fmt.Errorf("failed to process audio: %w", err)
	}

	var transcript strings.Builder
	for {
		segment, err := wctx.NextSegment()
		if err != nil {
			break
		}
		transcript.WriteString(segment.Text)
	}

	return Transcription{Text: strings.TrimSpace(transcript.String()), Language: wt.language}, nil
}

// Close frees the model
func (wt *WhisperTranscriber) Close() error {
	wt.mu.Lock()
	defer wt.mu.Unlock()

	if wt.model != nil {
		err := wt.model.Close()
		wt.model = nil
		logging.Sugar.Infow("🧠 Whisper model closed", "path", wt.modelPath)
		return err
	}
	return nil
}
