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
	"time"

	"github.com/loqalabs/loqa-subtitles/internal/audio"
)

// Transcription is the text recognized in one utterance
type Transcription struct {
	Text       string
	Language   string
	Confidence float64
}

// Transcriber recognizes a complete utterance
type Transcriber interface {
	Transcribe(ctx context.Context, samples []int16, sampleRate int) (Transcription, error)
	Close() error
}

// EndpointConfig tunes utterance detection
type EndpointConfig struct {
	SampleRate      int
	SpeechThreshold float64       // RMS amplitude that counts as speech
	SilenceDuration time.Duration // trailing silence that ends an utterance
	MaxUtterance    time.Duration // utterances are cut at this length
	MinSpeech       time.Duration // shorter bursts are treated as noise
}

// UtteranceDecoder buffers PCM while someone is speaking and hands each
// finished utterance to a Transcriber. An utterance starts with the first
// chunk louder than SpeechThreshold and ends after SilenceDuration of quiet
// chunks or once it reaches MaxUtterance.
type UtteranceDecoder struct {
	cfg         EndpointConfig
	transcriber Transcriber

	active  bool
	samples []int16
	speech  time.Duration
	silence time.Duration
}

// NewUtteranceDecoder creates a decoder around transcriber
func NewUtteranceDecoder(cfg EndpointConfig, transcriber Transcriber) *UtteranceDecoder {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.SilenceDuration <= 0 {
		cfg.SilenceDuration = 600 * time.Millisecond
	}
	if cfg.MaxUtterance <= 0 {
		cfg.MaxUtterance = 10 * time.Second
	}
	if cfg.MinSpeech <= 0 {
		cfg.MinSpeech = 200 * time.Millisecond
	}
	return &UtteranceDecoder{cfg: cfg, transcriber: transcriber}
}

// Decode implements Decoder
func (d *UtteranceDecoder) Decode(ctx context.Context, chunk []byte) (*Result, error) {
	samples := audio.DecodePCM(chunk)
	if len(samples) == 0 {
		return nil, nil
	}

	loud := audio.RMS(samples) >= d.cfg.SpeechThreshold
	if !d.active {
		if !loud {
			return nil, nil
		}
		d.active = true
	}

	d.samples = append(d.samples, samples...)
	dur := d.duration(len(samples))
	if loud {
		d.speech += dur
		d.silence = 0
	} else {
		d.silence += dur
	}

	if d.silence >= d.cfg.SilenceDuration || d.duration(len(d.samples)) >= d.cfg.MaxUtterance {
		return d.finish(ctx)
	}
	return nil, nil
}

// Flush recognizes whatever speech is still buffered
func (d *UtteranceDecoder) Flush(ctx context.Context) (*Result, error) {
	if !d.active {
		return nil, nil
	}
	return d.finish(ctx)
}

func (d *UtteranceDecoder) finish(ctx context.Context) (*Result, error) {
	samples, speech := d.samples, d.speech
	d.active = false
	d.samples = nil
	d.speech = 0
	d.silence = 0

	if speech < d.cfg.MinSpeech {
		return nil, nil
	}

	tr, err := d.transcriber.Transcribe(ctx, samples, d.cfg.SampleRate)
	if err != nil {
		return nil, fmt.Errorf("transcription failed: %w", err)
	}
	return &Result{Text: tr.Text, Confidence: tr.Confidence}, nil
}

func (d *UtteranceDecoder) duration(samples int) time.Duration {
	return time.Duration(samples) * time.Second / time.Duration(d.cfg.SampleRate)
}
