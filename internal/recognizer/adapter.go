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

// Package recognizer turns raw PCM into transcript fragments.
package recognizer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/loqalabs/loqa-subtitles/internal/audio"
	"github.com/loqalabs/loqa-subtitles/internal/logging"
	"github.com/loqalabs/loqa-subtitles/internal/security"
)

// Result is a completed utterance
type Result struct {
	Text       string
	Confidence float64 // 0 when the engine does not report one
}

// Decoder consumes PCM chunks. It returns nil while the current utterance is
// still incomplete and a Result once it has been recognized.
type Decoder interface {
	Decode(ctx context.Context, chunk []byte) (*Result, error)
}

// Flusher is implemented by decoders that hold buffered audio which should be
// recognized when the stream ends
type Flusher interface {
	Flush(ctx context.Context) (*Result, error)
}

// markers some engines emit for silence or music, e.g. [BLANK_AUDIO]
var nonSpeechMarker = regexp.MustCompile(`\[[A-Z_ ]+\]`)

// Adapter pulls fixed-size chunks from a source, feeds a Decoder and forwards
// recognized text
type Adapter struct {
	decoder       Decoder
	chunkBytes    int
	minConfidence float64
}

// NewAdapter creates an Adapter. Results whose reported confidence is below
// minConfidence are dropped; engines that report no confidence are trusted.
func NewAdapter(decoder Decoder, chunkBytes int, minConfidence float64) *Adapter {
	if chunkBytes <= 0 {
		chunkBytes = 8000
	}
	return &Adapter{
		decoder:       decoder,
		chunkBytes:    chunkBytes,
		minConfidence: minConfidence,
	}
}

// Run reads src until it ends, ctx is done or the decoder fails. A clean end
// of stream is reported as audio.ErrSourceEnded. Decoder errors are not
// retried.
func (a *Adapter) Run(ctx context.Context, src io.Reader, out chan<- string) error {
	buf := make([]byte, a.chunkBytes)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, readErr := io.ReadFull(src, buf)
		if n > 0 {
			res, err := a.decoder.Decode(ctx, buf[:n])
			if err != nil {
				return fmt.Errorf("decoder failed: %w", err)
			}
			if err := a.forward(ctx, res, out); err != nil {
				return err
			}
		}

		if readErr == nil {
			continue
		}
		if errors.Is(readErr, io.EOF) || errors.Is(readErr, io.ErrUnexpectedEOF) {
			if f, ok := a.decoder.(Flusher); ok {
				res, err := f.Flush(ctx)
				if err != nil {
					return fmt.Errorf("decoder failed: %w", err)
				}
				if err := a.forward(ctx, res, out); err != nil {
					return err
				}
			}
			return audio.ErrSourceEnded
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("audio source read failed: %w", readErr)
	}
}

func (a *Adapter) forward(ctx context.Context, res *Result, out chan<- string) error {
	if res == nil {
		return nil
	}

	text := strings.TrimSpace(nonSpeechMarker.ReplaceAllString(res.Text, ""))
	if text == "" {
		return nil
	}

	if res.Confidence > 0 && res.Confidence < a.minConfidence {
		logging.Sugar.Debugw("Dropping low-confidence fragment",
			"confidence", res.Confidence,
			"text", security.SanitizeLogInput(text),
		)
		return nil
	}

	select {
	case out <- text:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
