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

package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"

	"github.com/loqalabs/loqa-subtitles/internal/logging"
	"github.com/loqalabs/loqa-subtitles/internal/security"
)

// Opener starts a fresh connection to the upstream stream. The session calls
// it again after every recoverable failure.
type Opener func(ctx context.Context) (io.ReadCloser, error)

// Reaper is implemented by sources backed by a child process. Reap must only
// be called after Close and once every Read has returned.
type Reaper interface {
	Reap() error
}

// FFmpegConfig describes how to demux a stream into raw PCM
type FFmpegConfig struct {
	Path       string
	URL        string
	SampleRate int
}

// FFmpegSource reads s16le mono PCM from an ffmpeg subprocess
type FFmpegSource struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser

	closeOnce sync.Once
	closeErr  error

	reapOnce sync.Once
	reapErr  error
}

// CheckFFmpeg verifies that the ffmpeg binary can be found
func CheckFFmpeg(path string) error {
	if _, err := exec.LookPath(path); err != nil {
		return fmt.Errorf("ffmpeg not found (%s): %w", path, err)
	}
	return nil
}

// Args returns the ffmpeg command line for cfg
func (cfg FFmpegConfig) Args() []string {
	return []string{
		"-nostdin",
		"-loglevel", "quiet",
		"-i", cfg.URL,
		"-ar", strconv.Itoa(cfg.SampleRate),
		"-ac", "1",
		"-f", "s16le",
		"-",
	}
}

// StartFFmpeg launches ffmpeg for cfg. The process is killed when ctx is done
// or Close is called.
func StartFFmpeg(ctx context.Context, cfg FFmpegConfig) (*FFmpegSource, error) {
	cmd := exec.CommandContext(ctx, cfg.Path, cfg.Args()...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open ffmpeg stdout: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	logging.Sugar.Infow("🎧 Audio source started",
		"url", security.RedactURL(cfg.URL),
		"sample_rate", cfg.SampleRate,
		"pid", cmd.Process.Pid,
	)

	return &FFmpegSource{cmd: cmd, stdout: stdout}, nil
}

// NewFFmpegOpener returns an Opener that starts a new ffmpeg process per call
func NewFFmpegOpener(cfg FFmpegConfig) Opener {
	return func(ctx context.Context) (io.ReadCloser, error) {
		return StartFFmpeg(ctx, cfg)
	}
}

// Read reads raw PCM bytes
func (s *FFmpegSource) Read(p []byte) (int, error) {
	return s.stdout.Read(p)
}

// Close kills ffmpeg. A pending Read returns once the process is gone; the
// process is not waited for until Reap.
func (s *FFmpegSource) Close() error {
	s.closeOnce.Do(func() {
		if err := s.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			s.closeErr = fmt.Errorf("failed to kill ffmpeg: %w", err)
		}
	})
	return s.closeErr
}

// Reap waits for ffmpeg to exit and releases its pipes. os/exec forbids Wait
// while a Read on stdout is still in flight.
func (s *FFmpegSource) Reap() error {
	s.reapOnce.Do(func() {
		// a killed process reports a signal error we do not care about
		err := s.cmd.Wait()
		var exitErr *exec.ExitError
		if err != nil && !errors.As(err, &exitErr) && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			s.reapErr = fmt.Errorf("failed to reap ffmpeg: %w", err)
		}
		logging.Sugar.Debugw("🎧 Audio source closed", "pid", s.cmd.Process.Pid)
	})
	return s.reapErr
}
