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

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/loqalabs/loqa-subtitles/internal/audio"
	"github.com/loqalabs/loqa-subtitles/internal/broadcast"
	"github.com/loqalabs/loqa-subtitles/internal/config"
	"github.com/loqalabs/loqa-subtitles/internal/events"
	"github.com/loqalabs/loqa-subtitles/internal/logging"
	"github.com/loqalabs/loqa-subtitles/internal/messaging"
	"github.com/loqalabs/loqa-subtitles/internal/monitor"
	"github.com/loqalabs/loqa-subtitles/internal/pipeline"
	"github.com/loqalabs/loqa-subtitles/internal/recognizer"
	"github.com/loqalabs/loqa-subtitles/internal/security"
	"github.com/loqalabs/loqa-subtitles/internal/segment"
	"github.com/loqalabs/loqa-subtitles/internal/server"
	"github.com/loqalabs/loqa-subtitles/internal/speech"
	"github.com/loqalabs/loqa-subtitles/internal/storage"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		streamURL = flag.String("url", "", "audio stream URL (overrides STREAM_URL)")
		port      = flag.Int("port", 0, "HTTP/websocket port (overrides LOQA_PORT)")
		target    = flag.String("target", "", "target language (overrides TRANSLATE_TARGET)")
		sttURL    = flag.String("stt-url", "", "OpenAI-compatible STT service URL (overrides STT_URL)")
		model     = flag.String("model", "", "whisper.cpp model path; selects the local recognizer")
		tts       = flag.Bool("tts", false, "speak subtitles aloud")
		envFile   = flag.String("env-file", ".env", "environment file loaded before reading configuration")
	)
	flag.Parse()

	if err := config.LoadEnvFile(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		return 1
	}

	cfg, err := config.Load(
		config.WithStreamURL(*streamURL),
		config.WithPort(*port),
		config.WithTarget(*target),
		config.WithSTTURL(*sttURL),
		config.WithWhisperModel(*model),
		config.WithTTS(*tts),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		return 1
	}

	if err := logging.InitializeWithConfig(logging.LogConfig{Level: cfg.Logging.Level, Format: cfg.Logging.Format}); err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to initialize logging: %v\n", err)
		return 1
	}
	defer logging.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, cfg); err != nil {
		logging.LogError(err, "loqa-subtitles stopped with an error")
		return 1
	}

	logging.Sugar.Infow("👋 loqa-subtitles stopped")
	return 0
}

// serve builds every component and runs them until ctx is cancelled or one fails
func serve(ctx context.Context, cfg *config.Config) error {
	if err := audio.CheckFFmpeg(cfg.Stream.FFmpegPath); err != nil {
		return err
	}

	transcriber, err := buildTranscriber(ctx, cfg.Recognizer)
	if err != nil {
		return err
	}
	defer transcriber.Close()

	dispatcher, err := buildDispatcher(cfg.Translate, cfg.Recognizer.Language)
	if err != nil {
		return err
	}

	hub := broadcast.NewHub(cfg.Server.SubtitleFormat, 0)
	history := pipeline.NewHistory(cfg.Server.HistorySize)
	sinks := []pipeline.Sink{hub, history}
	var historySource server.SubtitleHistory = history

	var worker *speech.Worker
	if cfg.TTS.Enabled {
		worker, err = buildSpeechWorker(ctx, cfg.TTS)
		if err != nil {
			return err
		}
		sinks = append(sinks, worker)
	}

	if cfg.NATS.URL != "" {
		nc, err := messaging.Connect(cfg.NATS)
		if err != nil {
			return err
		}
		defer nc.Close()
		sinks = append(sinks, messaging.NewSubtitlePublisher(nc, cfg.NATS.SubjectPrefix))
	}

	var pruner *storage.Pruner
	if cfg.Archive.Path != "" {
		db, err := storage.NewDatabase(cfg.Archive.Path)
		if err != nil {
			return err
		}
		defer db.Close()

		store := storage.NewSubtitleStore(db)
		pruner, err = storage.NewPruner(store, cfg.Archive.Retention, cfg.Archive.PruneSchedule)
		if err != nil {
			return err
		}
		sinks = append(sinks, store)
		streamID := cfg.Stream.ID
		historySource = server.HistoryFunc(func(ctx context.Context, limit int) ([]*events.Subtitle, error) {
			return store.Recent(ctx, streamID, limit)
		})
	}

	latency := monitor.NewLatencyMonitor()
	resources := monitor.NewResourceMonitor()

	decoder := recognizer.NewUtteranceDecoder(recognizer.EndpointConfig{
		SampleRate:      cfg.Stream.SampleRate,
		SpeechThreshold: cfg.Recognizer.SpeechThreshold,
		SilenceDuration: cfg.Recognizer.SilenceDuration,
		MaxUtterance:    cfg.Recognizer.MaxUtterance,
	}, transcriber)
	adapter := recognizer.NewAdapter(decoder, cfg.Stream.ChunkBytes, cfg.Recognizer.MinConfidence)

	opener := audio.NewFFmpegOpener(audio.FFmpegConfig{
		Path:       cfg.Stream.FFmpegPath,
		URL:        cfg.Stream.URL,
		SampleRate: cfg.Stream.SampleRate,
	})

	session := pipeline.NewSession(pipeline.SessionConfig{
		StreamID: cfg.Stream.ID,
		Segment: segment.Config{
			MinWords:         cfg.Segment.MinWords,
			MaxWords:         cfg.Segment.MaxWords,
			PauseThreshold:   cfg.Segment.PauseThreshold,
			RepeatSimilarity: cfg.Segment.RepeatSimilarity,
		},
		ReconnectInitial:  cfg.Stream.ReconnectInitial,
		ReconnectMax:      cfg.Stream.ReconnectMax,
		ReconnectAttempts: cfg.Stream.ReconnectAttempts,
		Latency:           latency,
	}, opener, adapter, dispatcher, sinks...)

	deps := server.Deps{
		Hub:         hub,
		Session:     session,
		Translation: dispatcher,
		History:     historySource,
		Performance: latency,
		Resources:   resources,
	}
	if worker != nil {
		deps.Speech = worker
	}
	srv := server.New(cfg.Server, deps)

	logging.Sugar.Infow("🚀 loqa-subtitles starting",
		"stream", security.RedactURL(cfg.Stream.URL),
		"stream_id", cfg.Stream.ID,
		"recognizer", cfg.Recognizer.Engine,
		"target", cfg.Translate.Target,
		"providers", cfg.Translate.Providers,
		"port", cfg.Server.Port,
		"tts", cfg.TTS.Enabled,
		"nats", cfg.NATS.URL != "",
		"archive", cfg.Archive.Path != "",
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return session.Run(gctx)
	})
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		return srv.Stop()
	})
	g.Go(func() error {
		return resources.Run(gctx, time.Minute, latency)
	})
	if worker != nil {
		g.Go(func() error { return worker.Run(gctx) })
	}
	if pruner != nil {
		g.Go(func() error { return pruner.Run(gctx) })
	}

	err = g.Wait()
	if errors.Is(err, pipeline.ErrReconnectExhausted) {
		logging.LogError(err, "Audio stream could not be recovered", zap.String("stream_id", cfg.Stream.ID))
	}
	return err
}
