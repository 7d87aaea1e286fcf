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
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/loqalabs/loqa-subtitles/internal/config"
	"github.com/loqalabs/loqa-subtitles/internal/langid"
	"github.com/loqalabs/loqa-subtitles/internal/logging"
	"github.com/loqalabs/loqa-subtitles/internal/recognizer"
	"github.com/loqalabs/loqa-subtitles/internal/security"
	"github.com/loqalabs/loqa-subtitles/internal/speech"
	"github.com/loqalabs/loqa-subtitles/internal/translate"
)

// buildTranscriber picks the local whisper.cpp model or the HTTP STT service.
// An unreachable HTTP service is only a warning since it may come up later.
func buildTranscriber(ctx context.Context, cfg config.RecognizerConfig) (recognizer.Transcriber, error) {
	if cfg.Engine == "whisper" {
		wt, err := recognizer.NewWhisperTranscriber(cfg.ModelPath, cfg.Language)
		if err != nil {
			return nil, fmt.Errorf("failed to load whisper model: %w", err)
		}
		return wt, nil
	}

	ht := recognizer.NewHTTPTranscriber(cfg.URL, cfg.Language, cfg.Temperature, cfg.Timeout)
	if err := ht.HealthCheck(ctx); err != nil {
		logging.LogWarn("⚠️ STT service is not reachable yet",
			zap.String("url", security.RedactURL(cfg.URL)),
			zap.Error(err),
		)
	}
	return ht, nil
}

// buildDetector trusts the recognizer's language when one was configured
func buildDetector(cfg config.TranslateConfig, sttLanguage string) langid.Detector {
	if sttLanguage != "" {
		return langid.Fixed(sttLanguage)
	}
	return langid.NewWhatlangDetector(cfg.DetectMinConfidence, cfg.DefaultSource)
}

// buildPhraseBooks merges optional TOML files into the built-in glossary and lexicon
func buildPhraseBooks(cfg config.TranslateConfig) (*translate.PhraseBook, *translate.PhraseBook, error) {
	glossary := translate.DefaultGlossary()
	lexicon := translate.DefaultLexicon()

	if cfg.GlossaryFile != "" {
		terms, err := translate.LoadTerms(cfg.GlossaryFile)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load glossary: %w", err)
		}
		glossary.Merge(terms)
	}
	if cfg.LexiconFile != "" {
		terms, err := translate.LoadTerms(cfg.LexiconFile)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load lexicon: %w", err)
		}
		lexicon.Merge(terms)
	}
	return glossary, lexicon, nil
}

// buildProviders creates the remote providers in the configured order.
// Unknown names are an error. OpenAI without a key is skipped.
func buildProviders(cfg config.TranslateConfig) ([]translate.Provider, error) {
	client := &http.Client{}
	providers := make([]translate.Provider, 0, len(cfg.Providers))

	for _, name := range cfg.Providers {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "libretranslate":
			providers = append(providers, translate.NewLibreTranslate(cfg.LibreTranslateURL, cfg.LibreTranslateKey, client))
		case "google":
			providers = append(providers, translate.NewGoogle(cfg.GoogleURL, client))
		case "openai":
			if cfg.OpenAIAPIKey == "" {
				logging.LogWarn("⚠️ Skipping openai translation provider: OPENAI_API_KEY is not set")
				continue
			}
			providers = append(providers, translate.NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel))
		case "":
		default:
			return nil, fmt.Errorf("unknown translation provider %q", name)
		}
	}
	return providers, nil
}

func buildDispatcher(cfg config.TranslateConfig, sttLanguage string) (*translate.Dispatcher, error) {
	glossary, lexicon, err := buildPhraseBooks(cfg)
	if err != nil {
		return nil, err
	}
	providers, err := buildProviders(cfg)
	if err != nil {
		return nil, err
	}
	if len(providers) == 0 {
		logging.LogWarn("⚠️ No remote translation providers configured, using dictionary fallback only")
	}

	return translate.NewDispatcher(translate.DispatcherConfig{
		Target:          cfg.Target,
		DefaultSource:   cfg.DefaultSource,
		ProviderTimeout: cfg.ProviderTimeout,
		Detector:        buildDetector(cfg, sttLanguage),
		Glossary:        glossary,
		Lexicon:         lexicon,
		Cache:           translate.NewCache(cfg.CacheSize, cfg.CacheTTL),
		Window:          translate.NewContextWindow(cfg.ContextSize),
	}, providers...), nil
}

func buildSpeechWorker(ctx context.Context, cfg config.TTSConfig) (*speech.Worker, error) {
	client, err := speech.NewKokoroClient(cfg)
	if err != nil {
		return nil, err
	}
	player, err := speech.NewCommandPlayer(cfg.PlayerCommand)
	if err != nil {
		return nil, err
	}

	if voices, err := client.Voices(ctx); err != nil {
		logging.LogWarn("⚠️ TTS service is not reachable yet",
			zap.String("url", security.RedactURL(cfg.URL)),
			zap.Error(err),
		)
	} else {
		logging.LogTTSOperation("voices", zap.Int("count", len(voices)), zap.String("voice", cfg.Voice))
	}

	return speech.NewWorker(client, player, cfg.QueueSize), nil
}
