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

package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/loqalabs/loqa-subtitles/internal/config"
	"github.com/loqalabs/loqa-subtitles/internal/logging"
)

// Audio is synthesized speech
type Audio struct {
	Data        []byte
	ContentType string
}

// Synthesizer converts text to speech
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (*Audio, error)
}

// KokoroRequest represents a request to an OpenAI-compatible speech API
type KokoroRequest struct {
	Model  string  `json:"model"`
	Input  string  `json:"input"`
	Voice  string  `json:"voice"`
	Format string  `json:"response_format"`
	Speed  float32 `json:"speed,omitempty"`
}

// KokoroVoicesResponse represents the response from the voices endpoint
type KokoroVoicesResponse struct {
	Voices []string `json:"voices"`
}

// KokoroClient synthesizes speech with Kokoro-82M or any service exposing
// POST /audio/speech
type KokoroClient struct {
	baseURL   string
	client    *http.Client
	config    config.TTSConfig
	semaphore chan struct{} // Limits concurrent requests
}

// NewKokoroClient creates a new Kokoro TTS client
func NewKokoroClient(cfg config.TTSConfig) (*KokoroClient, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("TTS URL cannot be empty")
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.ResponseFormat == "" {
		cfg.ResponseFormat = "mp3"
	}

	logging.Sugar.Infow("🔊 TTS client initialized",
		"url", cfg.URL,
		"voice", cfg.Voice,
		"max_concurrent", cfg.MaxConcurrent,
	)

	return &KokoroClient{
		baseURL:   strings.TrimSuffix(cfg.URL, "/"),
		client:    &http.Client{Timeout: cfg.Timeout},
		config:    cfg,
		semaphore: make(chan struct{}, cfg.MaxConcurrent),
	}, nil
}

// Synthesize implements Synthesizer
func (k *KokoroClient) Synthesize(ctx context.Context, text string) (*Audio, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}

	select {
	case k.semaphore <- struct{}{}:
		defer func() { <-k.semaphore }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	startTime := time.Now()

	requestBody, err := json.Marshal(KokoroRequest{
		Model:  "kokoro",
		Input:  text,
		Voice:  k.config.Voice,
		Format: k.config.ResponseFormat,
		Speed:  k.config.Speed,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal TTS request: %w", err)
	}

	logging.LogTTSOperation("synthesis_start",
		zap.String("voice", k.config.Voice),
		zap.Int("text_length", len(text)),
		zap.String("format", k.config.ResponseFormat),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, k.baseURL+"/audio/speech", bytes.NewReader(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/*")

	resp, err := k.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("TTS HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("TTS request failed with status %d: %s", resp.StatusCode, string(body))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read TTS audio: %w", err)
	}

	logging.LogTTSOperation("synthesis_complete",
		zap.Int("text_length", len(text)),
		zap.Int("audio_bytes", len(data)),
		zap.Duration("processing_time", time.Since(startTime)),
	)

	return &Audio{Data: data, ContentType: resp.Header.Get("Content-Type")}, nil
}

// Voices lists the voices the service offers. Also serves as a reachability check.
func (k *KokoroClient) Voices(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, k.baseURL+"/audio/voices", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create voices request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := k.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch voices: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("voices request failed with status %d", resp.StatusCode)
	}

	var voicesResponse KokoroVoicesResponse
	if err := json.NewDecoder(resp.Body).Decode(&voicesResponse); err != nil {
		return nil, fmt.Errorf("failed to decode voices response: %w", err)
	}
	return voicesResponse.Voices, nil
}

// Close releases idle connections
func (k *KokoroClient) Close() error {
	k.client.CloseIdleConnections()
	return nil
}
