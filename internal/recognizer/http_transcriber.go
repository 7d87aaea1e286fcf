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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/loqalabs/loqa-subtitles/internal/audio"
	"github.com/loqalabs/loqa-subtitles/internal/logging"
)

// HTTPTranscriber calls any OpenAI-compatible Speech-to-Text service
type HTTPTranscriber struct {
	baseURL     string
	language    string
	temperature float32
	httpClient  *http.Client
}

// OpenAI-compatible response struct
type transcriptionResponse struct {
	Text     string `json:"text"`
	Language string `json:"language,omitempty"`
}

// NewHTTPTranscriber creates a transcriber for baseURL. An empty language
// lets the service detect it.
func NewHTTPTranscriber(baseURL, language string, temperature float32, timeout time.Duration) *HTTPTranscriber {
	if baseURL == "" {
		baseURL = "http://localhost:8000"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPTranscriber{
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		language:    language,
		temperature: temperature,
		httpClient:  &http.Client{Timeout: timeout},
	}
}

// HealthCheck verifies the service is running
func (s *HTTPTranscriber) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create health request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to STT service at %s: %w", s.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("STT service health check failed with status: %d", resp.StatusCode)
	}
	return nil
}

// Transcribe implements Transcriber
func (s *HTTPTranscriber) Transcribe(ctx context.Context, samples []int16, sampleRate int) (Transcription, error) {
	if len(samples) == 0 {
		return Transcription{}, fmt.Errorf("empty audio data")
	}
	if sampleRate <= 0 {
		return Transcription{}, fmt.Errorf("invalid sample rate: %d", sampleRate)
	}

	startTime := time.Now()
	requestID := uuid.NewString()

	wavData, err := audio.EncodeWAV(samples, sampleRate)
	if err != nil {
		return Transcription{}, fmt.Errorf("failed to convert audio to WAV: %w", err)
	}

	var requestBody bytes.Buffer
	writer := multipart.NewWriter(&requestBody)

	audioWriter, err := writer.CreateFormFile("file", "audio.wav")
	if err != nil {
		return Transcription{}, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := audioWriter.Write(wavData); err != nil {
		return Transcription{}, fmt.Errorf("failed to write audio data: %w", err)
	}

	_ = writer.WriteField("model", "whisper-1")
	if s.language != "" {
		_ = writer.WriteField("language", s.language)
	}
	_ = writer.WriteField("temperature", strconv.FormatFloat(float64(s.temperature), 'f', -1, 32))
	_ = writer.WriteField("response_format", "json")

	contentType := writer.FormDataContentType()
	if err := writer.Close(); err != nil {
		return Transcription{}, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v1/audio/transcriptions", &requestBody)
	if err != nil {
		return Transcription{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Request-ID", requestID)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return Transcription{}, fmt.Errorf("transcription HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return Transcription{}, fmt.Errorf("transcription failed with status %d: %s", resp.StatusCode, string(body))
	}

	var out transcriptionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Transcription{}, fmt.Errorf("failed to parse transcription response: %w", err)
	}

	logging.Sugar.Debugw("Transcription completed",
		"request_id", requestID,
		"samples", len(samples),
		"processing_time_ms", time.Since(startTime).Milliseconds(),
		"text_length", len(out.Text),
	)

	return Transcription{Text: out.Text, Language: out.Language}, nil
}

// Close releases idle connections
func (s *HTTPTranscriber) Close() error {
	s.httpClient.CloseIdleConnections()
	return nil
}
