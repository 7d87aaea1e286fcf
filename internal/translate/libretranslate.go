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

package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// LibreTranslateRequest is the body of a LibreTranslate /translate call
type LibreTranslateRequest struct {
	Q      string `json:"q"`
	Source string `json:"source"`
	Target string `json:"target"`
	Format string `json:"format"`
	APIKey string `json:"api_key,omitempty"`
}

// LibreTranslateResponse is the answer of a LibreTranslate /translate call
type LibreTranslateResponse struct {
	TranslatedText string `json:"translatedText"`
	Error          string `json:"error,omitempty"`
}

// LibreTranslate calls a LibreTranslate compatible endpoint
type LibreTranslate struct {
	url    string
	apiKey string
	client *http.Client
}

// NewLibreTranslate creates a LibreTranslate provider. Timeouts come from the
// caller's context, so client should not set its own.
func NewLibreTranslate(url, apiKey string, client *http.Client) *LibreTranslate {
	if client == nil {
		client = http.DefaultClient
	}
	return &LibreTranslate{url: url, apiKey: apiKey, client: client}
}

// Name identifies the provider
func (l *LibreTranslate) Name() string {
	return "libretranslate"
}

// Translate sends one translation request
func (l *LibreTranslate) Translate(ctx context.Context, req Request) (string, error) {
	body, err := json.Marshal(LibreTranslateRequest{
		Q:      req.Text,
		Source: req.Source,
		Target: req.Target,
		Format: "text",
		APIKey: l.apiKey,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal LibreTranslate request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, l.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := l.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("LibreTranslate request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("LibreTranslate request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out LibreTranslateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode LibreTranslate response: %w", err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("LibreTranslate error: %s", out.Error)
	}

	text := strings.TrimSpace(out.TranslatedText)
	if text == "" {
		return "", ErrEmptyResult
	}
	return text, nil
}
