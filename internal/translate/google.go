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
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Google calls the public translate_a/single endpoint used by the web widget.
// The response is a nested JSON array whose first element lists translated
// sentence segments.
type Google struct {
	url    string
	client *http.Client
}

// NewGoogle creates a Google provider
func NewGoogle(endpoint string, client *http.Client) *Google {
	if client == nil {
		client = http.DefaultClient
	}
	return &Google{url: endpoint, client: client}
}

// Name identifies the provider
func (g *Google) Name() string {
	return "google"
}

// Translate sends one translation request
func (g *Google) Translate(ctx context.Context, req Request) (string, error) {
	source := req.Source
	if source == "" {
		source = "auto"
	}

	query := url.Values{}
	query.Set("client", "gtx")
	query.Set("sl", source)
	query.Set("tl", req.Target)
	query.Set("dt", "t")
	query.Set("q", req.Text)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, g.url+"?"+query.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create HTTP request: %w", err)
	}

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("google translate request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("google translate request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var payload []interface{}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("failed to decode google translate response: %w", err)
	}

	text, err := joinGoogleSegments(payload)
	if err != nil {
		return "", err
	}
	return text, nil
}

func joinGoogleSegments(payload []interface{}) (string, error) {
	if len(payload) == 0 {
		return "", fmt.Errorf("malformed google translate response: empty payload")
	}
	segments, ok := payload[0].([]interface{})
	if !ok {
		return "", fmt.Errorf("malformed google translate response: no segment list")
	}

	var b strings.Builder
	for _, seg := range segments {
		parts, ok := seg.([]interface{})
		if !ok || len(parts) == 0 {
			continue
		}
		if s, ok := parts[0].(string); ok {
			b.WriteString(s)
		}
	}

	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", ErrEmptyResult
	}
	return text, nil
}
