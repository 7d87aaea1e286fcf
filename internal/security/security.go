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

package security

import (
	"errors"
	"net/url"
	"regexp"
	"strings"
)

var (
	// ErrInvalidStreamID is returned when a stream ID cannot be used as a subject token
	ErrInvalidStreamID = errors.New("invalid stream ID")

	// streamIDPattern only allows characters that are safe inside a NATS subject and a file name
	streamIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

// SanitizeLogInput removes newline characters to prevent log injection attacks.
// Recognized speech and stream URLs are user-controlled and pass through here before logging.
func SanitizeLogInput(input string) string {
	sanitized := strings.ReplaceAll(input, "\n", "")
	sanitized = strings.ReplaceAll(sanitized, "\r", "")
	return sanitized
}

// RedactURL hides credentials and query parameters of a stream URL so that
// tokens embedded in HLS or RTMP links never reach the logs.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return SanitizeLogInput(raw)
	}
	if u.User != nil {
		u.User = url.User("redacted")
	}
	if u.RawQuery != "" {
		u.RawQuery = "redacted"
	}
	u.Fragment = ""
	return SanitizeLogInput(u.String())
}

// ValidateStreamID ensures that a stream ID contains only safe characters.
// Only allows alphanumeric ASCII characters, dashes, and underscores.
func ValidateStreamID(streamID string) error {
	if streamID == "" {
		return ErrInvalidStreamID
	}

	if strings.Contains(streamID, "/") || strings.Contains(streamID, "\\") || strings.Contains(streamID, "..") {
		return ErrInvalidStreamID
	}

	if !streamIDPattern.MatchString(streamID) {
		return ErrInvalidStreamID
	}

	return nil
}
