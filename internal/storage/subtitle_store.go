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

package storage

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/loqalabs/loqa-subtitles/internal/events"
	"github.com/loqalabs/loqa-subtitles/internal/logging"
)

// SubtitleStore archives delivered subtitles
type SubtitleStore struct {
	db *Database
}

// NewSubtitleStore creates a new subtitle store
func NewSubtitleStore(db *Database) *SubtitleStore {
	return &SubtitleStore{db: db}
}

// Insert stores a subtitle
func (s *SubtitleStore) Insert(ctx context.Context, sub *events.Subtitle) error {
	if err := sub.IsValid(); err != nil {
		return fmt.Errorf("invalid subtitle: %w", err)
	}

	query := `
		INSERT INTO subtitles (
			id, stream_id, seq, text, source_text, source_lang,
			target_lang, provider, cached, degraded, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.DB().ExecContext(ctx, query,
		sub.ID, sub.StreamID, sub.Seq, sub.Text, sub.SourceText, sub.SourceLang,
		sub.TargetLang, sub.Provider, sub.Cached, sub.Degraded, sub.Timestamp.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert subtitle: %w", err)
	}
	return nil
}

// Deliver archives sub
func (s *SubtitleStore) Deliver(ctx context.Context, sub *events.Subtitle) error {
	return s.Insert(ctx, sub)
}

// Recent returns up to limit of the newest subtitles of streamID, oldest first
func (s *SubtitleStore) Recent(ctx context.Context, streamID string, limit int) ([]*events.Subtitle, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, stream_id, seq, text, source_text, source_lang,
			   target_lang, provider, cached, degraded, created_at
		FROM subtitles
		WHERE stream_id = ?
		ORDER BY created_at DESC, seq DESC
		LIMIT ?`

	rows, err := s.db.DB().QueryContext(ctx, query, streamID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query subtitles: %w", err)
	}
	defer rows.Close()

	var subtitles []*events.Subtitle
	for rows.Next() {
		var sub events.Subtitle
		var createdAt int64
		if err := rows.Scan(
			&sub.ID, &sub.StreamID, &sub.Seq, &sub.Text, &sub.SourceText, &sub.SourceLang,
			&sub.TargetLang, &sub.Provider, &sub.Cached, &sub.Degraded, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan subtitle: %w", err)
		}
		sub.Type = "subtitle"
		sub.Timestamp = time.UnixMilli(createdAt).UTC()
		subtitles = append(subtitles, &sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating subtitles: %w", err)
	}

	for i, j := 0, len(subtitles)-1; i < j; i, j = i+1, j-1 {
		subtitles[i], subtitles[j] = subtitles[j], subtitles[i]
	}
	return subtitles, nil
}

// Count returns the number of archived subtitles
func (s *SubtitleStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.DB().QueryRowContext(ctx, "SELECT COUNT(*) FROM subtitles").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count subtitles: %w", err)
	}
	return count, nil
}

// Prune deletes subtitles created before cutoff and returns how many were removed
func (s *SubtitleStore) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.DB().ExecContext(ctx, "DELETE FROM subtitles WHERE created_at < ?", cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to prune subtitles: %w", err)
	}

	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	logging.LogDatabaseOperation("DELETE", "subtitles",
		zap.Int64("affected_rows", removed),
		zap.Time("cutoff", cutoff),
	)
	return removed, nil
}
