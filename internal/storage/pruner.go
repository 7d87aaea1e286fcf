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

	"github.com/robfig/cron/v3"

	"github.com/loqalabs/loqa-subtitles/internal/logging"
)

// Pruner periodically removes subtitles older than the retention period
type Pruner struct {
	store     *SubtitleStore
	retention time.Duration
	cron      *cron.Cron
	now       func() time.Time
}

// NewPruner schedules pruning with a standard cron expression or descriptor
// such as "@hourly"
func NewPruner(store *SubtitleStore, retention time.Duration, schedule string) (*Pruner, error) {
	if retention <= 0 {
		return nil, fmt.Errorf("retention must be positive, got %s", retention)
	}
	if schedule == "" {
		schedule = "@hourly"
	}

	p := &Pruner{
		store:     store,
		retention: retention,
		cron:      cron.New(),
		now:       time.Now,
	}
	if _, err := p.cron.AddFunc(schedule, p.pruneOnce); err != nil {
		return nil, fmt.Errorf("invalid prune schedule %q: %w", schedule, err)
	}
	return p, nil
}

// Run prunes once, then on schedule until ctx is cancelled
func (p *Pruner) Run(ctx context.Context) error {
	p.pruneOnce()
	p.cron.Start()

	<-ctx.Done()
	<-p.cron.Stop().Done()
	return nil
}

// PruneNow removes expired subtitles immediately
func (p *Pruner) PruneNow(ctx context.Context) (int64, error) {
	return p.store.Prune(ctx, p.now().Add(-p.retention))
}

func (p *Pruner) pruneOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := p.PruneNow(ctx); err != nil {
		logging.LogError(err, "Subtitle archive pruning failed")
	}
}
