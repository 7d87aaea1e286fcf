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

package monitor

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/loqalabs/loqa-subtitles/internal/logging"
)

// ResourceMonitor samples goroutine and heap usage and flags leaks against
// the baseline taken at startup
type ResourceMonitor struct {
	startGoroutines int
	startMemoryMB   uint64

	maxGoroutines   int
	maxMemoryMB     uint64
	goroutineGrowth int
	memoryGrowthMB  uint64

	mu      sync.RWMutex
	metrics ResourceMetrics
	sample  func() ResourceMetrics
}

// ResourceMetrics holds current resource usage
type ResourceMetrics struct {
	Goroutines  int
	MemoryMB    uint64
	GCCycles    uint32
	LastGCPause time.Duration
}

// NewResourceMonitor records the baseline
func NewResourceMonitor() *ResourceMonitor {
	rm := &ResourceMonitor{
		maxGoroutines:   1000,
		maxMemoryMB:     500,
		goroutineGrowth: 250, // two per websocket client plus the pipeline
		memoryGrowthMB:  100,
		sample:          readRuntime,
	}

	base := rm.sample()
	rm.startGoroutines = base.Goroutines
	rm.startMemoryMB = base.MemoryMB
	rm.metrics = base

	logging.Sugar.Infow("ResourceMonitor initialized",
		"baseline_goroutines", rm.startGoroutines,
		"baseline_memory_mb", rm.startMemoryMB)

	return rm
}

func readRuntime() ResourceMetrics {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return ResourceMetrics{
		Goroutines: runtime.NumGoroutine(),
		MemoryMB:   m.Alloc / 1024 / 1024,
		GCCycles:   m.NumGC,
		//nolint:gosec // PauseNs values fit in a Duration
		LastGCPause: time.Duration(m.PauseNs[(m.NumGC+255)%256]),
	}
}

// Update takes a fresh sample
func (rm *ResourceMonitor) Update() {
	metrics := rm.sample()

	rm.mu.Lock()
	rm.metrics = metrics
	rm.mu.Unlock()
}

// Metrics returns the last sample
func (rm *ResourceMonitor) Metrics() ResourceMetrics {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return rm.metrics
}

// Warnings lists every threshold the last sample exceeds
func (rm *ResourceMonitor) Warnings() []string {
	metrics := rm.Metrics()
	var warnings []string

	if metrics.Goroutines-rm.startGoroutines > rm.goroutineGrowth {
		warnings = append(warnings,
			fmt.Sprintf("Potential goroutine leak: %d goroutines (started with %d)",
				metrics.Goroutines, rm.startGoroutines))
	}
	if metrics.MemoryMB > rm.startMemoryMB && metrics.MemoryMB-rm.startMemoryMB > rm.memoryGrowthMB {
		warnings = append(warnings,
			fmt.Sprintf("Significant memory increase: %dMB (started with %dMB)",
				metrics.MemoryMB, rm.startMemoryMB))
	}
	if metrics.Goroutines > rm.maxGoroutines {
		warnings = append(warnings,
			fmt.Sprintf("Goroutine limit exceeded: %d (max %d)", metrics.Goroutines, rm.maxGoroutines))
	}
	if metrics.MemoryMB > rm.maxMemoryMB {
		warnings = append(warnings,
			fmt.Sprintf("Memory limit exceeded: %dMB (max %dMB)", metrics.MemoryMB, rm.maxMemoryMB))
	}
	if metrics.LastGCPause > 100*time.Millisecond {
		warnings = append(warnings,
			fmt.Sprintf("High GC pause detected: %v", metrics.LastGCPause))
	}

	return warnings
}

// IsHealthy reports whether the last sample is within limits
func (rm *ResourceMonitor) IsHealthy() bool {
	return len(rm.Warnings()) == 0
}

// HealthStatus summarizes the last sample for the health endpoint
func (rm *ResourceMonitor) HealthStatus() map[string]interface{} {
	metrics := rm.Metrics()
	warnings := rm.Warnings()
	if warnings == nil {
		warnings = []string{}
	}

	return map[string]interface{}{
		"healthy":          len(warnings) == 0,
		"warnings":         warnings,
		"goroutines":       metrics.Goroutines,
		"memory_mb":        metrics.MemoryMB,
		"gc_cycles":        metrics.GCCycles,
		"last_gc_pause_ns": int64(metrics.LastGCPause),
	}
}

// Run samples every interval until ctx is done and logs new warnings.
// When latency is set its summary is logged on the same schedule.
func (rm *ResourceMonitor) Run(ctx context.Context, interval time.Duration, latency *LatencyMonitor) error {
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			rm.Update()
			if warnings := rm.Warnings(); len(warnings) > 0 {
				logging.Sugar.Warnw("⚠️ Resource warnings", "warnings", warnings)
			}
			if latency != nil {
				latency.LogSummary()
			}
		}
	}
}
