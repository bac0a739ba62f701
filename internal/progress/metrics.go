// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package progress

import (
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
)

// rateWindow tracks completed-file counts and bytes over a short rolling
// window so GetSystemMetrics can report files/min and MB/min.
type rateWindow struct {
	lastSampleAt   time.Time
	completedAtTag int
	bytesAtTag     int64
}

// GetSystemMetrics reports tracked-file counts plus host CPU/RAM/disk
// utilization and derived throughput rates.
func (t *Tracker) GetSystemMetrics() SystemMetrics {
	t.mu.RLock()
	var total, completed, failed, running int
	var totalBytes int64
	for _, fp := range t.files {
		total++
		switch fp.Status {
		case StatusCompleted:
			completed++
			if v, ok := fp.Metrics["bytes"].(int64); ok {
				totalBytes += v
			}
		case StatusFailed:
			failed++
		case StatusRunning:
			running++
		}
	}
	t.mu.RUnlock()

	m := SystemMetrics{
		TotalFiles:     total,
		CompletedFiles: completed,
		FailedFiles:    failed,
		RunningFiles:   running,
	}

	m.FilesPerMinute, m.MBPerMinute = t.throughputSince(completed, totalBytes)

	if pcts, err := cpu.Percent(0, false); err == nil && len(pcts) > 0 {
		m.CPUPercent = pcts[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		m.MemoryPercent = vm.UsedPercent
	}
	if du, err := disk.Usage("/"); err == nil {
		m.DiskPercent = du.UsedPercent
	}

	return m
}

// throughputSince compares the current completed/byte counters against the
// tracker's last sample to derive a per-minute rate. The first call after
// construction has no prior sample and reports zero rates.
func (t *Tracker) throughputSince(completed int, bytes int64) (filesPerMin, mbPerMin float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	if t.rate.lastSampleAt.IsZero() {
		t.rate = rateWindow{lastSampleAt: now, completedAtTag: completed, bytesAtTag: bytes}
		return 0, 0
	}

	elapsed := now.Sub(t.rate.lastSampleAt).Minutes()
	if elapsed <= 0 {
		return 0, 0
	}

	deltaFiles := completed - t.rate.completedAtTag
	deltaBytes := bytes - t.rate.bytesAtTag
	t.rate = rateWindow{lastSampleAt: now, completedAtTag: completed, bytesAtTag: bytes}

	if deltaFiles < 0 {
		deltaFiles = 0
	}
	if deltaBytes < 0 {
		deltaBytes = 0
	}

	return float64(deltaFiles) / elapsed, (float64(deltaBytes) / (1024 * 1024)) / elapsed
}
