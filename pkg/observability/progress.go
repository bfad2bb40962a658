package observability

import (
	"time"

	"go.uber.org/zap"
)

// Progress logs throughput for a long-running parse at a fixed interval,
// so large inputs show signs of life without logging every row.
type Progress struct {
	logger      *zap.Logger
	rowsTotal   int64
	skipped     int64
	bytesTotal  int64
	startTime   time.Time
	lastLogTime time.Time
	logInterval time.Duration
}

// NewProgress creates a progress logger. A zero interval logs every
// thirty seconds.
func NewProgress(log *zap.Logger, interval time.Duration) *Progress {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	now := time.Now()
	return &Progress{
		logger:      log,
		startTime:   now,
		lastLogTime: now,
		logInterval: interval,
	}
}

// RecordRows records parsed rows and logs progress when the interval has
// elapsed.
func (p *Progress) RecordRows(count int, bytes int64) {
	p.rowsTotal += int64(count)
	p.bytesTotal += bytes

	if time.Since(p.lastLogTime) >= p.logInterval {
		p.LogProgress()
		p.lastLogTime = time.Now()
	}
}

// RecordSkip records a row that failed validation.
func (p *Progress) RecordSkip() {
	p.skipped++
}

// LogProgress logs current progress
func (p *Progress) LogProgress() {
	elapsed := time.Since(p.startTime)
	rowsPerSecond := float64(p.rowsTotal) / elapsed.Seconds()

	p.logger.Info("parse progress",
		zap.Int64("rows", p.rowsTotal),
		zap.Int64("skipped", p.skipped),
		zap.Int64("bytes", p.bytesTotal),
		zap.Float64("rows_per_second", rowsPerSecond),
		zap.Duration("elapsed", elapsed),
	)
}

// LogFinal logs final throughput after the parse completes.
func (p *Progress) LogFinal() {
	elapsed := time.Since(p.startTime)
	rowsPerSecond := float64(p.rowsTotal) / elapsed.Seconds()

	p.logger.Info("parse completed",
		zap.Int64("rows", p.rowsTotal),
		zap.Int64("skipped", p.skipped),
		zap.Int64("bytes", p.bytesTotal),
		zap.Float64("avg_rows_per_second", rowsPerSecond),
		zap.Duration("total_duration", elapsed),
	)
}
