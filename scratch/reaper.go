package scratch

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// Outcome tags one entry of a ReapReport.
type Outcome string

const (
	Removed Outcome = "removed"
	Failed  Outcome = "failed"
)

// ReapResult records what happened to one expired file.
type ReapResult struct {
	Name    string
	Outcome Outcome
	Err     error
}

// ReapReport is the best-effort result of one sweep. Errors are recorded here and logged,
// never returned.
type ReapReport struct {
	Scanned int
	Results []ReapResult
	// ListErr is set when the directory itself could not be read.
	ListErr error
}

func (r ReapReport) Removed() []string {
	var names []string
	for _, res := range r.Results {
		if res.Outcome == Removed {
			names = append(names, res.Name)
		}
	}
	return names
}

func (r ReapReport) Failed() []ReapResult {
	var failed []ReapResult
	for _, res := range r.Results {
		if res.Outcome == Failed {
			failed = append(failed, res)
		}
	}
	return failed
}

// Reap removes regular files modified before now minus the retention window.
func (s *Store) Reap(ctx context.Context) ReapReport {
	var report ReapReport

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		report.ListErr = err
		s.logger.Warn("reaper could not list output directory", zap.String("dir", s.dir), zap.Error(err))
		return report
	}

	cutoff := s.now().Add(-s.retention)
	for _, entry := range entries {
		if ctx.Err() != nil {
			break
		}
		if !entry.Type().IsRegular() {
			continue
		}
		report.Scanned++

		info, err := entry.Info()
		if err != nil {
			// Removed by someone else between ReadDir and Info.
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}

		name := entry.Name()
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil {
			report.Results = append(report.Results, ReapResult{Name: name, Outcome: Failed, Err: err})
			s.logger.Warn("reaper could not remove file", zap.String("file", name), zap.Error(err))
			continue
		}
		report.Results = append(report.Results, ReapResult{Name: name, Outcome: Removed})
	}

	if len(report.Results) > 0 {
		s.logger.Info("reaped expired artifacts",
			zap.Int("scanned", report.Scanned),
			zap.Int("removed", len(report.Removed())),
			zap.Int("failed", len(report.Failed())),
		)
	}
	return report
}

// RunReaper sweeps every interval until ctx is done. onReap, if set, sees every report.
func (s *Store) RunReaper(ctx context.Context, interval time.Duration, onReap func(ReapReport)) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report := s.Reap(ctx)
			if onReap != nil {
				onReap(report)
			}
		}
	}
}
