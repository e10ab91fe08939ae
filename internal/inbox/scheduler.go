// Package inbox provides the inbox scheduler: scanning a watched directory for
// unprocessed invoice documents and archiving them after a pipeline run.
package inbox

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/openclerk/invoiceaudit/internal/models"
)

// archivePrefixFormat is the timestamp prefix applied to archived files.
const archivePrefixFormat = "20060102T150405"

// Scheduler scans the inbox for candidate documents and archives them once
// processed. A file that fails to archive is re-scanned on the next cycle, so
// delivery is at-least-once.
type Scheduler struct {
	inboxDir   string
	archiveDir string
	extensions []string
	logger     *zap.Logger
	now        func() time.Time
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithLogger sets a logger for scan and archive events.
func WithLogger(l *zap.Logger) SchedulerOption {
	return func(s *Scheduler) { s.logger = l }
}

// withClock overrides the archive timestamp clock (tests only).
func withClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) { s.now = now }
}

// NewScheduler creates a scheduler over inboxDir. Both directories are created
// if they do not exist. extensions is the supported allowlist (with dots).
func NewScheduler(inboxDir, archiveDir string, extensions []string, opts ...SchedulerOption) (*Scheduler, error) {
	for _, dir := range []string{inboxDir, archiveDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	s := &Scheduler{
		inboxDir:   inboxDir,
		archiveDir: archiveDir,
		extensions: extensions,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Scan enumerates unprocessed documents in the inbox and returns them as jobs
// ordered by ascending effective timestamp (oldest first). The effective
// timestamp is the sidecar received_timestamp when present and parseable,
// otherwise the file's last-modified time. Ordering is therefore deterministic
// across runs even when files arrive out of wall-clock order.
func (s *Scheduler) Scan() ([]*models.Job, error) {
	entries, err := os.ReadDir(s.inboxDir)
	if err != nil {
		return nil, fmt.Errorf("read inbox: %w", err)
	}

	type candidate struct {
		job *models.Job
		ts  time.Time
	}
	var candidates []candidate

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") || isSidecar(name) {
			continue
		}
		if !extensionAllowed(name, s.extensions) {
			continue
		}
		path := filepath.Join(s.inboxDir, name)
		info, err := entry.Info()
		if err != nil {
			// File vanished between ReadDir and Info: lost a race with an
			// external mover, skip it.
			continue
		}

		meta, sideErr := readSidecar(path)
		if sideErr != nil && s.logger != nil {
			s.logger.Warn("malformed sidecar, using empty metadata",
				zap.String("path", sidecarPath(path)), zap.Error(sideErr))
		}

		ts, ok := parseReceivedTimestamp(meta)
		if !ok {
			ts = info.ModTime()
		}
		candidates = append(candidates, candidate{
			job: &models.Job{
				SourcePath:   path,
				Metadata:     meta,
				DiscoveredAt: time.Now(),
			},
			ts: ts,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].ts.Before(candidates[j].ts)
	})

	jobs := make([]*models.Job, len(candidates))
	for i, c := range candidates {
		jobs[i] = c.job
	}
	return jobs, nil
}

// Archive moves path and its sidecar (if present) into the archive directory,
// each renamed with a timestamp prefix. A missing source file is logged and
// ignored so archival never blocks the queue; other failures are returned but
// callers treat them as non-fatal.
func (s *Scheduler) Archive(path string) error {
	prefix := s.now().Format(archivePrefixFormat)

	if err := s.moveWithPrefix(path, prefix); err != nil {
		if os.IsNotExist(err) {
			if s.logger != nil {
				s.logger.Warn("archive skipped, source missing", zap.String("path", path))
			}
			return nil
		}
		return fmt.Errorf("archive %s: %w", path, err)
	}

	side := sidecarPath(path)
	if err := s.moveWithPrefix(side, prefix); err != nil && !os.IsNotExist(err) {
		if s.logger != nil {
			s.logger.Warn("sidecar archive failed", zap.String("path", side), zap.Error(err))
		}
	}

	if s.logger != nil {
		s.logger.Info("archived", zap.String("path", path))
	}
	return nil
}

// moveWithPrefix renames path into the archive under a timestamped name. Two
// files with the same base name archived within the same second get a numeric
// suffix so the earlier one is never overwritten.
func (s *Scheduler) moveWithPrefix(path, prefix string) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}
	base := filepath.Base(path)
	dest := filepath.Join(s.archiveDir, prefix+"_"+base)
	for n := 1; ; n++ {
		if _, err := os.Stat(dest); os.IsNotExist(err) {
			break
		}
		dest = filepath.Join(s.archiveDir, fmt.Sprintf("%s_%d_%s", prefix, n, base))
	}
	return os.Rename(path, dest)
}

func extensionAllowed(name string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(name))
	for _, a := range allowed {
		if strings.ToLower(a) == ext {
			return true
		}
	}
	return false
}
