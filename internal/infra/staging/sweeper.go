package staging

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"pdfgateway/internal/infra/logging"
)

// Sweeper periodically removes staged files that outlived maxAge, e.g. after
// a crash between staging and serving.
type Sweeper struct {
	dir    string
	maxAge time.Duration
	now    func() time.Time
	cron   *cron.Cron
}

// NewSweeper schedules Sweep with a robfig/cron spec such as "@every 5m".
func NewSweeper(dir string, maxAge time.Duration, schedule string) (*Sweeper, error) {
	s := &Sweeper{
		dir:    dir,
		maxAge: maxAge,
		now:    time.Now,
		cron:   cron.New(),
	}
	if _, err := s.cron.AddFunc(schedule, func() { s.Sweep() }); err != nil {
		return nil, err
	}
	return s, nil
}

// Start runs the schedule in the background.
func (s *Sweeper) Start() { s.cron.Start() }

// Stop halts the schedule and waits for a running sweep.
func (s *Sweeper) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

// Sweep deletes expired staged PDFs and returns how many were removed.
func (s *Sweeper) Sweep() int {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		logging.Warn("Staging sweep failed", "dir", s.dir, "error", err)
		return 0
	}
	cutoff := s.now().Add(-s.maxAge)
	removed := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".pdf") {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil && !os.IsNotExist(err) {
			logging.Warn("Cannot remove stale staged file", "file", e.Name(), "error", err)
			continue
		}
		removed++
	}
	if removed > 0 {
		logging.Info("Removed stale staged files", "count", removed)
	}
	return removed
}
