// Package scheduler provides the periodic scratch-directory sweep.
// It uses robfig/cron as the timing engine; unlike the teacher, it carries
// no database-backed job queue — there is nothing to persist in this
// engine, so the only recurring work is the orphaned-scratch-directory
// safety net alongside ScratchScope.Close()'s strict per-run cleanup.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/shlawgathon/sportsclips/internal/startup"
)

// NormalizeCronExpression normalizes a cron expression to 6-field format.
// It accepts both 6-field (default) and 7-field (legacy with year) formats.
//
// Supported formats:
//   - 6 fields: sec min hour dom month dow (passed through as-is)
//   - 7 fields: sec min hour dom month dow year (year stripped after validation)
//
// The year field (if present) must be "*" or a valid year/range (e.g., "2024", "2024-2030", "*").
func NormalizeCronExpression(expr string) (string, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return "", fmt.Errorf("empty cron expression")
	}

	if strings.HasPrefix(expr, "@") {
		return expr, nil
	}

	fields := strings.Fields(expr)
	switch len(fields) {
	case 6:
		return expr, nil
	case 7:
		yearField := fields[6]
		if !isValidYearField(yearField) {
			return "", fmt.Errorf("invalid year field %q: must be * or a valid year/range", yearField)
		}
		return strings.Join(fields[:6], " "), nil
	default:
		return "", fmt.Errorf("invalid cron expression: expected 6 or 7 fields, got %d", len(fields))
	}
}

// isValidYearField validates a cron year field.
// Accepts: *, specific years (2024), ranges (2024-2030), lists (2024,2025), step values (*/2, 2024/1).
func isValidYearField(field string) bool {
	if field == "*" {
		return true
	}
	for _, r := range field {
		if !((r >= '0' && r <= '9') || r == ',' || r == '-' || r == '/' || r == '*') {
			return false
		}
	}
	return len(field) > 0
}

// CalculateNextRun calculates the next run time for a cron expression.
// Returns nil if the expression is empty or invalid.
func CalculateNextRun(cronExpr string) *time.Time {
	if cronExpr == "" {
		return nil
	}

	normalized, err := NormalizeCronExpression(cronExpr)
	if err != nil {
		return nil
	}

	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	schedule, err := parser.Parse(normalized)
	if err != nil {
		return nil
	}

	nextRun := schedule.Next(time.Now())
	return &nextRun
}

// DefaultSweepSchedule runs the orphaned-scratch-directory sweep every 15
// minutes (6-field: sec min hour dom month dow).
const DefaultSweepSchedule = "0 */15 * * * *"

// SweeperConfig configures a Sweeper.
type SweeperConfig struct {
	// BaseDir is the directory ScratchScope roots are created under.
	BaseDir string
	// MaxAge is the minimum orphan age before a directory is removed.
	MaxAge time.Duration
	// CronSchedule is a 6- or 7-field cron expression; defaults to
	// DefaultSweepSchedule when empty.
	CronSchedule string
}

// Sweeper periodically removes orphaned scratch directories left behind by
// a crashed run, using robfig/cron as the timing engine.
type Sweeper struct {
	mu     sync.Mutex
	cfg    SweeperConfig
	logger *slog.Logger
	cron   *cron.Cron
}

// NewSweeper creates a Sweeper bound to cfg. Call Start to begin the
// recurring sweep.
func NewSweeper(cfg SweeperConfig, logger *slog.Logger) (*Sweeper, error) {
	if cfg.CronSchedule == "" {
		cfg.CronSchedule = DefaultSweepSchedule
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = startup.DefaultCleanupAge
	}
	if logger == nil {
		logger = slog.Default()
	}

	normalized, err := NormalizeCronExpression(cfg.CronSchedule)
	if err != nil {
		return nil, fmt.Errorf("scheduler: invalid sweep schedule: %w", err)
	}

	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger)))

	s := &Sweeper{cfg: cfg, logger: logger.With("component", "scheduler")}

	if _, err := c.AddFunc(normalized, s.sweepOnce); err != nil {
		return nil, fmt.Errorf("scheduler: registering sweep: %w", err)
	}
	s.cron = c

	return s, nil
}

// Start begins the recurring sweep. Non-blocking; the sweep runs on cron's
// own goroutine until Stop is called.
func (s *Sweeper) Start() {
	s.cron.Start()
	s.logger.Info("scratch sweep started", "schedule", s.cfg.CronSchedule, "base_dir", s.cfg.BaseDir)
}

// Stop waits for any in-flight sweep to finish, then stops the scheduler.
func (s *Sweeper) Stop(ctx context.Context) {
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}
	s.logger.Info("scratch sweep stopped")
}

// SweepNow runs one sweep synchronously, outside the cron schedule — used
// at startup to clear orphans left by a prior crash before serving traffic.
func (s *Sweeper) SweepNow() (int, error) {
	return startup.CleanupOrphanedTempDirs(s.logger, s.cfg.BaseDir, s.cfg.MaxAge)
}

func (s *Sweeper) sweepOnce() {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed, err := startup.CleanupOrphanedTempDirs(s.logger, s.cfg.BaseDir, s.cfg.MaxAge)
	if err != nil {
		s.logger.Warn("scratch sweep failed", "err", err)
		return
	}
	if removed > 0 {
		s.logger.Info("swept orphaned scratch directories", "removed", removed)
	}
}
