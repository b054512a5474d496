// Package startup provides utilities for application startup tasks.
package startup

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// TempDirPrefix is the prefix shared by every run's root ScratchScope, used
// to recognize orphaned directories left behind by a crashed process.
const TempDirPrefix = "sportsclips-"

// CleanupOrphanedTempDirs removes orphaned scratch directories older than
// maxAge, matching TempDirPrefix, under baseDir. This is a safety net
// alongside the strict per-run ScratchScope.Close() path — it only ever
// catches directories left behind by an unclean process exit.
//
// Returns the number of directories removed and any error encountered.
func CleanupOrphanedTempDirs(logger *slog.Logger, baseDir string, maxAge time.Duration) (int, error) {
	if _, err := os.Stat(baseDir); os.IsNotExist(err) {
		logger.Debug("base directory does not exist, skipping cleanup", "path", baseDir)
		return 0, nil
	}

	entries, err := os.ReadDir(baseDir)
	if err != nil {
		logger.Error("failed to read directory for cleanup", "path", baseDir, "error", err)
		return 0, err
	}

	cutoff := time.Now().Add(-maxAge)
	var removed int

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if !strings.HasPrefix(entry.Name(), TempDirPrefix) {
			continue
		}

		dirPath := filepath.Join(baseDir, entry.Name())

		info, err := entry.Info()
		if err != nil {
			logger.Warn("failed to get directory info", "path", dirPath, "error", err)
			continue
		}

		if info.ModTime().After(cutoff) {
			logger.Debug("preserving recent scratch directory",
				"path", dirPath,
				"age", time.Since(info.ModTime()).Round(time.Second),
			)
			continue
		}

		if err := os.RemoveAll(dirPath); err != nil {
			logger.Warn("failed to remove orphaned scratch directory", "path", dirPath, "error", err)
			continue
		}

		logger.Info("removed orphaned scratch directory",
			"path", dirPath,
			"age", time.Since(info.ModTime()).Round(time.Second),
		)
		removed++
	}

	return removed, nil
}

// DefaultCleanupAge is the default maximum age for orphaned scratch
// directories (1 hour) — long enough that no in-flight run is mistaken for
// an orphan, short enough that a crash doesn't leak disk indefinitely.
const DefaultCleanupAge = 1 * time.Hour

// CleanupSystemTempDirs cleans up orphaned sportsclips scratch directories
// from the system temp directory using the default cleanup age.
func CleanupSystemTempDirs(logger *slog.Logger) (int, error) {
	return CleanupOrphanedTempDirs(logger, os.TempDir(), DefaultCleanupAge)
}
