package db

import (
	"context"
	"fmt"
	"log/slog"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Open connects to the SQLite database at path and applies the engine
// tuning the app depends on (WAL journaling, foreign keys on). The data
// layer assumes a single process and a single writer; the engine serializes
// writes at the statement level and nothing above it adds locking.
func Open(path string, logger *slog.Logger) (*gorm.DB, error) {
	gdb, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: NewGormLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := applyPragmas(context.Background(), gdb, logger); err != nil {
		return nil, err
	}

	return gdb, nil
}

// applyPragmas enables SQLite-specific optimizations.
func applyPragmas(ctx context.Context, gdb *gorm.DB, logger *slog.Logger) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",    // better concurrency for the read paths
		"PRAGMA synchronous=NORMAL",  // faster writes while maintaining safety
		"PRAGMA foreign_keys=ON",     // enforce FK constraints
		"PRAGMA cache_size=1000",     // increase cache size
		"PRAGMA temp_store=MEMORY",   // store temporary tables in memory
		"PRAGMA mmap_size=134217728", // memory-mapped I/O (128MB)
	}

	for _, pragma := range pragmas {
		if err := gdb.WithContext(ctx).Exec(pragma).Error; err != nil {
			logger.Warn("Failed to execute pragma", slog.String("pragma", pragma), slog.Any("error", err))
		} else {
			logger.Debug("Executed pragma", slog.String("pragma", pragma))
		}
	}

	return nil
}
