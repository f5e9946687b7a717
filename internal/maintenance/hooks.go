package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// AnalyzeTables refreshes planner statistics after a bulk load.
// Call this after seeding the tip catalog.
func AnalyzeTables(ctx context.Context, db Execer, logger *slog.Logger) error {
	tables := []string{
		"wellness_tips",
		"notification_preferences",
	}

	for _, t := range tables {
		start := time.Now()
		_, err := db.Exec(ctx, fmt.Sprintf("ANALYZE %s", t))
		dur := time.Since(start).Round(time.Millisecond)

		if err != nil {
			logger.Warn("Failed to analyze table", "table", t, "duration", dur, "error", err)
			return fmt.Errorf("analyze %s: %w", t, err)
		}
		logger.Info("Analyzed table", "table", t, "duration", dur)
	}
	return nil
}
