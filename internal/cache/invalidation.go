package cache

import (
	"context"
	"log/slog"
)

// InvalidateExerciseServiceCache drops a cached descriptor. An empty slug drops them all.
// Failures are logged only; entries expire on their own.
func InvalidateExerciseServiceCache(ctx context.Context, cm *CacheManager, slug string) {
	if slug == "" {
		if err := cm.ExerciseService.InvalidatePattern(ctx, "slug:*"); err != nil {
			slog.ErrorContext(ctx, "Failed to invalidate exercise service cache", "error", err)
		}
		return
	}
	if err := cm.ExerciseService.Delete(ctx, "slug:"+slug); err != nil {
		slog.ErrorContext(ctx, "Failed to delete exercise service cache entry", "error", err, "slug", slug)
	}
}
