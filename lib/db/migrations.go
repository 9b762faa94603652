package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jkivisto/watchlog/models"
	"gorm.io/gorm"
)

// RunMigrations brings the schema up to date and creates the composite
// indexes the search paths rely on.
func RunMigrations(gdb *gorm.DB, logger *slog.Logger) error {
	ctx := context.Background()

	if err := gdb.AutoMigrate(
		&models.User{},
		&models.Category{},
		&models.Director{},
		&models.StreamingPlatform{},
		&models.Movie{},
		&models.UserRating{},
		&models.UserFavorite{},
		&models.MovieRatingStats{},
		&models.UserStats{},
		&models.Session{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	if err := createAdditionalIndexes(ctx, gdb, logger); err != nil {
		return fmt.Errorf("failed to create additional indexes: %w", err)
	}

	return nil
}

// createAdditionalIndexes creates additional indexes for common queries.
func createAdditionalIndexes(ctx context.Context, gdb *gorm.DB, logger *slog.Logger) error {
	additionalIndexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_movies_year_created ON movies(year, created_at)",
		"CREATE INDEX IF NOT EXISTS idx_movies_category_year ON movies(category_id, year)",
		"CREATE INDEX IF NOT EXISTS idx_user_ratings_movie ON user_ratings(movie_id)",
		"CREATE INDEX IF NOT EXISTS idx_user_ratings_user_watched ON user_ratings(user_id, watched)",
		"CREATE INDEX IF NOT EXISTS idx_user_favorites_movie ON user_favorites(movie_id)",
	}

	for _, indexSQL := range additionalIndexes {
		if err := gdb.WithContext(ctx).Exec(indexSQL).Error; err != nil {
			logger.Warn("Failed to create index", slog.String("sql", indexSQL), slog.Any("error", err))
		} else {
			logger.Debug("Created index", slog.String("sql", indexSQL))
		}
	}

	return nil
}
