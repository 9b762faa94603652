// Package stats maintains the materialized aggregate tables
// movie_rating_stats and user_stats. There is exactly one recompute
// implementation per table; the per-mutation path and the bulk path both
// run it, so the two refresh strategies cannot drift.
package stats

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jkivisto/watchlog/lib/apperr"
	"github.com/jkivisto/watchlog/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Service recomputes and reads the aggregate tables. User-facing code
// never writes them directly.
type Service struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewService(db *gorm.DB, logger *slog.Logger) *Service {
	return &Service{db: db, logger: logger}
}

// RecomputeMovie refreshes movie_rating_stats for one movie from the
// current user_ratings rows. Called synchronously after every rating
// mutation.
func (s *Service) RecomputeMovie(ctx context.Context, movieID uint) error {
	var agg struct {
		Avg float64
		Cnt int64
	}
	err := s.db.WithContext(ctx).Raw(`
		SELECT COALESCE(AVG(rating), 0) AS avg, COUNT(rating) AS cnt
		FROM user_ratings
		WHERE movie_id = ? AND rating IS NOT NULL`, movieID).Scan(&agg).Error
	if err != nil {
		return apperr.Wrap(apperr.TypeInternal, "failed to aggregate movie ratings", err)
	}

	row := models.MovieRatingStats{
		MovieID:       movieID,
		AverageRating: agg.Avg,
		TotalRatings:  agg.Cnt,
		UpdatedAt:     time.Now(),
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "movie_id"}},
		UpdateAll: true,
	}).Create(&row).Error
	if err != nil {
		return apperr.Wrap(apperr.TypeInternal, "failed to upsert movie rating stats", err)
	}
	return nil
}

// RecomputeUser refreshes user_stats for one user from user_ratings,
// user_favorites and movie durations.
func (s *Service) RecomputeUser(ctx context.Context, userID uint) error {
	var agg struct {
		Watched    int64
		Rated      int64
		AvgRating  float64
		Reviews    int64
		WatchHours float64
	}
	err := s.db.WithContext(ctx).Raw(`
		SELECT
			COUNT(CASE WHEN ur.watched THEN 1 END)                   AS watched,
			COUNT(ur.rating)                                         AS rated,
			COALESCE(AVG(ur.rating), 0)                              AS avg_rating,
			COUNT(CASE WHEN ur.review <> '' THEN 1 END)              AS reviews,
			COALESCE(SUM(CASE WHEN ur.watched THEN m.duration END), 0) / 60.0 AS watch_hours
		FROM user_ratings ur
		JOIN movies m ON m.id = ur.movie_id
		WHERE ur.user_id = ?`, userID).Scan(&agg).Error
	if err != nil {
		return apperr.Wrap(apperr.TypeInternal, "failed to aggregate user ratings", err)
	}

	var favorites int64
	if err := s.db.WithContext(ctx).Model(&models.UserFavorite{}).
		Where("user_id = ?", userID).Count(&favorites).Error; err != nil {
		return apperr.Wrap(apperr.TypeInternal, "failed to count favorites", err)
	}

	row := models.UserStats{
		UserID:              userID,
		TotalMoviesWatched:  agg.Watched,
		AvgRating:           agg.AvgRating,
		TotalFavorites:      favorites,
		TotalWatchHours:     agg.WatchHours,
		TotalRatingsGiven:   agg.Rated,
		TotalReviewsWritten: agg.Reviews,
		UpdatedAt:           time.Now(),
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		UpdateAll: true,
	}).Create(&row).Error
	if err != nil {
		return apperr.Wrap(apperr.TypeInternal, "failed to upsert user stats", err)
	}
	return nil
}

// RecomputeAll rebuilds both aggregate tables for every movie and user
// that has any relationship row. Used as the repair pass after bulk
// loading, where per-mutation recomputation is skipped for throughput.
// Idempotent: running it twice produces identical tables.
func (s *Service) RecomputeAll(ctx context.Context) error {
	start := time.Now()

	var movieIDs []uint
	if err := s.db.WithContext(ctx).Model(&models.Movie{}).Pluck("id", &movieIDs).Error; err != nil {
		return apperr.Wrap(apperr.TypeInternal, "failed to list movie ids", err)
	}
	for _, id := range movieIDs {
		if err := s.RecomputeMovie(ctx, id); err != nil {
			return err
		}
	}

	var userIDs []uint
	if err := s.db.WithContext(ctx).Model(&models.User{}).Pluck("id", &userIDs).Error; err != nil {
		return apperr.Wrap(apperr.TypeInternal, "failed to list user ids", err)
	}
	for _, id := range userIDs {
		if err := s.RecomputeUser(ctx, id); err != nil {
			return err
		}
	}

	s.logger.Info("Recomputed all aggregates",
		slog.Int("movies", len(movieIDs)),
		slog.Int("users", len(userIDs)),
		slog.Duration("elapsed", time.Since(start)))
	return nil
}

// MovieStats reads the aggregate row for a movie. An absent row is not an
// error; it reads as zero.
func (s *Service) MovieStats(ctx context.Context, movieID uint) (models.MovieRatingStats, error) {
	var row models.MovieRatingStats
	err := s.db.WithContext(ctx).Where("movie_id = ?", movieID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.MovieRatingStats{MovieID: movieID}, nil
		}
		return row, apperr.Wrap(apperr.TypeInternal, "failed to read movie rating stats", err)
	}
	return row, nil
}

// UserStats reads the aggregate row for a user, zero-valued when absent.
func (s *Service) UserStats(ctx context.Context, userID uint) (models.UserStats, error) {
	var row models.UserStats
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.UserStats{UserID: userID}, nil
		}
		return row, apperr.Wrap(apperr.TypeInternal, "failed to read user stats", err)
	}
	return row, nil
}

// DropMovie removes the aggregate row for a deleted movie.
func (s *Service) DropMovie(ctx context.Context, movieID uint) error {
	err := s.db.WithContext(ctx).Where("movie_id = ?", movieID).Delete(&models.MovieRatingStats{}).Error
	if err != nil {
		return apperr.Wrap(apperr.TypeInternal, "failed to drop movie rating stats", err)
	}
	return nil
}
