// Package movies implements the movie catalog and the per-user
// relationship model: a shared movies row plus one user_ratings row per
// (user, movie) pair, with user_favorites kept in sync and the aggregate
// tables recomputed after every mutation.
package movies

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/jkivisto/watchlog/lib/apperr"
	"github.com/jkivisto/watchlog/lib/stats"
	"github.com/jkivisto/watchlog/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Service is the movie catalog plus per-user relationship model.
type Service struct {
	db     *gorm.DB
	stats  *stats.Service
	logger *slog.Logger
}

func NewService(db *gorm.DB, statsSvc *stats.Service, logger *slog.Logger) *Service {
	return &Service{db: db, stats: statsSvc, logger: logger}
}

// RatingInput is the caller's own state for a movie. Rating is on the
// canonical 0-5 scale; scale conversion happens at the boundary
// (lib/validation), never here.
type RatingInput struct {
	Rating      *float64
	WatchDate   *time.Time
	WatchedWith string
	Review      string
	Favorite    bool
}

// AddInput carries everything the add form submits. Catalog ids come
// pre-resolved through the registry.
type AddInput struct {
	Title      string
	Year       int
	Duration   int
	CategoryID *uint
	DirectorID *uint
	PlatformID *uint
	RatingInput
}

// Add records that userID watched a movie. If a movie with the same title
// already exists (case-insensitive) its row is reused and the submitted
// catalog metadata is ignored; a title collision means "this is the same
// movie", not "update the metadata". Otherwise a new movie is created with
// the caller as owner. The caller's rating row is then replaced wholesale
// (watched=true) and favorite membership synced.
func (s *Service) Add(ctx context.Context, userID uint, in AddInput) (uint, error) {
	if userID == 0 {
		return 0, apperr.BadRequest("user id is required")
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return 0, apperr.BadRequest("movie title is required")
	}

	movie, err := s.findByTitle(ctx, title)
	if err != nil && !apperr.IsNotFound(err) {
		return 0, err
	}

	var movieID uint
	if movie != nil {
		movieID = movie.ID
	} else {
		m := models.Movie{
			Title:               title,
			Year:                in.Year,
			Duration:            in.Duration,
			OwnerID:             userID,
			CategoryID:          in.CategoryID,
			DirectorID:          in.DirectorID,
			StreamingPlatformID: in.PlatformID,
		}
		if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
			return 0, apperr.Wrap(apperr.TypeInternal, "failed to create movie", err)
		}
		movieID = m.ID
		s.logger.Info("Movie added to catalog",
			slog.Uint64("movie_id", uint64(movieID)),
			slog.Uint64("owner_id", uint64(userID)),
			slog.String("title", title))
	}

	if err := s.saveRating(ctx, userID, movieID, in.RatingInput); err != nil {
		return 0, err
	}
	return movieID, nil
}

// UpdateInput carries the owner edit form.
type UpdateInput struct {
	Title      string
	Year       int
	Duration   int
	CategoryID *uint
	DirectorID *uint
	PlatformID *uint
	RatingInput
}

// UpdateOwned updates the shared movie fields and the owner's own rating
// row. Ownership is NOT re-checked here: the caller must already have
// verified owner_id == userID before calling.
func (s *Service) UpdateOwned(ctx context.Context, userID, movieID uint, in UpdateInput) (uint, error) {
	if userID == 0 {
		return 0, apperr.BadRequest("user id is required")
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return 0, apperr.BadRequest("movie title is required")
	}

	var movie models.Movie
	if err := s.db.WithContext(ctx).First(&movie, movieID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, apperr.NotFound("movie not found")
		}
		return 0, apperr.Wrap(apperr.TypeInternal, "failed to load movie", err)
	}

	updates := map[string]interface{}{
		"title":                 title,
		"year":                  in.Year,
		"duration":              in.Duration,
		"category_id":           in.CategoryID,
		"director_id":           in.DirectorID,
		"streaming_platform_id": in.PlatformID,
	}
	if err := s.db.WithContext(ctx).Model(&models.Movie{}).Where("id = ?", movieID).Updates(updates).Error; err != nil {
		return 0, apperr.Wrap(apperr.TypeInternal, "failed to update movie", err)
	}

	if err := s.saveRating(ctx, userID, movieID, in.RatingInput); err != nil {
		return 0, err
	}
	return movieID, nil
}

// Rate records or replaces the caller's rating/review for an existing
// movie without touching the shared catalog fields. This is the non-owner
// write path.
func (s *Service) Rate(ctx context.Context, userID, movieID uint, in RatingInput) error {
	if userID == 0 {
		return apperr.BadRequest("user id is required")
	}
	if err := s.mustExist(ctx, movieID); err != nil {
		return err
	}
	return s.saveRating(ctx, userID, movieID, in)
}

// Delete removes a movie from the caller's log. The owner's delete
// cascades: every user's rating and favorite rows go with the movie. That
// data loss for non-owners is the intended owner-supremacy policy. A
// non-owner only deletes their own rows; the shared movie and everyone
// else's state stay intact.
func (s *Service) Delete(ctx context.Context, userID, movieID uint) error {
	if userID == 0 {
		return apperr.BadRequest("user id is required")
	}

	var movie models.Movie
	if err := s.db.WithContext(ctx).First(&movie, movieID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("movie not found")
		}
		return apperr.Wrap(apperr.TypeInternal, "failed to load movie", err)
	}

	if movie.OwnerID != userID {
		return s.deleteOwnRows(ctx, userID, movieID)
	}

	// Owner path: collect everyone whose user_stats will need a refresh
	// before their rows disappear.
	var affected []uint
	if err := s.db.WithContext(ctx).Model(&models.UserRating{}).
		Where("movie_id = ?", movieID).Distinct().Pluck("user_id", &affected).Error; err != nil {
		return apperr.Wrap(apperr.TypeInternal, "failed to list raters", err)
	}

	if err := s.db.WithContext(ctx).Where("movie_id = ?", movieID).Delete(&models.UserRating{}).Error; err != nil {
		return apperr.Wrap(apperr.TypeInternal, "failed to delete ratings", err)
	}
	if err := s.db.WithContext(ctx).Where("movie_id = ?", movieID).Delete(&models.UserFavorite{}).Error; err != nil {
		return apperr.Wrap(apperr.TypeInternal, "failed to delete favorites", err)
	}
	if err := s.stats.DropMovie(ctx, movieID); err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Delete(&models.Movie{}, movieID).Error; err != nil {
		return apperr.Wrap(apperr.TypeInternal, "failed to delete movie", err)
	}

	for _, uid := range affected {
		if err := s.stats.RecomputeUser(ctx, uid); err != nil {
			return err
		}
	}

	s.logger.Info("Movie deleted by owner",
		slog.Uint64("movie_id", uint64(movieID)),
		slog.Int("raters_affected", len(affected)))
	return nil
}

// Detail is a movie joined with the caller's own state and the aggregate
// stats.
type Detail struct {
	Movie         models.Movie
	CategoryName  string
	DirectorName  string
	PlatformName  string
	AverageRating float64
	TotalRatings  int64
	// Rating is what gets displayed: the caller's own rating when one
	// exists, otherwise the aggregate average. Strict precedence, never a
	// blend.
	Rating     *float64
	Own        *models.UserRating
	IsFavorite bool
	IsOwner    bool
}

// GetByID loads a movie with the caller's own rating/favorite state
// (userID may be 0 for anonymous readers) and the aggregate stats.
func (s *Service) GetByID(ctx context.Context, movieID, userID uint) (*Detail, error) {
	var movie models.Movie
	err := s.db.WithContext(ctx).
		Preload("Category").Preload("Director").Preload("StreamingPlatform").
		First(&movie, movieID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("movie not found")
		}
		return nil, apperr.Wrap(apperr.TypeInternal, "failed to load movie", err)
	}

	agg, err := s.stats.MovieStats(ctx, movieID)
	if err != nil {
		return nil, err
	}

	d := &Detail{
		Movie:         movie,
		AverageRating: agg.AverageRating,
		TotalRatings:  agg.TotalRatings,
		IsOwner:       userID != 0 && movie.OwnerID == userID,
	}
	if movie.Category != nil {
		d.CategoryName = movie.Category.Name
	}
	if movie.Director != nil {
		d.DirectorName = movie.Director.Name
	}
	if movie.StreamingPlatform != nil {
		d.PlatformName = movie.StreamingPlatform.Name
	}

	if userID != 0 {
		var own models.UserRating
		err := s.db.WithContext(ctx).
			Where("user_id = ? AND movie_id = ?", userID, movieID).
			First(&own).Error
		switch {
		case err == nil:
			d.Own = &own
			d.IsFavorite = own.Favorite
		case errors.Is(err, gorm.ErrRecordNotFound):
			// no relationship row yet
		default:
			return nil, apperr.Wrap(apperr.TypeInternal, "failed to load rating", err)
		}
	}

	if d.Own != nil && d.Own.Rating != nil {
		d.Rating = d.Own.Rating
	} else if agg.TotalRatings > 0 {
		avg := agg.AverageRating
		d.Rating = &avg
	}
	return d, nil
}

// Reviews returns the caller's rated movies with their reviews, newest
// watch first.
type Review struct {
	MovieID     uint
	Title       string
	Duration    int
	Rating      *float64
	Watched     bool
	WatchDate   *time.Time
	WatchedWith string
	Review      string
}

func (s *Service) Reviews(ctx context.Context, userID uint) ([]Review, error) {
	var rows []Review
	err := s.db.WithContext(ctx).Model(&models.UserRating{}).
		Select(`user_ratings.movie_id, movies.title, movies.duration,
			user_ratings.rating, user_ratings.watched, user_ratings.watch_date,
			user_ratings.watched_with, user_ratings.review`).
		Joins("JOIN movies ON movies.id = user_ratings.movie_id").
		Where("user_ratings.user_id = ? AND user_ratings.rating IS NOT NULL", userID).
		Order("user_ratings.updated_at DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, apperr.Wrap(apperr.TypeInternal, "failed to list reviews", err)
	}
	return rows, nil
}

// findByTitle looks up a movie by case-insensitive exact title match.
func (s *Service) findByTitle(ctx context.Context, title string) (*models.Movie, error) {
	var movie models.Movie
	err := s.db.WithContext(ctx).
		Where("LOWER(title) = LOWER(?)", title).
		First(&movie).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("movie not found")
		}
		return nil, apperr.Wrap(apperr.TypeInternal, "failed to look up movie", err)
	}
	return &movie, nil
}

func (s *Service) mustExist(ctx context.Context, movieID uint) error {
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.Movie{}).Where("id = ?", movieID).Count(&n).Error; err != nil {
		return apperr.Wrap(apperr.TypeInternal, "failed to look up movie", err)
	}
	if n == 0 {
		return apperr.NotFound("movie not found")
	}
	return nil
}

// saveRating replaces the (user, movie) rating row wholesale — fields not
// present in the current submission are lost, by contract — then syncs
// user_favorites to the submitted flag and recomputes both aggregates.
// The multi-step sequence is not wrapped in a transaction (single-writer
// model); a crash between steps leaves a transient inconsistency that the
// next recompute repairs.
func (s *Service) saveRating(ctx context.Context, userID, movieID uint, in RatingInput) error {
	row := models.UserRating{
		UserID:      userID,
		MovieID:     movieID,
		Rating:      in.Rating,
		Watched:     true,
		WatchDate:   in.WatchDate,
		WatchedWith: in.WatchedWith,
		Review:      in.Review,
		Favorite:    in.Favorite,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "movie_id"}},
		UpdateAll: true,
	}).Create(&row).Error
	if err != nil {
		return apperr.Wrap(apperr.TypeInternal, "failed to save rating", err)
	}

	if err := s.syncFavorite(ctx, userID, movieID, in.Favorite); err != nil {
		return err
	}

	if err := s.stats.RecomputeMovie(ctx, movieID); err != nil {
		return err
	}
	return s.stats.RecomputeUser(ctx, userID)
}

// syncFavorite is the dual-write half of the favorite invariant:
// membership in user_favorites must equal the rating row's flag
// immediately after every mutation.
func (s *Service) syncFavorite(ctx context.Context, userID, movieID uint, favorite bool) error {
	if favorite {
		fav := models.UserFavorite{UserID: userID, MovieID: movieID}
		err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&fav).Error
		if err != nil {
			return apperr.Wrap(apperr.TypeInternal, "failed to add favorite", err)
		}
		return nil
	}
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND movie_id = ?", userID, movieID).
		Delete(&models.UserFavorite{}).Error
	if err != nil {
		return apperr.Wrap(apperr.TypeInternal, "failed to remove favorite", err)
	}
	return nil
}

// deleteOwnRows is the non-owner delete: only the caller's relationship
// rows are removed.
func (s *Service) deleteOwnRows(ctx context.Context, userID, movieID uint) error {
	if err := s.db.WithContext(ctx).
		Where("user_id = ? AND movie_id = ?", userID, movieID).
		Delete(&models.UserRating{}).Error; err != nil {
		return apperr.Wrap(apperr.TypeInternal, "failed to delete rating", err)
	}
	if err := s.db.WithContext(ctx).
		Where("user_id = ? AND movie_id = ?", userID, movieID).
		Delete(&models.UserFavorite{}).Error; err != nil {
		return apperr.Wrap(apperr.TypeInternal, "failed to delete favorite", err)
	}
	if err := s.stats.RecomputeMovie(ctx, movieID); err != nil {
		return err
	}
	return s.stats.RecomputeUser(ctx, userID)
}
