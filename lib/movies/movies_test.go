package movies

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/jkivisto/watchlog/lib/apperr"
	"github.com/jkivisto/watchlog/lib/db"
	"github.com/jkivisto/watchlog/lib/stats"
	"github.com/jkivisto/watchlog/models"
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gdb, err := db.Open(filepath.Join(t.TempDir(), "test.db"), logger)
	require.NoError(t, err)
	require.NoError(t, db.RunMigrations(gdb, logger))
	return NewService(gdb, stats.NewService(gdb, logger), logger), gdb
}

func createUser(t *testing.T, gdb *gorm.DB, name string) uint {
	t.Helper()
	user := models.User{Username: name, PasswordHash: "x"}
	require.NoError(t, gdb.Create(&user).Error)
	return user.ID
}

func ptr(v float64) *float64 { return &v }

func TestAddCreatesMovieAndRating(t *testing.T) {
	svc, gdb := newTestService(t)
	ctx := context.Background()
	alice := createUser(t, gdb, "alice")

	movieID, err := svc.Add(ctx, alice, AddInput{
		Title:       "Heat",
		Year:        1995,
		Duration:    170,
		RatingInput: RatingInput{Rating: ptr(4.5), Review: "classic"},
	})
	require.NoError(t, err)
	require.NotZero(t, movieID)

	var movie models.Movie
	require.NoError(t, gdb.First(&movie, movieID).Error)
	assert.Equal(t, "Heat", movie.Title)
	assert.Equal(t, alice, movie.OwnerID)

	var rating models.UserRating
	require.NoError(t, gdb.Where("user_id = ? AND movie_id = ?", alice, movieID).First(&rating).Error)
	assert.True(t, rating.Watched)
	require.NotNil(t, rating.Rating)
	assert.Equal(t, 4.5, *rating.Rating)
}

func TestAddValidation(t *testing.T) {
	svc, gdb := newTestService(t)
	ctx := context.Background()
	alice := createUser(t, gdb, "alice")

	_, err := svc.Add(ctx, 0, AddInput{Title: "Heat"})
	assert.True(t, apperr.IsBadRequest(err))

	_, err = svc.Add(ctx, alice, AddInput{Title: "   "})
	assert.True(t, apperr.IsBadRequest(err))
}

// Two users adding the same title (differing only in case) share one
// movie row; the second submission's metadata is ignored and both ratings
// land on the shared row.
func TestAddSharesMovieAcrossUsers(t *testing.T) {
	svc, gdb := newTestService(t)
	ctx := context.Background()
	alice := createUser(t, gdb, "alice")
	bob := createUser(t, gdb, "bob")

	first, err := svc.Add(ctx, alice, AddInput{
		Title:       "Inception",
		Year:        2010,
		RatingInput: RatingInput{Rating: ptr(4.5), Favorite: true},
	})
	require.NoError(t, err)

	second, err := svc.Add(ctx, bob, AddInput{
		Title:       "inception",
		Year:        2011, // ignored: the title collision means same movie
		RatingInput: RatingInput{Rating: ptr(3.0)},
	})
	require.NoError(t, err)
	assert.Equal(t, first, second)

	var movieCount int64
	gdb.Model(&models.Movie{}).Count(&movieCount)
	assert.EqualValues(t, 1, movieCount)

	var movie models.Movie
	require.NoError(t, gdb.First(&movie, first).Error)
	assert.Equal(t, alice, movie.OwnerID)
	assert.Equal(t, 2010, movie.Year)

	var agg models.MovieRatingStats
	require.NoError(t, gdb.Where("movie_id = ?", first).First(&agg).Error)
	assert.InDelta(t, 3.75, agg.AverageRating, 1e-9)
	assert.EqualValues(t, 2, agg.TotalRatings)

	// Each user sees their own rating, not the average.
	aliceView, err := svc.GetByID(ctx, first, alice)
	require.NoError(t, err)
	require.NotNil(t, aliceView.Rating)
	assert.Equal(t, 4.5, *aliceView.Rating)
	assert.True(t, aliceView.IsFavorite)

	bobView, err := svc.GetByID(ctx, first, bob)
	require.NoError(t, err)
	require.NotNil(t, bobView.Rating)
	assert.Equal(t, 3.0, *bobView.Rating)
	assert.False(t, bobView.IsFavorite)

	// An anonymous reader sees the aggregate.
	anonView, err := svc.GetByID(ctx, first, 0)
	require.NoError(t, err)
	require.NotNil(t, anonView.Rating)
	assert.InDelta(t, 3.75, *anonView.Rating, 1e-9)
}

// Re-submitting replaces the whole rating row; omitted fields are lost.
func TestSaveRatingReplacesWholesale(t *testing.T) {
	svc, gdb := newTestService(t)
	ctx := context.Background()
	alice := createUser(t, gdb, "alice")

	watched := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	movieID, err := svc.Add(ctx, alice, AddInput{
		Title: "Heat",
		RatingInput: RatingInput{
			Rating:      ptr(4.0),
			WatchDate:   &watched,
			WatchedWith: "Friends",
			Review:      "great",
		},
	})
	require.NoError(t, err)

	require.NoError(t, svc.Rate(ctx, alice, movieID, RatingInput{Rating: ptr(3.0)}))

	var rating models.UserRating
	require.NoError(t, gdb.Where("user_id = ? AND movie_id = ?", alice, movieID).First(&rating).Error)
	require.NotNil(t, rating.Rating)
	assert.Equal(t, 3.0, *rating.Rating)
	assert.Nil(t, rating.WatchDate)
	assert.Empty(t, rating.WatchedWith)
	assert.Empty(t, rating.Review)

	var ratingCount int64
	gdb.Model(&models.UserRating{}).Where("movie_id = ?", movieID).Count(&ratingCount)
	assert.EqualValues(t, 1, ratingCount)
}

func TestFavoriteStaysInSync(t *testing.T) {
	svc, gdb := newTestService(t)
	ctx := context.Background()
	alice := createUser(t, gdb, "alice")

	movieID, err := svc.Add(ctx, alice, AddInput{
		Title:       "Heat",
		RatingInput: RatingInput{Favorite: true},
	})
	require.NoError(t, err)

	var favCount int64
	gdb.Model(&models.UserFavorite{}).Where("user_id = ? AND movie_id = ?", alice, movieID).Count(&favCount)
	assert.EqualValues(t, 1, favCount)

	require.NoError(t, svc.Rate(ctx, alice, movieID, RatingInput{Favorite: false}))
	gdb.Model(&models.UserFavorite{}).Where("user_id = ? AND movie_id = ?", alice, movieID).Count(&favCount)
	assert.Zero(t, favCount)

	// Favoriting again after unfavoriting must work.
	require.NoError(t, svc.Rate(ctx, alice, movieID, RatingInput{Favorite: true}))
	gdb.Model(&models.UserFavorite{}).Where("user_id = ? AND movie_id = ?", alice, movieID).Count(&favCount)
	assert.EqualValues(t, 1, favCount)
}

func TestRateUnknownMovie(t *testing.T) {
	svc, gdb := newTestService(t)
	alice := createUser(t, gdb, "alice")

	err := svc.Rate(context.Background(), alice, 999, RatingInput{Rating: ptr(3.0)})
	assert.True(t, apperr.IsNotFound(err))
}

func TestUpdateOwned(t *testing.T) {
	svc, gdb := newTestService(t)
	ctx := context.Background()
	alice := createUser(t, gdb, "alice")

	movieID, err := svc.Add(ctx, alice, AddInput{Title: "Heat", Year: 1994})
	require.NoError(t, err)

	_, err = svc.UpdateOwned(ctx, alice, movieID, UpdateInput{
		Title:       "Heat",
		Year:        1995,
		Duration:    170,
		RatingInput: RatingInput{Rating: ptr(5.0)},
	})
	require.NoError(t, err)

	var movie models.Movie
	require.NoError(t, gdb.First(&movie, movieID).Error)
	assert.Equal(t, 1995, movie.Year)
	assert.Equal(t, 170, movie.Duration)
}

// The owner's delete removes the movie and every user's state with it.
func TestOwnerDeleteCascades(t *testing.T) {
	svc, gdb := newTestService(t)
	ctx := context.Background()
	alice := createUser(t, gdb, "alice")
	bob := createUser(t, gdb, "bob")

	movieID, err := svc.Add(ctx, alice, AddInput{
		Title:       "Heat",
		Duration:    170,
		RatingInput: RatingInput{Rating: ptr(4.5)},
	})
	require.NoError(t, err)
	require.NoError(t, svc.Rate(ctx, bob, movieID, RatingInput{Rating: ptr(3.0), Favorite: true}))

	require.NoError(t, svc.Delete(ctx, alice, movieID))

	var count int64
	gdb.Model(&models.Movie{}).Count(&count)
	assert.Zero(t, count)
	gdb.Model(&models.UserRating{}).Count(&count)
	assert.Zero(t, count)
	gdb.Model(&models.UserFavorite{}).Count(&count)
	assert.Zero(t, count)
	gdb.Model(&models.MovieRatingStats{}).Where("movie_id = ?", movieID).Count(&count)
	assert.Zero(t, count)

	// Bob's stats were recomputed after his rows disappeared.
	var bobStats models.UserStats
	require.NoError(t, gdb.Where("user_id = ?", bob).First(&bobStats).Error)
	assert.Zero(t, bobStats.TotalMoviesWatched)
	assert.Zero(t, bobStats.TotalFavorites)
}

// A non-owner's delete only removes their own relationship rows.
func TestNonOwnerDeleteKeepsMovie(t *testing.T) {
	svc, gdb := newTestService(t)
	ctx := context.Background()
	alice := createUser(t, gdb, "alice")
	bob := createUser(t, gdb, "bob")

	movieID, err := svc.Add(ctx, alice, AddInput{
		Title:       "Heat",
		RatingInput: RatingInput{Rating: ptr(4.5)},
	})
	require.NoError(t, err)
	require.NoError(t, svc.Rate(ctx, bob, movieID, RatingInput{Rating: ptr(3.0), Favorite: true}))

	require.NoError(t, svc.Delete(ctx, bob, movieID))

	var count int64
	gdb.Model(&models.Movie{}).Count(&count)
	assert.EqualValues(t, 1, count)
	gdb.Model(&models.UserRating{}).Where("user_id = ?", bob).Count(&count)
	assert.Zero(t, count)
	gdb.Model(&models.UserRating{}).Where("user_id = ?", alice).Count(&count)
	assert.EqualValues(t, 1, count)

	// The aggregate dropped back to alice's rating alone.
	var agg models.MovieRatingStats
	require.NoError(t, gdb.Where("movie_id = ?", movieID).First(&agg).Error)
	assert.InDelta(t, 4.5, agg.AverageRating, 1e-9)
	assert.EqualValues(t, 1, agg.TotalRatings)
}

func TestGetByIDNoRatingsMeansNoDisplayRating(t *testing.T) {
	svc, gdb := newTestService(t)
	ctx := context.Background()
	alice := createUser(t, gdb, "alice")

	movieID, err := svc.Add(ctx, alice, AddInput{Title: "Heat"})
	require.NoError(t, err)

	bob := createUser(t, gdb, "bob")
	view, err := svc.GetByID(ctx, movieID, bob)
	require.NoError(t, err)
	assert.Nil(t, view.Rating)
	assert.False(t, view.IsOwner)
}

func TestReviewsFeed(t *testing.T) {
	svc, gdb := newTestService(t)
	ctx := context.Background()
	alice := createUser(t, gdb, "alice")

	_, err := svc.Add(ctx, alice, AddInput{
		Title:       "Heat",
		RatingInput: RatingInput{Rating: ptr(4.5), Review: "classic"},
	})
	require.NoError(t, err)
	_, err = svc.Add(ctx, alice, AddInput{Title: "Ronin"}) // unrated
	require.NoError(t, err)

	rows, err := svc.Reviews(ctx, alice)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Heat", rows[0].Title)
	assert.Equal(t, "classic", rows[0].Review)
}
