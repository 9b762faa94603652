package recommend

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/jkivisto/watchlog/lib/db"
	"github.com/jkivisto/watchlog/lib/movies"
	"github.com/jkivisto/watchlog/lib/stats"
	"github.com/jkivisto/watchlog/models"
)

func newTestSuggester(t *testing.T) (*Suggester, *movies.Service, *gorm.DB) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gdb, err := db.Open(filepath.Join(t.TempDir(), "test.db"), logger)
	require.NoError(t, err)
	require.NoError(t, db.RunMigrations(gdb, logger))
	movieSvc := movies.NewService(gdb, stats.NewService(gdb, logger), logger)
	return New(gdb, "", logger), movieSvc, gdb
}

func createUser(t *testing.T, gdb *gorm.DB, name string) uint {
	t.Helper()
	user := models.User{Username: name, PasswordHash: "x"}
	require.NoError(t, gdb.Create(&user).Error)
	return user.ID
}

func ptr(v float64) *float64 { return &v }

// Without an API key the suggester ranks unwatched movies by community
// average.
func TestSuggestFallbackOrder(t *testing.T) {
	s, movieSvc, gdb := newTestSuggester(t)
	ctx := context.Background()
	alice := createUser(t, gdb, "alice")
	bob := createUser(t, gdb, "bob")

	_, err := movieSvc.Add(ctx, alice, movies.AddInput{Title: "Great", RatingInput: movies.RatingInput{Rating: ptr(5.0)}})
	require.NoError(t, err)
	_, err = movieSvc.Add(ctx, alice, movies.AddInput{Title: "Okay", RatingInput: movies.RatingInput{Rating: ptr(3.0)}})
	require.NoError(t, err)

	got, err := s.Suggest(ctx, bob, 5)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Great", got[0].Title)
	assert.Equal(t, "Okay", got[1].Title)

	// The community average comes straight off movie_rating_stats.
	assert.Equal(t, 5.0, got[0].AvgRating)
	assert.Equal(t, 3.0, got[1].AvgRating)
}

func TestSuggestExcludesWatched(t *testing.T) {
	s, movieSvc, gdb := newTestSuggester(t)
	ctx := context.Background()
	alice := createUser(t, gdb, "alice")

	_, err := movieSvc.Add(ctx, alice, movies.AddInput{Title: "Seen It", RatingInput: movies.RatingInput{Rating: ptr(4.0)}})
	require.NoError(t, err)

	got, err := s.Suggest(ctx, alice, 5)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSuggestLimit(t *testing.T) {
	s, movieSvc, gdb := newTestSuggester(t)
	ctx := context.Background()
	alice := createUser(t, gdb, "alice")
	bob := createUser(t, gdb, "bob")

	for _, title := range []string{"A", "B", "C", "D"} {
		_, err := movieSvc.Add(ctx, alice, movies.AddInput{Title: title})
		require.NoError(t, err)
	}

	got, err := s.Suggest(ctx, bob, 2)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestMatchTitles(t *testing.T) {
	items := []Suggestion{
		{Title: "Heat"},
		{Title: "Ronin"},
		{Title: "The Score"},
	}

	response := "- Heat (1995)\n- the score\n- Unknown Movie\n- Heat"
	got := matchTitles(items, response)
	require.Len(t, got, 2)
	assert.Equal(t, "Heat", got[0].Title)
	assert.Equal(t, "The Score", got[1].Title)
}
