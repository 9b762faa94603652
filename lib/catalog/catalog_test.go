package catalog

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
	"github.com/jkivisto/watchlog/models"
)

func newTestRegistry(t *testing.T) (*Registry, *gorm.DB) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gdb, err := db.Open(filepath.Join(t.TempDir(), "test.db"), logger)
	require.NoError(t, err)
	require.NoError(t, db.RunMigrations(gdb, logger))
	return NewRegistry(gdb, logger), gdb
}

func TestResolveCreatesNewEntity(t *testing.T) {
	reg, gdb := newTestRegistry(t)
	ctx := context.Background()

	id, err := reg.ResolveCategory(ctx, Selection{NewName: "Horror"})
	require.NoError(t, err)
	require.NotNil(t, id)

	var count int64
	gdb.Model(&models.Category{}).Count(&count)
	assert.EqualValues(t, 1, count)
}

func TestResolveReusesCaseInsensitive(t *testing.T) {
	reg, gdb := newTestRegistry(t)
	ctx := context.Background()

	first, err := reg.ResolveDirector(ctx, Selection{NewName: "Christopher Nolan"})
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := reg.ResolveDirector(ctx, Selection{NewName: "christopher nolan"})
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, *first, *second)

	var count int64
	gdb.Model(&models.Director{}).Count(&count)
	assert.EqualValues(t, 1, count)

	// The first writer's spelling survives.
	var kept models.Director
	require.NoError(t, gdb.First(&kept, *first).Error)
	assert.Equal(t, "Christopher Nolan", kept.Name)
}

func TestResolveNewNameWinsOverID(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	existing, err := reg.ResolvePlatform(ctx, Selection{NewName: "Netflix"})
	require.NoError(t, err)

	// Both an id and a typed name: the name wins.
	got, err := reg.ResolvePlatform(ctx, Selection{ID: *existing, NewName: "Hulu"})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.NotEqual(t, *existing, *got)
}

func TestResolveBlankSelectionIsNil(t *testing.T) {
	reg, _ := newTestRegistry(t)

	got, err := reg.ResolveCategory(context.Background(), Selection{})
	require.NoError(t, err)
	assert.Nil(t, got)

	// Whitespace-only names count as blank.
	got, err = reg.ResolveCategory(context.Background(), Selection{NewName: "   "})
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestResolveIDPassesThrough(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	created, err := reg.ResolveCategory(ctx, Selection{NewName: "Drama"})
	require.NoError(t, err)

	got, err := reg.ResolveCategory(ctx, Selection{ID: *created})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, *created, *got)
}

func TestListsOrderedByName(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	for _, name := range []string{"Thriller", "Action", "Drama"} {
		_, err := reg.ResolveCategory(ctx, Selection{NewName: name})
		require.NoError(t, err)
	}

	categories, err := reg.Categories(ctx)
	require.NoError(t, err)
	require.Len(t, categories, 3)
	assert.Equal(t, "Action", categories[0].Name)
	assert.Equal(t, "Drama", categories[1].Name)
	assert.Equal(t, "Thriller", categories[2].Name)
}
