package session

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jkivisto/watchlog/lib/apperr"
	"github.com/jkivisto/watchlog/lib/db"
)

func newTestStore(t *testing.T, ttl time.Duration) *Store {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gdb, err := db.Open(filepath.Join(t.TempDir(), "test.db"), logger)
	require.NoError(t, err)
	require.NoError(t, db.RunMigrations(gdb, logger))
	return NewStore(gdb, logger, ttl)
}

func TestCreateAndGet(t *testing.T) {
	st := newTestStore(t, time.Hour)
	ctx := context.Background()

	sess, err := st.Create(ctx, 42)
	require.NoError(t, err)
	assert.NotEmpty(t, sess.Token)
	assert.NotEmpty(t, sess.CSRFToken)
	assert.NotEqual(t, sess.Token, sess.CSRFToken)

	got, err := st.Get(ctx, sess.Token)
	require.NoError(t, err)
	assert.Equal(t, uint(42), got.UserID)
}

func TestGetUnknownToken(t *testing.T) {
	st := newTestStore(t, time.Hour)

	_, err := st.Get(context.Background(), "no-such-token")
	require.Error(t, err)
	assert.True(t, apperr.IsNotFound(err))
}

func TestExpiredSessionIsDeleted(t *testing.T) {
	st := newTestStore(t, -time.Minute)
	ctx := context.Background()

	sess, err := st.Create(ctx, 1)
	require.NoError(t, err)

	_, err = st.Get(ctx, sess.Token)
	require.Error(t, err)
	assert.True(t, apperr.IsNotFound(err))

	// The expired row is gone, not just rejected.
	_, err = st.Get(ctx, sess.Token)
	assert.True(t, apperr.IsNotFound(err))
}

func TestDeleteEndsSession(t *testing.T) {
	st := newTestStore(t, time.Hour)
	ctx := context.Background()

	sess, err := st.Create(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, st.Delete(ctx, sess.Token))

	_, err = st.Get(ctx, sess.Token)
	assert.True(t, apperr.IsNotFound(err))

	// Deleting again is a no-op.
	assert.NoError(t, st.Delete(ctx, sess.Token))
}

func TestFlashIsOneShot(t *testing.T) {
	st := newTestStore(t, time.Hour)
	ctx := context.Background()

	sess, err := st.Create(ctx, 1)
	require.NoError(t, err)

	require.NoError(t, st.SetFlash(ctx, sess.Token, "success", "Movie added"))

	kind, msg, err := st.PopFlash(ctx, sess.Token)
	require.NoError(t, err)
	assert.Equal(t, "success", kind)
	assert.Equal(t, "Movie added", msg)

	kind, msg, err = st.PopFlash(ctx, sess.Token)
	require.NoError(t, err)
	assert.Empty(t, kind)
	assert.Empty(t, msg)
}
