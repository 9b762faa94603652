// Package session stores login sessions in the database, keyed by a
// random token that lives in a cookie. It replaces global request state:
// handlers resolve the cookie to a session row and pass explicit ids into
// the core.
package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jkivisto/watchlog/lib/apperr"
	"github.com/jkivisto/watchlog/models"
	"gorm.io/gorm"
)

type Store struct {
	db     *gorm.DB
	logger *slog.Logger
	ttl    time.Duration
}

func NewStore(db *gorm.DB, logger *slog.Logger, ttl time.Duration) *Store {
	return &Store{db: db, logger: logger, ttl: ttl}
}

// Create opens a session for a user and returns it with fresh session and
// CSRF tokens.
func (st *Store) Create(ctx context.Context, userID uint) (*models.Session, error) {
	if userID == 0 {
		return nil, apperr.BadRequest("user id is required")
	}
	sess := models.Session{
		Token:     uuid.NewString(),
		UserID:    userID,
		CSRFToken: uuid.NewString(),
		ExpiresAt: time.Now().Add(st.ttl),
	}
	if err := st.db.WithContext(ctx).Create(&sess).Error; err != nil {
		return nil, apperr.Wrap(apperr.TypeInternal, "failed to create session", err)
	}
	return &sess, nil
}

// Get resolves a token to a live session. Expired sessions are deleted on
// sight and reported as not found.
func (st *Store) Get(ctx context.Context, token string) (*models.Session, error) {
	if token == "" {
		return nil, apperr.NotFound("no session")
	}
	var sess models.Session
	err := st.db.WithContext(ctx).Where("token = ?", token).First(&sess).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("no session")
		}
		return nil, apperr.Wrap(apperr.TypeInternal, "failed to load session", err)
	}
	if time.Now().After(sess.ExpiresAt) {
		if err := st.Delete(ctx, token); err != nil {
			st.logger.Warn("Failed to delete expired session", slog.Any("error", err))
		}
		return nil, apperr.NotFound("session expired")
	}
	return &sess, nil
}

// Delete ends a session. Deleting an unknown token is not an error.
func (st *Store) Delete(ctx context.Context, token string) error {
	err := st.db.WithContext(ctx).Where("token = ?", token).Delete(&models.Session{}).Error
	if err != nil {
		return apperr.Wrap(apperr.TypeInternal, "failed to delete session", err)
	}
	return nil
}

// SetFlash stores a one-shot message on the session; kind is "success" or
// "error" and only affects styling.
func (st *Store) SetFlash(ctx context.Context, token, kind, message string) error {
	err := st.db.WithContext(ctx).Model(&models.Session{}).
		Where("token = ?", token).
		Updates(map[string]interface{}{"flash": message, "flash_kind": kind}).Error
	if err != nil {
		return apperr.Wrap(apperr.TypeInternal, "failed to set flash", err)
	}
	return nil
}

// PopFlash returns and clears the pending flash message, if any.
func (st *Store) PopFlash(ctx context.Context, token string) (kind, message string, err error) {
	sess, err := st.Get(ctx, token)
	if err != nil {
		if apperr.IsNotFound(err) {
			return "", "", nil
		}
		return "", "", err
	}
	if sess.Flash == "" {
		return "", "", nil
	}
	if err := st.SetFlash(ctx, token, "", ""); err != nil {
		return "", "", err
	}
	return sess.FlashKind, sess.Flash, nil
}
