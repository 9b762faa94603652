// Package users handles registration and login. Credential hashing is
// bcrypt; the hash is opaque to everything else in the app.
package users

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/jkivisto/watchlog/lib/apperr"
	"github.com/jkivisto/watchlog/models"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type Service struct {
	db     *gorm.DB
	logger *slog.Logger
	cost   int
}

func NewService(db *gorm.DB, logger *slog.Logger) *Service {
	return &Service{db: db, logger: logger, cost: bcrypt.DefaultCost}
}

// WithCost overrides the bcrypt cost. The seeder drops it to the minimum
// so bulk user generation isn't dominated by hashing.
func (s *Service) WithCost(cost int) *Service {
	return &Service{db: s.db, logger: s.logger, cost: cost}
}

// Register creates a new account. Usernames are unique; a duplicate is
// reported as a conflict, not recovered.
func (s *Service) Register(ctx context.Context, username, password string) (*models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, apperr.BadRequest("username and password are required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, apperr.Wrap(apperr.TypeInternal, "failed to hash password", err)
	}

	user := models.User{Username: username, PasswordHash: string(hash)}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		if apperr.IsDuplicateError(err) {
			return nil, apperr.Conflict("username already exists")
		}
		return nil, apperr.Wrap(apperr.TypeInternal, "failed to create user", err)
	}

	s.logger.Info("User registered", slog.String("username", username), slog.Uint64("user_id", uint64(user.ID)))
	return &user, nil
}

// Authenticate verifies a username/password pair. Unknown user and wrong
// password produce the same message so login probing reveals nothing.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	user, err := s.GetByUsername(ctx, username)
	if err != nil {
		if apperr.IsNotFound(err) {
			return nil, apperr.BadRequest("invalid username or password")
		}
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, apperr.BadRequest("invalid username or password")
	}
	return user, nil
}

// GetByUsername looks a user up by exact username.
func (s *Service) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("username = ?", strings.TrimSpace(username)).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("user not found")
		}
		return nil, apperr.Wrap(apperr.TypeInternal, "failed to load user", err)
	}
	return &user, nil
}

// GetByID loads a user by id.
func (s *Service) GetByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).First(&user, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("user not found")
		}
		return nil, apperr.Wrap(apperr.TypeInternal, "failed to load user", err)
	}
	return &user, nil
}
