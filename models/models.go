package models

import (
	"time"
)

// User is an account holder. Rows are created at registration and are
// read-only afterwards; everything a user does lives in the relationship
// tables below.
type User struct {
	ID           uint   `gorm:"primaryKey"`
	Username     string `gorm:"uniqueIndex;not null"`
	PasswordHash string `gorm:"not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Movie is a shared catalog entity. The first user to add a title becomes
// its owner; later adds of the same title (case-insensitive) attach to this
// row instead of creating a duplicate. Title is deduplicated by application
// logic, not by a schema constraint.
type Movie struct {
	ID                  uint   `gorm:"primaryKey"`
	Title               string `gorm:"not null;index"`
	Year                int
	Duration            int // minutes
	OwnerID             uint `gorm:"not null;index"`
	CategoryID          *uint
	DirectorID          *uint
	StreamingPlatformID *uint
	CreatedAt           time.Time `gorm:"index"`
	UpdatedAt           time.Time

	Category          *Category          `gorm:"foreignKey:CategoryID"`
	Director          *Director          `gorm:"foreignKey:DirectorID"`
	StreamingPlatform *StreamingPlatform `gorm:"foreignKey:StreamingPlatformID"`
	Stats             *MovieRatingStats  `gorm:"foreignKey:MovieID"`
}

// Category is a name-keyed lookup entity, created lazily on first use and
// never updated or deleted. Name is NOCASE so case variants hit the unique
// index and get resolved to the existing row instead of duplicating it.
type Category struct {
	ID        uint   `gorm:"primaryKey"`
	Name      string `gorm:"type:text COLLATE NOCASE;uniqueIndex;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (c *Category) GetID() uint      { return c.ID }
func (c *Category) GetName() string  { return c.Name }
func (c *Category) SetName(n string) { c.Name = n }

// Director is a name-keyed lookup entity.
type Director struct {
	ID        uint   `gorm:"primaryKey"`
	Name      string `gorm:"type:text COLLATE NOCASE;uniqueIndex;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (d *Director) GetID() uint      { return d.ID }
func (d *Director) GetName() string  { return d.Name }
func (d *Director) SetName(n string) { d.Name = n }

// StreamingPlatform is a name-keyed lookup entity.
type StreamingPlatform struct {
	ID        uint   `gorm:"primaryKey"`
	Name      string `gorm:"type:text COLLATE NOCASE;uniqueIndex;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (p *StreamingPlatform) GetID() uint      { return p.ID }
func (p *StreamingPlatform) GetName() string  { return p.Name }
func (p *StreamingPlatform) SetName(n string) { p.Name = n }

// UserRating is the per-(user, movie) relationship row: watched state,
// rating on the canonical 0-5 scale, review, favorite flag and watch
// context. At most one row exists per pair. The row is replaced wholesale
// on every add/edit and deleted when the user removes the movie.
type UserRating struct {
	ID          uint `gorm:"primaryKey"`
	UserID      uint `gorm:"not null;uniqueIndex:idx_user_ratings_user_movie"`
	MovieID     uint `gorm:"not null;uniqueIndex:idx_user_ratings_user_movie"`
	Rating      *float64
	Watched     bool
	WatchDate   *time.Time
	WatchedWith string
	Review      string `gorm:"type:text"`
	Favorite    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// UserFavorite is boolean membership: a row exists iff the user has the
// movie marked as a favorite. Whenever a UserRating row exists for the same
// pair, membership here must equal its Favorite flag; both tables are
// written together on every rating mutation.
type UserFavorite struct {
	ID        uint `gorm:"primaryKey"`
	UserID    uint `gorm:"not null;uniqueIndex:idx_user_favorites_user_movie"`
	MovieID   uint `gorm:"not null;uniqueIndex:idx_user_favorites_user_movie"`
	CreatedAt time.Time
}

// MovieRatingStats is a materialized aggregate over UserRating: the
// arithmetic mean and count of all non-null ratings for a movie. It is only
// ever written by lib/stats; an absent row reads as zero.
type MovieRatingStats struct {
	MovieID       uint `gorm:"primaryKey"`
	AverageRating float64
	TotalRatings  int64
	UpdatedAt     time.Time
}

func (MovieRatingStats) TableName() string { return "movie_rating_stats" }

// UserStats is the per-user materialized aggregate. Same contract as
// MovieRatingStats: derived, recomputed on every relevant write, never
// edited directly.
type UserStats struct {
	UserID              uint `gorm:"primaryKey"`
	TotalMoviesWatched  int64
	AvgRating           float64
	TotalFavorites      int64
	TotalWatchHours     float64
	TotalRatingsGiven   int64
	TotalReviewsWritten int64
	UpdatedAt           time.Time
}

func (UserStats) TableName() string { return "user_stats" }

// Session is a server-side login session. The token goes into the cookie;
// the CSRF token is checked on every mutating form post. Flash holds at
// most one pending message, cleared when read.
type Session struct {
	ID        uint   `gorm:"primaryKey"`
	Token     string `gorm:"uniqueIndex;not null"`
	UserID    uint   `gorm:"not null;index"`
	CSRFToken string
	Flash     string
	FlashKind string
	ExpiresAt time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}
