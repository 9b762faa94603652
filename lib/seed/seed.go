// Package seed bulk-populates the database with realistic test data for
// performance testing. For throughput it relaxes foreign-key enforcement
// and skips the per-mutation aggregate recomputation, then repairs
// consistency with one idempotent RecomputeAll pass at the end. The repair
// must run before any read path depends on the aggregate tables.
package seed

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/jkivisto/watchlog/lib/stats"
	"github.com/jkivisto/watchlog/lib/users"
	"github.com/jkivisto/watchlog/models"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var movieTitles = []string{
	"The Shawshank Redemption", "The Godfather", "The Dark Knight", "Pulp Fiction",
	"Forrest Gump", "Inception", "The Matrix", "Interstellar", "Gladiator",
	"Titanic", "Avatar", "The Avengers", "Iron Man", "Spirited Away", "Thor",
	"Black Panther", "Wonder Woman", "Parasite", "The Lion King", "Deadpool",
	"Jurassic Park", "Toy Story", "Finding Nemo", "The Incredibles", "Coco",
	"The Silence of the Lambs", "The Usual Suspects", "Zodiac", "Se7en",
	"Oppenheimer", "Barbie", "Killers of the Flower Moon", "Past Lives",
}

var directorNames = []string{
	"Steven Spielberg", "Christopher Nolan", "Martin Scorsese", "Quentin Tarantino",
	"Francis Ford Coppola", "Stanley Kubrick", "Ang Lee", "Denis Villeneuve",
	"Ridley Scott", "James Cameron", "Peter Jackson", "Guillermo del Toro",
	"Bong Joon-ho", "Akira Kurosawa", "Wes Anderson", "Greta Gerwig",
}

var categoryNames = []string{
	"Action", "Adventure", "Animation", "Comedy", "Crime", "Documentary",
	"Drama", "Family", "Fantasy", "Horror", "Mystery", "Romance", "Sci-Fi",
	"Thriller", "War", "Western",
}

var platformNames = []string{
	"Netflix", "Amazon Prime Video", "Disney+", "Hulu", "HBO Max", "Apple TV+",
	"Paramount+", "Peacock", "Crunchyroll", "Plex", "YouTube", "iTunes",
}

var watchedWith = []string{
	"Alone", "Family", "Friends", "Partner", "Movie Night", "Kids", "Date",
}

var reviewTexts = []string{
	"Absolutely fantastic!", "Really enjoyed this one.", "Not bad, could be better.",
	"Masterpiece!", "Better than I expected.", "Disappointing ending.",
	"Would watch again.", "Great cinematography.", "Highly recommend!",
	"Emotional rollercoaster.", "Thought-provoking.", "Couldn't stop watching.",
}

// Options controls how much data gets generated.
type Options struct {
	Users      int
	Movies     int
	Ratings    int
	Favorites  int
	ClearFirst bool
}

// DefaultOptions matches a medium-sized test dataset.
func DefaultOptions() Options {
	return Options{Users: 50, Movies: 1000, Ratings: 5000, Favorites: 500}
}

type Seeder struct {
	db     *gorm.DB
	users  *users.Service
	stats  *stats.Service
	logger *slog.Logger
	rng    *rand.Rand
}

func NewSeeder(db *gorm.DB, userSvc *users.Service, statsSvc *stats.Service, logger *slog.Logger) *Seeder {
	return &Seeder{
		db: db,
		// Minimum bcrypt cost: seeding thousands of users must not be
		// dominated by password hashing.
		users:  userSvc.WithCost(bcrypt.MinCost),
		stats:  statsSvc,
		logger: logger,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Run generates the dataset. Inserts go straight through the storage
// layer with foreign keys off; duplicates on the unique (user, movie)
// pairs are skipped like any other uniqueness conflict.
func (s *Seeder) Run(ctx context.Context, opts Options) error {
	start := time.Now()

	if err := s.db.WithContext(ctx).Exec("PRAGMA foreign_keys=OFF").Error; err != nil {
		return fmt.Errorf("failed to disable foreign keys: %w", err)
	}
	defer func() {
		if err := s.db.Exec("PRAGMA foreign_keys=ON").Error; err != nil {
			s.logger.Warn("Failed to re-enable foreign keys", slog.Any("error", err))
		}
	}()

	if opts.ClearFirst {
		if err := s.clear(ctx); err != nil {
			return err
		}
	}

	if err := s.seedCatalog(ctx); err != nil {
		return err
	}
	userIDs, err := s.seedUsers(ctx, opts.Users)
	if err != nil {
		return err
	}
	movieIDs, err := s.seedMovies(ctx, opts.Movies, userIDs)
	if err != nil {
		return err
	}
	if err := s.seedRatings(ctx, opts.Ratings, userIDs, movieIDs); err != nil {
		return err
	}
	if err := s.seedFavorites(ctx, opts.Favorites, userIDs, movieIDs); err != nil {
		return err
	}

	// Repair pass: rebuild both aggregate tables in one go. Idempotent,
	// and required before any read path touches the stats.
	if err := s.stats.RecomputeAll(ctx); err != nil {
		return err
	}

	s.logger.Info("Seeding complete",
		slog.Int("users", opts.Users),
		slog.Int("movies", opts.Movies),
		slog.Int("ratings", opts.Ratings),
		slog.Duration("elapsed", time.Since(start)))
	return nil
}

func (s *Seeder) clear(ctx context.Context) error {
	tables := []string{
		"user_favorites", "user_ratings", "movie_rating_stats", "user_stats",
		"sessions", "movies", "users", "categories", "streaming_platforms", "directors",
	}
	for _, table := range tables {
		if err := s.db.WithContext(ctx).Exec("DELETE FROM " + table).Error; err != nil {
			return fmt.Errorf("failed to clear table %s: %w", table, err)
		}
	}
	s.logger.Info("Cleared existing data")
	return nil
}

func (s *Seeder) seedCatalog(ctx context.Context) error {
	for _, name := range categoryNames {
		s.db.WithContext(ctx).Where("name = ?", name).FirstOrCreate(&models.Category{Name: name})
	}
	for _, name := range directorNames {
		s.db.WithContext(ctx).Where("name = ?", name).FirstOrCreate(&models.Director{Name: name})
	}
	for _, name := range platformNames {
		s.db.WithContext(ctx).Where("name = ?", name).FirstOrCreate(&models.StreamingPlatform{Name: name})
	}
	s.logger.Info("Seeded catalog entities",
		slog.Int("categories", len(categoryNames)),
		slog.Int("directors", len(directorNames)),
		slog.Int("platforms", len(platformNames)))
	return nil
}

func (s *Seeder) seedUsers(ctx context.Context, n int) ([]uint, error) {
	ids := make([]uint, 0, n)
	for i := 1; i <= n; i++ {
		user, err := s.users.Register(ctx, fmt.Sprintf("user_%d", i), fmt.Sprintf("password%d", i))
		if err != nil {
			return nil, fmt.Errorf("failed to seed user %d: %w", i, err)
		}
		ids = append(ids, user.ID)
	}
	s.logger.Info("Seeded users", slog.Int("count", n))
	return ids, nil
}

func (s *Seeder) seedMovies(ctx context.Context, n int, userIDs []uint) ([]uint, error) {
	if len(userIDs) == 0 {
		return nil, fmt.Errorf("cannot seed movies without users")
	}

	var categoryIDs, directorIDs, platformIDs []uint
	s.db.WithContext(ctx).Model(&models.Category{}).Pluck("id", &categoryIDs)
	s.db.WithContext(ctx).Model(&models.Director{}).Pluck("id", &directorIDs)
	s.db.WithContext(ctx).Model(&models.StreamingPlatform{}).Pluck("id", &platformIDs)

	ids := make([]uint, 0, n)
	for i := 1; i <= n; i++ {
		m := models.Movie{
			// Suffix keeps generated titles unique so the catalog grows
			// to the requested size instead of deduplicating.
			Title:     fmt.Sprintf("%s (%d)", movieTitles[s.rng.Intn(len(movieTitles))], i),
			Year:      1980 + s.rng.Intn(45),
			Duration:  80 + s.rng.Intn(100),
			OwnerID:   userIDs[s.rng.Intn(len(userIDs))],
			CreatedAt: s.pastTime(),
		}
		if s.rng.Float64() > 0.2 {
			m.CategoryID = &categoryIDs[s.rng.Intn(len(categoryIDs))]
		}
		if s.rng.Float64() > 0.2 {
			m.DirectorID = &directorIDs[s.rng.Intn(len(directorIDs))]
		}
		if s.rng.Float64() > 0.2 {
			m.StreamingPlatformID = &platformIDs[s.rng.Intn(len(platformIDs))]
		}
		if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
			return nil, fmt.Errorf("failed to seed movie %d: %w", i, err)
		}
		ids = append(ids, m.ID)
	}
	s.logger.Info("Seeded movies", slog.Int("count", n))
	return ids, nil
}

func (s *Seeder) seedRatings(ctx context.Context, n int, userIDs, movieIDs []uint) error {
	if len(userIDs) == 0 || len(movieIDs) == 0 {
		return nil
	}

	added := 0
	// Random (user, movie) pairs collide with the unique index; allow
	// twice the attempts and skip duplicates, like the rest of the
	// dedup-insert paths.
	for attempts := 0; added < n && attempts < n*2; attempts++ {
		rating := float64(2+s.rng.Intn(7)) / 2 // 1.0 .. 4.0 in half steps
		row := models.UserRating{
			UserID:   userIDs[s.rng.Intn(len(userIDs))],
			MovieID:  movieIDs[s.rng.Intn(len(movieIDs))],
			Rating:   &rating,
			Watched:  s.rng.Float64() > 0.3,
			Favorite: s.rng.Float64() > 0.85,
		}
		if s.rng.Float64() > 0.3 {
			t := s.pastTime()
			row.WatchDate = &t
			row.WatchedWith = watchedWith[s.rng.Intn(len(watchedWith))]
		}
		if s.rng.Float64() > 0.3 {
			row.Review = reviewTexts[s.rng.Intn(len(reviewTexts))]
		}

		if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
			continue // duplicate (user, movie) pair
		}
		if row.Favorite {
			// Keep the dual-write invariant intact even in bulk.
			s.db.WithContext(ctx).Create(&models.UserFavorite{UserID: row.UserID, MovieID: row.MovieID})
		}
		added++
	}
	s.logger.Info("Seeded ratings", slog.Int("count", added))
	return nil
}

func (s *Seeder) seedFavorites(ctx context.Context, n int, userIDs, movieIDs []uint) error {
	if len(userIDs) == 0 || len(movieIDs) == 0 {
		return nil
	}

	added := 0
	for attempts := 0; added < n && attempts < n*2; attempts++ {
		userID := userIDs[s.rng.Intn(len(userIDs))]
		movieID := movieIDs[s.rng.Intn(len(movieIDs))]

		fav := models.UserFavorite{UserID: userID, MovieID: movieID}
		if err := s.db.WithContext(ctx).Create(&fav).Error; err != nil {
			continue // already a favorite
		}
		// If a rating row exists for the pair, its flag must follow.
		s.db.WithContext(ctx).Model(&models.UserRating{}).
			Where("user_id = ? AND movie_id = ?", userID, movieID).
			Update("favorite", true)
		added++
	}
	s.logger.Info("Seeded favorites", slog.Int("count", added))
	return nil
}

func (s *Seeder) pastTime() time.Time {
	return time.Now().AddDate(0, 0, -s.rng.Intn(365))
}
