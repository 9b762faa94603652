package movies

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/jkivisto/watchlog/lib/apperr"
	"github.com/jkivisto/watchlog/lib/validation"
	"github.com/jkivisto/watchlog/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Sort selects the result ordering.
type Sort string

const (
	SortTitle     Sort = "title"      // title ascending
	SortYear      Sort = "year"       // year descending
	SortRating    Sort = "rating"     // aggregate average descending, newest first on ties
	SortDateAdded Sort = "date_added" // default: most recently added first
	SortRelevance Sort = "relevance"  // exact title match first; without a query, date_added
)

// Year filter bucket tokens accepted besides a literal year.
const (
	YearBucket2010s = "2010s"
	YearBucket2000s = "2000s"
	YearBucket1990s = "1990s"
	YearBucketOlder = "older"
)

// Filters are AND-combined; each zero value means "no filter".
type Filters struct {
	Query     string  // case-insensitive title substring
	Category  string  // category name, exact match
	Platform  string  // platform name, exact match
	Year      string  // literal year or a bucket token
	MinRating float64 // aggregate average >= threshold

	// Scoping filters used by the dashboard and favorites pages; both
	// require a logged-in caller.
	Mine          bool // only movies the caller has a relationship row for
	FavoritesOnly bool // only the caller's favorites
}

// Result is one search row: catalog fields, aggregates and (for a
// logged-in caller) their own state.
type Result struct {
	ID            uint
	Title         string
	Year          int
	Duration      int
	CategoryName  string
	DirectorName  string
	PlatformName  string
	AverageRating float64
	TotalRatings  int64
	OwnRating     *float64
	Watched       bool
	Favorite      bool
	CreatedAt     time.Time
}

// Page is a page of results with the pagination bookkeeping the templates
// need.
type Page struct {
	Rows       []Result
	TotalCount int64
	PageNum    int
	PerPage    int
	TotalPages int
	HasNext    bool
	HasPrev    bool
}

// Search runs the filter set over the catalog joined with aggregates and
// (when userID is non-zero) the caller's own state. The total count is
// computed by a separate counting query over the same predicate set, so
// counting stays cheap on large catalogs.
func (s *Service) Search(ctx context.Context, userID uint, f Filters, sort Sort, page, perPage int) (*Page, error) {
	if err := validation.ValidatePagination(page, perPage); err != nil {
		return nil, err
	}
	if (f.Mine || f.FavoritesOnly) && userID == 0 {
		return nil, apperr.BadRequest("user id is required")
	}

	var total int64
	if err := s.searchQuery(ctx, userID, f).Count(&total).Error; err != nil {
		return nil, apperr.Wrap(apperr.TypeInternal, "failed to count search results", err)
	}

	q := s.searchQuery(ctx, userID, f)
	sel := `movies.id, movies.title, movies.year, movies.duration, movies.created_at,
		categories.name AS category_name,
		directors.name AS director_name,
		streaming_platforms.name AS platform_name,
		COALESCE(movie_rating_stats.average_rating, 0) AS average_rating,
		COALESCE(movie_rating_stats.total_ratings, 0) AS total_ratings`
	if userID != 0 {
		sel += `,
		own.rating AS own_rating,
		COALESCE(own.watched, 0) AS watched,
		COALESCE(own.favorite, 0) AS favorite`
		q = q.Joins("LEFT JOIN user_ratings own ON own.movie_id = movies.id AND own.user_id = ?", userID)
	}
	q = applySort(q, sort, f.Query)

	var rows []Result
	err := q.Select(sel).
		Limit(perPage).
		Offset((page - 1) * perPage).
		Scan(&rows).Error
	if err != nil {
		return nil, apperr.Wrap(apperr.TypeInternal, "failed to search movies", err)
	}

	totalPages := int((total + int64(perPage) - 1) / int64(perPage))
	if totalPages < 1 {
		totalPages = 1
	}
	return &Page{
		Rows:       rows,
		TotalCount: total,
		PageNum:    page,
		PerPage:    perPage,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
		HasPrev:    page > 1,
	}, nil
}

// searchQuery builds the joined, filtered base query. Both the counting
// query and the row query go through here so the predicate sets can never
// diverge.
func (s *Service) searchQuery(ctx context.Context, userID uint, f Filters) *gorm.DB {
	q := s.db.WithContext(ctx).Model(&models.Movie{}).
		Joins("LEFT JOIN categories ON categories.id = movies.category_id").
		Joins("LEFT JOIN directors ON directors.id = movies.director_id").
		Joins("LEFT JOIN streaming_platforms ON streaming_platforms.id = movies.streaming_platform_id").
		Joins("LEFT JOIN movie_rating_stats ON movie_rating_stats.movie_id = movies.id")

	if query := strings.TrimSpace(f.Query); query != "" {
		q = q.Where("LOWER(movies.title) LIKE ?", "%"+strings.ToLower(query)+"%")
	}
	if f.Category != "" {
		q = q.Where("LOWER(categories.name) = LOWER(?)", f.Category)
	}
	if f.Platform != "" {
		q = q.Where("LOWER(streaming_platforms.name) = LOWER(?)", f.Platform)
	}
	if f.Year != "" {
		q = applyYearFilter(q, f.Year)
	}
	if f.MinRating > 0 {
		q = q.Where("COALESCE(movie_rating_stats.average_rating, 0) >= ?", f.MinRating)
	}
	if f.Mine {
		q = q.Where("EXISTS (SELECT 1 FROM user_ratings ur WHERE ur.movie_id = movies.id AND ur.user_id = ?)", userID)
	}
	if f.FavoritesOnly {
		q = q.Where("EXISTS (SELECT 1 FROM user_favorites uf WHERE uf.movie_id = movies.id AND uf.user_id = ?)", userID)
	}
	return q
}

// applyYearFilter interprets the year token: a fixed decade/era bucket or
// a literal year. Unparseable tokens match nothing rather than erroring,
// matching the form's free-text behavior.
func applyYearFilter(q *gorm.DB, token string) *gorm.DB {
	switch token {
	case YearBucket2010s:
		return q.Where("movies.year BETWEEN 2010 AND 2019")
	case YearBucket2000s:
		return q.Where("movies.year BETWEEN 2000 AND 2009")
	case YearBucket1990s:
		return q.Where("movies.year BETWEEN 1990 AND 1999")
	case YearBucketOlder:
		return q.Where("movies.year < 1990")
	}
	year, err := strconv.Atoi(token)
	if err != nil {
		return q.Where("1 = 0")
	}
	return q.Where("movies.year = ?", year)
}

func applySort(q *gorm.DB, sort Sort, query string) *gorm.DB {
	switch sort {
	case SortTitle:
		return q.Order("LOWER(movies.title) ASC")
	case SortYear:
		return q.Order("movies.year DESC").Order("movies.created_at DESC")
	case SortRating:
		return q.Order("COALESCE(movie_rating_stats.average_rating, 0) DESC").
			Order("movies.created_at DESC")
	case SortRelevance:
		if query = strings.TrimSpace(query); query != "" {
			return q.Order(clause.OrderBy{Expression: clause.Expr{
				SQL:  "CASE WHEN LOWER(movies.title) = ? THEN 0 ELSE 1 END",
				Vars: []interface{}{strings.ToLower(query)},
			}}).Order("movies.created_at DESC")
		}
		return q.Order("movies.created_at DESC").Order("movies.id DESC")
	default: // SortDateAdded
		return q.Order("movies.created_at DESC").Order("movies.id DESC")
	}
}
