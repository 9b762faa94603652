// Package recommend suggests unwatched catalog movies to a user. With an
// OpenAI key it asks the model to pick from the user's unwatched titles
// based on their top ratings; without one it falls back to ranking by
// community average.
package recommend

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"gorm.io/gorm"

	"github.com/jkivisto/watchlog/models"
)

type Suggester struct {
	db     *gorm.DB
	openai *openai.Client
	logger *slog.Logger
}

// New builds a Suggester. An empty API key disables the model and leaves
// only the rating-based fallback.
func New(db *gorm.DB, apiKey string, logger *slog.Logger) *Suggester {
	var client *openai.Client
	if apiKey != "" {
		client = openai.NewClient(apiKey)
	}
	return &Suggester{db: db, openai: client, logger: logger}
}

// Suggestion is one recommended movie with its community average.
type Suggestion struct {
	MovieID   uint
	Title     string
	Year      int
	AvgRating float64
}

func (s Suggestion) GetTitle() string { return s.Title }

// Suggest returns up to limit unwatched movies for the user.
func (s *Suggester) Suggest(ctx context.Context, userID uint, limit int) ([]Suggestion, error) {
	if limit < 1 {
		limit = 5
	}

	candidates, err := s.unwatchedCandidates(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	if s.openai == nil {
		if len(candidates) > limit {
			candidates = candidates[:limit]
		}
		return candidates, nil
	}

	favorites, err := s.topRated(ctx, userID)
	if err != nil {
		return nil, err
	}

	picked, err := s.askModel(ctx, favorites, candidates, limit)
	if err != nil {
		s.logger.Warn("Model suggestion failed, falling back to rating order", slog.Any("error", err))
		if len(candidates) > limit {
			candidates = candidates[:limit]
		}
		return candidates, nil
	}
	return picked, nil
}

// unwatchedCandidates lists movies the user has no watched record for,
// best community average first.
func (s *Suggester) unwatchedCandidates(ctx context.Context, userID uint) ([]Suggestion, error) {
	var rows []Suggestion
	err := s.db.WithContext(ctx).
		Model(&models.Movie{}).
		Select("movies.id AS movie_id, movies.title, movies.year, COALESCE(movie_rating_stats.average_rating, 0) AS avg_rating").
		Joins("LEFT JOIN movie_rating_stats ON movie_rating_stats.movie_id = movies.id").
		Where("NOT EXISTS (SELECT 1 FROM user_ratings ur WHERE ur.movie_id = movies.id AND ur.user_id = ? AND ur.watched)", userID).
		Order("avg_rating DESC, movies.title ASC").
		Limit(50).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load candidates: %w", err)
	}
	return rows, nil
}

type ratedMovie struct {
	Title  string
	Rating float64
}

func (s *Suggester) topRated(ctx context.Context, userID uint) ([]ratedMovie, error) {
	var rows []ratedMovie
	err := s.db.WithContext(ctx).
		Model(&models.UserRating{}).
		Select("movies.title, user_ratings.rating").
		Joins("JOIN movies ON movies.id = user_ratings.movie_id").
		Where("user_ratings.user_id = ? AND user_ratings.rating IS NOT NULL", userID).
		Order("user_ratings.rating DESC").
		Limit(10).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load top ratings: %w", err)
	}
	return rows, nil
}

func (s *Suggester) askModel(ctx context.Context, favorites []ratedMovie, candidates []Suggestion, limit int) ([]Suggestion, error) {
	var prompt strings.Builder
	prompt.WriteString("The user has rated these movies highly:\n")
	if len(favorites) == 0 {
		prompt.WriteString("- (no ratings yet)\n")
	}
	for _, f := range favorites {
		fmt.Fprintf(&prompt, "- %s - Rating: %.1f/5\n", f.Title, f.Rating)
	}
	prompt.WriteString("\nUnwatched movies available:\n")
	for _, c := range candidates {
		fmt.Fprintf(&prompt, "- %s (%d)\n", c.Title, c.Year)
	}
	fmt.Fprintf(&prompt, "\nPick the %d movies from the unwatched list the user is most likely to enjoy. Respond with one title per line, prefixed with \"-\", exactly as written above.", limit)

	resp, err := s.openai.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model: openai.GPT4oMini,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: "You are a movie recommendation assistant. Only suggest titles from the provided list."},
				{Role: openai.ChatMessageRoleUser, Content: prompt.String()},
			},
			Temperature: 0.7,
			MaxTokens:   500,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("empty completion response")
	}

	picked := matchTitles(candidates, resp.Choices[0].Message.Content)
	if len(picked) == 0 {
		return nil, fmt.Errorf("no suggested titles matched the candidate list")
	}
	if len(picked) > limit {
		picked = picked[:limit]
	}
	return picked, nil
}

// matchTitles maps model output lines back onto known items by title.
func matchTitles[T interface{ GetTitle() string }](items []T, response string) []T {
	var matched []T
	seen := make(map[string]bool)
	for _, line := range strings.Split(response, "\n") {
		line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "-"))
		if idx := strings.Index(line, "("); idx != -1 {
			line = strings.TrimSpace(line[:idx])
		}
		if line == "" {
			continue
		}
		for _, item := range items {
			if strings.EqualFold(item.GetTitle(), line) && !seen[strings.ToLower(line)] {
				matched = append(matched, item)
				seen[strings.ToLower(line)] = true
				break
			}
		}
	}
	return matched
}
