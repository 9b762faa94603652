// Package plex imports watched movies from a Plex server into a user's
// log. Imported items go through the same add path as manual entries, so
// title dedup, rating normalization, and stats maintenance all apply.
package plex

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/LukeHagar/plexgo"
	"github.com/LukeHagar/plexgo/models/operations"
	"github.com/jkivisto/watchlog/lib/catalog"
	"github.com/jkivisto/watchlog/lib/movies"
	"github.com/jkivisto/watchlog/lib/validation"
)

type Client struct {
	api     *plexgo.PlexAPI
	plexURL string
	movies  *movies.Service
	catalog *catalog.Registry
	logger  *slog.Logger
}

func NewClient(plexURL, plexToken string, movieSvc *movies.Service, reg *catalog.Registry, logger *slog.Logger) *Client {
	api := plexgo.New(
		plexgo.WithSecurity(plexToken),
		plexgo.WithServerURL(plexURL),
	)

	return &Client{
		api:     api,
		plexURL: plexURL,
		movies:  movieSvc,
		catalog: reg,
		logger:  logger,
	}
}

// ImportResult summarizes one import run.
type ImportResult struct {
	Imported int
	Skipped  int
}

// ImportWatched pulls every watched movie from the server's movie
// libraries and records it for the given user. Items without a view
// count are skipped.
func (c *Client) ImportWatched(ctx context.Context, userID uint) (*ImportResult, error) {
	libraries, err := c.api.Library.GetAllLibraries(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get libraries: %w", err)
	}
	if libraries.Object == nil {
		return nil, fmt.Errorf("invalid response from Plex API")
	}

	result := &ImportResult{}
	for _, lib := range libraries.Object.MediaContainer.Directory {
		if lib.Type != "movie" {
			continue
		}
		items, err := c.getLibraryItems(ctx, lib.Key)
		if err != nil {
			return nil, fmt.Errorf("failed to read library %s: %w", lib.Title, err)
		}
		for _, item := range items {
			if item.ViewCount == nil || *item.ViewCount == 0 {
				result.Skipped++
				continue
			}
			if err := c.importItem(ctx, userID, item); err != nil {
				c.logger.Warn("Skipping Plex item",
					slog.String("title", item.Title),
					slog.Any("error", err))
				result.Skipped++
				continue
			}
			result.Imported++
		}
	}

	c.logger.Info("Plex import finished",
		slog.Uint64("user_id", uint64(userID)),
		slog.Int("imported", result.Imported),
		slog.Int("skipped", result.Skipped))
	return result, nil
}

func (c *Client) importItem(ctx context.Context, userID uint, item plexItem) error {
	input := movies.AddInput{Title: item.Title}
	if item.Year != nil {
		input.Year = *item.Year
	}
	if item.Duration != nil {
		input.Duration = *item.Duration / 60000 // milliseconds to minutes
	}

	// Plex ratings arrive on a 10-point scale; the normalizer maps them
	// onto the canonical 0-5 scale.
	if item.Rating != nil {
		rating, err := validation.NormalizeRating(strconv.FormatFloat(*item.Rating, 'f', 1, 64))
		if err != nil {
			return err
		}
		input.Rating = rating
	}

	if len(item.Genre) > 0 && item.Genre[0].Tag != nil {
		categoryID, err := c.catalog.ResolveCategory(ctx, catalog.Selection{NewName: *item.Genre[0].Tag})
		if err != nil {
			return err
		}
		input.CategoryID = categoryID
	}

	_, err := c.movies.Add(ctx, userID, input)
	return err
}

type plexItem struct {
	Title     string
	Year      *int
	Rating    *float64
	Duration  *int
	ViewCount *int
	Genre     []operations.GetLibraryItemsGenre
}

// getLibraryItems pages through one library section.
func (c *Client) getLibraryItems(ctx context.Context, libraryKey string) ([]plexItem, error) {
	sectionKey, err := strconv.Atoi(libraryKey)
	if err != nil {
		return nil, fmt.Errorf("invalid library key: %w", err)
	}

	containerSize := 50
	containerStart := 0
	includeGuids1 := operations.IncludeGuids(1)
	includeMeta1 := operations.GetLibraryItemsQueryParamIncludeMeta(1)
	movieType := operations.GetLibraryItemsQueryParamType(1)

	var all []plexItem
	for {
		request := operations.GetLibraryItemsRequest{
			SectionKey:          sectionKey,
			Type:                movieType,
			IncludeGuids:        &includeGuids1,
			IncludeMeta:         &includeMeta1,
			XPlexContainerSize:  &containerSize,
			XPlexContainerStart: &containerStart,
			Tag:                 operations.Tag("all"),
		}

		resp, err := c.api.Library.GetLibraryItems(ctx, request)
		if err != nil {
			return nil, fmt.Errorf("failed to get items from library: %w", err)
		}

		for _, item := range resp.Object.MediaContainer.Metadata {
			all = append(all, plexItem{
				Title:     item.Title,
				Year:      item.Year,
				Rating:    item.Rating,
				Duration:  item.Duration,
				ViewCount: item.ViewCount,
				Genre:     item.Genre,
			})
		}

		if len(resp.Object.MediaContainer.Metadata) == 0 ||
			containerStart+len(resp.Object.MediaContainer.Metadata) >= int(resp.Object.MediaContainer.TotalSize) {
			break
		}
		containerStart += containerSize
	}

	return all, nil
}

// TestConnection verifies the server URL and token by listing libraries.
func (c *Client) TestConnection(ctx context.Context) error {
	libraries, err := c.api.Library.GetAllLibraries(ctx)
	if err != nil {
		return fmt.Errorf("failed to get libraries: %w", err)
	}
	if libraries.Object == nil {
		return fmt.Errorf("invalid response from Plex API")
	}
	c.logger.Debug("Plex connection ok",
		slog.String("url", c.plexURL),
		slog.Int("libraries", len(libraries.Object.MediaContainer.Directory)))
	return nil
}
