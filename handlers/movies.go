package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/jkivisto/watchlog/lib/apperr"
	"github.com/jkivisto/watchlog/lib/catalog"
	"github.com/jkivisto/watchlog/lib/movies"
	"github.com/jkivisto/watchlog/lib/recommend"
	"github.com/jkivisto/watchlog/lib/validation"
	"github.com/jkivisto/watchlog/models"
)

// Per-page sizes are fixed per page type.
const (
	dashboardPerPage = 10
	searchPerPage    = 20
	favoritesPerPage = 12
)

func (h *Handler) Home(w http.ResponseWriter, r *http.Request) {
	userID := h.userID(r)
	page := validation.ParsePage(r.URL.Query().Get("page"))

	result, err := h.movies.Search(r.Context(), userID, movies.Filters{Mine: true},
		movies.SortDateAdded, page, dashboardPerPage)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	userStats, err := h.stats.UserStats(r.Context(), userID)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	h.render(w, r, "home.html", struct {
		Page  *movies.Page
		Stats models.UserStats
	}{Page: result, Stats: userStats})
}

func (h *Handler) SearchPage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := movies.Filters{
		Query:    q.Get("q"),
		Category: q.Get("category"),
		Platform: q.Get("platform"),
		Year:     q.Get("year"),
	}
	if raw := q.Get("min_rating"); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil && v > 0 {
			filters.MinRating = v
		}
	}
	sort := movies.Sort(q.Get("sort"))
	page := validation.ParsePage(q.Get("page"))

	result, err := h.movies.Search(r.Context(), h.userID(r), filters, sort, page, searchPerPage)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	categories, err := h.catalog.Categories(r.Context())
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	platforms, err := h.catalog.Platforms(r.Context())
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	h.render(w, r, "search.html", struct {
		Page       *movies.Page
		Filters    movies.Filters
		Sort       movies.Sort
		Categories []models.Category
		Platforms  []models.StreamingPlatform
	}{Page: result, Filters: filters, Sort: sort, Categories: categories, Platforms: platforms})
}

func (h *Handler) Favorites(w http.ResponseWriter, r *http.Request) {
	page := validation.ParsePage(r.URL.Query().Get("page"))
	result, err := h.movies.Search(r.Context(), h.userID(r), movies.Filters{FavoritesOnly: true},
		movies.SortDateAdded, page, favoritesPerPage)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	h.render(w, r, "favorites.html", result)
}

func (h *Handler) Reviews(w http.ResponseWriter, r *http.Request) {
	rows, err := h.movies.Reviews(r.Context(), h.userID(r))
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	h.render(w, r, "reviews.html", rows)
}

func (h *Handler) Suggest(w http.ResponseWriter, r *http.Request) {
	suggestions, err := h.suggest.Suggest(r.Context(), h.userID(r), 5)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	h.render(w, r, "suggest.html", struct {
		Suggestions []recommend.Suggestion
	}{Suggestions: suggestions})
}

// movieFormData feeds the add/edit form dropdowns.
type movieFormData struct {
	Detail     *movies.Detail
	Categories []models.Category
	Directors  []models.Director
	Platforms  []models.StreamingPlatform
}

func (h *Handler) movieForm(r *http.Request, detail *movies.Detail) (*movieFormData, error) {
	categories, err := h.catalog.Categories(r.Context())
	if err != nil {
		return nil, err
	}
	directors, err := h.catalog.Directors(r.Context())
	if err != nil {
		return nil, err
	}
	platforms, err := h.catalog.Platforms(r.Context())
	if err != nil {
		return nil, err
	}
	return &movieFormData{
		Detail:     detail,
		Categories: categories,
		Directors:  directors,
		Platforms:  platforms,
	}, nil
}

func (h *Handler) AddForm(w http.ResponseWriter, r *http.Request) {
	form, err := h.movieForm(r, nil)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	h.render(w, r, "add.html", form)
}

func (h *Handler) Add(w http.ResponseWriter, r *http.Request) {
	title, year, duration, err := h.parseSharedFields(r)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	categoryID, directorID, platformID, err := h.resolveSelections(r)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	rating, err := parseRatingInput(r)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	movieID, err := h.movies.Add(r.Context(), h.userID(r), movies.AddInput{
		Title:       title,
		Year:        year,
		Duration:    duration,
		CategoryID:  categoryID,
		DirectorID:  directorID,
		PlatformID:  platformID,
		RatingInput: rating,
	})
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	h.flashAndRedirect(w, r, "success", "Movie added", "/movie/"+strconv.FormatUint(uint64(movieID), 10))
}

func (h *Handler) MovieDetail(w http.ResponseWriter, r *http.Request) {
	movieID, err := parseMovieID(r)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	detail, err := h.movies.GetByID(r.Context(), movieID, h.userID(r))
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	h.render(w, r, "movie.html", detail)
}

func (h *Handler) EditForm(w http.ResponseWriter, r *http.Request) {
	movieID, err := parseMovieID(r)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	detail, err := h.movies.GetByID(r.Context(), movieID, h.userID(r))
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	form, err := h.movieForm(r, detail)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	h.render(w, r, "edit.html", form)
}

// Edit routes by ownership: the owner updates the shared catalog fields
// and their own rating row; everyone else only updates their own row.
func (h *Handler) Edit(w http.ResponseWriter, r *http.Request) {
	movieID, err := parseMovieID(r)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	userID := h.userID(r)
	detail, err := h.movies.GetByID(r.Context(), movieID, userID)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	rating, err := parseRatingInput(r)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	if !detail.IsOwner {
		if err := h.movies.Rate(r.Context(), userID, movieID, rating); err != nil {
			h.renderError(w, r, err)
			return
		}
		h.flashAndRedirect(w, r, "success", "Your rating was saved", "/movie/"+chi.URLParam(r, "id"))
		return
	}

	title, year, duration, err := h.parseSharedFields(r)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	categoryID, directorID, platformID, err := h.resolveSelections(r)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	_, err = h.movies.UpdateOwned(r.Context(), userID, movieID, movies.UpdateInput{
		Title:       title,
		Year:        year,
		Duration:    duration,
		CategoryID:  categoryID,
		DirectorID:  directorID,
		PlatformID:  platformID,
		RatingInput: rating,
	})
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	h.flashAndRedirect(w, r, "success", "Movie updated", "/movie/"+chi.URLParam(r, "id"))
}

// Review saves the caller's rating and review without touching the shared
// catalog fields.
func (h *Handler) Review(w http.ResponseWriter, r *http.Request) {
	movieID, err := parseMovieID(r)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	rating, err := parseRatingInput(r)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	if err := h.movies.Rate(r.Context(), h.userID(r), movieID, rating); err != nil {
		h.renderError(w, r, err)
		return
	}
	h.flashAndRedirect(w, r, "success", "Your review was saved", "/movie/"+chi.URLParam(r, "id"))
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	movieID, err := parseMovieID(r)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	if err := h.movies.Delete(r.Context(), h.userID(r), movieID); err != nil {
		h.renderError(w, r, err)
		return
	}
	h.flashAndRedirect(w, r, "success", "Movie removed", "/")
}

func parseMovieID(r *http.Request) (uint, error) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 32)
	if err != nil || id == 0 {
		return 0, apperr.BadRequest("invalid movie id")
	}
	return uint(id), nil
}

func (h *Handler) parseSharedFields(r *http.Request) (title string, year, duration int, err error) {
	title = r.FormValue("title")
	year, err = validation.ParseYear(r.FormValue("year"))
	if err != nil {
		return "", 0, 0, err
	}
	duration, err = validation.ParseDuration(r.FormValue("duration"))
	if err != nil {
		return "", 0, 0, err
	}
	return title, year, duration, nil
}

// resolveSelections turns the three pick-or-type dropdown pairs into
// catalog ids, creating newly typed entities on the fly.
func (h *Handler) resolveSelections(r *http.Request) (categoryID, directorID, platformID *uint, err error) {
	sel, err := formSelection(r, "category_id", "new_category")
	if err != nil {
		return nil, nil, nil, err
	}
	if categoryID, err = h.catalog.ResolveCategory(r.Context(), sel); err != nil {
		return nil, nil, nil, err
	}

	sel, err = formSelection(r, "director_id", "new_director")
	if err != nil {
		return nil, nil, nil, err
	}
	if directorID, err = h.catalog.ResolveDirector(r.Context(), sel); err != nil {
		return nil, nil, nil, err
	}

	sel, err = formSelection(r, "platform_id", "new_platform")
	if err != nil {
		return nil, nil, nil, err
	}
	if platformID, err = h.catalog.ResolvePlatform(r.Context(), sel); err != nil {
		return nil, nil, nil, err
	}
	return categoryID, directorID, platformID, nil
}

func formSelection(r *http.Request, idField, nameField string) (catalog.Selection, error) {
	id, err := validation.ParseEntityID(r.FormValue(idField))
	if err != nil {
		return catalog.Selection{}, err
	}
	return catalog.Selection{ID: id, NewName: r.FormValue(nameField)}, nil
}

func parseRatingInput(r *http.Request) (movies.RatingInput, error) {
	rating, err := validation.NormalizeRating(r.FormValue("rating"))
	if err != nil {
		return movies.RatingInput{}, err
	}
	watchDate, err := validation.ParseWatchDate(r.FormValue("watch_date"))
	if err != nil {
		return movies.RatingInput{}, err
	}
	return movies.RatingInput{
		Rating:      rating,
		WatchDate:   watchDate,
		WatchedWith: r.FormValue("watched_with"),
		Review:      r.FormValue("review"),
		Favorite:    r.FormValue("favorite") != "",
	}, nil
}
