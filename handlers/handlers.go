// Package handlers is the HTTP surface: server-rendered pages over the
// core services. Handlers resolve the session cookie to a user id, parse
// and validate form input at the boundary, and pass explicit ids into the
// services.
package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"gorm.io/gorm"

	"github.com/jkivisto/watchlog/handlers/templates"
	"github.com/jkivisto/watchlog/lib/apperr"
	"github.com/jkivisto/watchlog/lib/catalog"
	"github.com/jkivisto/watchlog/lib/health"
	"github.com/jkivisto/watchlog/lib/movies"
	"github.com/jkivisto/watchlog/lib/recommend"
	"github.com/jkivisto/watchlog/lib/session"
	"github.com/jkivisto/watchlog/lib/stats"
	"github.com/jkivisto/watchlog/lib/users"
	"github.com/jkivisto/watchlog/models"
)

const sessionCookie = "watchlog_session"

type Handler struct {
	db       *gorm.DB
	users    *users.Service
	sessions *session.Store
	movies   *movies.Service
	catalog  *catalog.Registry
	stats    *stats.Service
	suggest  *recommend.Suggester
	logger   *slog.Logger
}

func New(db *gorm.DB, userSvc *users.Service, sessions *session.Store, movieSvc *movies.Service,
	reg *catalog.Registry, statsSvc *stats.Service, suggester *recommend.Suggester, logger *slog.Logger) *Handler {
	return &Handler{
		db:       db,
		users:    userSvc,
		sessions: sessions,
		movies:   movieSvc,
		catalog:  reg,
		stats:    statsSvc,
		suggest:  suggester,
		logger:   logger,
	}
}

// Routes builds the router. Pages that mutate state sit behind the auth
// and CSRF middleware; read pages only need a session for personalization.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", health.Check(h.db))

	r.Get("/login", h.LoginForm)
	r.Post("/login", h.Login)
	r.Get("/register", h.RegisterForm)
	r.Post("/register", h.Register)

	r.Group(func(r chi.Router) {
		r.Use(h.requireUser)
		r.Get("/", h.Home)
		r.Get("/search", h.SearchPage)
		r.Get("/favorites", h.Favorites)
		r.Get("/reviews", h.Reviews)
		r.Get("/suggest", h.Suggest)
		r.Get("/add", h.AddForm)
		r.Get("/movie/{id}", h.MovieDetail)
		r.Get("/edit/{id}", h.EditForm)

		r.Group(func(r chi.Router) {
			r.Use(h.checkCSRF)
			r.Post("/logout", h.Logout)
			r.Post("/add", h.Add)
			r.Post("/edit/{id}", h.Edit)
			r.Post("/review/{id}", h.Review)
			r.Post("/delete/{id}", h.Delete)
		})
	})

	return r
}

type ctxKey int

const sessionKey ctxKey = 0

// requireUser resolves the session cookie and redirects anonymous
// visitors to the login page.
func (h *Handler) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(sessionCookie)
		if err != nil {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		sess, err := h.sessions.Get(r.Context(), cookie.Value)
		if err != nil {
			if !apperr.IsNotFound(err) {
				h.logger.Error("Failed to load session", slog.Any("error", err))
			}
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey, sess)))
	})
}

// checkCSRF rejects POSTs whose form token doesn't match the session.
func (h *Handler) checkCSRF(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := h.session(r)
		if sess == nil || r.FormValue("csrf_token") != sess.CSRFToken {
			h.renderError(w, r, apperr.Forbidden("invalid request token"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) session(r *http.Request) *models.Session {
	sess, _ := r.Context().Value(sessionKey).(*models.Session)
	return sess
}

func (h *Handler) userID(r *http.Request) uint {
	if sess := h.session(r); sess != nil {
		return sess.UserID
	}
	return 0
}

// pageData is the payload every template receives.
type pageData struct {
	Username  string
	CSRFToken string
	Flash     string
	FlashKind string
	Data      interface{}
}

func (h *Handler) newPageData(r *http.Request, data interface{}) pageData {
	pd := pageData{Data: data}
	sess := h.session(r)
	if sess == nil {
		return pd
	}
	pd.CSRFToken = sess.CSRFToken
	if user, err := h.users.GetByID(r.Context(), sess.UserID); err == nil {
		pd.Username = user.Username
	}
	if kind, msg, err := h.sessions.PopFlash(r.Context(), sess.Token); err == nil {
		pd.Flash = msg
		pd.FlashKind = kind
	}
	return pd
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, page string, data interface{}) {
	tmpl, err := templates.ParseTemplates("base.html", page)
	if err != nil {
		h.logger.Error("Failed to parse template", slog.String("page", page), slog.Any("error", err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if err := tmpl.ExecuteTemplate(w, "base.html", h.newPageData(r, data)); err != nil {
		h.logger.Error("Failed to execute template", slog.String("page", page), slog.Any("error", err))
	}
}

// renderError maps a service error onto a status code and the error page.
func (h *Handler) renderError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case apperr.IsNotFound(err):
		status = http.StatusNotFound
	case apperr.IsBadRequest(err):
		status = http.StatusBadRequest
	case apperr.IsConflict(err):
		status = http.StatusConflict
	case apperr.IsForbidden(err):
		status = http.StatusForbidden
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed",
			slog.String("path", r.URL.Path),
			slog.Any("error", err))
	}

	tmpl, terr := templates.ParseTemplates("base.html", "error.html")
	if terr != nil {
		h.logger.Error("Failed to parse error template", slog.Any("error", terr))
		http.Error(w, "Internal server error", status)
		return
	}
	w.WriteHeader(status)
	pd := h.newPageData(r, struct{ Message string }{Message: apperr.Message(err)})
	if err := tmpl.ExecuteTemplate(w, "base.html", pd); err != nil {
		h.logger.Error("Failed to execute error template", slog.Any("error", err))
	}
}

// flashAndRedirect sets a one-shot message and sends the browser on.
func (h *Handler) flashAndRedirect(w http.ResponseWriter, r *http.Request, kind, message, target string) {
	if sess := h.session(r); sess != nil {
		if err := h.sessions.SetFlash(r.Context(), sess.Token, kind, message); err != nil {
			h.logger.Warn("Failed to set flash", slog.Any("error", err))
		}
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}
