package handlers

import (
	"net/http"

	"github.com/jkivisto/watchlog/lib/apperr"
)

func (h *Handler) LoginForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "login.html", nil)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.Authenticate(r.Context(), r.FormValue("username"), r.FormValue("password"))
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	h.openSession(w, r, user.ID)
}

func (h *Handler) RegisterForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "register.html", nil)
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	password := r.FormValue("password")
	if password != r.FormValue("password_confirm") {
		h.renderError(w, r, apperr.BadRequest("passwords do not match"))
		return
	}
	user, err := h.users.Register(r.Context(), r.FormValue("username"), password)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	h.openSession(w, r, user.ID)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(sessionCookie); err == nil {
		if err := h.sessions.Delete(r.Context(), cookie.Value); err != nil {
			h.logger.Warn("Failed to delete session")
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (h *Handler) openSession(w http.ResponseWriter, r *http.Request, userID uint) {
	sess, err := h.sessions.Create(r.Context(), userID)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    sess.Token,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
