package handlers

import (
	"net/http"
	"time"

	"github.com/diagnosis/parkspot/internal/domain"
	"github.com/diagnosis/parkspot/internal/http/response"
	"github.com/diagnosis/parkspot/internal/service"
	"github.com/go-chi/chi/v5"
)

// CookieConfig controls the session cookie issued on login.
type CookieConfig struct {
	Name   string
	TTL    time.Duration
	Secure bool
}

type AuthHandler struct {
	Auth   service.AuthService
	Cookie CookieConfig
	// Limit guards register and login; nil means no limit.
	Limit func(http.Handler) http.Handler
}

func NewAuthHandler(auth service.AuthService, cookie CookieConfig, limit func(http.Handler) http.Handler) *AuthHandler {
	return &AuthHandler{Auth: auth, Cookie: cookie, Limit: limit}
}

func (h *AuthHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		if h.Limit != nil {
			r.Use(h.Limit)
		}
		r.Post("/register", h.register)
		r.Post("/login", h.login)
	})
	r.Post("/logout", h.logout)
	return r
}

func (h *AuthHandler) register(w http.ResponseWriter, r *http.Request) {
	var in domain.RegisterRequest
	if err := decodeJSON(w, r, &in); err != nil {
		response.FromError(w, r, err)
		return
	}
	if err := h.Auth.Register(r.Context(), &in); err != nil {
		response.FromError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, map[string]string{"message": service.RegisteredMessage})
}

func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request) {
	var in domain.LoginRequest
	if err := decodeJSON(w, r, &in); err != nil {
		response.FromError(w, r, err)
		return
	}
	out, err := h.Auth.Login(r.Context(), &in)
	if err != nil {
		response.FromError(w, r, err)
		return
	}

	http.SetCookie(w, h.sessionCookie(out.Token, int(h.Cookie.TTL.Seconds())))
	response.WriteJSON(w, http.StatusOK, out)
}

func (h *AuthHandler) logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, h.sessionCookie("", -1))
	response.WriteJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully."})
}

func (h *AuthHandler) sessionCookie(value string, maxAge int) *http.Cookie {
	c := &http.Cookie{
		Name:     h.Cookie.Name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.Cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	// Cross-site cookies are only accepted when Secure is set.
	if h.Cookie.Secure {
		c.SameSite = http.SameSiteNoneMode
	}
	return c
}
