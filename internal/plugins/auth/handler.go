package auth

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/userdir/internal/apperror"
	"github.com/keyxmakerx/userdir/internal/middleware"
)

// Handler handles the authentication endpoints for both surfaces. Handlers
// are thin: bind request, call service, render response.
type Handler struct {
	service  AuthService
	sessions *SessionAuthProvider
}

// NewHandler creates a new auth handler.
func NewHandler(service AuthService, sessions *SessionAuthProvider) *Handler {
	return &Handler{service: service, sessions: sessions}
}

// --- JSON API ---

// APILogin authenticates and returns a bearer token (POST /api/auth/login).
func (h *Handler) APILogin(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}

	resp, err := h.service.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

// APIRegister creates an account and returns a bearer token
// (POST /api/auth/register).
func (h *Handler) APIRegister(c echo.Context) error {
	var req RegisterRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}

	resp, err := h.service.Register(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, resp)
}

// APIMe returns the caller's profile (GET /api/auth/me).
func (h *Handler) APIMe(c echo.Context) error {
	profile, err := h.service.Me(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, profile)
}

// --- Web ---

// LoginForm renders the login page (GET /login). ?error and ?logout select
// the banner shown above the form.
func (h *Handler) LoginForm(c echo.Context) error {
	view := LoginView{
		Email:     c.QueryParam("email"),
		CSRFToken: middleware.GetCSRFToken(c),
	}
	switch {
	case c.QueryParam("error") != "":
		view.Error = "Invalid email or password."
	case c.QueryParam("logout") != "":
		view.Notice = "You have been logged out."
	}
	return middleware.Render(c, http.StatusOK, LoginPage(view))
}

// Login handles the login form (POST /login). Any credential failure sends
// the browser back with the same generic message.
func (h *Handler) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return middleware.Redirect(c, "/login?error=true")
	}

	id, _, err := h.sessions.Login(c.Request().Context(), req.Email, req.Password, getSessionID(c))
	if err != nil {
		if apperror.SafeCode(err) == http.StatusUnauthorized {
			return middleware.Redirect(c, "/login?error=true")
		}
		return err
	}

	setSessionCookie(c, id)
	return middleware.Redirect(c, "/users")
}

// Logout destroys the session and clears the cookie (POST /logout).
func (h *Handler) Logout(c echo.Context) error {
	if id := getSessionID(c); id != "" {
		if err := h.sessions.SignOut(c.Request().Context(), id); err != nil {
			return err
		}
	}

	clearSessionCookie(c)
	return middleware.Redirect(c, "/login?logout=true")
}
