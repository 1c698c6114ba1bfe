package users

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/userdir/internal/apperror"
	"github.com/keyxmakerx/userdir/internal/middleware"
)

// maxImportBytes caps the size of an uploaded CSV file.
const maxImportBytes = 5 << 20

// exportFilename is the attachment name of GET /users/export.
const exportFilename = "users_export.csv"

// Handler handles HTTP requests for the directory. Handlers are thin:
// bind request, call service, render response. No business logic lives here.
type Handler struct {
	service UserService
}

// NewHandler creates a new users handler.
func NewHandler(service UserService) *Handler {
	return &Handler{service: service}
}

// pagingParams reads page, size and keyword from the query string.
func pagingParams(c echo.Context) (page, size int, keyword string) {
	page, _ = strconv.Atoi(c.QueryParam("page"))
	size, _ = strconv.Atoi(c.QueryParam("size"))
	return page, size, c.QueryParam("keyword")
}

// --- JSON API ---

// ListAPI returns one page of users (GET /api/users?page&size&keyword).
func (h *Handler) ListAPI(c echo.Context) error {
	page, size, keyword := pagingParams(c)
	result, err := h.service.List(c.Request().Context(), page, size, keyword)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

// SearchAPI searches users by name or email
// (GET /api/users/search?keyword&page&size).
func (h *Handler) SearchAPI(c echo.Context) error {
	page, size, keyword := pagingParams(c)
	if keyword == "" {
		return apperror.NewValidation("keyword is required", map[string]string{"keyword": "keyword is required"})
	}
	result, err := h.service.List(c.Request().Context(), page, size, keyword)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

// GetAPI returns a single user (GET /api/users/:id).
func (h *Handler) GetAPI(c echo.Context) error {
	user, err := h.service.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, user)
}

// CreateAPI creates a user (POST /api/users).
func (h *Handler) CreateAPI(c echo.Context) error {
	var req UserRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}

	user, err := h.service.Create(c.Request().Context(), CreateInput(req))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, user)
}

// UpdateAPI updates a user (PUT /api/users/:id). An empty password keeps
// the current one.
func (h *Handler) UpdateAPI(c echo.Context) error {
	var req UserRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}

	user, err := h.service.Update(c.Request().Context(), c.Param("id"), UpdateInput(req))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, user)
}

// DeleteAPI deletes a user (DELETE /api/users/:id).
func (h *Handler) DeleteAPI(c echo.Context) error {
	if err := h.service.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "user deleted"})
}

// --- Web pages ---

// Index renders the user list page (GET /users).
func (h *Handler) Index(c echo.Context) error {
	page, size, keyword := pagingParams(c)
	result, err := h.service.List(c.Request().Context(), page, size, keyword)
	if err != nil {
		return err
	}

	return middleware.Render(c, http.StatusOK, UserListPage(ListView{
		Page:      result,
		CSRFToken: middleware.GetCSRFToken(c),
	}))
}

// NewForm renders the empty creation form (GET /users/new).
func (h *Handler) NewForm(c echo.Context) error {
	return middleware.Render(c, http.StatusOK, UserFormPage(FormView{
		CSRFToken: middleware.GetCSRFToken(c),
	}))
}

// EditForm renders the edit form for an existing user (GET /users/edit/:id).
func (h *Handler) EditForm(c echo.Context) error {
	user, err := h.service.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		if apperror.IsNotFound(err) {
			middleware.SetFlash(c, middleware.FlashError, "User not found.")
			return middleware.Redirect(c, "/users")
		}
		return err
	}

	return middleware.Render(c, http.StatusOK, UserFormPage(FormView{
		ID:        user.ID,
		Name:      user.Name,
		Email:     user.Email,
		CSRFToken: middleware.GetCSRFToken(c),
	}))
}

// Save creates or updates a user from the form (POST /users/save). Field
// errors re-render the form inline.
func (h *Handler) Save(c echo.Context) error {
	var req UserRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid form submission")
	}
	id := c.FormValue("id")
	ctx := c.Request().Context()

	var err error
	if id == "" {
		_, err = h.service.Create(ctx, CreateInput(req))
	} else {
		_, err = h.service.Update(ctx, id, UpdateInput(req))
	}

	var appErr *apperror.AppError
	if errors.As(err, &appErr) && appErr.Fields != nil {
		return middleware.Render(c, http.StatusUnprocessableEntity, UserFormPage(FormView{
			ID:        id,
			Name:      req.Name,
			Email:     req.Email,
			Errors:    appErr.Fields,
			CSRFToken: middleware.GetCSRFToken(c),
		}))
	}
	if apperror.IsNotFound(err) {
		middleware.SetFlash(c, middleware.FlashError, "User not found.")
		return middleware.Redirect(c, "/users")
	}
	if err != nil {
		return err
	}

	if id == "" {
		middleware.SetFlash(c, middleware.FlashSuccess, "User created.")
	} else {
		middleware.SetFlash(c, middleware.FlashSuccess, "User updated.")
	}
	return middleware.Redirect(c, "/users")
}

// Delete removes a user from the list page (POST /users/delete/:id).
func (h *Handler) Delete(c echo.Context) error {
	err := h.service.Delete(c.Request().Context(), c.Param("id"))
	switch {
	case apperror.IsNotFound(err):
		middleware.SetFlash(c, middleware.FlashError, "User not found.")
	case err != nil:
		return err
	default:
		middleware.SetFlash(c, middleware.FlashSuccess, "User deleted.")
	}
	return middleware.Redirect(c, "/users")
}

// Import creates users from an uploaded CSV file (POST /users/import).
func (h *Handler) Import(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		middleware.SetFlash(c, middleware.FlashError, "Please choose a CSV file to import.")
		return middleware.Redirect(c, "/users")
	}
	if fh.Size > maxImportBytes {
		middleware.SetFlash(c, middleware.FlashError, "The CSV file is too large.")
		return middleware.Redirect(c, "/users")
	}

	f, err := fh.Open()
	if err != nil {
		return apperror.NewInternal(fmt.Errorf("opening upload: %w", err))
	}
	defer f.Close()

	result, err := h.service.Import(c.Request().Context(), f)
	if err != nil {
		if apperror.SafeCode(err) < http.StatusInternalServerError {
			middleware.SetFlash(c, middleware.FlashError, apperror.SafeMessage(err))
			return middleware.Redirect(c, "/users")
		}
		return err
	}

	middleware.SetFlash(c, middleware.FlashSuccess,
		fmt.Sprintf("Imported %d users (%d skipped).", len(result.Imported), result.Skipped))
	return middleware.Redirect(c, "/users")
}

// Export downloads every user as CSV (GET /users/export).
func (h *Handler) Export(c echo.Context) error {
	var buf bytes.Buffer
	if err := h.service.Export(c.Request().Context(), &buf); err != nil {
		return err
	}

	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf("attachment; filename=%q", exportFilename))
	return c.Blob(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}
