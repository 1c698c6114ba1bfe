package users

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes sets up the directory's JSON API and web pages. The
// authorization filter guards both: /api/users requires a bearer token and
// /users requires a browser session.
func RegisterRoutes(e *echo.Echo, h *Handler) {
	api := e.Group("/api/users")
	api.GET("", h.ListAPI)
	api.GET("/search", h.SearchAPI)
	api.GET("/:id", h.GetAPI)
	api.POST("", h.CreateAPI)
	api.PUT("/:id", h.UpdateAPI)
	api.DELETE("/:id", h.DeleteAPI)

	web := e.Group("/users")
	web.GET("", h.Index)
	web.GET("/new", h.NewForm)
	web.GET("/edit/:id", h.EditForm)
	web.POST("/save", h.Save)
	web.POST("/delete/:id", h.Delete)
	web.POST("/import", h.Import)
	web.GET("/export", h.Export)
}
