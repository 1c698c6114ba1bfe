package auth

import (
	"embed"
	"html/template"

	"github.com/a-h/templ"

	"github.com/keyxmakerx/userdir/internal/templates/layouts"
)

//go:embed html/*.html
var pageFiles embed.FS

var pageTemplates = template.Must(template.ParseFS(pageFiles, "html/*.html"))

// LoginView is the data behind the login page.
type LoginView struct {
	Email     string
	Error     string
	Notice    string
	CSRFToken string
}

// LoginPage renders the login form.
func LoginPage(view LoginView) templ.Component {
	return layouts.Page("Log in", layouts.Fragment(pageTemplates, "login.html", view))
}
