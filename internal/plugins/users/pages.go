package users

import (
	"embed"
	"html/template"
	"net/url"
	"strconv"

	"github.com/a-h/templ"

	"github.com/keyxmakerx/userdir/internal/templates/layouts"
)

//go:embed html/*.html
var pageFiles embed.FS

var pageTemplates = template.Must(template.ParseFS(pageFiles, "html/*.html"))

// ListView is the data behind the user list page.
type ListView struct {
	Page      *Page
	CSRFToken string
}

// HasPrev reports whether a previous page exists.
func (v ListView) HasPrev() bool { return v.Page.CurrentPage > 0 }

// HasNext reports whether a next page exists.
func (v ListView) HasNext() bool { return v.Page.CurrentPage+1 < v.Page.TotalPages }

// PrevURL links to the previous page, keeping the search keyword.
func (v ListView) PrevURL() string { return v.pageURL(v.Page.CurrentPage - 1) }

// NextURL links to the next page, keeping the search keyword.
func (v ListView) NextURL() string { return v.pageURL(v.Page.CurrentPage + 1) }

// DisplayPage is the 1-based page number shown to people.
func (v ListView) DisplayPage() int { return v.Page.CurrentPage + 1 }

func (v ListView) pageURL(page int) string {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("size", strconv.Itoa(v.Page.PageSize))
	if v.Page.Keyword != "" {
		q.Set("keyword", v.Page.Keyword)
	}
	return "/users?" + q.Encode()
}

// FormView is the data behind the create/edit form. ID is empty when
// creating.
type FormView struct {
	ID        string
	Name      string
	Email     string
	Errors    map[string]string
	CSRFToken string
}

// IsEdit reports whether the form edits an existing user.
func (v FormView) IsEdit() bool { return v.ID != "" }

// UserListPage renders the paged directory with search, import and export.
func UserListPage(view ListView) templ.Component {
	return layouts.Page("Users", layouts.Fragment(pageTemplates, "list.html", view))
}

// UserFormPage renders the create or edit form with inline field errors.
func UserFormPage(view FormView) templ.Component {
	title := "New user"
	if view.IsEdit() {
		title = "Edit user"
	}
	return layouts.Page(title, layouts.Fragment(pageTemplates, "form.html", view))
}
