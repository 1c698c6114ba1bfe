package layouts

import (
	"context"
	"embed"
	"html/template"
	"io"
	"net/http"

	"github.com/a-h/templ"
)

//go:embed html/*.html
var files embed.FS

var shell = template.Must(template.ParseFS(files, "html/*.html"))

// shellData is what html/base.html sees.
type shellData struct {
	Title         string
	Body          template.HTML
	Authenticated bool
	UserName      string
	UserEmail     string
	CSRFToken     string
	FlashSuccess  string
	FlashError    string
	ActivePath    string
}

// Page wraps body in the application shell: head, navigation bar, flash
// messages and the CSRF meta tag. Layout data is read from ctx.
func Page(title string, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		inner, err := templ.ToGoHTML(ctx, body)
		if err != nil {
			return err
		}
		return shell.ExecuteTemplate(w, "base.html", shellData{
			Title:         title,
			Body:          inner,
			Authenticated: IsAuthenticated(ctx),
			UserName:      GetUserName(ctx),
			UserEmail:     GetUserEmail(ctx),
			CSRFToken:     GetCSRFToken(ctx),
			FlashSuccess:  GetFlashSuccess(ctx),
			FlashError:    GetFlashError(ctx),
			ActivePath:    GetActivePath(ctx),
		})
	})
}

// Fragment renders the named template of t with data. Plugins use it to
// build page bodies from their own embedded templates.
func Fragment(t *template.Template, name string, data any) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		return t.ExecuteTemplate(w, name, data)
	})
}

// ErrorPage renders a full error page for the given status code.
func ErrorPage(code int, message string) templ.Component {
	body := Fragment(shell, "error.html", struct {
		Code    int
		Status  string
		Message string
	}{code, http.StatusText(code), message})
	return Page(http.StatusText(code), body)
}
