package server

import (
	"embed"
	"html/template"
	"net/http"

	"github.com/jrsteele09/go-auth-core/oauthmodel"
)

//go:embed templates/*.html
var templateFiles embed.FS

func parseTemplates() (*template.Template, error) {
	return template.ParseFS(templateFiles, "templates/*.html")
}

// renderTemplate writes the named page. html/template escapes every value,
// including the error text and the echoed email.
func (s *Server) renderTemplate(w http.ResponseWriter, status int, name string, data any) {
	w.Header().Set("Content-Type", contentTypeHTML)
	w.WriteHeader(status)
	if err := s.templates.ExecuteTemplate(w, name, data); err != nil {
		s.log.Error().Err(err).Str("template", name).Msg("render template failed")
	}
}

type errorPageData struct {
	Title       string
	Code        string
	Description string
}

// renderErrorPage shows an authorization error to the user when it cannot be
// sent to the client's redirect URI.
func (s *Server) renderErrorPage(w http.ResponseWriter, err error) {
	pe := oauthmodel.FromError(err)
	s.renderTemplate(w, pe.StatusCode(), "error.html", errorPageData{
		Title:       s.config.GetAppName(),
		Code:        string(pe.Code),
		Description: pe.Description,
	})
}
