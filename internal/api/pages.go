package api

import (
	"embed"
	"html/template"
	"io/fs"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/text/message"
)

//go:embed assets/templates/*.html
var templateFS embed.FS

//go:embed assets/static/scripts.js
var scriptJS []byte

// parsePages parses the embedded templates with number formatting helpers
// bound to p.
func parsePages(p *message.Printer) (*template.Template, error) {
	funcs := template.FuncMap{
		"qty":   func(v float64) string { return p.Sprintf("%.1f", v) },
		"count": func(v int64) string { return p.Sprintf("%d", v) },
		"num":   func(v float64) string { return p.Sprintf("%.2f", v) },
		"date":  func(t time.Time) string { return t.Format("2006-01-02") },
		"secs":  func(d time.Duration) string { return p.Sprintf("%.2f", d.Seconds()) },
	}
	sub, err := fs.Sub(templateFS, "assets/templates")
	if err != nil {
		return nil, eris.Wrap(err, "api: templates")
	}
	t, err := template.New("pages").Funcs(funcs).ParseFS(sub, "*.html")
	if err != nil {
		return nil, eris.Wrap(err, "api: parse templates")
	}
	return t, nil
}

// indexPage is the data of the index template.
type indexPage struct {
	Products []string
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.pages.ExecuteTemplate(w, "index.html", indexPage{Products: s.products}); err != nil {
		respondError(w, http.StatusInternalServerError, "Error rendering page: "+err.Error())
	}
}

func (s *Server) handleScript(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/javascript; charset=utf-8")
	_, _ = w.Write(scriptJS)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleProducts(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"count":    len(s.products),
		"products": s.products,
	})
}
