package views

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"path/filepath"
	"strings"
)

//go:embed *.html partials/*.html
var templatesFS embed.FS

// standalone pages are rendered without the layout.
var standalone = map[string]bool{"login": true}

var funcs = template.FuncMap{
	"add":   func(a, b int) int { return a + b },
	"lower": strings.ToLower,
	"title": func(s string) string {
		if s == "" {
			return s
		}
		return strings.ToUpper(s[:1]) + s[1:]
	},
}

type Engine struct {
	templates map[string]*template.Template
	partials  *template.Template
}

func New() (*Engine, error) {
	e := &Engine{
		templates: make(map[string]*template.Template),
	}

	// Partials are shared by every page and rendered alone for htmx
	partials, err := template.New("partials").Funcs(funcs).ParseFS(templatesFS, "partials/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse partials: %w", err)
	}
	e.partials = partials

	base, err := partials.Clone()
	if err != nil {
		return nil, err
	}
	layoutTmpl, err := base.ParseFS(templatesFS, "layout.html")
	if err != nil {
		return nil, fmt.Errorf("parse layout: %w", err)
	}

	entries, err := fs.ReadDir(templatesFS, ".")
	if err != nil {
		return nil, err
	}

	for _, entry := range entries {
		if entry.IsDir() || entry.Name() == "layout.html" {
			continue
		}

		name := entry.Name()
		baseName := name[:len(name)-len(filepath.Ext(name))]

		var tmpl *template.Template
		if standalone[baseName] {
			tmpl, err = partials.Clone()
		} else {
			// Clone layout and parse page template
			tmpl, err = layoutTmpl.Clone()
		}
		if err != nil {
			return nil, err
		}

		if _, err := tmpl.ParseFS(templatesFS, name); err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}

		e.templates[baseName] = tmpl
	}

	return e, nil
}

// Render writes a full page.
func (e *Engine) Render(w io.Writer, name string, data any) error {
	tmpl, ok := e.templates[name]
	if !ok {
		return fmt.Errorf("template %q not found", name)
	}
	if standalone[name] {
		return tmpl.ExecuteTemplate(w, name, data)
	}
	return tmpl.ExecuteTemplate(w, "layout", data)
}

// RenderPartial renders a template without layout (for HTMX responses)
func (e *Engine) RenderPartial(w io.Writer, name string, data any) error {
	if e.partials.Lookup(name) == nil {
		return fmt.Errorf("partial %q not found", name)
	}
	return e.partials.ExecuteTemplate(w, name, data)
}
