package transport

import (
	_ "embed"
	"encoding/json"
	"html/template"
	"net/http"

	"shop-admin/internal/middleware"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

//go:embed templates/app.html
var appShell string

var appTemplate = template.Must(template.New("app").Parse(appShell))

// Page is the object a client-side router needs to mount a screen
type Page struct {
	Component string         `json:"component"`
	Props     map[string]any `json:"props"`
	URL       string         `json:"url"`
	Version   string         `json:"version"`
}

// Pages renders admin screens either as JSON for in-app navigation or inside
// the HTML shell on a full page load.
type Pages struct {
	title    string
	assetURL string
	version  string
	logger   *zap.Logger
}

// NewPages creates a page renderer. assetURL is where the bundled frontend
// is served from and version changes whenever that bundle does.
func NewPages(title, assetURL, version string, logger *zap.Logger) *Pages {
	return &Pages{title: title, assetURL: assetURL, version: version, logger: logger}
}

// Render writes component with props. Any pending flash message is consumed
// and added to the props.
func (p *Pages) Render(w http.ResponseWriter, r *http.Request, component string, props map[string]any) {
	if props == nil {
		props = map[string]any{}
	}
	props["flash"] = popFlash(w, r)

	page := Page{
		Component: component,
		Props:     props,
		URL:       r.URL.RequestURI(),
		Version:   p.version,
	}

	w.Header().Set("Vary", middleware.InertiaHeader)
	if r.Header.Get(middleware.InertiaHeader) == "true" {
		w.Header().Set(middleware.InertiaHeader, "true")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(page)
		return
	}

	raw, err := json.Marshal(page)
	if err != nil {
		p.logger.Error("Failed to encode page", zap.Error(err), zap.String("component", component))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err = appTemplate.Execute(w, struct {
		Title    string
		AssetURL string
		PageJSON string
	}{p.title, p.assetURL, string(raw)})
	if err != nil {
		p.logger.Error("Failed to render page shell", zap.Error(errors.Wrap(err, "executing app template")))
	}
}
