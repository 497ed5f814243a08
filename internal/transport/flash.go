package transport

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"

	"shop-admin/internal/domain"
	"shop-admin/internal/middleware"
)

const flashCookie = "flash"

// Flash is a one-shot message carried across a redirect
type Flash struct {
	Success string              `json:"success,omitempty"`
	Error   string              `json:"error,omitempty"`
	Errors  []domain.FieldError `json:"errors,omitempty"`
}

func setFlash(w http.ResponseWriter, f Flash) {
	raw, err := json.Marshal(f)
	if err != nil {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookie,
		Value:    base64.RawURLEncoding.EncodeToString(raw),
		Path:     "/",
		MaxAge:   60,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// popFlash returns the pending flash, if any, and clears the cookie
func popFlash(w http.ResponseWriter, r *http.Request) *Flash {
	c, err := r.Cookie(flashCookie)
	if err != nil || c.Value == "" {
		return nil
	}
	http.SetCookie(w, &http.Cookie{Name: flashCookie, Value: "", Path: "/", MaxAge: -1})

	raw, err := base64.RawURLEncoding.DecodeString(c.Value)
	if err != nil {
		return nil
	}
	var f Flash
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil
	}
	return &f
}

// wantsJSON reports whether the caller is an API client rather than a page
func wantsJSON(r *http.Request) bool {
	if r.Header.Get(middleware.InertiaHeader) == "true" {
		return false
	}
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

// redirectBack sends the browser to the page it came from, or to fallback
// when no same-site referrer is known.
func redirectBack(w http.ResponseWriter, r *http.Request, fallback string, f Flash) {
	setFlash(w, f)
	target := fallback
	if ref := r.Referer(); ref != "" && sameHost(r, ref) {
		target = ref
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func sameHost(r *http.Request, ref string) bool {
	if strings.HasPrefix(ref, "/") && !strings.HasPrefix(ref, "//") {
		return true
	}
	for _, scheme := range []string{"http://", "https://"} {
		if rest, ok := strings.CutPrefix(ref, scheme); ok {
			host, _, _ := strings.Cut(rest, "/")
			return host == r.Host
		}
	}
	return false
}
