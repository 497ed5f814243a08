package transport

import (
	"net/http"

	"shop-admin/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// DashboardHandler serves the admin landing page
type DashboardHandler struct {
	dashboard service.DashboardService
	pages     *Pages
	logger    *zap.Logger
}

func NewDashboardHandler(dashboard service.DashboardService, pages *Pages, logger *zap.Logger) *DashboardHandler {
	return &DashboardHandler{dashboard: dashboard, pages: pages, logger: logger}
}

func (h *DashboardHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.Page)
}

func (h *DashboardHandler) Page(w http.ResponseWriter, r *http.Request) {
	summary, err := h.dashboard.Summary(r.Context())
	if err != nil {
		h.logger.Error("Render dashboard failed", zap.Error(err))
		summary = &service.DashboardSummary{}
	}
	h.pages.Render(w, r, "dashboard", map[string]any{"summary": summary})
}
