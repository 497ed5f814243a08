package transport

import (
	"net/http"
	"time"

	"shop-admin/internal/domain"
	"shop-admin/internal/middleware"
	"shop-admin/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// CreateGuestRequest is sent by a device on first launch
type CreateGuestRequest struct {
	ID         string            `json:"id" validate:"required,max=255"`
	DeviceInfo domain.DeviceInfo `json:"device_info"`
	LastSeenAt *time.Time        `json:"last_seen_at"`
}

// UpdateGuestRequest carries the profile a guest fills in at checkout
type UpdateGuestRequest struct {
	ID      string `json:"id" validate:"required"`
	Name    string `json:"name" validate:"required,max=255"`
	Email   string `json:"email" validate:"required,email,max=255"`
	Phone   string `json:"phone" validate:"required,max=50"`
	Address string `json:"address" validate:"required,max=1000"`
}

// GuestView is the public projection of a guest user
type GuestView struct {
	GuestID string  `json:"guestId"`
	Name    *string `json:"name"`
	Email   *string `json:"email"`
	Phone   *string `json:"phone"`
	Address *string `json:"address"`
}

func newGuestView(g *domain.GuestUser) GuestView {
	return GuestView{
		GuestID: g.ID,
		Name:    g.CustomerName,
		Email:   g.CustomerEmail,
		Phone:   g.CustomerPhone,
		Address: g.CustomerAddress,
	}
}

// GuestUserHandler serves the device registration API
type GuestUserHandler struct {
	guests service.GuestUserService
	logger *zap.Logger
}

// NewGuestUserHandler creates a new GuestUserHandler
func NewGuestUserHandler(guests service.GuestUserService, logger *zap.Logger) *GuestUserHandler {
	return &GuestUserHandler{guests: guests, logger: logger}
}

// RegisterRoutes mounts the guest routes on r
func (h *GuestUserHandler) RegisterRoutes(r chi.Router) {
	r.Route("/guest", func(r chi.Router) {
		r.Post("/create", h.Create)
		r.Get("/fetch", h.Fetch)
		r.Post("/update-alter", h.UpdateAlter)
	})
}

// Create registers a device. 409 when the id is already known.
func (h *GuestUserHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateGuestRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		middleware.WriteError(w, r, h.logger, err, "Error while registering device")
		return
	}

	guest, err := h.guests.CreateGuestUser(r.Context(), service.GuestRegistration{
		ID:         req.ID,
		DeviceInfo: req.DeviceInfo,
		LastSeenAt: req.LastSeenAt,
	})
	if err != nil {
		if middleware.StatusFor(err) == http.StatusConflict {
			middleware.RespondWithError(w, http.StatusConflict, "Device already registered.")
			return
		}
		middleware.WriteError(w, r, h.logger, err, "Error while registering device")
		return
	}

	middleware.RespondWithJSON(w, http.StatusCreated, "Device registered successfully.", guest)
}

// Fetch lists guests, optionally narrowed to ?id=
func (h *GuestUserHandler) Fetch(w http.ResponseWriter, r *http.Request) {
	var filter domain.GuestUserFilter
	if r.URL.Query().Has("id") {
		id := r.URL.Query().Get("id")
		filter.ID = &id
	}

	guests, err := h.guests.FetchGuestUsers(r.Context(), filter)
	if err != nil {
		middleware.WriteError(w, r, h.logger, err, "Error while fetching data")
		return
	}

	views := make([]GuestView, 0, len(guests))
	for _, g := range guests {
		views = append(views, newGuestView(g))
	}
	middleware.RespondWithJSON(w, http.StatusOK, "", views)
}

// UpdateAlter overwrites a guest's profile. 404 for an unknown id.
func (h *GuestUserHandler) UpdateAlter(w http.ResponseWriter, r *http.Request) {
	var req UpdateGuestRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		middleware.WriteError(w, r, h.logger, err, "Error while altering or updating data")
		return
	}

	guest, err := h.guests.UpdateGuestUser(r.Context(), req.ID, domain.GuestProfile{
		Name:    req.Name,
		Email:   req.Email,
		Phone:   req.Phone,
		Address: req.Address,
	})
	if err != nil {
		if middleware.StatusFor(err) == http.StatusNotFound {
			middleware.RespondWithError(w, http.StatusNotFound, "Guest user not found.")
			return
		}
		middleware.WriteError(w, r, h.logger, err, "Error while altering or updating data")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, "Guest user updated successfully.", guest)
}
