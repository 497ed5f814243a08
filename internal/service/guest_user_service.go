package service

import (
	"context"
	"strings"
	"time"

	"shop-admin/internal/domain"
	"shop-admin/internal/repository"

	"go.uber.org/zap"
)

// GuestRegistration is what a device sends on first launch
type GuestRegistration struct {
	ID         string
	DeviceInfo domain.DeviceInfo
	LastSeenAt *time.Time
}

// GuestUserService defines the guest device use cases
type GuestUserService interface {
	CreateGuestUser(ctx context.Context, reg GuestRegistration) (*domain.GuestUser, error)
	FetchGuestUsers(ctx context.Context, filter domain.GuestUserFilter) ([]*domain.GuestUser, error)
	UpdateGuestUser(ctx context.Context, id string, profile domain.GuestProfile) (*domain.GuestUser, error)
}

type guestUserService struct {
	store  repository.Store
	logger *zap.Logger
	now    func() time.Time
}

// NewGuestUserService creates a new instance of GuestUserService
func NewGuestUserService(store repository.Store, logger *zap.Logger) GuestUserService {
	return &guestUserService{store: store, logger: logger, now: time.Now}
}

// CreateGuestUser registers a device. A known id fails with Conflict and the
// stored guest is left as it was.
func (s *guestUserService) CreateGuestUser(ctx context.Context, reg GuestRegistration) (*domain.GuestUser, error) {
	if strings.TrimSpace(reg.ID) == "" {
		return nil, domain.Invalid("id", "id is required")
	}

	guest := &domain.GuestUser{
		ID:         reg.ID,
		DeviceInfo: reg.DeviceInfo,
		LastSeenAt: reg.LastSeenAt,
	}
	if guest.LastSeenAt != nil {
		seen := guest.LastSeenAt.UTC()
		guest.LastSeenAt = &seen
	}

	if err := s.store.Repos().GuestUsers.Create(ctx, guest); err != nil {
		return nil, surface(s.logger, err, "Register guest failed", zap.String("guest_id", reg.ID))
	}

	s.logger.Info("Guest device registered", zap.String("guest_id", guest.ID))
	return guest, nil
}

func (s *guestUserService) FetchGuestUsers(ctx context.Context, filter domain.GuestUserFilter) ([]*domain.GuestUser, error) {
	guests, err := s.store.Repos().GuestUsers.List(ctx, filter)
	if err != nil {
		return nil, surface(s.logger, err, "Fetch guests failed")
	}
	return guests, nil
}

// UpdateGuestUser overwrites the profile fields and marks the guest as seen now
func (s *guestUserService) UpdateGuestUser(ctx context.Context, id string, profile domain.GuestProfile) (*domain.GuestUser, error) {
	if strings.TrimSpace(id) == "" {
		return nil, domain.Invalid("id", "id is required")
	}

	guest, err := s.store.Repos().GuestUsers.UpdateProfile(ctx, id, profile, s.now().UTC())
	if err != nil {
		return nil, surface(s.logger, err, "Update guest failed", zap.String("guest_id", id))
	}
	return guest, nil
}
