package service

import (
	"context"

	"shop-admin/internal/domain"
	"shop-admin/internal/repository"

	"go.uber.org/zap"
)

// DashboardSummary is the landing page of the admin panel
type DashboardSummary struct {
	Products int                        `json:"products"`
	Guests   int                        `json:"guests"`
	Orders   map[domain.OrderStatus]int `json:"orders"`
}

// DashboardService aggregates counts for the admin landing page
type DashboardService interface {
	Summary(ctx context.Context) (*DashboardSummary, error)
}

type dashboardService struct {
	store  repository.Store
	logger *zap.Logger
}

// NewDashboardService creates a new instance of DashboardService
func NewDashboardService(store repository.Store, logger *zap.Logger) DashboardService {
	return &dashboardService{store: store, logger: logger}
}

func (s *dashboardService) Summary(ctx context.Context) (*DashboardSummary, error) {
	repos := s.store.Repos()

	products, err := repos.Products.Count(ctx)
	if err != nil {
		return nil, surface(s.logger, err, "Dashboard product count failed")
	}
	guests, err := repos.GuestUsers.Count(ctx)
	if err != nil {
		return nil, surface(s.logger, err, "Dashboard guest count failed")
	}
	orders, err := repos.Orders.CountByStatus(ctx)
	if err != nil {
		return nil, surface(s.logger, err, "Dashboard order count failed")
	}

	return &DashboardSummary{Products: products, Guests: guests, Orders: orders}, nil
}
