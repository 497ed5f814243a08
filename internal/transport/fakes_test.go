package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"shop-admin/internal/domain"
	"shop-admin/internal/middleware"
	"shop-admin/internal/service"
	"shop-admin/internal/storage"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// Mock services for testing

type mockGuestService struct {
	mu     sync.Mutex
	guests map[string]*domain.GuestUser
}

func newMockGuestService() *mockGuestService {
	return &mockGuestService{guests: make(map[string]*domain.GuestUser)}
}

func (m *mockGuestService) CreateGuestUser(_ context.Context, reg service.GuestRegistration) (*domain.GuestUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.guests[reg.ID]; ok {
		return nil, domain.Conflictf("guest user %s already exists", reg.ID)
	}
	g := &domain.GuestUser{ID: reg.ID, DeviceInfo: reg.DeviceInfo, LastSeenAt: reg.LastSeenAt}
	m.guests[reg.ID] = g
	return g, nil
}

func (m *mockGuestService) FetchGuestUsers(_ context.Context, filter domain.GuestUserFilter) ([]*domain.GuestUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.GuestUser
	for id, g := range m.guests {
		if filter.ID != nil && *filter.ID != id {
			continue
		}
		out = append(out, g)
	}
	return out, nil
}

func (m *mockGuestService) UpdateGuestUser(_ context.Context, id string, p domain.GuestProfile) (*domain.GuestUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.guests[id]
	if !ok {
		return nil, domain.NotFoundf("guest user %s not found", id)
	}
	g.CustomerName, g.CustomerEmail = &p.Name, &p.Email
	g.CustomerPhone, g.CustomerAddress = &p.Phone, &p.Address
	return g, nil
}

type mockProductService struct {
	mu       sync.Mutex
	products []*domain.Product
	uploads  map[string][]byte
	lastID   string
	lastIn   service.ProductInput
	failWith error
}

func newMockProductService() *mockProductService {
	return &mockProductService{uploads: make(map[string][]byte)}
}

func (m *mockProductService) CreateProduct(_ context.Context, in service.ProductInput) (*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	m.lastIn = in
	p := &domain.Product{
		ID:       fmt.Sprintf("PRD-%03d", len(m.products)+1),
		Name:     in.Name,
		Category: in.Category,
		Price:    in.Price,
		Status:   domain.ProductAvailable,
	}
	if in.Status != "" {
		p.Status = in.Status
	}
	if in.Image != nil {
		raw, err := io.ReadAll(in.Image.Content)
		if err != nil {
			return nil, err
		}
		ref := storage.ProductImagesDir + "/" + p.ID + ".png"
		m.uploads[ref] = raw
		p.Image = &ref
	}
	m.products = append(m.products, p)
	return p, nil
}

func (m *mockProductService) AlterProduct(_ context.Context, id string, in service.ProductInput) (*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastID, m.lastIn = id, in
	for _, p := range m.products {
		if p.ID == id {
			p.Name, p.Category, p.Price = in.Name, in.Category, in.Price
			return p, nil
		}
	}
	return nil, domain.NotFoundf("product %s not found", id)
}

func (m *mockProductService) DropProduct(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, p := range m.products {
		if p.ID == id {
			m.products = append(m.products[:i], m.products[i+1:]...)
			return nil
		}
	}
	return domain.NotFoundf("product %s not found", id)
}

func (m *mockProductService) FetchProducts(_ context.Context, filter domain.ProductFilter) ([]*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Product
	for _, p := range m.products {
		if filter.ID != nil && *filter.ID != p.ID {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

type mockOrderService struct {
	mu       sync.Mutex
	orders   map[string]*domain.Order
	lastIn   service.CheckoutInput
	lastNote string
}

func newMockOrderService() *mockOrderService {
	return &mockOrderService{orders: make(map[string]*domain.Order)}
}

func (m *mockOrderService) CreateOrder(_ context.Context, in service.CheckoutInput) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastIn = in
	if in.GuestUserID == "missing" {
		return nil, domain.NotFoundf("guest user %s not found", in.GuestUserID)
	}
	o := &domain.Order{
		ID:          fmt.Sprintf("ORD-%03d", len(m.orders)+1),
		GuestUserID: in.GuestUserID,
		TotalPrice:  in.TotalPrice,
		Status:      domain.OrderPending,
	}
	m.orders[o.ID] = o
	return o, nil
}

func (m *mockOrderService) FetchOrders(_ context.Context, status *domain.OrderStatus) ([]*domain.OrderSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*domain.OrderSummary{}
	for _, o := range m.orders {
		if status != nil && o.Status != *status {
			continue
		}
		out = append(out, &domain.OrderSummary{OrderID: o.ID, Customer: o.GuestUserID, TotalPrice: o.TotalPrice, Status: o.Status})
	}
	return out, nil
}

func (m *mockOrderService) move(id string, next domain.OrderStatus) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, domain.NotFoundf("order %s not found", id)
	}
	if !o.Status.CanTransitionTo(next) {
		return nil, domain.InvalidTransition(id, o.Status, next)
	}
	o.Status = next
	return o, nil
}

func (m *mockOrderService) AcceptOrder(_ context.Context, id string) (*domain.Order, error) {
	return m.move(id, domain.OrderProcessing)
}

func (m *mockOrderService) CompleteOrder(_ context.Context, id string) (*domain.Order, error) {
	return m.move(id, domain.OrderCompleted)
}

func (m *mockOrderService) RejectOrder(_ context.Context, id, reason string) (*domain.Order, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, domain.Invalid("reason", "a reason is required to reject an order")
	}
	m.mu.Lock()
	m.lastNote = reason
	m.mu.Unlock()
	return m.move(id, domain.OrderCanceled)
}

type mockDashboardService struct {
	summary *service.DashboardSummary
}

func (m mockDashboardService) Summary(context.Context) (*service.DashboardSummary, error) {
	return m.summary, nil
}

// testApp mounts every handler on one router the way the server does,
// minus authentication.
type testApp struct {
	router    chi.Router
	guests    *mockGuestService
	products  *mockProductService
	orders    *mockOrderService
	dashboard mockDashboardService
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	logger := zap.NewNop()
	app := &testApp{
		guests:   newMockGuestService(),
		products: newMockProductService(),
		orders:   newMockOrderService(),
		dashboard: mockDashboardService{summary: &service.DashboardSummary{
			Products: 3,
			Guests:   2,
			Orders:   map[domain.OrderStatus]int{domain.OrderPending: 1},
		}},
	}

	assets := storage.NewWithFs(afero.NewMemMapFs(), "http://shop.test/storage")
	pages := NewPages("Shop Admin", "/build", "v-test", logger)

	r := chi.NewRouter()
	r.Use(middleware.SocketID)
	r.Route("/api", func(r chi.Router) {
		NewGuestUserHandler(app.guests, logger).RegisterRoutes(r)
		NewOrderHandler(app.orders, pages, logger).RegisterPublicRoutes(r)
		NewProductHandler(app.products, assets, pages, logger).RegisterPublicRoutes(r)
	})
	r.Group(func(r chi.Router) {
		NewDashboardHandler(app.dashboard, pages, logger).RegisterRoutes(r)
		NewProductHandler(app.products, assets, pages, logger).RegisterAdminRoutes(r)
		NewOrderHandler(app.orders, pages, logger).RegisterAdminRoutes(r)
	})
	app.router = r
	return app
}

func (a *testApp) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

// apiRequest builds a JSON request from an API client
func apiRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rd = strings.NewReader(string(raw))
	}
	req := httptest.NewRequest(method, target, rd)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return req
}

type envelope struct {
	Success bool                `json:"success"`
	Message string              `json:"message"`
	Data    json.RawMessage     `json:"data"`
	Errors  []domain.FieldError `json:"errors"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env
}

func seedProduct(m *mockProductService, image string) *domain.Product {
	p := &domain.Product{
		ID:        fmt.Sprintf("PRD-%03d", len(m.products)+1),
		Name:      "Margherita",
		Category:  "Pizza",
		Price:     decimal.RequireFromString("9.50"),
		Status:    domain.ProductAvailable,
		CreatedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		UpdatedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	if image != "" {
		p.Image = &image
	}
	m.products = append(m.products, p)
	return p
}
