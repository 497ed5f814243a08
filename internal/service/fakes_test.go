package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"shop-admin/internal/domain"
	"shop-admin/internal/repository"

	"github.com/cockroachdb/errors"
)

// memState is the whole in-memory database behind fakeStore
type memState struct {
	guests   map[string]*domain.GuestUser
	products map[string]*domain.Product
	orders   map[string]*domain.Order
	events   []*domain.Event
	counters map[string]int64
}

func newMemState() *memState {
	return &memState{
		guests:   map[string]*domain.GuestUser{},
		products: map[string]*domain.Product{},
		orders:   map[string]*domain.Order{},
		counters: map[string]int64{},
	}
}

func (s *memState) clone() *memState {
	c := newMemState()
	for k, v := range s.guests {
		g := *v
		c.guests[k] = &g
	}
	for k, v := range s.products {
		p := *v
		c.products[k] = &p
	}
	for k, v := range s.orders {
		o := *v
		o.Lines = make([]*domain.OrderedProduct, len(v.Lines))
		for i, l := range v.Lines {
			line := *l
			o.Lines[i] = &line
		}
		c.orders[k] = &o
	}
	c.events = append(c.events, s.events...)
	for k, v := range s.counters {
		c.counters[k] = v
	}
	return c
}

func (s *memState) next(kind string) int64 {
	s.counters[kind]++
	return s.counters[kind]
}

// fakeStore mimics repository.Store: a failing WithinTx leaves the state as
// it was before the call.
type fakeStore struct {
	mu    sync.Mutex
	state *memState
	// failOutbox makes Append fail, to exercise rollback
	failOutbox bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{state: newMemState()}
}

func (f *fakeStore) repos() *repository.Repositories {
	return &repository.Repositories{
		GuestUsers: &memGuests{f},
		Products:   &memProducts{f},
		Orders:     &memOrders{f},
		Outbox:     &memOutbox{f},
	}
}

func (f *fakeStore) Repos() *repository.Repositories { return f.repos() }

func (f *fakeStore) WithinTx(ctx context.Context, fn func(ctx context.Context, repos *repository.Repositories) error) error {
	f.mu.Lock()
	snapshot := f.state.clone()
	f.mu.Unlock()

	if err := fn(ctx, f.repos()); err != nil {
		f.mu.Lock()
		f.state = snapshot
		f.mu.Unlock()
		return err
	}
	return nil
}

func (f *fakeStore) eventNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.state.events))
	for _, e := range f.state.events {
		names = append(names, e.Name)
	}
	return names
}

func (f *fakeStore) lastEvent() *domain.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.state.events) == 0 {
		return nil
	}
	return f.state.events[len(f.state.events)-1]
}

type memGuests struct{ f *fakeStore }

func (m *memGuests) Create(ctx context.Context, guest *domain.GuestUser) error {
	m.f.mu.Lock()
	defer m.f.mu.Unlock()
	if _, ok := m.f.state.guests[guest.ID]; ok {
		return repository.ErrGuestUserExists
	}
	now := time.Now().UTC()
	guest.CreatedAt, guest.UpdatedAt = now, now
	g := *guest
	m.f.state.guests[guest.ID] = &g
	return nil
}

func (m *memGuests) FindByID(ctx context.Context, id string) (*domain.GuestUser, error) {
	m.f.mu.Lock()
	defer m.f.mu.Unlock()
	g, ok := m.f.state.guests[id]
	if !ok {
		return nil, repository.ErrGuestUserNotFound
	}
	out := *g
	return &out, nil
}

func (m *memGuests) List(ctx context.Context, filter domain.GuestUserFilter) ([]*domain.GuestUser, error) {
	m.f.mu.Lock()
	defer m.f.mu.Unlock()
	var out []*domain.GuestUser
	for _, g := range m.f.state.guests {
		if filter.ID != nil && g.ID != *filter.ID {
			continue
		}
		c := *g
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memGuests) UpdateProfile(ctx context.Context, id string, profile domain.GuestProfile, seenAt time.Time) (*domain.GuestUser, error) {
	m.f.mu.Lock()
	defer m.f.mu.Unlock()
	g, ok := m.f.state.guests[id]
	if !ok {
		return nil, repository.ErrGuestUserNotFound
	}
	g.CustomerName = &profile.Name
	g.CustomerEmail = &profile.Email
	g.CustomerPhone = &profile.Phone
	g.CustomerAddress = &profile.Address
	g.LastSeenAt = &seenAt
	g.UpdatedAt = seenAt
	out := *g
	return &out, nil
}

func (m *memGuests) Count(ctx context.Context) (int, error) {
	m.f.mu.Lock()
	defer m.f.mu.Unlock()
	return len(m.f.state.guests), nil
}

type memProducts struct{ f *fakeStore }

func (m *memProducts) Create(ctx context.Context, product *domain.Product) error {
	m.f.mu.Lock()
	defer m.f.mu.Unlock()
	product.ID = fmt.Sprintf("PRD-%03d", m.f.state.next("products"))
	now := time.Now().UTC()
	product.CreatedAt, product.UpdatedAt = now, now
	p := *product
	m.f.state.products[p.ID] = &p
	return nil
}

func (m *memProducts) Update(ctx context.Context, product *domain.Product) error {
	m.f.mu.Lock()
	defer m.f.mu.Unlock()
	if _, ok := m.f.state.products[product.ID]; !ok {
		return repository.ErrProductNotFound
	}
	product.UpdatedAt = time.Now().UTC()
	p := *product
	m.f.state.products[p.ID] = &p
	return nil
}

func (m *memProducts) Delete(ctx context.Context, id string) error {
	m.f.mu.Lock()
	defer m.f.mu.Unlock()
	if _, ok := m.f.state.products[id]; !ok {
		return repository.ErrProductNotFound
	}
	delete(m.f.state.products, id)
	for _, o := range m.f.state.orders {
		kept := o.Lines[:0]
		for _, l := range o.Lines {
			if l.ProductID != id {
				kept = append(kept, l)
			}
		}
		o.Lines = kept
	}
	return nil
}

func (m *memProducts) FindByID(ctx context.Context, id string) (*domain.Product, error) {
	m.f.mu.Lock()
	defer m.f.mu.Unlock()
	p, ok := m.f.state.products[id]
	if !ok {
		return nil, repository.ErrProductNotFound
	}
	out := *p
	return &out, nil
}

func (m *memProducts) FindByIDs(ctx context.Context, ids []string) (map[string]*domain.Product, error) {
	m.f.mu.Lock()
	defer m.f.mu.Unlock()
	out := make(map[string]*domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := m.f.state.products[id]; ok {
			c := *p
			out[id] = &c
		}
	}
	return out, nil
}

func (m *memProducts) List(ctx context.Context, filter domain.ProductFilter) ([]*domain.Product, error) {
	m.f.mu.Lock()
	defer m.f.mu.Unlock()
	var out []*domain.Product
	for _, p := range m.f.state.products {
		if filter.Search != nil {
			q := strings.ToLower(*filter.Search)
			if !strings.Contains(strings.ToLower(p.Name), q) && !strings.Contains(strings.ToLower(p.Category), q) {
				continue
			}
		}
		if filter.ID != nil && p.ID != *filter.ID {
			continue
		}
		if filter.Status != nil && p.Status != *filter.Status {
			continue
		}
		if filter.Category != nil && p.Category != *filter.Category {
			continue
		}
		c := *p
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *memProducts) Count(ctx context.Context) (int, error) {
	m.f.mu.Lock()
	defer m.f.mu.Unlock()
	return len(m.f.state.products), nil
}

type memOrders struct{ f *fakeStore }

func (m *memOrders) Create(ctx context.Context, order *domain.Order) error {
	if len(order.Lines) == 0 {
		return domain.Invalid("products", "an order needs at least one line")
	}
	m.f.mu.Lock()
	defer m.f.mu.Unlock()
	if _, ok := m.f.state.guests[order.GuestUserID]; !ok {
		return domain.NotFoundf("guest user %s not found", order.GuestUserID)
	}
	order.ID = fmt.Sprintf("ORD-%03d", m.f.state.next("orders"))
	if order.Status == "" {
		order.Status = domain.OrderPending
	}
	now := time.Now().UTC()
	order.CreatedAt, order.UpdatedAt = now, now
	for _, l := range order.Lines {
		if _, ok := m.f.state.products[l.ProductID]; !ok {
			return domain.NotFoundf("product %s not found", l.ProductID)
		}
		l.ID = fmt.Sprintf("ORDPRD-%03d", m.f.state.next("ordered_products"))
		l.OrderID = order.ID
		l.CreatedAt, l.UpdatedAt = now, now
	}
	stored := *order
	stored.Lines = make([]*domain.OrderedProduct, len(order.Lines))
	for i, l := range order.Lines {
		line := *l
		stored.Lines[i] = &line
	}
	m.f.state.orders[order.ID] = &stored
	return nil
}

func (m *memOrders) FindByID(ctx context.Context, id string) (*domain.Order, error) {
	m.f.mu.Lock()
	defer m.f.mu.Unlock()
	o, ok := m.f.state.orders[id]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	out := *o
	out.Lines = nil
	return &out, nil
}

func (m *memOrders) FindByIDForUpdate(ctx context.Context, id string) (*domain.Order, error) {
	return m.FindByID(ctx, id)
}

func (m *memOrders) Lines(ctx context.Context, orderID string) ([]*domain.OrderedProduct, error) {
	m.f.mu.Lock()
	defer m.f.mu.Unlock()
	o, ok := m.f.state.orders[orderID]
	if !ok {
		return nil, nil
	}
	out := make([]*domain.OrderedProduct, len(o.Lines))
	for i, l := range o.Lines {
		c := *l
		out[i] = &c
	}
	return out, nil
}

func (m *memOrders) ListSummaries(ctx context.Context, status *domain.OrderStatus) ([]*domain.OrderSummary, error) {
	m.f.mu.Lock()
	defer m.f.mu.Unlock()
	var out []*domain.OrderSummary
	for _, o := range m.f.state.orders {
		if status != nil && o.Status != *status {
			continue
		}
		var name string
		if g, ok := m.f.state.guests[o.GuestUserID]; ok {
			name = g.Name()
		}
		out = append(out, &domain.OrderSummary{
			OrderID:    o.ID,
			Customer:   name,
			TotalPrice: o.TotalPrice,
			Status:     o.Status,
			CreatedAt:  o.CreatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderID > out[j].OrderID })
	return out, nil
}

func (m *memOrders) UpdateStatus(ctx context.Context, order *domain.Order) error {
	m.f.mu.Lock()
	defer m.f.mu.Unlock()
	o, ok := m.f.state.orders[order.ID]
	if !ok {
		return repository.ErrOrderNotFound
	}
	o.Status = order.Status
	o.UpdatedAt = time.Now().UTC()
	order.UpdatedAt = o.UpdatedAt
	return nil
}

func (m *memOrders) UpdateLineStatus(ctx context.Context, orderID string, status domain.OrderStatus, reason *string) error {
	m.f.mu.Lock()
	defer m.f.mu.Unlock()
	o, ok := m.f.state.orders[orderID]
	if !ok {
		return repository.ErrOrderNotFound
	}
	for _, l := range o.Lines {
		l.Status = status
		if reason != nil {
			r := *reason
			l.ReasonOfCancelation = &r
		}
	}
	return nil
}

func (m *memOrders) CountByStatus(ctx context.Context) (map[domain.OrderStatus]int, error) {
	m.f.mu.Lock()
	defer m.f.mu.Unlock()
	counts := make(map[domain.OrderStatus]int, len(domain.OrderStatuses))
	for _, st := range domain.OrderStatuses {
		counts[st] = 0
	}
	for _, o := range m.f.state.orders {
		counts[o.Status]++
	}
	return counts, nil
}

type memOutbox struct{ f *fakeStore }

func (m *memOutbox) Append(ctx context.Context, event *domain.Event) error {
	m.f.mu.Lock()
	defer m.f.mu.Unlock()
	if m.f.failOutbox {
		return errors.New("outbox unavailable")
	}
	event.ID = int64(len(m.f.state.events) + 1)
	e := *event
	m.f.state.events = append(m.f.state.events, &e)
	return nil
}

func (m *memOutbox) ClaimBatch(ctx context.Context, limit int, lease time.Duration) ([]*domain.Event, error) {
	return nil, nil
}

func (m *memOutbox) MarkPublished(ctx context.Context, id int64) error { return nil }

func (m *memOutbox) MarkRetry(ctx context.Context, id int64, cause error, availableAt time.Time) error {
	return nil
}

func (m *memOutbox) MarkFailed(ctx context.Context, id int64, cause error) error { return nil }

func (m *memOutbox) PruneDelivered(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

func (m *memOutbox) CountPending(ctx context.Context) (int, error) {
	m.f.mu.Lock()
	defer m.f.mu.Unlock()
	return len(m.f.state.events), nil
}

// countingNotifier records how often services kick the dispatcher
type countingNotifier struct {
	mu sync.Mutex
	n  int
}

func (c *countingNotifier) Notify() {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}

func (c *countingNotifier) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}
