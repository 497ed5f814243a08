package transport

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"shop-admin/internal/domain"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckout_CreatesOrder(t *testing.T) {
	app := newTestApp(t)

	rec := app.do(apiRequest(t, http.MethodPost, "/api/orders/order-checkout", map[string]any{
		"guestUserId": "device-1",
		"totalPrice":  "19.00",
		"products": []map[string]any{
			{"productId": "PRD-001", "quantity": 2},
			{"productId": "PRD-002", "quantity": 1},
		},
	}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	env := decodeEnvelope(t, rec)
	assert.Equal(t, "Order created successfully!", env.Message)

	in := app.orders.lastIn
	assert.Equal(t, "device-1", in.GuestUserID)
	assert.Equal(t, "19", in.TotalPrice.String())
	assert.Equal(t, []domain.OrderLine{{ProductID: "PRD-001", Quantity: 2}, {ProductID: "PRD-002", Quantity: 1}}, in.Lines)
}

func TestCheckout_AlwaysAnswersWithEnvelope(t *testing.T) {
	app := newTestApp(t)

	// no Accept header: checkout is a device route and never redirects
	req := httptest.NewRequest(http.MethodPost, "/api/orders/order-checkout",
		strings.NewReader(`{"guestUserId":"missing","products":[{"productId":"PRD-001","quantity":1}]}`))
	rec := app.do(req)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.False(t, decodeEnvelope(t, rec).Success)
}

// Feature: shop-admin, Property: a checkout without products or with an
// incomplete line is rejected before it reaches the order service
func TestProperty_CheckoutRejectsIncompleteRequests(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("invalid checkout bodies get 422 with field errors", prop.ForAll(
		func(kind int) bool {
			app := newTestApp(t)
			body := map[string]any{
				"guestUserId": "device-1",
				"products":    []map[string]any{{"productId": "PRD-001", "quantity": 1}},
			}
			var field string
			switch kind % 4 {
			case 0:
				delete(body, "guestUserId")
				field = "guestUserId"
			case 1:
				body["products"] = []map[string]any{}
				field = "products"
			case 2:
				body["products"] = []map[string]any{{"quantity": 1}}
				field = "products[0].productId"
			case 3:
				body["products"] = []map[string]any{{"productId": "PRD-001", "quantity": -1}}
				field = "products[0].quantity"
			}

			rec := app.do(apiRequest(t, http.MethodPost, "/api/orders/order-checkout", body))
			env := decodeEnvelope(t, rec)
			if rec.Code != http.StatusUnprocessableEntity || len(env.Errors) == 0 {
				t.Logf("case %d: %d %s", kind%4, rec.Code, rec.Body.String())
				return false
			}
			return env.Errors[0].Field == field && app.orders.lastIn.GuestUserID == ""
		},
		gen.IntRange(0, 99),
	))

	properties.TestingRun(t)
}

func TestOrderActions(t *testing.T) {
	app := newTestApp(t)
	app.orders.orders["ORD-001"] = &domain.Order{ID: "ORD-001", Status: domain.OrderPending}
	app.orders.orders["ORD-002"] = &domain.Order{ID: "ORD-002", Status: domain.OrderPending}

	tests := []struct {
		name   string
		target string
		body   map[string]any
		status int
		want   domain.OrderStatus
	}{
		{name: "accept pending", target: "/orders/accept", body: map[string]any{"orderId": "ORD-001"}, status: http.StatusOK, want: domain.OrderProcessing},
		{name: "accept twice", target: "/orders/accept", body: map[string]any{"orderId": "ORD-001"}, status: http.StatusConflict, want: domain.OrderProcessing},
		{name: "complete processing", target: "/orders/complete", body: map[string]any{"orderId": "ORD-001"}, status: http.StatusOK, want: domain.OrderCompleted},
		{name: "reject without reason", target: "/orders/reject", body: map[string]any{"orderId": "ORD-002"}, status: http.StatusUnprocessableEntity, want: domain.OrderPending},
		{name: "reject with reason", target: "/orders/reject", body: map[string]any{"orderId": "ORD-002", "reason": "out of dough"}, status: http.StatusOK, want: domain.OrderCanceled},
		{name: "unknown order", target: "/orders/accept", body: map[string]any{"orderId": "ORD-999"}, status: http.StatusNotFound},
		{name: "missing order id", target: "/orders/accept", body: map[string]any{}, status: http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := app.do(apiRequest(t, http.MethodPost, tt.target, tt.body))
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			if tt.want != "" {
				id, _ := tt.body["orderId"].(string)
				assert.Equal(t, tt.want, app.orders.orders[id].Status)
			}
		})
	}
	assert.Equal(t, "out of dough", app.orders.lastNote)
}

func TestOrderActions_FormPostRedirectsBack(t *testing.T) {
	app := newTestApp(t)
	app.orders.orders["ORD-001"] = &domain.Order{ID: "ORD-001", Status: domain.OrderCompleted}

	form := url.Values{"orderId": {"ORD-001"}}
	req := httptest.NewRequest(http.MethodPost, "/orders/accept", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Inertia", "true")

	rec := app.do(req)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/orders/pending", rec.Header().Get("Location"))
	assert.NotEmpty(t, readFlash(t, rec).Error)
}

func TestOrderPages(t *testing.T) {
	app := newTestApp(t)
	app.orders.orders["ORD-001"] = &domain.Order{ID: "ORD-001", Status: domain.OrderPending}
	app.orders.orders["ORD-002"] = &domain.Order{ID: "ORD-002", Status: domain.OrderCompleted}

	for slug, status := range orderPages {
		t.Run(slug, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/orders/"+slug, nil)
			req.Header.Set("X-Inertia", "true")
			rec := app.do(req)
			require.Equal(t, http.StatusOK, rec.Code)

			var page struct {
				Component string `json:"component"`
				Props     struct {
					Orders []domain.OrderSummary `json:"orders"`
				} `json:"props"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
			assert.Equal(t, "order-pages/"+slug+"-orders", page.Component)
			for _, o := range page.Props.Orders {
				assert.Equal(t, status, o.Status)
			}
		})
	}

	rec := app.do(httptest.NewRequest(http.MethodGet, "/orders/archived", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
