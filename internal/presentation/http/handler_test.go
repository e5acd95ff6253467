package httppresentation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Zhima-Mochi/cafeteria/internal/application/inventory"
	appOrder "github.com/Zhima-Mochi/cafeteria/internal/application/order"
	appReport "github.com/Zhima-Mochi/cafeteria/internal/application/report"
	"github.com/Zhima-Mochi/cafeteria/internal/domain/errs"
	domainOrder "github.com/Zhima-Mochi/cafeteria/internal/domain/order"
	"github.com/Zhima-Mochi/cafeteria/internal/infrastructure/id"
	"github.com/Zhima-Mochi/cafeteria/internal/infrastructure/memory"
	obsprovider "github.com/Zhima-Mochi/cafeteria/internal/infrastructure/observability"
	"github.com/Zhima-Mochi/cafeteria/internal/infrastructure/observability/prometrics"
	"github.com/Zhima-Mochi/cafeteria/internal/infrastructure/seed"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	*httptest.Server
	reg *prometheus.Registry
}

func newTestServer(t *testing.T, opts ...Option) *testServer {
	t.Helper()
	reg := prometheus.NewRegistry()
	counters, histograms := prometrics.Standard(prometrics.New(reg, "", ""))
	tel := obsprovider.New(nil, nil, counters, histograms)

	ledger := inventory.NewLedger(memory.NewProductRepository(), tel)
	_, err := seed.Load(context.Background(), ledger)
	require.NoError(t, err)

	orderRepo := memory.NewOrderRepository()
	orders := appOrder.NewService(orderRepo, ledger, id.NewUUIDGenerator(), nil, tel)
	reports := appReport.NewService(orderRepo, tel)

	srv := httptest.NewServer(NewHandler(orders, ledger, reports, nil, tel, opts...).Router())
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, reg: reg}
}

func (s *testServer) do(t *testing.T, method, path string, body any) (int, map[string]any) {
	t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, s.URL+path, rdr)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	res, err := s.Client().Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	var out map[string]any
	if res.Header.Get("Content-Type") == "application/json" {
		var raw json.RawMessage
		require.NoError(t, json.NewDecoder(res.Body).Decode(&raw))
		if len(raw) > 0 && raw[0] == '{' {
			require.NoError(t, json.Unmarshal(raw, &out))
		} else {
			out = map[string]any{"list": raw}
		}
	}
	return res.StatusCode, out
}

func (s *testServer) newOrder(t *testing.T, customer string) string {
	t.Helper()
	code, body := s.do(t, http.MethodPost, "/orders", map[string]string{"customer_id": customer})
	require.Equal(t, http.StatusCreated, code, body)
	return body["id"].(string)
}

func money(t *testing.T, v any) string {
	t.Helper()
	d, err := decimal.NewFromString(fmt.Sprint(v))
	require.NoError(t, err)
	return d.StringFixed(2)
}

func TestOrderFlowOverHTTP(t *testing.T) {
	s := newTestServer(t)
	id := s.newOrder(t, "EST001")

	code, body := s.do(t, http.MethodPost, "/orders/"+id+"/items", map[string]any{"product_id": "BEB001", "quantity": 2})
	require.Equal(t, http.StatusOK, code, body)
	code, body = s.do(t, http.MethodPost, "/orders/"+id+"/items", map[string]any{"product_id": "SNK001", "quantity": 1})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "12138.00", money(t, body["total"]))

	code, body = s.do(t, http.MethodGet, "/products/BEB001", nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 2, body["reserved"])
	assert.EqualValues(t, 48, body["available"])

	code, body = s.do(t, http.MethodPost, "/orders/"+id+"/payment", map[string]any{"method": "cash", "tendered": "20000"})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, string(domainOrder.StatusPaymentConfirmed), body["status"])
	assert.Contains(t, body["receipt"], "Change: $7862.00")

	code, body = s.do(t, http.MethodGet, "/products/BEB001", nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 48, body["stock"])
	assert.EqualValues(t, 0, body["reserved"])

	code, body = s.do(t, http.MethodGet, "/orders/"+id+"/status", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, string(domainOrder.StatusPaymentConfirmed), body["status"])
	assert.Equal(t, false, body["cached"])

	for _, step := range []string{"prepare", "ready", "complete"} {
		code, body = s.do(t, http.MethodPost, "/orders/"+id+"/"+step, nil)
		require.Equal(t, http.StatusOK, code, step)
	}
	assert.Equal(t, string(domainOrder.StatusCompleted), body["status"])

	today := time.Now().Format(dateLayout)
	code, body = s.do(t, http.MethodGet, "/reports/daily?date="+today, nil)
	require.Equal(t, http.StatusOK, code, body)
	assert.EqualValues(t, 1, body["orders"])
	assert.Equal(t, "12138.00", money(t, body["revenue"]))
}

func TestErrorMapping(t *testing.T) {
	s := newTestServer(t)
	id := s.newOrder(t, "EST002")

	code, body := s.do(t, http.MethodPost, "/orders/"+id+"/payment", map[string]any{"method": "cash", "tendered": "1000"})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "EMPTY_ORDER", body["code"])

	code, body = s.do(t, http.MethodPost, "/orders/"+id+"/items", map[string]any{"product_id": "PST002", "quantity": 9})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "INSUFFICIENT_STOCK", body["code"])

	code, _ = s.do(t, http.MethodPost, "/orders/"+id+"/items", map[string]any{"product_id": "PST002", "quantity": 0})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = s.do(t, http.MethodPost, "/orders/"+id+"/items", map[string]any{"product_id": "NOPE", "quantity": 1})
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = s.do(t, http.MethodPost, "/orders/"+id+"/items", map[string]any{"product_id": "PST002", "quantity": 1})
	require.Equal(t, http.StatusOK, code)

	code, body = s.do(t, http.MethodPost, "/orders/"+id+"/payment",
		map[string]any{"method": "card", "card_number": "0000123412341234", "holder": "Ana"})
	assert.Equal(t, http.StatusPaymentRequired, code)
	assert.Equal(t, "PAYMENT_REJECTED", body["code"])

	code, _ = s.do(t, http.MethodPost, "/orders/"+id+"/cancel", nil)
	require.Equal(t, http.StatusOK, code)

	code, body = s.do(t, http.MethodPost, "/orders/"+id+"/payment",
		map[string]any{"method": "card", "card_number": "4111111111111111", "holder": "Ana"})
	assert.Equal(t, http.StatusPaymentRequired, code)
	assert.Equal(t, "PAYMENT_REJECTED", body["code"])

	code, _ = s.do(t, http.MethodPost, "/orders/"+id+"/items", map[string]any{"product_id": "PST002", "quantity": 1})
	assert.Equal(t, http.StatusConflict, code)

	code, _ = s.do(t, http.MethodGet, "/orders/missing", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = s.do(t, http.MethodPost, "/orders", map[string]string{"customer": "typo"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = s.do(t, http.MethodPost, "/orders/"+id+"/payment", map[string]any{"method": "bitcoin"})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestCatalogEndpoints(t *testing.T) {
	s := newTestServer(t)

	code, body := s.do(t, http.MethodPost, "/products", map[string]any{
		"id": "BEB010", "name": "Limonada", "base_price": "3000", "stock": 2, "kind": "beverage", "beverage_type": "juice",
	})
	require.Equal(t, http.StatusCreated, code, body)
	assert.Equal(t, "3570.00", money(t, body["final_price"]))

	code, body = s.do(t, http.MethodPost, "/products", map[string]any{
		"id": "BEB010", "name": "Limonada", "base_price": "3000", "stock": 2, "kind": "beverage",
	})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "CONFLICT", body["code"])

	code, _ = s.do(t, http.MethodPut, "/products/BEB010/price", map[string]any{"base_price": "-1"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = s.do(t, http.MethodPost, "/products/BEB010/deactivate", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["active"])

	id := s.newOrder(t, "EST003")
	code, body = s.do(t, http.MethodPost, "/orders/"+id+"/items", map[string]any{"product_id": "BEB010", "quantity": 1})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "INVALID_STATE", body["code"])

	code, body = s.do(t, http.MethodGet, "/inventory/low-stock?threshold=8", nil)
	require.Equal(t, http.StatusOK, code)
	var low []productResponse
	require.NoError(t, json.Unmarshal(body["list"].(json.RawMessage), &low))
	require.NotEmpty(t, low)
	assert.Equal(t, "PST002", low[0].ID)

	code, _ = s.do(t, http.MethodGet, "/inventory/low-stock?threshold=abc", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestStatusServedFromCache(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s := newTestServer(t, WithStatusLookup(func(_ context.Context, orderID string) (domainOrder.Status, time.Time, bool, error) {
		switch orderID {
		case "cached":
			return domainOrder.StatusReadyForPickup, at, true, nil
		case "broken":
			return "", time.Time{}, false, errors.New("redis down")
		default:
			return "", time.Time{}, false, nil
		}
	}))

	code, body := s.do(t, http.MethodGet, "/orders/cached/status", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["cached"])
	assert.Equal(t, string(domainOrder.StatusReadyForPickup), body["status"])

	code, _ = s.do(t, http.MethodGet, "/orders/broken/status", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestRequestsAreCountedByRoutePattern(t *testing.T) {
	s := newTestServer(t)
	id := s.newOrder(t, "EST004")
	s.do(t, http.MethodPost, "/orders/"+id+"/items", map[string]any{"product_id": "BEB008", "quantity": 1})
	s.do(t, http.MethodGet, "/orders/"+id, nil)

	assert.Equal(t, 1.0, requestCount(t, s.reg, "POST", "/orders/{id}/items", "200"))
	assert.Equal(t, 1.0, requestCount(t, s.reg, "GET", "/orders/{id}", "200"))
}

func requestCount(t *testing.T, reg *prometheus.Registry, method, route, status string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != "http_requests_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["method"] == method && labels["route"] == route && labels["status"] == status {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func TestStatusOf(t *testing.T) {
	rejectedState := &errs.PaymentRejectedError{OrderID: "o", Reason: "not pending",
		Cause: &errs.InvalidStateError{Entity: "order", ID: "o", Current: "cancelled", Required: "pending"}}

	tests := []struct {
		err  error
		want int
	}{
		{rejectedState, http.StatusPaymentRequired},
		{errs.NotFound("order", "x"), http.StatusNotFound},
		{errs.Validation("bad"), http.StatusBadRequest},
		{&errs.InsufficientStockError{ProductID: "p", Available: 1, Requested: 2}, http.StatusConflict},
		{fmt.Errorf("wrap: %w", errs.ErrEmptyOrder), http.StatusConflict},
		{errs.ErrConflict, http.StatusConflict},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		got, _ := statusOf(tt.err)
		assert.Equal(t, tt.want, got, tt.err.Error())
	}
}
