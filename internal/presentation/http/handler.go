package httppresentation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	appOrder "github.com/Zhima-Mochi/cafeteria/internal/application/order"
	"github.com/Zhima-Mochi/cafeteria/internal/domain/catalog"
	"github.com/Zhima-Mochi/cafeteria/internal/domain/errs"
	domainOrder "github.com/Zhima-Mochi/cafeteria/internal/domain/order"
	domainPayment "github.com/Zhima-Mochi/cafeteria/internal/domain/payment"
	domainReport "github.com/Zhima-Mochi/cafeteria/internal/domain/report"
	"github.com/Zhima-Mochi/cafeteria/internal/observability"
	"github.com/Zhima-Mochi/cafeteria/internal/observability/logctx"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"
)

const (
	componentHTTPHandler = "http_server"
	headerRequestID      = "X-Request-ID"
	dateLayout           = "2006-01-02"
	defaultTimeout       = 15 * time.Second
)

// Orders is the orchestrator surface the adapter drives.
type Orders interface {
	CreateOrder(ctx context.Context, customerID string) (*domainOrder.Order, error)
	AddItemToOrder(ctx context.Context, in appOrder.AddItemInput) (*domainOrder.Order, error)
	RemoveItemFromOrder(ctx context.Context, orderID, productID string) (*domainOrder.Order, error)
	ProcessPayment(ctx context.Context, in appOrder.PaymentInput) (*domainOrder.Order, error)
	CancelOrder(ctx context.Context, orderID string) (*domainOrder.Order, error)
	StartPreparation(ctx context.Context, orderID string) (*domainOrder.Order, error)
	MarkReady(ctx context.Context, orderID string) (*domainOrder.Order, error)
	Complete(ctx context.Context, orderID string) (*domainOrder.Order, error)
	GetOrder(ctx context.Context, orderID string) (*domainOrder.Order, error)
	ListByState(ctx context.Context, status domainOrder.Status) ([]*domainOrder.Order, error)
	ListByCustomer(ctx context.Context, customerID string) ([]*domainOrder.Order, error)
}

// Catalog is the ledger's catalog management surface.
type Catalog interface {
	RegisterProduct(ctx context.Context, p *catalog.Product) error
	Product(ctx context.Context, id string) (*catalog.Product, error)
	List(ctx context.Context) ([]*catalog.Product, error)
	ListAvailable(ctx context.Context) ([]*catalog.Product, error)
	UpdatePrice(ctx context.Context, id string, price decimal.Decimal) (*catalog.Product, error)
	SetStock(ctx context.Context, id string, stock int) (*catalog.Product, error)
	Restock(ctx context.Context, id string, delta int) (*catalog.Product, error)
	Deactivate(ctx context.Context, id string) (*catalog.Product, error)
	Activate(ctx context.Context, id string) (*catalog.Product, error)
	LowStock(ctx context.Context, threshold int) ([]*catalog.Product, error)
	OutOfStock(ctx context.Context) ([]*catalog.Product, error)
}

type Reports interface {
	DailyReport(ctx context.Context, day time.Time) (*domainReport.Sales, error)
	PeriodReport(ctx context.Context, from, to time.Time) (*domainReport.Sales, error)
	TopSellers(ctx context.Context, from, to time.Time, n int) ([]domainReport.ProductSales, error)
}

// StatusLookup reads a cached order status. ok=false means a miss.
type StatusLookup func(ctx context.Context, orderID string) (status domainOrder.Status, updatedAt time.Time, ok bool, err error)

type Handler struct {
	orders  Orders
	catalog Catalog
	reports Reports
	status  StatusLookup
	metrics http.Handler
	timeout time.Duration

	log observability.Logger
	tel observability.Observability
}

type Option func(*Handler)

func WithStatusLookup(fn StatusLookup) Option { return func(h *Handler) { h.status = fn } }

// WithMetricsHandler mounts h at GET /metrics, outside the request metrics.
func WithMetricsHandler(m http.Handler) Option { return func(h *Handler) { h.metrics = m } }

func WithRequestTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.timeout = d
		}
	}
}

func NewHandler(orders Orders, cat Catalog, reports Reports, logger observability.Logger,
	tel observability.Observability, opts ...Option,
) *Handler {
	tel = observability.Or(tel)
	if logger == nil {
		logger = tel.Logger()
	}
	h := &Handler{
		orders:  orders,
		catalog: cat,
		reports: reports,
		timeout: defaultTimeout,
		log:     logger.With(observability.F("component", componentHTTPHandler)),
		tel:     tel,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Router wires: RequestID → RealIP → Recoverer → Trace → request logger + metrics → access log → timeout → handler.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)

	r.Get("/health", h.handleHealth)
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(withTrace, ObservabilityMiddleware(h.log, h.tel), h.withAccessLog)
		r.Use(middleware.Timeout(h.timeout))

		r.Route("/products", func(r chi.Router) {
			r.Get("/", h.handleListProducts)
			r.Post("/", h.handleRegisterProduct)
			r.Get("/{id}", h.handleGetProduct)
			r.Put("/{id}/price", h.handleUpdatePrice)
			r.Put("/{id}/stock", h.handleSetStock)
			r.Post("/{id}/restock", h.handleRestock)
			r.Post("/{id}/deactivate", h.productAction(h.catalog.Deactivate))
			r.Post("/{id}/activate", h.productAction(h.catalog.Activate))
		})
		r.Get("/inventory/low-stock", h.handleLowStock)
		r.Get("/inventory/out-of-stock", h.handleOutOfStock)

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", h.handleCreateOrder)
			r.Get("/", h.handleListOrders)
			r.Get("/{id}", h.handleGetOrder)
			r.Get("/{id}/status", h.handleOrderStatus)
			r.Post("/{id}/items", h.handleAddItem)
			r.Delete("/{id}/items/{productID}", h.handleRemoveItem)
			r.Post("/{id}/payment", h.handleProcessPayment)
			r.Post("/{id}/cancel", h.orderAction(h.orders.CancelOrder))
			r.Post("/{id}/prepare", h.orderAction(h.orders.StartPreparation))
			r.Post("/{id}/ready", h.orderAction(h.orders.MarkReady))
			r.Post("/{id}/complete", h.orderAction(h.orders.Complete))
		})

		r.Route("/reports", func(r chi.Router) {
			r.Get("/daily", h.handleDailyReport)
			r.Get("/period", h.handlePeriodReport)
			r.Get("/top", h.handleTopSellers)
		})
	})
	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// ---- products

type productResponse struct {
	ID                  string          `json:"id"`
	Name                string          `json:"name"`
	Description         string          `json:"description,omitempty"`
	Kind                catalog.Kind    `json:"kind"`
	BasePrice           decimal.Decimal `json:"base_price"`
	FinalPrice          decimal.Decimal `json:"final_price"`
	Active              bool            `json:"active"`
	Stock               int             `json:"stock"`
	Reserved            int             `json:"reserved"`
	Available           int             `json:"available"`
	BeverageType        string          `json:"beverage_type,omitempty"`
	Hot                 *bool           `json:"hot,omitempty"`
	FoodType            string          `json:"food_type,omitempty"`
	RequiresPreparation *bool           `json:"requires_preparation,omitempty"`
	PrepTimeSeconds     *int64          `json:"prep_time_seconds,omitempty"`
}

func toProductResponse(p *catalog.Product) productResponse {
	resp := productResponse{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Kind:        p.Kind,
		BasePrice:   p.BasePrice,
		FinalPrice:  p.FinalPrice(),
		Active:      p.Active,
		Stock:       p.Stock(),
		Reserved:    p.Reserved(),
		Available:   p.Available(),
	}
	if b := p.Beverage; b != nil {
		hot := b.Hot
		resp.BeverageType, resp.Hot = string(b.Type), &hot
	}
	if f := p.Food; f != nil {
		prep, secs := f.RequiresPreparation, int64(f.PrepTime/time.Second)
		resp.FoodType, resp.RequiresPreparation, resp.PrepTimeSeconds = string(f.Type), &prep, &secs
	}
	return resp
}

func toProductResponses(ps []*catalog.Product) []productResponse {
	out := make([]productResponse, 0, len(ps))
	for _, p := range ps {
		out = append(out, toProductResponse(p))
	}
	return out
}

// GET /products lists what can be ordered now; ?all=true includes inactive and sold-out products.
func (h *Handler) handleListProducts(w http.ResponseWriter, r *http.Request) {
	list := h.catalog.ListAvailable
	if all, _ := strconv.ParseBool(r.URL.Query().Get("all")); all {
		list = h.catalog.List
	}
	ps, err := list(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResponses(ps))
}

type registerProductRequest struct {
	ID                  string          `json:"id"`
	Name                string          `json:"name"`
	Description         string          `json:"description"`
	BasePrice           decimal.Decimal `json:"base_price"`
	Stock               int             `json:"stock"`
	Kind                catalog.Kind    `json:"kind"`
	BeverageType        string          `json:"beverage_type"`
	Hot                 bool            `json:"hot"`
	FoodType            string          `json:"food_type"`
	RequiresPreparation bool            `json:"requires_preparation"`
	PrepTimeSeconds     int64           `json:"prep_time_seconds"`
}

func (req registerProductRequest) product() (*catalog.Product, error) {
	switch req.Kind {
	case catalog.KindBeverage:
		return catalog.NewBeverage(req.ID, req.Name, req.BasePrice, req.Stock,
			catalog.BeverageAttrs{Type: catalog.BeverageType(req.BeverageType), Hot: req.Hot}, req.Description)
	case catalog.KindFood:
		return catalog.NewFood(req.ID, req.Name, req.BasePrice, req.Stock,
			catalog.FoodAttrs{
				Type:                catalog.FoodType(req.FoodType),
				RequiresPreparation: req.RequiresPreparation,
				PrepTime:            time.Duration(req.PrepTimeSeconds) * time.Second,
			}, req.Description)
	default:
		return nil, errs.Validation(fmt.Sprintf("unknown product kind %q", req.Kind))
	}
}

func (h *Handler) handleRegisterProduct(w http.ResponseWriter, r *http.Request) {
	var req registerProductRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	p, err := req.product()
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if err := h.catalog.RegisterProduct(r.Context(), p); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toProductResponse(p))
}

func (h *Handler) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.catalog.Product(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResponse(p))
}

type priceRequest struct {
	BasePrice decimal.Decimal `json:"base_price"`
}

func (h *Handler) handleUpdatePrice(w http.ResponseWriter, r *http.Request) {
	var req priceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	p, err := h.catalog.UpdatePrice(r.Context(), chi.URLParam(r, "id"), req.BasePrice)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResponse(p))
}

type stockRequest struct {
	Stock    int `json:"stock"`
	Quantity int `json:"quantity"`
}

func (h *Handler) handleSetStock(w http.ResponseWriter, r *http.Request) {
	var req stockRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	p, err := h.catalog.SetStock(r.Context(), chi.URLParam(r, "id"), req.Stock)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResponse(p))
}

func (h *Handler) handleRestock(w http.ResponseWriter, r *http.Request) {
	var req stockRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	p, err := h.catalog.Restock(r.Context(), chi.URLParam(r, "id"), req.Quantity)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResponse(p))
}

func (h *Handler) productAction(fn func(context.Context, string) (*catalog.Product, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := fn(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			h.writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toProductResponse(p))
	}
}

func (h *Handler) handleLowStock(w http.ResponseWriter, r *http.Request) {
	threshold, err := intParam(r, "threshold", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	ps, err := h.catalog.LowStock(r.Context(), threshold)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResponses(ps))
}

func (h *Handler) handleOutOfStock(w http.ResponseWriter, r *http.Request) {
	ps, err := h.catalog.OutOfStock(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResponses(ps))
}

// ---- orders

type lineItemResponse struct {
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	Kind        catalog.Kind    `json:"kind"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}

type orderResponse struct {
	ID         string                `json:"id"`
	CustomerID string                `json:"customer_id"`
	Status     domainOrder.Status    `json:"status"`
	Items      []lineItemResponse    `json:"items"`
	Total      decimal.Decimal       `json:"total"`
	Tax        decimal.Decimal       `json:"tax"`
	Payment    *domainPayment.Record `json:"payment,omitempty"`
	Receipt    string                `json:"receipt,omitempty"`
	CreatedAt  time.Time             `json:"created_at"`
	PaidAt     *time.Time            `json:"paid_at,omitempty"`
	UpdatedAt  time.Time             `json:"updated_at"`
}

func toOrderResponse(o *domainOrder.Order) orderResponse {
	items := make([]lineItemResponse, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, lineItemResponse{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Kind:        it.Kind,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			Subtotal:    it.Subtotal(),
		})
	}
	total := o.Total()
	resp := orderResponse{
		ID:         o.ID,
		CustomerID: o.CustomerID,
		Status:     o.Status,
		Items:      items,
		Total:      total,
		Tax:        catalog.TaxPortion(total).Round(2),
		Payment:    o.Payment,
		CreatedAt:  o.CreatedAt,
		PaidAt:     o.PaidAt,
		UpdatedAt:  o.UpdatedAt,
	}
	if o.Payment != nil {
		resp.Receipt = o.Payment.Receipt()
	}
	return resp
}

func toOrderResponses(orders []*domainOrder.Order) []orderResponse {
	out := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrderResponse(o))
	}
	return out
}

type createOrderRequest struct {
	CustomerID string `json:"customer_id"`
}

func (h *Handler) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	o, err := h.orders.CreateOrder(r.Context(), req.CustomerID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	w.Header().Set("Location", "/orders/"+o.ID)
	writeJSON(w, http.StatusCreated, toOrderResponse(o))
}

func (h *Handler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.GetOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

type orderStatusResponse struct {
	OrderID   string             `json:"order_id"`
	Status    domainOrder.Status `json:"status"`
	UpdatedAt time.Time          `json:"updated_at"`
	Cached    bool               `json:"cached"`
}

// handleOrderStatus answers from the status cache when it can and falls back to the store.
func (h *Handler) handleOrderStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if h.status != nil {
		st, at, ok, err := h.status(r.Context(), id)
		switch {
		case err != nil:
			logctx.FromOr(r.Context(), h.log).Warn("status_cache_lookup_failed",
				observability.F("order_id", id),
				observability.F("error", err.Error()),
			)
		case ok:
			writeJSON(w, http.StatusOK, orderStatusResponse{OrderID: id, Status: st, UpdatedAt: at, Cached: true})
			return
		}
	}
	o, err := h.orders.GetOrder(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orderStatusResponse{OrderID: o.ID, Status: o.Status, UpdatedAt: o.UpdatedAt})
}

// GET /orders needs exactly one of ?state= or ?customer=.
func (h *Handler) handleListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	state, customer := q.Get("state"), q.Get("customer")

	var (
		orders []*domainOrder.Order
		err    error
	)
	switch {
	case state != "" && customer != "":
		writeError(w, http.StatusBadRequest, errors.New("use either state or customer, not both"))
		return
	case state != "":
		st, perr := domainOrder.ParseStatus(state)
		if perr != nil {
			h.writeDomainError(w, r, perr)
			return
		}
		orders, err = h.orders.ListByState(r.Context(), st)
	case customer != "":
		orders, err = h.orders.ListByCustomer(r.Context(), customer)
	default:
		writeError(w, http.StatusBadRequest, errors.New("state or customer query parameter is required"))
		return
	}
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponses(orders))
}

type addItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

func (h *Handler) handleAddItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	o, err := h.orders.AddItemToOrder(r.Context(), appOrder.AddItemInput{
		OrderID:   chi.URLParam(r, "id"),
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

func (h *Handler) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.RemoveItemFromOrder(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "productID"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

type paymentRequest struct {
	Method      domainPayment.Kind `json:"method"`
	Tendered    decimal.Decimal    `json:"tendered"`
	CardNumber  string             `json:"card_number"`
	Holder      string             `json:"holder"`
	VoucherCode string             `json:"voucher_code"`
	CustomerID  string             `json:"customer_id"`
}

func (h *Handler) handleProcessPayment(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	method, err := domainPayment.New(domainPayment.Kind(strings.ToLower(string(req.Method))), domainPayment.Params{
		Tendered:    req.Tendered,
		CardNumber:  req.CardNumber,
		Holder:      req.Holder,
		VoucherCode: req.VoucherCode,
		CustomerID:  req.CustomerID,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	o, err := h.orders.ProcessPayment(r.Context(), appOrder.PaymentInput{OrderID: chi.URLParam(r, "id"), Method: method})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

func (h *Handler) orderAction(fn func(context.Context, string) (*domainOrder.Order, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		o, err := fn(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			h.writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toOrderResponse(o))
	}
}

// ---- reports

type salesResponse struct {
	*domainReport.Sales
	AverageTicket decimal.Decimal `json:"average_ticket"`
}

func (h *Handler) handleDailyReport(w http.ResponseWriter, r *http.Request) {
	day, err := dateParam(r, "date", time.Now())
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s, err := h.reports.DailyReport(r.Context(), day)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, salesResponse{Sales: s, AverageTicket: s.AverageTicket().Round(2)})
}

func (h *Handler) handlePeriodReport(w http.ResponseWriter, r *http.Request) {
	from, to, err := rangeParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s, err := h.reports.PeriodReport(r.Context(), from, to)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, salesResponse{Sales: s, AverageTicket: s.AverageTicket().Round(2)})
}

func (h *Handler) handleTopSellers(w http.ResponseWriter, r *http.Request) {
	from, to, err := rangeParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	limit, err := intParam(r, "limit", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	top, err := h.reports.TopSellers(r.Context(), from, to, limit)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, top)
}

// ---- helpers

func rangeParams(r *http.Request) (from, to time.Time, err error) {
	now := time.Now()
	if from, err = dateParam(r, "from", now.AddDate(0, 0, -7)); err != nil {
		return
	}
	to, err = dateParam(r, "to", now)
	return
}

func dateParam(r *http.Request, name string, def time.Time) (time.Time, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	t, err := time.ParseInLocation(dateLayout, v, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be YYYY-MM-DD", name)
	}
	return t, nil
}

func intParam(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	return n, nil
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// writeDomainError maps the error taxonomy onto status codes. PaymentRejected is checked first
// because it may wrap an InvalidState cause.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusOf(err)
	if status >= http.StatusInternalServerError {
		logctx.FromOr(r.Context(), h.log).Error("http_internal_error",
			observability.F("route", routePattern(r)),
			observability.F("error", err.Error()),
		)
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Code: code})
}

func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, errs.ErrPaymentRejected):
		return http.StatusPaymentRequired, "PAYMENT_REJECTED"
	case errors.Is(err, errs.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, errs.ErrValidation):
		return http.StatusBadRequest, "VALIDATION_FAILED"
	case errors.Is(err, errs.ErrInsufficientStock):
		return http.StatusConflict, "INSUFFICIENT_STOCK"
	case errors.Is(err, errs.ErrInvalidState):
		return http.StatusConflict, "INVALID_STATE"
	case errors.Is(err, errs.ErrEmptyOrder):
		return http.StatusConflict, "EMPTY_ORDER"
	case errors.Is(err, errs.ErrConflict):
		return http.StatusConflict, "CONFLICT"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "TIMEOUT"
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}
