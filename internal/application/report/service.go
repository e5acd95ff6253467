// Package report aggregates completed orders into sales summaries. It only reads.
package report

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Zhima-Mochi/cafeteria/internal/application"
	"github.com/Zhima-Mochi/cafeteria/internal/domain/errs"
	domorder "github.com/Zhima-Mochi/cafeteria/internal/domain/order"
	"github.com/Zhima-Mochi/cafeteria/internal/domain/payment"
	domain "github.com/Zhima-Mochi/cafeteria/internal/domain/report"
	"github.com/Zhima-Mochi/cafeteria/internal/observability"
	"github.com/shopspring/decimal"

	"go.opentelemetry.io/otel/attribute"
)

const (
	reportService = "report-service"
	dateLayout    = "2006-01-02"

	DefaultTopSellers = 10
)

type Service struct {
	orders domorder.Repository
	ins    application.Instruments
}

func NewService(orders domorder.Repository, tel observability.Observability) *Service {
	return &Service{orders: orders, ins: application.NewInstruments(tel, reportService)}
}

// DailyReport covers completed orders created on day's calendar date.
func (s *Service) DailyReport(ctx context.Context, day time.Time) (_ *domain.Sales, err error) {
	ctx, run := s.ins.Begin(ctx, "report.daily", "DailyReport", attribute.String("report.day", day.Format(dateLayout)))
	defer func() { run.End(err) }()

	orders, err := s.orders.ListByDate(ctx, day)
	if err != nil {
		run.Fail("REPO_LIST_FAILED")
		return nil, fmt.Errorf("report: daily: %w", err)
	}
	completed := orders[:0:0]
	for _, o := range orders {
		if o.Status == domorder.StatusCompleted {
			completed = append(completed, o)
		}
	}
	sales := aggregate(completed)
	sales.From = startOfDay(day)
	run.With(observability.F("orders", sales.Orders))
	return sales, nil
}

// PeriodReport covers completed orders created within [from, to], dates inclusive.
func (s *Service) PeriodReport(ctx context.Context, from, to time.Time) (_ *domain.Sales, err error) {
	ctx, run := s.ins.Begin(ctx, "report.period", "PeriodReport",
		attribute.String("report.from", from.Format(dateLayout)),
		attribute.String("report.to", to.Format(dateLayout)),
	)
	defer func() { run.End(err) }()

	if to.Before(from) {
		run.Fail("RANGE_INVALID")
		return nil, errs.Validation("report range end is before its start")
	}
	orders, err := s.orders.ListCompletedInRange(ctx, from, to)
	if err != nil {
		run.Fail("REPO_LIST_FAILED")
		return nil, fmt.Errorf("report: period: %w", err)
	}
	sales := aggregate(orders)
	sales.From = startOfDay(from)
	end := startOfDay(to)
	sales.To = &end
	run.With(observability.F("orders", sales.Orders))
	return sales, nil
}

// TopSellers ranks products by units sold in the range. n <= 0 means DefaultTopSellers.
func (s *Service) TopSellers(ctx context.Context, from, to time.Time, n int) ([]domain.ProductSales, error) {
	if n <= 0 {
		n = DefaultTopSellers
	}
	sales, err := s.PeriodReport(ctx, from, to)
	if err != nil {
		return nil, err
	}
	top := sales.Products
	if len(top) > n {
		top = top[:n]
	}
	for i := range top {
		top[i].Rank = i + 1
	}
	return top, nil
}

func (s *Service) Revenue(ctx context.Context, from, to time.Time) (decimal.Decimal, error) {
	sales, err := s.PeriodReport(ctx, from, to)
	if err != nil {
		return decimal.Zero, err
	}
	return sales.Revenue, nil
}

func (s *Service) CompletedCount(ctx context.Context, day time.Time) (int, error) {
	sales, err := s.DailyReport(ctx, day)
	if err != nil {
		return 0, err
	}
	return sales.Orders, nil
}

func aggregate(orders []*domorder.Order) *domain.Sales {
	s := &domain.Sales{Revenue: decimal.Zero, Orders: len(orders)}

	products := map[string]*domain.ProductSales{}
	methods := map[payment.Kind]*domain.PaymentMethodSales{}
	for _, o := range orders {
		total := o.Total()
		s.Revenue = s.Revenue.Add(total)

		for _, it := range o.Items {
			ps, ok := products[it.ProductID]
			if !ok {
				ps = &domain.ProductSales{ProductID: it.ProductID, Name: it.ProductName, Revenue: decimal.Zero}
				products[it.ProductID] = ps
			}
			ps.Quantity += it.Quantity
			ps.Revenue = ps.Revenue.Add(it.Subtotal())
		}

		if o.Payment != nil {
			pm, ok := methods[o.Payment.Kind]
			if !ok {
				pm = &domain.PaymentMethodSales{Kind: o.Payment.Kind, Amount: decimal.Zero}
				methods[o.Payment.Kind] = pm
			}
			pm.Transactions++
			pm.Amount = pm.Amount.Add(total)
		}
	}

	s.Products = make([]domain.ProductSales, 0, len(products))
	for _, ps := range products {
		s.Products = append(s.Products, *ps)
	}
	sort.Slice(s.Products, func(i, j int) bool {
		if s.Products[i].Quantity != s.Products[j].Quantity {
			return s.Products[i].Quantity > s.Products[j].Quantity
		}
		return s.Products[i].ProductID < s.Products[j].ProductID
	})

	s.PaymentMethods = make([]domain.PaymentMethodSales, 0, len(methods))
	for _, pm := range methods {
		s.PaymentMethods = append(s.PaymentMethods, *pm)
	}
	sort.Slice(s.PaymentMethods, func(i, j int) bool { return s.PaymentMethods[i].Kind < s.PaymentMethods[j].Kind })
	return s
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
