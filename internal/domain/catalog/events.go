package catalog

import "time"

// StockLowEvent is emitted when a confirmed sale leaves a product at or below the low-stock threshold.
type StockLowEvent struct {
	ProductID  string    `json:"product_id"`
	Name       string    `json:"name"`
	Stock      int       `json:"stock"`
	Threshold  int       `json:"threshold"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (StockLowEvent) EventName() string { return "catalog.stock_low" }

func NewStockLowEvent(p *Product, threshold int) StockLowEvent {
	return StockLowEvent{
		ProductID:  p.ID,
		Name:       p.Name,
		Stock:      p.Stock(),
		Threshold:  threshold,
		OccurredAt: time.Now().UTC(),
	}
}
