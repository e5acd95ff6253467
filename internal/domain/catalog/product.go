package catalog

import (
	"fmt"
	"strings"
	"time"

	"github.com/Zhima-Mochi/cafeteria/internal/domain/errs"
	"github.com/shopspring/decimal"
)

const entityProduct = "product"

type Kind string

const (
	KindBeverage Kind = "beverage"
	KindFood     Kind = "food"
)

type BeverageType string

const (
	BeverageCoffee BeverageType = "coffee"
	BeverageTea    BeverageType = "tea"
	BeverageJuice  BeverageType = "juice"
	BeverageSoda   BeverageType = "soda"
	BeverageWater  BeverageType = "water"
)

type FoodType string

const (
	FoodSandwich FoodType = "sandwich"
	FoodSalad    FoodType = "salad"
	FoodSnack    FoodType = "snack"
	FoodDessert  FoodType = "dessert"
	FoodDish     FoodType = "dish"
)

// BeverageAttrs are set only when Kind is KindBeverage.
type BeverageAttrs struct {
	Type BeverageType
	Hot  bool
}

// FoodAttrs are set only when Kind is KindFood.
type FoodAttrs struct {
	Type                FoodType
	RequiresPreparation bool
	PrepTime            time.Duration
}

// Product is a catalog entry together with its stock counters.
// Invariant: 0 <= Reserved <= Stock.
type Product struct {
	ID          string
	Name        string
	Description string
	BasePrice   decimal.Decimal
	Active      bool
	Kind        Kind
	Beverage    *BeverageAttrs
	Food        *FoodAttrs

	stock    int
	reserved int

	UpdatedAt time.Time
}

func NewBeverage(id, name string, basePrice decimal.Decimal, stock int, attrs BeverageAttrs, description string) (*Product, error) {
	p, err := newProduct(id, name, basePrice, stock, description)
	if err != nil {
		return nil, err
	}
	p.Kind = KindBeverage
	p.Beverage = &attrs
	return p, nil
}

func NewFood(id, name string, basePrice decimal.Decimal, stock int, attrs FoodAttrs, description string) (*Product, error) {
	p, err := newProduct(id, name, basePrice, stock, description)
	if err != nil {
		return nil, err
	}
	if attrs.PrepTime < 0 {
		return nil, errs.Validation("preparation time cannot be negative")
	}
	p.Kind = KindFood
	p.Food = &attrs
	return p, nil
}

func newProduct(id, name string, basePrice decimal.Decimal, stock int, description string) (*Product, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errs.Validation("product id is required")
	}
	if strings.TrimSpace(name) == "" {
		return nil, errs.Validation("product name is required")
	}
	if !basePrice.IsPositive() {
		return nil, errs.Validation("base price must be greater than zero")
	}
	if stock < 0 {
		return nil, errs.Validation("stock cannot be negative")
	}
	return &Product{
		ID:          id,
		Name:        name,
		Description: description,
		BasePrice:   basePrice,
		Active:      true,
		stock:       stock,
		UpdatedAt:   time.Now().UTC(),
	}, nil
}

// Restore rebuilds a product from persisted counters. Stores use it; it re-checks the counter invariant.
func Restore(p Product, stock, reserved int) (*Product, error) {
	if stock < 0 || reserved < 0 || reserved > stock {
		return nil, fmt.Errorf("catalog: restore %q: corrupt counters stock=%d reserved=%d", p.ID, stock, reserved)
	}
	p.stock = stock
	p.reserved = reserved
	return &p, nil
}

func (p *Product) Stock() int     { return p.stock }
func (p *Product) Reserved() int  { return p.reserved }
func (p *Product) Available() int { return p.stock - p.reserved }

// FinalPrice is the sale price with tax embedded.
func (p *Product) FinalPrice() decimal.Decimal {
	return FinalPrice(p.BasePrice)
}

// Reserve places a provisional hold on qty units.
func (p *Product) Reserve(qty int) error {
	if qty <= 0 {
		return errs.Validation("quantity must be greater than zero")
	}
	if !p.Active {
		return &errs.InvalidStateError{Entity: entityProduct, ID: p.ID, Current: "inactive", Required: "active"}
	}
	if qty > p.Available() {
		return &errs.InsufficientStockError{ProductID: p.ID, Available: p.Available(), Requested: qty}
	}
	p.reserved += qty
	p.touch()
	return nil
}

// Release drops a hold. Releasing more than is reserved is an error, never a clamp.
func (p *Product) Release(qty int) error {
	if qty <= 0 {
		return errs.Validation("quantity must be greater than zero")
	}
	if qty > p.reserved {
		return &errs.InvalidStateError{
			Entity:   entityProduct,
			ID:       p.ID,
			Current:  fmt.Sprintf("reserved=%d", p.reserved),
			Required: fmt.Sprintf("reserved>=%d", qty),
		}
	}
	p.reserved -= qty
	p.touch()
	return nil
}

// ConfirmSale turns qty reserved units into a permanent deduction.
func (p *Product) ConfirmSale(qty int) error {
	if qty <= 0 {
		return errs.Validation("quantity must be greater than zero")
	}
	if qty > p.reserved {
		return &errs.InvalidStateError{
			Entity:   entityProduct,
			ID:       p.ID,
			Current:  fmt.Sprintf("reserved=%d", p.reserved),
			Required: fmt.Sprintf("reserved>=%d", qty),
		}
	}
	p.stock -= qty
	p.reserved -= qty
	p.touch()
	return nil
}

// RevertSale undoes a ConfirmSale of qty units. It exists for compensation only.
func (p *Product) RevertSale(qty int) error {
	if qty <= 0 {
		return errs.Validation("quantity must be greater than zero")
	}
	p.stock += qty
	p.reserved += qty
	p.touch()
	return nil
}

// SetStock replaces the owned unit count. It cannot drop below what open orders hold.
func (p *Product) SetStock(newStock int) error {
	if newStock < 0 {
		return errs.Validation("stock cannot be negative")
	}
	if newStock < p.reserved {
		return &errs.InvalidStateError{
			Entity:   entityProduct,
			ID:       p.ID,
			Current:  fmt.Sprintf("reserved=%d", p.reserved),
			Required: fmt.Sprintf("stock>=%d", p.reserved),
		}
	}
	p.stock = newStock
	p.touch()
	return nil
}

func (p *Product) UpdatePrice(price decimal.Decimal) error {
	if !price.IsPositive() {
		return errs.Validation("price must be greater than zero")
	}
	p.BasePrice = price
	p.touch()
	return nil
}

func (p *Product) Deactivate() {
	p.Active = false
	p.touch()
}

func (p *Product) Activate() {
	p.Active = true
	p.touch()
}

// Hold is a reservation of Quantity units on one product.
type Hold struct {
	ProductID string
	Quantity  int
}

// Clone returns a deep copy so stores never share mutable state with callers.
func (p *Product) Clone() *Product {
	if p == nil {
		return nil
	}
	c := *p
	if p.Beverage != nil {
		b := *p.Beverage
		c.Beverage = &b
	}
	if p.Food != nil {
		f := *p.Food
		c.Food = &f
	}
	return &c
}

func (p *Product) touch() {
	p.UpdatedAt = time.Now().UTC()
}
