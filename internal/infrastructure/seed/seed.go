// Package seed holds the opening cafeteria menu.
package seed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Zhima-Mochi/cafeteria/internal/domain/catalog"
	"github.com/Zhima-Mochi/cafeteria/internal/domain/errs"
	"github.com/shopspring/decimal"
)

type Registrar interface {
	RegisterProduct(ctx context.Context, p *catalog.Product) error
}

type beverage struct {
	id, name, desc string
	price, stock   int64
	kind           catalog.BeverageType
	hot            bool
}

type food struct {
	id, name, desc string
	price, stock   int64
	kind           catalog.FoodType
	prep           time.Duration
}

var beverages = []beverage{
	{"BEB001", "Café Americano", "Traditional black coffee", 3500, 50, catalog.BeverageCoffee, true},
	{"BEB002", "Café con Leche", "Coffee with hot milk", 4000, 40, catalog.BeverageCoffee, true},
	{"BEB003", "Cappuccino", "Coffee with foamed milk", 4500, 30, catalog.BeverageCoffee, true},
	{"BEB004", "Chocolate Caliente", "Hot chocolate with milk", 4200, 25, catalog.BeverageTea, true},
	{"BEB005", "Té Verde", "Natural green tea", 2800, 35, catalog.BeverageTea, true},
	{"BEB006", "Jugo Natural", "Fresh fruit juice", 3800, 20, catalog.BeverageJuice, false},
	{"BEB007", "Gaseosa", "Soft drink 350ml", 2500, 60, catalog.BeverageSoda, false},
	{"BEB008", "Agua", "Purified water 500ml", 2000, 100, catalog.BeverageWater, false},
	{"BEB009", "Café Frío", "Iced coffee", 4800, 15, catalog.BeverageCoffee, false},
}

// A zero prep time means the item is served as is.
var foods = []food{
	{"COM001", "Sandwich de Pollo", "Chicken and vegetable sandwich", 8500, 20, catalog.FoodSandwich, 5 * time.Minute},
	{"COM002", "Sandwich de Jamón", "Ham and cheese sandwich", 7500, 25, catalog.FoodSandwich, 3 * time.Minute},
	{"COM003", "Ensalada César", "Chicken caesar salad", 9200, 15, catalog.FoodSalad, 8 * time.Minute},
	{"COM004", "Ensalada de Frutas", "Fresh fruit mix", 6800, 10, catalog.FoodSalad, 5 * time.Minute},
	{"SNK001", "Empanada", "Beef or chicken empanada", 3200, 40, catalog.FoodSnack, 2 * time.Minute},
	{"SNK002", "Croissant", "Filled croissant", 4500, 20, catalog.FoodSnack, 3 * time.Minute},
	{"SNK003", "Muffin", "Blueberry muffin", 3800, 25, catalog.FoodSnack, 0},
	{"SNK004", "Galletas", "Pack of cookies", 2200, 50, catalog.FoodSnack, 0},
	{"PST001", "Brownie", "Chocolate brownie", 4200, 15, catalog.FoodDessert, 0},
	{"PST002", "Torta del Día", "Slice of the cake of the day", 5500, 8, catalog.FoodDessert, 0},
	{"PLT001", "Almuerzo Ejecutivo", "Main course plus drink", 12500, 10, catalog.FoodDish, 12 * time.Minute},
}

// Products builds fresh instances of the opening menu.
func Products() ([]*catalog.Product, error) {
	out := make([]*catalog.Product, 0, len(beverages)+len(foods))
	for _, b := range beverages {
		p, err := catalog.NewBeverage(b.id, b.name, decimal.NewFromInt(b.price), int(b.stock),
			catalog.BeverageAttrs{Type: b.kind, Hot: b.hot}, b.desc)
		if err != nil {
			return nil, fmt.Errorf("seed: %s: %w", b.id, err)
		}
		out = append(out, p)
	}
	for _, f := range foods {
		p, err := catalog.NewFood(f.id, f.name, decimal.NewFromInt(f.price), int(f.stock),
			catalog.FoodAttrs{Type: f.kind, RequiresPreparation: f.prep > 0, PrepTime: f.prep}, f.desc)
		if err != nil {
			return nil, fmt.Errorf("seed: %s: %w", f.id, err)
		}
		out = append(out, p)
	}
	return out, nil
}

// Load registers the opening menu. Products that already exist are left untouched,
// so it is safe to run against a durable store on every start.
func Load(ctx context.Context, r Registrar) (added int, err error) {
	products, err := Products()
	if err != nil {
		return 0, err
	}
	for _, p := range products {
		err := r.RegisterProduct(ctx, p)
		switch {
		case err == nil:
			added++
		case errors.Is(err, errs.ErrConflict):
		default:
			return added, fmt.Errorf("seed: register %s: %w", p.ID, err)
		}
	}
	return added, nil
}
