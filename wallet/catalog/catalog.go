// Package catalog loads the product list from a YAML file and upserts it
// into the product repository at boot.
package catalog

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/m3rciful/walletbot/wallet/domain"
)

type file struct {
	Products []entry `yaml:"products"`
}

type entry struct {
	ID                  string          `yaml:"id"`
	Name                string          `yaml:"name"`
	Kind                string          `yaml:"kind"`
	PriceCUP            decimal.Decimal `yaml:"price_cup"`
	PriceSaldo          decimal.Decimal `yaml:"price_saldo"`
	PriceUSDT           decimal.Decimal `yaml:"price_usdt"`
	ExternalProductID   string          `yaml:"external_product_id"`
	ExternalVariationID string          `yaml:"external_variation_id"`
	NeedsZone           bool            `yaml:"needs_zone"`
	// Active defaults to true.
	Active *bool `yaml:"active"`
}

// Parse decodes and validates a catalog document.
func Parse(data []byte) ([]domain.Product, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	seen := make(map[string]struct{}, len(f.Products))
	out := make([]domain.Product, 0, len(f.Products))
	for i, e := range f.Products {
		p := domain.Product{
			ID:                  strings.TrimSpace(e.ID),
			Name:                strings.TrimSpace(e.Name),
			Kind:                domain.ProductKind(strings.ToLower(strings.TrimSpace(e.Kind))),
			PriceCUP:            e.PriceCUP,
			PriceSaldo:          e.PriceSaldo,
			PriceUSDT:           e.PriceUSDT,
			ExternalProductID:   strings.TrimSpace(e.ExternalProductID),
			ExternalVariationID: strings.TrimSpace(e.ExternalVariationID),
			NeedsZone:           e.NeedsZone,
			Active:              e.Active == nil || *e.Active,
		}
		if p.Kind == "" {
			p.Kind = domain.ProductGame
		}
		if err := validate(p); err != nil {
			return nil, fmt.Errorf("catalog product #%d: %w", i+1, err)
		}
		if _, dup := seen[p.ID]; dup {
			return nil, fmt.Errorf("catalog product #%d: duplicate id %q", i+1, p.ID)
		}
		seen[p.ID] = struct{}{}
		out = append(out, p)
	}
	return out, nil
}

func validate(p domain.Product) error {
	switch {
	case p.ID == "":
		return &domain.ValidationError{Field: "id", Reason: "required"}
	case p.Name == "":
		return &domain.ValidationError{Field: "name", Reason: "required"}
	case p.ExternalProductID == "" || p.ExternalVariationID == "":
		return &domain.ValidationError{Field: "external_product_id", Reason: "product and variation ids are required"}
	case !p.Kind.Valid():
		return &domain.ValidationError{Field: "kind", Reason: "must be game or phone"}
	case p.IsPhone() && p.NeedsZone:
		return &domain.ValidationError{Field: "needs_zone", Reason: "phone recharges have no zone"}
	}
	sold := false
	for _, c := range domain.Currencies {
		price, _ := p.Price(c)
		if price.IsNegative() {
			return &domain.ValidationError{Field: "price_" + string(c), Reason: "must not be negative"}
		}
		if price.IsPositive() {
			sold = true
		}
	}
	if !sold {
		return &domain.ValidationError{Field: "price", Reason: "at least one positive price is required"}
	}
	return nil
}

// Seeder upserts the products of a catalog file.
type Seeder struct {
	Path     string
	Products domain.ProductRepository
}

// Name implements bootstrap.Seeder.
func (s Seeder) Name() string { return "catalog" }

// Seed implements bootstrap.Seeder. An empty Path is a no-op.
func (s Seeder) Seed(ctx context.Context) (int, error) {
	if strings.TrimSpace(s.Path) == "" {
		return 0, nil
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return 0, fmt.Errorf("read catalog: %w", err)
	}
	products, err := Parse(data)
	if err != nil {
		return 0, err
	}
	for i, p := range products {
		if err := s.Products.Upsert(ctx, p); err != nil {
			return i, err
		}
	}
	return len(products), nil
}
