package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/walletbot/wallet/domain"
)

const productColumns = `id, name, kind, price_cup, price_saldo, price_usdt, external_product_id, external_variation_id, needs_zone, active`

// Products is a domain.ProductRepository.
type Products struct {
	db *sqlx.DB
}

// NewProducts builds Products over db.
func NewProducts(db *sqlx.DB) *Products {
	return &Products{db: db}
}

// Get implements domain.ProductRepository.
func (r *Products) Get(ctx context.Context, id string) (domain.Product, error) {
	var out domain.Product
	err := conn(ctx, r.db).GetContext(ctx, &out, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Product{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Product{}, fmt.Errorf("get product %s: %w", id, err)
	}
	return out, nil
}

// ListActive implements domain.ProductRepository.
func (r *Products) ListActive(ctx context.Context) ([]domain.Product, error) {
	var out []domain.Product
	if err := conn(ctx, r.db).SelectContext(ctx, &out,
		`SELECT `+productColumns+` FROM products WHERE active ORDER BY name`); err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return out, nil
}

// Upsert implements domain.ProductRepository.
func (r *Products) Upsert(ctx context.Context, p domain.Product) error {
	_, err := conn(ctx, r.db).ExecContext(ctx,
		`INSERT INTO products (`+productColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (id) DO UPDATE SET
		   name = EXCLUDED.name,
		   kind = EXCLUDED.kind,
		   price_cup = EXCLUDED.price_cup,
		   price_saldo = EXCLUDED.price_saldo,
		   price_usdt = EXCLUDED.price_usdt,
		   external_product_id = EXCLUDED.external_product_id,
		   external_variation_id = EXCLUDED.external_variation_id,
		   needs_zone = EXCLUDED.needs_zone,
		   active = EXCLUDED.active`,
		p.ID, p.Name, p.Kind, p.PriceCUP, p.PriceSaldo, p.PriceUSDT,
		p.ExternalProductID, p.ExternalVariationID, p.NeedsZone, p.Active,
	)
	if err != nil {
		return fmt.Errorf("upsert product %s: %w", p.ID, err)
	}
	return nil
}
