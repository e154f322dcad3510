package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/example/ec-storefront/internal/catalog"
	"github.com/lib/pq"
)

const catalogColumns = `id, kind, name, unit_price, discount_percent, stock_quantity`

// PostgresCatalogStore reads books and bakery products from catalog_items
type PostgresCatalogStore struct {
	db *sql.DB
}

func NewPostgresCatalogStore(db *sql.DB) *PostgresCatalogStore {
	return &PostgresCatalogStore{db: db}
}

func (s *PostgresCatalogStore) FindByID(ctx context.Context, id string) (*catalog.Item, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+catalogColumns+` FROM catalog_items WHERE id = $1`, id)

	var it catalog.Item
	err := row.Scan(&it.ID, &it.Kind, &it.Name, &it.UnitPrice, &it.DiscountPercent, &it.StockQuantity)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, catalog.ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog item %s: %w", id, err)
	}
	return &it, nil
}

// FindAllByIDs resolves every id in one round trip. Ids with no row are
// simply absent from the result.
func (s *PostgresCatalogStore) FindAllByIDs(ctx context.Context, ids []string) ([]catalog.Item, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+catalogColumns+` FROM catalog_items WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to query catalog items: %w", err)
	}
	defer rows.Close()

	var items []catalog.Item
	for rows.Next() {
		var it catalog.Item
		if err := rows.Scan(&it.ID, &it.Kind, &it.Name, &it.UnitPrice, &it.DiscountPercent, &it.StockQuantity); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}
