package store

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/example/ec-storefront/internal/catalog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var catalogRowColumns = []string{"id", "kind", "name", "unit_price", "discount_percent", "stock_quantity"}

func TestPostgresCatalogStore_FindAllByIDs_SingleQuery(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("FROM catalog_items WHERE id = ANY").
		WillReturnRows(sqlmock.NewRows(catalogRowColumns).
			AddRow("book-a", "book", "Dune", "10.00", "0", int64(3)).
			AddRow("cake-1", "product", "Lemon Cake", "4.50", "10", int64(8)))

	items, err := NewPostgresCatalogStore(db).FindAllByIDs(context.Background(), []string{"book-a", "cake-1", "gone"})

	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, catalog.KindProduct, items[1].Kind)
	assert.Equal(t, "4.50", items[1].UnitPrice.StringFixed(2))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCatalogStore_FindAllByIDs_EmptySkipsQuery(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	items, err := NewPostgresCatalogStore(db).FindAllByIDs(context.Background(), nil)

	require.NoError(t, err)
	assert.Empty(t, items)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCatalogStore_FindByID_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("FROM catalog_items WHERE id").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(catalogRowColumns))

	_, err = NewPostgresCatalogStore(db).FindByID(context.Background(), "missing")

	assert.ErrorIs(t, err, catalog.ErrItemNotFound)
}
