package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/example/ec-storefront/internal/order"
	"github.com/lib/pq"
)

const orderColumns = `id, provider_ref, user_id, guest_email, status, total_price,
	shipping_first_name, shipping_last_name, shipping_address, shipping_city,
	shipping_country_code, shipping_phone_number, created_at, updated_at`

// PostgresOrderStore persists orders, their lines and their outbox events.
// Every write that changes an order also appends to order_events in the same
// transaction.
type PostgresOrderStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewPostgresOrderStore(db *sql.DB) *PostgresOrderStore {
	return &PostgresOrderStore{db: db, now: time.Now}
}

// Create inserts the order, its lines and an OrderPlaced event atomically
func (s *PostgresOrderStore) Create(ctx context.Context, o *order.Order) error {
	ev, err := order.PlacedEvent(o)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO orders (`+orderColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		o.ID, o.ProviderRef, o.UserID, o.GuestEmail, o.Status, o.TotalPrice,
		o.Shipping.FirstName, o.Shipping.LastName, o.Shipping.Address, o.Shipping.City,
		o.Shipping.CountryCode, o.Shipping.PhoneNumber, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return order.ErrDuplicateReference
		}
		return fmt.Errorf("failed to insert order: %w", err)
	}

	for _, l := range o.Lines {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO order_lines (order_id, item_id, quantity, unit_price, subtotal)
			 VALUES ($1, $2, $3, $4, $5)`,
			o.ID, l.ItemID, l.Quantity, l.UnitPrice, l.Subtotal,
		)
		if err != nil {
			return fmt.Errorf("failed to insert order line %s: %w", l.ItemID, err)
		}
	}

	if err := insertEvent(ctx, tx, ev); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *PostgresOrderStore) FindByID(ctx context.Context, id string) (*order.Order, error) {
	return findOrder(ctx, s.db, `WHERE id = $1`, id)
}

func (s *PostgresOrderStore) FindByProviderRef(ctx context.Context, ref string) (*order.Order, error) {
	return findOrder(ctx, s.db, `WHERE provider_ref = $1`, ref)
}

// MarkProcessing is a conditional pending -> processing update keyed by the
// provider reference. A second capture of the same order finds no pending
// row and reports changed=false.
func (s *PostgresOrderStore) MarkProcessing(ctx context.Context, ref string) (*order.Order, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := s.now()
	var id string
	err = tx.QueryRowContext(ctx,
		`UPDATE orders SET status = $1, updated_at = $2
		 WHERE provider_ref = $3 AND status = $4
		 RETURNING id`,
		order.StatusProcessing, now, ref, order.StatusPending,
	).Scan(&id)

	if errors.Is(err, sql.ErrNoRows) {
		existing, err := findOrder(ctx, tx, `WHERE provider_ref = $1`, ref)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to mark order processing: %w", err)
	}

	o, err := findOrder(ctx, tx, `WHERE id = $1`, id)
	if err != nil {
		return nil, false, err
	}
	ev, err := order.PaidEvent(o, now)
	if err != nil {
		return nil, false, err
	}
	if err := insertEvent(ctx, tx, ev); err != nil {
		return nil, false, err
	}
	if err := tx.Commit(); err != nil {
		return nil, false, err
	}
	return o, true, nil
}

// UpdateStatus applies an administrative transition under a row lock
func (s *PostgresOrderStore) UpdateStatus(ctx context.Context, id string, to order.Status) (*order.Order, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var from order.Status
	err = tx.QueryRowContext(ctx, `SELECT status FROM orders WHERE id = $1 FOR UPDATE`, id).Scan(&from)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, order.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock order %s: %w", id, err)
	}
	if err := order.ValidateAdminTransition(from, to); err != nil {
		return nil, err
	}

	now := s.now()
	if _, err := tx.ExecContext(ctx,
		`UPDATE orders SET status = $1, updated_at = $2 WHERE id = $3`, to, now, id,
	); err != nil {
		return nil, fmt.Errorf("failed to update order status: %w", err)
	}

	ev, err := order.StatusChangedEvent(id, from, to, now)
	if err != nil {
		return nil, err
	}
	if err := insertEvent(ctx, tx, ev); err != nil {
		return nil, err
	}

	o, err := findOrder(ctx, tx, `WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	log.Printf("[PostgresOrderStore] Order %s: %s -> %s", id, from, to)
	return o, nil
}

func (s *PostgresOrderStore) ListByUser(ctx context.Context, userID int64) ([]*order.Order, error) {
	return listOrders(ctx, s.db, `WHERE user_id = $1 ORDER BY created_at DESC`, userID)
}

func (s *PostgresOrderStore) ListStalePending(ctx context.Context, cutoff time.Time) ([]*order.Order, error) {
	return listOrders(ctx, s.db,
		`WHERE status = $1 AND created_at < $2 ORDER BY created_at ASC`, order.StatusPending, cutoff)
}

// FetchUnpublished returns outbox events not yet relayed, oldest first
func (s *PostgresOrderStore) FetchUnpublished(ctx context.Context, limit int) ([]order.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, aggregate_id, aggregate_type, event_type, data, created_at
		 FROM order_events
		 WHERE published_at IS NULL
		 ORDER BY created_at ASC
		 LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch unpublished events: %w", err)
	}
	defer rows.Close()

	var events []order.Event
	for rows.Next() {
		var (
			e    order.Event
			data []byte
		)
		if err := rows.Scan(&e.ID, &e.AggregateID, &e.AggregateType, &e.EventType, &data, &e.Timestamp); err != nil {
			return nil, err
		}
		e.Data = data
		events = append(events, e)
	}
	return events, rows.Err()
}

func (s *PostgresOrderStore) MarkPublished(ctx context.Context, eventID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE order_events SET published_at = $1 WHERE id = $2`, s.now(), eventID)
	return err
}

func insertEvent(ctx context.Context, q querier, ev order.Event) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO order_events (id, aggregate_id, aggregate_type, event_type, data, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		ev.ID, ev.AggregateID, ev.AggregateType, ev.EventType, []byte(ev.Data), ev.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert %s event: %w", ev.EventType, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*order.Order, error) {
	var (
		o          order.Order
		ref, email sql.NullString
		userID     sql.NullInt64
	)
	err := row.Scan(
		&o.ID, &ref, &userID, &email, &o.Status, &o.TotalPrice,
		&o.Shipping.FirstName, &o.Shipping.LastName, &o.Shipping.Address, &o.Shipping.City,
		&o.Shipping.CountryCode, &o.Shipping.PhoneNumber, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if ref.Valid {
		o.ProviderRef = &ref.String
	}
	if userID.Valid {
		o.UserID = &userID.Int64
	}
	if email.Valid {
		o.GuestEmail = &email.String
	}
	return &o, nil
}

func findOrder(ctx context.Context, q querier, where string, arg any) (*order.Order, error) {
	o, err := scanOrder(q.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders `+where, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, order.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load order: %w", err)
	}

	lines, err := loadLines(ctx, q, []string{o.ID})
	if err != nil {
		return nil, err
	}
	o.Lines = lines[o.ID]
	return o, nil
}

func listOrders(ctx context.Context, q querier, where string, args ...any) ([]*order.Order, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+orderColumns+` FROM orders `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	var (
		orders []*order.Order
		ids    []string
	)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
		ids = append(ids, o.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return orders, nil
	}

	lines, err := loadLines(ctx, q, ids)
	if err != nil {
		return nil, err
	}
	for _, o := range orders {
		o.Lines = lines[o.ID]
	}
	return orders, nil
}

func loadLines(ctx context.Context, q querier, orderIDs []string) (map[string][]order.Line, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT order_id, item_id, quantity, unit_price, subtotal
		 FROM order_lines
		 WHERE order_id = ANY($1::uuid[])
		 ORDER BY order_id, item_id`, pq.Array(orderIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to load order lines: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]order.Line, len(orderIDs))
	for rows.Next() {
		var l order.Line
		if err := rows.Scan(&l.OrderID, &l.ItemID, &l.Quantity, &l.UnitPrice, &l.Subtotal); err != nil {
			return nil, err
		}
		out[l.OrderID] = append(out[l.OrderID], l)
	}
	return out, rows.Err()
}
