package order

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"medtrace/internal/domain"
	"medtrace/pkg/sentinel"
)

// PostgresStore persists orders. A partial unique index on batch_id WHERE
// status = 'pending' keeps one open order per batch.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, order domain.Order) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO orders (id, factory, supplier, batch_id, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, order.ID, order.Factory, order.Supplier, order.BatchID, string(order.Status), order.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, orderID string) (domain.Order, error) {
	return scanOrder(s.db.QueryRowContext(ctx, `
		SELECT id, factory, supplier, batch_id, status, created_at, decided_at
		FROM orders WHERE id = $1
	`, orderID))
}

func (s *PostgresStore) Decide(ctx context.Context, orderID string, status domain.OrderStatus, at time.Time) (domain.Order, error) {
	order, err := scanOrder(s.db.QueryRowContext(ctx, `
		UPDATE orders
		SET status = $2, decided_at = $3
		WHERE id = $1 AND status = 'pending'
		RETURNING id, factory, supplier, batch_id, status, created_at, decided_at
	`, orderID, string(status), at))
	if errors.Is(err, sentinel.ErrNotFound) {
		if _, getErr := s.Get(ctx, orderID); getErr == nil {
			return domain.Order{}, sentinel.ErrInvalidState
		}
		return domain.Order{}, sentinel.ErrNotFound
	}
	return order, err
}

func (s *PostgresStore) Cancel(ctx context.Context, orderID, factory string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM orders WHERE id = $1 AND factory = $2 AND status = 'pending'
	`, orderID, factory)
	if err != nil {
		return fmt.Errorf("cancel order: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("cancel order: %w", err)
	}
	if affected == 0 {
		if _, getErr := s.Get(ctx, orderID); getErr == nil {
			return sentinel.ErrInvalidState
		}
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, filter Filter) ([]domain.Order, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, factory, supplier, batch_id, status, created_at, decided_at
		FROM orders
		WHERE ($1 = '' OR factory = $1)
		  AND ($2 = '' OR supplier = $2)
		  AND ($3 = '' OR status = $3)
		ORDER BY created_at ASC
	`, filter.Factory, filter.Supplier, string(filter.Status))
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

func (s *PostgresStore) FindAcceptedForBatch(ctx context.Context, batchID, supplier string) (domain.Order, error) {
	return scanOrder(s.db.QueryRowContext(ctx, `
		SELECT id, factory, supplier, batch_id, status, created_at, decided_at
		FROM orders
		WHERE batch_id = $1 AND supplier = $2 AND status = 'accepted'
		ORDER BY created_at DESC
		LIMIT 1
	`, batchID, supplier))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order     domain.Order
		status    string
		decidedAt sql.NullTime
	)
	err := row.Scan(&order.ID, &order.Factory, &order.Supplier, &order.BatchID,
		&status, &order.CreatedAt, &decidedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Order{}, sentinel.ErrNotFound
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("scan order: %w", err)
	}
	order.Status = domain.OrderStatus(status)
	if decidedAt.Valid {
		order.DecidedAt = &decidedAt.Time
	}
	return order, nil
}

var _ Store = (*PostgresStore)(nil)
