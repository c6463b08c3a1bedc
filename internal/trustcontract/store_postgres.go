package trustcontract

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

// PostgresStore persists contracts. A partial unique index on
// (factory, supplier) WHERE status <> 'rejected' enforces the single-active
// invariant at the database level.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, contract domain.Contract) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO contracts (id, factory, supplier, description, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, contract.ID, contract.Factory, contract.Supplier, contract.Description,
		string(contract.Status), contract.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert contract: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, contractID string) (domain.Contract, error) {
	return s.scanOne(s.db.QueryRowContext(ctx, `
		SELECT id, factory, supplier, description, status, created_at, decided_at
		FROM contracts WHERE id = $1
	`, contractID))
}

func (s *PostgresStore) Decide(ctx context.Context, contractID string, status domain.ContractStatus, at time.Time) (domain.Contract, error) {
	contract, err := s.scanOne(s.db.QueryRowContext(ctx, `
		UPDATE contracts
		SET status = $2, decided_at = $3
		WHERE id = $1 AND status = 'pending'
		RETURNING id, factory, supplier, description, status, created_at, decided_at
	`, contractID, string(status), at))
	if errors.Is(err, sentinel.ErrNotFound) {
		// Distinguish missing from already-decided for the service.
		if _, getErr := s.Get(ctx, contractID); getErr == nil {
			return domain.Contract{}, sentinel.ErrInvalidState
		}
		return domain.Contract{}, sentinel.ErrNotFound
	}
	return contract, err
}

func (s *PostgresStore) Delete(ctx context.Context, contractID, factory string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM contracts WHERE id = $1 AND factory = $2
	`, contractID, factory)
	if err != nil {
		return fmt.Errorf("delete contract: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete contract: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, filter Filter) ([]domain.Contract, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, factory, supplier, description, status, created_at, decided_at
		FROM contracts
		WHERE ($1 = '' OR factory = $1)
		  AND ($2 = '' OR supplier = $2)
		  AND ($3 = '' OR status = $3)
		ORDER BY created_at ASC
	`, filter.Factory, filter.Supplier, string(filter.Status))
	if err != nil {
		return nil, fmt.Errorf("list contracts: %w", err)
	}
	defer rows.Close()

	var contracts []domain.Contract
	for rows.Next() {
		contract, err := s.scanOne(rows)
		if err != nil {
			return nil, err
		}
		contracts = append(contracts, contract)
	}
	return contracts, rows.Err()
}

func (s *PostgresStore) FindAccepted(ctx context.Context, factory, supplier string) (domain.Contract, error) {
	return s.scanOne(s.db.QueryRowContext(ctx, `
		SELECT id, factory, supplier, description, status, created_at, decided_at
		FROM contracts
		WHERE factory = $1 AND supplier = $2 AND status = 'accepted'
	`, factory, supplier))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *PostgresStore) scanOne(row rowScanner) (domain.Contract, error) {
	var (
		contract  domain.Contract
		status    string
		decidedAt sql.NullTime
	)
	err := row.Scan(&contract.ID, &contract.Factory, &contract.Supplier,
		&contract.Description, &status, &contract.CreatedAt, &decidedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Contract{}, sentinel.ErrNotFound
	}
	if err != nil {
		return domain.Contract{}, fmt.Errorf("scan contract: %w", err)
	}
	contract.Status = domain.ContractStatus(status)
	if decidedAt.Valid {
		contract.DecidedAt = &decidedAt.Time
	}
	return contract, nil
}

var _ Store = (*PostgresStore)(nil)
