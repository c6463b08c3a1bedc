package batch

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"medtrace/internal/domain"
	"medtrace/pkg/sentinel"
)

// PostgresStore persists batches and units. Batch numbers come from a
// per-factory counter row updated atomically, so concurrent creations for
// one factory can never draw the same number.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) NextBatchNumber(ctx context.Context, factory string) (int, error) {
	var seq int
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO batch_counters (factory, seq)
		VALUES ($1, 1)
		ON CONFLICT (factory) DO UPDATE SET seq = batch_counters.seq + 1
		RETURNING seq
	`, factory).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("next batch number: %w", err)
	}
	return seq, nil
}

func (s *PostgresStore) CreateBatch(ctx context.Context, batch domain.Batch, units []domain.Unit) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create batch: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO batches (
			id, batch_number, factory, owner, medicine_name, generic_name,
			price, quantity, status, production_date, expiration_date, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, batch.ID, batch.BatchNumber, batch.Factory, batch.Owner, batch.MedicineName,
		batch.GenericName, batch.Price, batch.Quantity, string(batch.Status),
		batch.ProductionDate, batch.ExpirationDate, batch.CreatedAt)
	if err != nil {
		return translateUnique(err, "insert batch")
	}

	for _, unit := range units {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO units (
				serial, batch_id, factory, medicine_name, generic_name,
				price, owner, location, sold, production_date, expiration_date
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		`, unit.Serial, unit.BatchID, unit.Factory, unit.MedicineName, unit.GenericName,
			unit.Price, unit.Owner, unit.Location, unit.SoldToPatient,
			unit.ProductionDate, unit.ExpirationDate)
		if err != nil {
			return translateUnique(err, "insert unit")
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create batch: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetBatch(ctx context.Context, batchID string) (domain.Batch, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, batch_number, factory, owner, medicine_name, generic_name,
		       price, quantity, status, production_date, expiration_date, created_at
		FROM batches
		WHERE id = $1
	`, batchID)
	batch, err := scanBatch(row)
	if err != nil {
		return domain.Batch{}, err
	}
	serials, err := s.batchSerials(ctx, batchID)
	if err != nil {
		return domain.Batch{}, err
	}
	batch.Serials = serials
	return batch, nil
}

func (s *PostgresStore) ListBatches(ctx context.Context, filter Filter) ([]domain.Batch, error) {
	query := `
		SELECT id, batch_number, factory, owner, medicine_name, generic_name,
		       price, quantity, status, production_date, expiration_date, created_at
		FROM batches
		WHERE ($1 = '' OR factory = $1)
		  AND ($2 = '' OR owner = $2)
		  AND ($3 = '' OR status = $3)
		ORDER BY created_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, filter.Factory, filter.Owner, string(filter.Status))
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	defer rows.Close()

	var batches []domain.Batch
	for rows.Next() {
		batch, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, batch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate batches: %w", err)
	}
	return batches, nil
}

func (s *PostgresStore) DeleteBatch(ctx context.Context, batchID, factory string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete batch: %w", err)
	}
	defer tx.Rollback()

	var status string
	err = tx.QueryRowContext(ctx, `
		SELECT status FROM batches WHERE id = $1 AND factory = $2 FOR UPDATE
	`, batchID, factory).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return sentinel.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lock batch: %w", err)
	}
	if domain.BatchStatus(status) != domain.BatchPending {
		return sentinel.ErrInvalidState
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM units WHERE batch_id = $1`, batchID); err != nil {
		return fmt.Errorf("delete units: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM batches WHERE id = $1`, batchID); err != nil {
		return fmt.Errorf("delete batch: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete batch: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateBatchOwnerStatus(ctx context.Context, batchID, owner string, status domain.BatchStatus) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE batches
		SET owner = $2, status = $3
		WHERE id = $1
		  AND ((status = 'pending' AND $3 IN ('received', 'delivered'))
		    OR (status = 'received' AND $3 = 'delivered'))
	`, batchID, owner, string(status))
	if err != nil {
		return fmt.Errorf("update batch owner: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update batch owner: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrInvalidState
	}
	return nil
}

func (s *PostgresStore) GetUnit(ctx context.Context, serial string) (domain.Unit, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT serial, batch_id, factory, medicine_name, generic_name,
		       price, owner, location, sold, production_date, expiration_date
		FROM units
		WHERE serial = $1
	`, serial)
	return scanUnit(row)
}

func (s *PostgresStore) UnitsByBatch(ctx context.Context, batchID string) ([]domain.Unit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT serial, batch_id, factory, medicine_name, generic_name,
		       price, owner, location, sold, production_date, expiration_date
		FROM units
		WHERE batch_id = $1
		ORDER BY serial ASC
	`, batchID)
	if err != nil {
		return nil, fmt.Errorf("units by batch: %w", err)
	}
	defer rows.Close()

	var units []domain.Unit
	for rows.Next() {
		unit, err := scanUnit(rows)
		if err != nil {
			return nil, err
		}
		units = append(units, unit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate units: %w", err)
	}
	return units, nil
}

func (s *PostgresStore) SerialExists(ctx context.Context, serial string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM units WHERE serial = $1)`, serial).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("serial exists: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) UpdateUnitOwner(ctx context.Context, serial, fromOwner, toOwner, location string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE units
		SET owner = $3, location = $4
		WHERE serial = $1 AND owner = $2 AND sold = FALSE
	`, serial, fromOwner, toOwner, location)
	if err != nil {
		return fmt.Errorf("update unit owner: %w", err)
	}
	return affectedOrConflict(ctx, s, serial, result)
}

func (s *PostgresStore) MarkUnitSold(ctx context.Context, serial, owner string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE units
		SET sold = TRUE
		WHERE serial = $1 AND owner = $2 AND sold = FALSE
	`, serial, owner)
	if err != nil {
		return fmt.Errorf("mark unit sold: %w", err)
	}
	return affectedOrConflict(ctx, s, serial, result)
}

func affectedOrConflict(ctx context.Context, s *PostgresStore, serial string, result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}
	if _, err := s.GetUnit(ctx, serial); errors.Is(err, sentinel.ErrNotFound) {
		return sentinel.ErrNotFound
	}
	return sentinel.ErrConflict
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBatch(row rowScanner) (domain.Batch, error) {
	var (
		batch  domain.Batch
		status string
	)
	err := row.Scan(&batch.ID, &batch.BatchNumber, &batch.Factory, &batch.Owner,
		&batch.MedicineName, &batch.GenericName, &batch.Price, &batch.Quantity,
		&status, &batch.ProductionDate, &batch.ExpirationDate, &batch.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Batch{}, sentinel.ErrNotFound
	}
	if err != nil {
		return domain.Batch{}, fmt.Errorf("scan batch: %w", err)
	}
	batch.Status = domain.BatchStatus(status)
	return batch, nil
}

func scanUnit(row rowScanner) (domain.Unit, error) {
	var unit domain.Unit
	err := row.Scan(&unit.Serial, &unit.BatchID, &unit.Factory, &unit.MedicineName,
		&unit.GenericName, &unit.Price, &unit.Owner, &unit.Location, &unit.SoldToPatient,
		&unit.ProductionDate, &unit.ExpirationDate)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Unit{}, sentinel.ErrNotFound
	}
	if err != nil {
		return domain.Unit{}, fmt.Errorf("scan unit: %w", err)
	}
	return unit, nil
}

func (s *PostgresStore) batchSerials(ctx context.Context, batchID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT serial FROM units WHERE batch_id = $1 ORDER BY serial ASC`, batchID)
	if err != nil {
		return nil, fmt.Errorf("batch serials: %w", err)
	}
	defer rows.Close()

	var serials []string
	for rows.Next() {
		var serial string
		if err := rows.Scan(&serial); err != nil {
			return nil, fmt.Errorf("scan serial: %w", err)
		}
		serials = append(serials, serial)
	}
	return serials, rows.Err()
}

// translateUnique converts unique-violation errors into the conflict
// sentinel so the service can retry serial generation.
func translateUnique(err error, op string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return sentinel.ErrConflict
	}
	return fmt.Errorf("%s: %w", op, err)
}

var _ Store = (*PostgresStore)(nil)
