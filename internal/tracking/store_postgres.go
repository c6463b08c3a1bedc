package tracking

import (
	"context"
	"database/sql"
	"fmt"

	"medtrace/internal/domain"
)

// PostgresStore persists custody events in an insert-only table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, event domain.CustodyEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO custody_events (id, serial, from_owner, to_owner, location, medicine_name, ledger_tx_ref, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, event.ID, event.Serial, event.FromOwner, event.ToOwner, event.Location,
		event.MedicineName, event.LedgerTxRef, event.Timestamp)
	if err != nil {
		return fmt.Errorf("insert custody event: %w", err)
	}
	return nil
}

func (s *PostgresStore) History(ctx context.Context, serial string) ([]domain.CustodyEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, serial, from_owner, to_owner, location, medicine_name, ledger_tx_ref, occurred_at
		FROM custody_events
		WHERE serial = $1
		ORDER BY occurred_at ASC, id ASC
	`, serial)
	if err != nil {
		return nil, fmt.Errorf("query custody events: %w", err)
	}
	defer rows.Close()

	var events []domain.CustodyEvent
	for rows.Next() {
		var event domain.CustodyEvent
		if err := rows.Scan(&event.ID, &event.Serial, &event.FromOwner, &event.ToOwner,
			&event.Location, &event.MedicineName, &event.LedgerTxRef, &event.Timestamp); err != nil {
			return nil, fmt.Errorf("scan custody event: %w", err)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

var _ Store = (*PostgresStore)(nil)
