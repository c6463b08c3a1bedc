// Package directory exposes read access to the account records maintained
// by the authentication collaborator. The core only needs identity, role,
// wallet address and location.
package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"medtrace/internal/domain"
	"medtrace/pkg/sentinel"
)

// Directory resolves an account ID to its verified identity attributes.
type Directory interface {
	FindByID(ctx context.Context, id string) (domain.Actor, error)
}

// Memory is a map-backed directory for tests and development.
type Memory struct {
	mu     sync.RWMutex
	actors map[string]domain.Actor
}

func NewMemory() *Memory {
	return &Memory{actors: make(map[string]domain.Actor)}
}

// Put registers an actor.
func (m *Memory) Put(actor domain.Actor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actors[actor.ID] = actor
}

func (m *Memory) FindByID(_ context.Context, id string) (domain.Actor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	actor, ok := m.actors[id]
	if !ok {
		return domain.Actor{}, sentinel.ErrNotFound
	}
	return actor, nil
}

// Postgres reads accounts written by the auth collaborator.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) FindByID(ctx context.Context, id string) (domain.Actor, error) {
	var actor domain.Actor
	var role string
	err := p.db.QueryRowContext(ctx, `
		SELECT id, role, wallet_address, location FROM accounts WHERE id = $1
	`, id).Scan(&actor.ID, &role, &actor.WalletAddress, &actor.Location)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Actor{}, sentinel.ErrNotFound
	}
	if err != nil {
		return domain.Actor{}, fmt.Errorf("find account: %w", err)
	}
	actor.Role = domain.Role(role)
	return actor, nil
}

var (
	_ Directory = (*Memory)(nil)
	_ Directory = (*Postgres)(nil)
)
