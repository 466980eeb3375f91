// Package directory resolves user and vessel display names. The fleet
// directory is maintained elsewhere; the procurement core only reads it to
// snapshot names at creation time so documents survive account deletion.
package directory

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound indicates a missing directory entry.
var ErrNotFound = errors.New("directory: not found")

// Vessel is a fleet directory entry.
type Vessel struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Repository provides PostgreSQL backed lookups.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// UserName returns the display name for a user id.
func (r *Repository) UserName(ctx context.Context, id string) (string, error) {
	var name string
	err := r.pool.QueryRow(ctx, `SELECT name FROM users WHERE id=$1`, id).Scan(&name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	return name, nil
}

// VesselName returns the display name for a vessel id.
func (r *Repository) VesselName(ctx context.Context, id string) (string, error) {
	var name string
	err := r.pool.QueryRow(ctx, `SELECT name FROM vessels WHERE id=$1`, id).Scan(&name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	return name, nil
}

// Vessels lists the fleet, ordered by name.
func (r *Repository) Vessels(ctx context.Context) ([]Vessel, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name FROM vessels ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var vessels []Vessel
	for rows.Next() {
		var v Vessel
		if err := rows.Scan(&v.ID, &v.Name); err != nil {
			return nil, err
		}
		vessels = append(vessels, v)
	}
	return vessels, rows.Err()
}
