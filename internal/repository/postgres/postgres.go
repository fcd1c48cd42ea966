package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/weatherapp/backend/internal/domain"
)

const schema = `
	CREATE TABLE IF NOT EXISTS weather_lookups (
		id          BIGSERIAL PRIMARY KEY,
		query       TEXT        NOT NULL,
		unit        TEXT        NOT NULL,
		city        TEXT        NOT NULL,
		country     TEXT        NOT NULL,
		temperature DOUBLE PRECISION NOT NULL,
		snapshot    JSONB       NOT NULL,
		session_id  TEXT        NOT NULL DEFAULT '',
		created_at  TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS weather_lookups_created_at_idx ON weather_lookups (created_at DESC);
`

// PostgresRepository implements domain.LookupRepository
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// EnsureSchema creates the lookup table if it does not exist
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("postgres: failed to create schema: %w", err)
	}
	return nil
}

// SaveLookup persists a lookup to PostgreSQL
func (r *PostgresRepository) SaveLookup(ctx context.Context, l domain.Lookup) error {
	snapshot, err := json.Marshal(l.Weather)
	if err != nil {
		return fmt.Errorf("postgres: failed to encode snapshot: %w", err)
	}

	query := `
		INSERT INTO weather_lookups (
			query, unit, city, country, temperature, snapshot, session_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err = r.pool.Exec(ctx, query,
		l.Query, string(l.Unit), l.Weather.Name, l.Weather.Country, l.Weather.Temperature,
		snapshot, l.SessionID, l.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: failed to save lookup: %w", err)
	}

	return nil
}

// RecentLookups retrieves the newest lookups from PostgreSQL
func (r *PostgresRepository) RecentLookups(ctx context.Context, limit int) ([]domain.Lookup, error) {
	query := `
		SELECT query, unit, snapshot, session_id, created_at
		FROM weather_lookups
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query lookups: %w", err)
	}
	defer rows.Close()

	results := make([]domain.Lookup, 0, limit)
	for rows.Next() {
		var (
			l        domain.Lookup
			unit     string
			snapshot []byte
		)
		if err := rows.Scan(&l.Query, &unit, &snapshot, &l.SessionID, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan lookup row: %w", err)
		}
		if err := json.Unmarshal(snapshot, &l.Weather); err != nil {
			return nil, fmt.Errorf("postgres: failed to decode snapshot: %w", err)
		}
		l.Unit = domain.UnitSystem(unit)
		results = append(results, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: failed to read lookups: %w", err)
	}

	return results, nil
}

// Health checks database connectivity
func (r *PostgresRepository) Health(ctx context.Context) error {
	if err := r.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres: health check failed: %w", err)
	}
	return nil
}
