package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/velowatch/velowatch/internal/bikes"
)

// PostgresStore implements bikes.Repository on top of a pgx pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to databaseURL and makes sure the schema
// exists.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, storeErr(err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the pool resources.
func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS locations (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			capacity INT NOT NULL DEFAULT 0,
			coordinates TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			id UUID PRIMARY KEY,
			location_id BIGINT NOT NULL REFERENCES locations(id),
			avail_bikes INT NOT NULL,
			free_stands INT NOT NULL,
			ts TIMESTAMPTZ NOT NULL,
			weekend BOOLEAN NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS snapshots_ts_idx ON snapshots (ts)`,
		`CREATE TABLE IF NOT EXISTS stats (
			location_id BIGINT NOT NULL REFERENCES locations(id),
			time_bucket TEXT NOT NULL,
			weekend BOOLEAN NOT NULL,
			month DATE NOT NULL,
			sample_count INT NOT NULL,
			avail_bikes_mean DOUBLE PRECISION NOT NULL,
			avail_bikes_sd DOUBLE PRECISION NOT NULL,
			free_stands_mean DOUBLE PRECISION NOT NULL,
			free_stands_sd DOUBLE PRECISION NOT NULL,
			UNIQUE (location_id, time_bucket, weekend, month)
		)`,
		`CREATE TABLE IF NOT EXISTS closed_periods (
			month DATE PRIMARY KEY,
			closed_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	}
	for _, stmt := range ddl {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return storeErr(err)
		}
	}
	return nil
}

// GetOrCreateLocation upserts by name in a single statement, so the
// uniqueness constraint, not a read-then-write sequence, decides who
// creates. The xmax = 0 check reports whether the row was inserted.
func (s *PostgresStore) GetOrCreateLocation(ctx context.Context, name string, capacity int, coordinates string) (bikes.Location, bool, error) {
	var loc bikes.Location
	var created bool

	err := s.pool.QueryRow(ctx, `
INSERT INTO locations (name, capacity, coordinates)
VALUES ($1, $2, $3)
ON CONFLICT (name) DO UPDATE
SET capacity = EXCLUDED.capacity,
    coordinates = EXCLUDED.coordinates,
    updated_at = NOW()
RETURNING id, name, capacity, coordinates, (xmax = 0)`,
		name, capacity, coordinates,
	).Scan(&loc.ID, &loc.Name, &loc.Capacity, &loc.Coordinates, &created)
	if err != nil {
		return bikes.Location{}, false, storeErr(err)
	}
	return loc, created, nil
}

// AppendSnapshot inserts one snapshot row.
func (s *PostgresStore) AppendSnapshot(ctx context.Context, snap bikes.Snapshot) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO snapshots (id, location_id, avail_bikes, free_stands, ts, weekend)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO NOTHING`,
		snap.ID, snap.LocationID, snap.AvailBikes, snap.FreeStands, snap.Timestamp, snap.Weekend)
	if err != nil {
		return storeErr(err)
	}
	return nil
}

// QuerySnapshots returns snapshots with from <= ts < to, ordered by ts.
func (s *PostgresStore) QuerySnapshots(ctx context.Context, from, to time.Time) ([]bikes.Snapshot, error) {
	query := `
SELECT id, location_id, avail_bikes, free_stands, ts, weekend
FROM snapshots
WHERE ts < $1`
	args := []any{to}
	if !from.IsZero() {
		query += ` AND ts >= $2`
		args = append(args, from)
	}
	query += ` ORDER BY ts`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, storeErr(err)
	}
	defer rows.Close()

	var result []bikes.Snapshot
	for rows.Next() {
		var snap bikes.Snapshot
		if err := rows.Scan(&snap.ID, &snap.LocationID, &snap.AvailBikes, &snap.FreeStands, &snap.Timestamp, &snap.Weekend); err != nil {
			return nil, storeErr(err)
		}
		result = append(result, snap)
	}
	return result, storeErrOrNil(rows.Err())
}

// DeleteSnapshots removes the given ids; missing ids are ignored.
func (s *PostgresStore) DeleteSnapshots(ctx context.Context, ids []uuid.UUID) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM snapshots WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, storeErr(err)
	}
	return int(tag.RowsAffected()), nil
}

// ReplacePeriodStats swaps the month's stats and marks it closed in one
// transaction, so a crash mid-run leaves no partial aggregation.
func (s *PostgresStore) ReplacePeriodStats(ctx context.Context, month time.Time, stats []bikes.Stat) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return storeErr(err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM stats WHERE month = $1`, month); err != nil {
		return storeErr(err)
	}

	for _, st := range stats {
		_, err := tx.Exec(ctx, `
INSERT INTO stats (location_id, time_bucket, weekend, month, sample_count,
                   avail_bikes_mean, avail_bikes_sd, free_stands_mean, free_stands_sd)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			st.LocationID, st.TimeBucket, st.Weekend, month, st.SampleCount,
			st.AvailBikesMean, st.AvailBikesSD, st.FreeStandsMean, st.FreeStandsSD)
		if err != nil {
			return storeErr(err)
		}
	}

	if _, err := tx.Exec(ctx, `
INSERT INTO closed_periods (month) VALUES ($1)
ON CONFLICT (month) DO UPDATE SET closed_at = NOW()`, month); err != nil {
		return storeErr(err)
	}

	return storeErrOrNil(tx.Commit(ctx))
}

// StatsForMonth returns the stats recorded for a month.
func (s *PostgresStore) StatsForMonth(ctx context.Context, month time.Time) ([]bikes.Stat, error) {
	rows, err := s.pool.Query(ctx, `
SELECT location_id, time_bucket, weekend, month, sample_count,
       avail_bikes_mean, avail_bikes_sd, free_stands_mean, free_stands_sd
FROM stats
WHERE month = $1
ORDER BY location_id, time_bucket, weekend`, month)
	if err != nil {
		return nil, storeErr(err)
	}
	defer rows.Close()

	var result []bikes.Stat
	for rows.Next() {
		var st bikes.Stat
		if err := rows.Scan(&st.LocationID, &st.TimeBucket, &st.Weekend, &st.Month, &st.SampleCount,
			&st.AvailBikesMean, &st.AvailBikesSD, &st.FreeStandsMean, &st.FreeStandsSD); err != nil {
			return nil, storeErr(err)
		}
		result = append(result, st)
	}
	return result, storeErrOrNil(rows.Err())
}

// IsPeriodClosed reports whether the month has a durable aggregation.
func (s *PostgresStore) IsPeriodClosed(ctx context.Context, month time.Time) (bool, error) {
	var closed bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM closed_periods WHERE month = $1)`, month).Scan(&closed)
	if err != nil {
		return false, storeErr(err)
	}
	return closed, nil
}

// ClosedPeriods lists all closed months.
func (s *PostgresStore) ClosedPeriods(ctx context.Context) ([]time.Time, error) {
	rows, err := s.pool.Query(ctx, `SELECT month FROM closed_periods ORDER BY month`)
	if err != nil {
		return nil, storeErr(err)
	}
	defer rows.Close()

	var months []time.Time
	for rows.Next() {
		var m time.Time
		if err := rows.Scan(&m); err != nil {
			return nil, storeErr(err)
		}
		months = append(months, m)
	}
	return months, storeErrOrNil(rows.Err())
}

// Locations lists all known locations ordered by id.
func (s *PostgresStore) Locations(ctx context.Context) ([]bikes.Location, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, capacity, coordinates FROM locations ORDER BY id`)
	if err != nil {
		return nil, storeErr(err)
	}
	defer rows.Close()

	var locs []bikes.Location
	for rows.Next() {
		var loc bikes.Location
		if err := rows.Scan(&loc.ID, &loc.Name, &loc.Capacity, &loc.Coordinates); err != nil {
			return nil, storeErr(err)
		}
		locs = append(locs, loc)
	}
	return locs, storeErrOrNil(rows.Err())
}

func storeErr(err error) error {
	return fmt.Errorf("%w: %v", bikes.ErrStoreUnavailable, err)
}

func storeErrOrNil(err error) error {
	if err == nil {
		return nil
	}
	return storeErr(err)
}
