package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"geoscore/internal/region/models"
	id "geoscore/pkg/domain"
	"geoscore/pkg/platform/sentinel"
	txcontext "geoscore/pkg/platform/tx"
)

// PostgresStore persists regions. Uniqueness of (name, country_code) is
// enforced by the regions_name_country_key constraint.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// ResolveOrCreate returns the id for key, inserting the region when absent.
// Concurrent callers with the same key all receive the id of the single row.
func (s *PostgresStore) ResolveOrCreate(ctx context.Context, key models.Key, now time.Time) (id.RegionID, bool, error) {
	var regionID int64
	err := s.execer(ctx).QueryRowContext(ctx, `
		INSERT INTO regions (name, country_code, region_name, created_at)
		VALUES ($1, $2, NULLIF($3, ''), $4)
		ON CONFLICT (name, country_code) DO NOTHING
		RETURNING id
	`, key.Name, key.CountryCode, key.RegionName, now).Scan(&regionID)
	if err == nil {
		return id.RegionID(regionID), true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, false, fmt.Errorf("insert region: %w", err)
	}

	err = s.execer(ctx).QueryRowContext(ctx, `
		SELECT id FROM regions WHERE name = $1 AND country_code = $2
	`, key.Name, key.CountryCode).Scan(&regionID)
	if err != nil {
		return 0, false, fmt.Errorf("lookup region after conflict: %w", err)
	}
	return id.RegionID(regionID), false, nil
}

// Upsert inserts or refreshes a region's display name and center.
func (s *PostgresStore) Upsert(ctx context.Context, key models.Key, center *models.Coordinates, now time.Time) (id.RegionID, error) {
	var lat, lon sql.NullFloat64
	if center != nil {
		lat = sql.NullFloat64{Float64: center.Lat, Valid: true}
		lon = sql.NullFloat64{Float64: center.Lon, Valid: true}
	}
	var regionID int64
	err := s.execer(ctx).QueryRowContext(ctx, `
		INSERT INTO regions (name, country_code, region_name, center_lat, center_lon, created_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6)
		ON CONFLICT (name, country_code) DO UPDATE SET
			region_name = COALESCE(EXCLUDED.region_name, regions.region_name),
			center_lat = COALESCE(EXCLUDED.center_lat, regions.center_lat),
			center_lon = COALESCE(EXCLUDED.center_lon, regions.center_lon)
		RETURNING id
	`, key.Name, key.CountryCode, key.RegionName, lat, lon, now).Scan(&regionID)
	if err != nil {
		return 0, fmt.Errorf("upsert region: %w", err)
	}
	return id.RegionID(regionID), nil
}

const regionColumns = `id, name, country_code, region_name, center_lat, center_lon, created_at`

func (s *PostgresStore) FindByID(ctx context.Context, regionID id.RegionID) (*models.Region, error) {
	r, err := scanRegion(s.execer(ctx).QueryRowContext(ctx,
		`SELECT `+regionColumns+` FROM regions WHERE id = $1`, int64(regionID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find region: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) FindByKey(ctx context.Context, key models.Key) (*models.Region, error) {
	r, err := scanRegion(s.execer(ctx).QueryRowContext(ctx,
		`SELECT `+regionColumns+` FROM regions WHERE name = $1 AND country_code = $2`, key.Name, key.CountryCode))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find region by key: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) ListWithCenters(ctx context.Context) ([]*models.Region, error) {
	return s.list(ctx, `SELECT `+regionColumns+` FROM regions WHERE center_lat IS NOT NULL ORDER BY id`)
}

func (s *PostgresStore) List(ctx context.Context) ([]*models.Region, error) {
	return s.list(ctx, `SELECT `+regionColumns+` FROM regions ORDER BY id`)
}

func (s *PostgresStore) list(ctx context.Context, query string) ([]*models.Region, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list regions: %w", err)
	}
	defer rows.Close()

	var out []*models.Region
	for rows.Next() {
		r, err := scanRegion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan region: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRegion(row rowScanner) (*models.Region, error) {
	var (
		r          models.Region
		regionID   int64
		regionName sql.NullString
		lat, lon   sql.NullFloat64
	)
	if err := row.Scan(&regionID, &r.Name, &r.CountryCode, &regionName, &lat, &lon, &r.CreatedAt); err != nil {
		return nil, err
	}
	r.ID = id.RegionID(regionID)
	r.RegionName = regionName.String
	if lat.Valid && lon.Valid {
		r.Center = &models.Coordinates{Lat: lat.Float64, Lon: lon.Float64}
	}
	return &r, nil
}
