package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"geoscore/internal/score/models"
	id "geoscore/pkg/domain"
	"geoscore/pkg/platform/sentinel"
	txcontext "geoscore/pkg/platform/tx"
)

// PostgresStore persists running aggregates. Every write is a single
// upsert so concurrent folds never lose an increment.
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

// Fold adds one confirmation to the address and region aggregates. Callers
// run it inside the confirming transaction.
func (s *PostgresStore) Fold(ctx context.Context, addr id.UserAddress, regionID id.RegionID, score decimal.Decimal, now time.Time) error {
	exec := s.execer(ctx)

	if _, err := exec.ExecContext(ctx, `
		INSERT INTO address_region_aggregates
			(user_address, region_id, tx_count, total_score, first_confirmed_at, last_confirmed_at)
		VALUES ($1, $2, 1, $3, $4, $4)
		ON CONFLICT (user_address, region_id) DO UPDATE SET
			tx_count = address_region_aggregates.tx_count + 1,
			total_score = address_region_aggregates.total_score + EXCLUDED.total_score,
			first_confirmed_at = COALESCE(address_region_aggregates.first_confirmed_at, EXCLUDED.first_confirmed_at),
			last_confirmed_at = EXCLUDED.last_confirmed_at
	`, string(addr), int64(regionID), score, now); err != nil {
		return fmt.Errorf("fold address aggregate: %w", err)
	}

	if _, err := exec.ExecContext(ctx, `
		INSERT INTO region_aggregates (region_id, tx_count, total_score, last_confirmed_at)
		VALUES ($1, 1, $2, $3)
		ON CONFLICT (region_id) DO UPDATE SET
			tx_count = region_aggregates.tx_count + 1,
			total_score = region_aggregates.total_score + EXCLUDED.total_score,
			last_confirmed_at = EXCLUDED.last_confirmed_at
	`, int64(regionID), score, now); err != nil {
		return fmt.Errorf("fold region aggregate: %w", err)
	}
	return nil
}

func (s *PostgresStore) RegionAggregate(ctx context.Context, regionID id.RegionID) (*models.RegionAggregate, error) {
	agg, err := scanRegionAggregate(s.execer(ctx).QueryRowContext(ctx, `
		SELECT region_id, tx_count, total_score, last_confirmed_at
		FROM region_aggregates WHERE region_id = $1
	`, int64(regionID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find region aggregate: %w", err)
	}
	return agg, nil
}

func (s *PostgresStore) AddressRegionAggregate(ctx context.Context, addr id.UserAddress, regionID id.RegionID) (*models.AddressRegionAggregate, error) {
	agg, err := scanAddressAggregate(s.execer(ctx).QueryRowContext(ctx, `
		SELECT user_address, region_id, tx_count, total_score, first_confirmed_at, last_confirmed_at
		FROM address_region_aggregates WHERE user_address = $1 AND region_id = $2
	`, string(addr), int64(regionID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find address aggregate: %w", err)
	}
	return agg, nil
}

func (s *PostgresStore) ListRegionAggregates(ctx context.Context) ([]*models.RegionAggregate, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT region_id, tx_count, total_score, last_confirmed_at
		FROM region_aggregates ORDER BY region_id
	`)
	if err != nil {
		return nil, fmt.Errorf("list region aggregates: %w", err)
	}
	defer rows.Close()

	var out []*models.RegionAggregate
	for rows.Next() {
		agg, err := scanRegionAggregate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan region aggregate: %w", err)
		}
		out = append(out, agg)
	}
	return out, rows.Err()
}

// ListAddressAggregates returns every address aggregate in a region, highest
// total first.
func (s *PostgresStore) ListAddressAggregates(ctx context.Context, regionID id.RegionID) ([]*models.AddressRegionAggregate, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT user_address, region_id, tx_count, total_score, first_confirmed_at, last_confirmed_at
		FROM address_region_aggregates WHERE region_id = $1
		ORDER BY total_score DESC, user_address
	`, int64(regionID))
	if err != nil {
		return nil, fmt.Errorf("list address aggregates: %w", err)
	}
	defer rows.Close()

	var out []*models.AddressRegionAggregate
	for rows.Next() {
		agg, err := scanAddressAggregate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan address aggregate: %w", err)
		}
		out = append(out, agg)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRegionAggregate(row rowScanner) (*models.RegionAggregate, error) {
	var (
		agg      models.RegionAggregate
		regionID int64
		last     sql.NullTime
	)
	if err := row.Scan(&regionID, &agg.TxCount, &agg.TotalScore, &last); err != nil {
		return nil, err
	}
	agg.RegionID = id.RegionID(regionID)
	agg.LastConfirmedAt = last.Time
	return &agg, nil
}

func scanAddressAggregate(row rowScanner) (*models.AddressRegionAggregate, error) {
	var (
		agg         models.AddressRegionAggregate
		addr        string
		regionID    int64
		first, last sql.NullTime
	)
	if err := row.Scan(&addr, &regionID, &agg.TxCount, &agg.TotalScore, &first, &last); err != nil {
		return nil, err
	}
	agg.UserAddress = id.UserAddress(addr)
	agg.RegionID = id.RegionID(regionID)
	agg.FirstConfirmedAt = first.Time
	agg.LastConfirmedAt = last.Time
	return &agg, nil
}
