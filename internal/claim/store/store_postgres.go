package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"geoscore/internal/claim/models"
	id "geoscore/pkg/domain"
	"geoscore/pkg/platform/sentinel"
	txcontext "geoscore/pkg/platform/tx"
)

// PostgresStore persists claims in the claims table.
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

const claimColumns = `id, application_id, user_address, region_id, status, tx_reference,
	verified_value, score, meta, created_at, confirmed_at`

// Create inserts c as a new PENDING claim and fills in its id.
func (s *PostgresStore) Create(ctx context.Context, c *models.Claim) error {
	var (
		claimID int64
		meta    any
	)
	if len(c.Meta) > 0 {
		meta = string(c.Meta)
	}
	err := s.execer(ctx).QueryRowContext(ctx, `
		INSERT INTO claims (application_id, user_address, region_id, status, meta, created_at)
		VALUES ($1, $2, $3, 'PENDING', $4, $5)
		RETURNING id
	`, int64(c.ApplicationID), string(c.UserAddress), int64(c.RegionID), meta, c.CreatedAt).Scan(&claimID)
	if err != nil {
		return fmt.Errorf("insert claim: %w", err)
	}
	c.ID = id.ClaimID(claimID)
	c.Status = models.StatusPending
	return nil
}

// FindOwned returns the claim only when appID owns it.
func (s *PostgresStore) FindOwned(ctx context.Context, claimID id.ClaimID, appID id.ApplicationID) (*models.Claim, error) {
	return s.findOne(ctx, `SELECT `+claimColumns+` FROM claims WHERE id = $1 AND application_id = $2`,
		int64(claimID), int64(appID))
}

// LockOwned is FindOwned with a row lock held until the surrounding
// transaction ends.
func (s *PostgresStore) LockOwned(ctx context.Context, claimID id.ClaimID, appID id.ApplicationID) (*models.Claim, error) {
	if _, ok := txcontext.From(ctx); !ok {
		return nil, fmt.Errorf("lock claim: %w", sentinel.ErrInvalidState)
	}
	return s.findOne(ctx, `SELECT `+claimColumns+` FROM claims WHERE id = $1 AND application_id = $2 FOR UPDATE`,
		int64(claimID), int64(appID))
}

func (s *PostgresStore) FindByID(ctx context.Context, claimID id.ClaimID) (*models.Claim, error) {
	return s.findOne(ctx, `SELECT `+claimColumns+` FROM claims WHERE id = $1`, int64(claimID))
}

func (s *PostgresStore) findOne(ctx context.Context, query string, args ...any) (*models.Claim, error) {
	c, err := scanClaim(s.execer(ctx).QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find claim: %w", err)
	}
	return c, nil
}

// MarkConfirmed persists a confirmed claim. The update only applies to a
// row that is still PENDING; otherwise ErrInvalidState is returned.
func (s *PostgresStore) MarkConfirmed(ctx context.Context, c *models.Claim) error {
	if c.ConfirmedAt == nil {
		return fmt.Errorf("mark confirmed: %w", sentinel.ErrInvalidState)
	}
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE claims
		SET status = 'CONFIRMED', tx_reference = $1, verified_value = $2, score = $3, confirmed_at = $4
		WHERE id = $5 AND status = 'PENDING'
	`, c.TxReference, c.VerifiedValue, c.Score, *c.ConfirmedAt, int64(c.ID))
	if err != nil {
		return fmt.Errorf("confirm claim: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("confirm claim rows: %w", err)
	}
	if n == 0 {
		return sentinel.ErrInvalidState
	}
	return nil
}

// ListConfirmedByAddress returns the address's confirmed claims, newest first.
func (s *PostgresStore) ListConfirmedByAddress(ctx context.Context, addr id.UserAddress) ([]*models.Claim, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `SELECT `+claimColumns+` FROM claims
		WHERE user_address = $1 AND status = 'CONFIRMED'
		ORDER BY confirmed_at DESC, id DESC`, string(addr))
	if err != nil {
		return nil, fmt.Errorf("list claims: %w", err)
	}
	defer rows.Close()

	var out []*models.Claim
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, fmt.Errorf("scan claim: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// RegionActivity returns the confirmed activity of every address in a
// region, ordered by address. Timestamps are ascending.
func (s *PostgresStore) RegionActivity(ctx context.Context, regionID id.RegionID) ([]models.AddressActivity, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT id, user_address, confirmed_at FROM claims
		WHERE region_id = $1 AND status = 'CONFIRMED'
		ORDER BY user_address, confirmed_at, id
	`, int64(regionID))
	if err != nil {
		return nil, fmt.Errorf("list region activity: %w", err)
	}
	defer rows.Close()

	var out []models.AddressActivity
	for rows.Next() {
		var (
			claimID int64
			addr    string
			at      time.Time
		)
		if err := rows.Scan(&claimID, &addr, &at); err != nil {
			return nil, fmt.Errorf("scan region activity: %w", err)
		}
		out = appendActivity(out, id.UserAddress(addr), id.ClaimID(claimID), at)
	}
	return out, rows.Err()
}

// appendActivity folds one confirmation into out, which must be grouped by
// address.
func appendActivity(out []models.AddressActivity, addr id.UserAddress, claimID id.ClaimID, at time.Time) []models.AddressActivity {
	if n := len(out); n > 0 && out[n-1].UserAddress == addr {
		last := &out[n-1]
		if claimID < last.FirstClaimID {
			last.FirstClaimID = claimID
		}
		last.ConfirmedAt = append(last.ConfirmedAt, at)
		return out
	}
	return append(out, models.AddressActivity{UserAddress: addr, FirstClaimID: claimID, ConfirmedAt: []time.Time{at}})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClaim(row rowScanner) (*models.Claim, error) {
	var (
		c           models.Claim
		claimID     int64
		appID       int64
		regionID    int64
		addr        string
		status      string
		txRef       sql.NullString
		verified    decimal.NullDecimal
		score       decimal.NullDecimal
		meta        []byte
		confirmedAt sql.NullTime
	)
	if err := row.Scan(&claimID, &appID, &addr, &regionID, &status, &txRef,
		&verified, &score, &meta, &c.CreatedAt, &confirmedAt); err != nil {
		return nil, err
	}
	c.ID = id.ClaimID(claimID)
	c.ApplicationID = id.ApplicationID(appID)
	c.UserAddress = id.UserAddress(addr)
	c.RegionID = id.RegionID(regionID)
	c.Status = models.Status(status)
	c.TxReference = txRef.String
	c.VerifiedValue = verified.Decimal
	c.Score = score.Decimal
	if len(meta) > 0 {
		c.Meta = meta
	}
	if confirmedAt.Valid {
		t := confirmedAt.Time
		c.ConfirmedAt = &t
	}
	return &c, nil
}
