package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"geoscore/internal/application/models"
	id "geoscore/pkg/domain"
	"geoscore/pkg/platform/sentinel"
)

// PostgresStore persists applications. Rows are never updated.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const applicationColumns = `id, external_id, secret_hash, name, domain, description, created_at`

// CreateIfDomainAvailable inserts app unless its domain is already registered,
// in which case the existing row is returned with created=false.
func (s *PostgresStore) CreateIfDomainAvailable(ctx context.Context, app *models.Application) (*models.Application, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO applications (external_id, secret_hash, name, domain, description, created_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)
		ON CONFLICT (domain) DO NOTHING
		RETURNING `+applicationColumns,
		app.ExternalID, app.SecretHash, app.Name, app.Domain, app.Description, app.CreatedAt)
	inserted, err := scanApplication(row)
	if err == nil {
		return inserted, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("insert application: %w", err)
	}

	existing, err := s.FindByDomain(ctx, app.Domain)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (s *PostgresStore) FindByDomain(ctx context.Context, domain string) (*models.Application, error) {
	return s.findOne(ctx, `SELECT `+applicationColumns+` FROM applications WHERE domain = $1`, domain)
}

func (s *PostgresStore) FindByExternalID(ctx context.Context, externalID string) (*models.Application, error) {
	return s.findOne(ctx, `SELECT `+applicationColumns+` FROM applications WHERE external_id = $1`, externalID)
}

func (s *PostgresStore) FindByID(ctx context.Context, appID id.ApplicationID) (*models.Application, error) {
	return s.findOne(ctx, `SELECT `+applicationColumns+` FROM applications WHERE id = $1`, int64(appID))
}

func (s *PostgresStore) findOne(ctx context.Context, query string, arg any) (*models.Application, error) {
	app, err := scanApplication(s.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find application: %w", err)
	}
	return app, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanApplication(row rowScanner) (*models.Application, error) {
	var (
		app         models.Application
		appID       int64
		description sql.NullString
	)
	if err := row.Scan(&appID, &app.ExternalID, &app.SecretHash, &app.Name, &app.Domain, &description, &app.CreatedAt); err != nil {
		return nil, err
	}
	app.ID = id.ApplicationID(appID)
	app.Description = description.String
	return &app, nil
}
