package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lalith-99/echodm/internal/models"
)

type IdentityStore struct {
	pool *pgxpool.Pool
}

func NewIdentityStore(pool *pgxpool.Pool) *IdentityStore {
	return &IdentityStore{pool: pool}
}

const identityColumns = "id, username, email, profile_picture, created_at"

func scanIdentity(row pgx.Row) (*models.Identity, error) {
	var ident models.Identity
	err := row.Scan(
		&ident.ID,
		&ident.Username,
		&ident.Email,
		&ident.ProfilePicture,
		&ident.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &ident, nil
}

// Create inserts a new identity row. Postgres generates the UUID and
// timestamp.
func (s *IdentityStore) Create(ctx context.Context, username, email, passwordHash, pictureURL string) (*models.Identity, error) {
	query := `
		INSERT INTO identities (username, email, password_hash, profile_picture, created_at)
		VALUES ($1, $2, $3, $4, now())
		RETURNING ` + identityColumns

	ident, err := scanIdentity(s.pool.QueryRow(ctx, query, username, email, passwordHash, pictureURL))
	if err != nil {
		return nil, fmt.Errorf("insert identity: %w", err)
	}
	return ident, nil
}

func (s *IdentityStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Identity, error) {
	query := `SELECT ` + identityColumns + ` FROM identities WHERE id = $1`

	ident, err := scanIdentity(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get identity: %w", err)
	}
	return ident, nil
}

// GetByEmail looks an identity up by email. The caller normalizes the
// address first; emails are stored lowercased.
func (s *IdentityStore) GetByEmail(ctx context.Context, email string) (*models.Identity, error) {
	query := `SELECT ` + identityColumns + ` FROM identities WHERE email = $1`

	ident, err := scanIdentity(s.pool.QueryRow(ctx, query, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get identity by email: %w", err)
	}
	return ident, nil
}

// CredentialsByEmail is the sign-in read: profile plus password hash in
// one round trip. Returns nil, "", nil on a miss.
func (s *IdentityStore) CredentialsByEmail(ctx context.Context, email string) (*models.Identity, string, error) {
	query := `
		SELECT id, username, email, profile_picture, created_at, password_hash
		FROM identities
		WHERE email = $1`

	var ident models.Identity
	var hash string
	err := s.pool.QueryRow(ctx, query, email).Scan(
		&ident.ID,
		&ident.Username,
		&ident.Email,
		&ident.ProfilePicture,
		&ident.CreatedAt,
		&hash,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, "", nil
		}
		return nil, "", fmt.Errorf("get credentials: %w", err)
	}
	return &ident, hash, nil
}

func (s *IdentityStore) List(ctx context.Context) ([]models.Identity, error) {
	query := `SELECT ` + identityColumns + ` FROM identities ORDER BY created_at ASC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}
	defer rows.Close()

	// Empty slice (not nil) so JSON serializes to [] not null.
	identities := make([]models.Identity, 0)
	for rows.Next() {
		var ident models.Identity
		if err := rows.Scan(
			&ident.ID,
			&ident.Username,
			&ident.Email,
			&ident.ProfilePicture,
			&ident.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		identities = append(identities, ident)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate identities: %w", err)
	}

	return identities, nil
}

// UpdateProfile overwrites username and/or profile picture. Empty
// string means "leave unchanged" — COALESCE/NULLIF keeps the old value
// so a partial update never blanks the other field.
func (s *IdentityStore) UpdateProfile(ctx context.Context, id uuid.UUID, username, pictureURL string) (*models.Identity, error) {
	query := `
		UPDATE identities
		SET username        = COALESCE(NULLIF($2, ''), username),
		    profile_picture = COALESCE(NULLIF($3, ''), profile_picture)
		WHERE id = $1
		RETURNING ` + identityColumns

	ident, err := scanIdentity(s.pool.QueryRow(ctx, query, id, username, pictureURL))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("update profile: %w", err)
	}
	return ident, nil
}
