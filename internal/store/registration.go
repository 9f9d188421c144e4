package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/microblog-hq/microblog/internal/db"
	"github.com/microblog-hq/microblog/types"
)

// RegistrationRepository handles persistence for pending registrations and
// their promotion into authors.
type RegistrationRepository struct {
	db *sql.DB
}

func NewRegistrationRepository(conn *sql.DB) *RegistrationRepository {
	return &RegistrationRepository{db: conn}
}

// UsernameTaken reports whether an author or a pending registration holds
// the username.
func (r *RegistrationRepository) UsernameTaken(ctx context.Context, username string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM username_claims WHERE username = $1)`
	var taken bool
	if err := r.db.QueryRowContext(ctx, query, username).Scan(&taken); err != nil {
		return false, err
	}
	return taken, nil
}

// CreatePending claims the username and stores the registration in one
// transaction. A lost race for the username yields ErrUsernameTaken and a
// token collision yields ErrDuplicateToken; neither leaves a row behind.
func (r *RegistrationRepository) CreatePending(ctx context.Context, pending types.PendingRegistration) (types.PendingRegistration, error) {
	if pending.CreatedAt.IsZero() {
		pending.CreatedAt = time.Now()
	}

	const claimQuery = `
		INSERT INTO username_claims (username, created_at)
		VALUES ($1, $2)`
	const insertQuery = `
		INSERT INTO pending_registrations (username, email, password_hash, token, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	err := db.WithTx(ctx, r.db, nil, func(ctx context.Context, tx db.DBTX) error {
		if _, err := tx.ExecContext(ctx, claimQuery, pending.Username, pending.CreatedAt); err != nil {
			return err
		}
		return tx.QueryRowContext(
			ctx,
			insertQuery,
			pending.Username,
			pending.Email,
			pending.PasswordHash,
			pending.Token,
			pending.CreatedAt,
		).Scan(&pending.ID)
	})
	if err != nil {
		return types.PendingRegistration{}, translateError(err)
	}
	return pending, nil
}

// Promote retires the pending registration holding token and creates the
// author it describes. Both happen in one transaction; when two callers race
// on the same token the loser sees ErrNotFound.
func (r *RegistrationRepository) Promote(ctx context.Context, token string) (types.Author, error) {
	const deleteQuery = `
		DELETE FROM pending_registrations
		WHERE token = $1
		RETURNING username, email, password_hash`
	const insertQuery = `
		INSERT INTO authors (username, email, password_hash, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`

	var author types.Author
	err := db.WithTx(ctx, r.db, nil, func(ctx context.Context, tx db.DBTX) error {
		err := tx.QueryRowContext(ctx, deleteQuery, token).Scan(
			&author.Username,
			&author.Email,
			&author.PasswordHash,
		)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}

		author.CreatedAt = time.Now()
		return tx.QueryRowContext(
			ctx,
			insertQuery,
			author.Username,
			author.Email,
			author.PasswordHash,
			author.CreatedAt,
		).Scan(&author.ID)
	})
	if err != nil {
		return types.Author{}, translateError(err)
	}
	return author, nil
}

// PruneBefore deletes registrations created before cutoff and releases
// their username claims. It returns the number of registrations removed.
func (r *RegistrationRepository) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `
		DELETE FROM username_claims c
		USING pending_registrations p
		WHERE p.username = c.username AND p.created_at < $1`
	result, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
