package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/microblog-hq/microblog/types"
)

// AuthorRepository reads confirmed authors. Authors are only ever written by
// RegistrationRepository.Promote.
type AuthorRepository struct {
	db *sql.DB
}

func NewAuthorRepository(db *sql.DB) *AuthorRepository {
	return &AuthorRepository{db: db}
}

func (r *AuthorRepository) GetByID(ctx context.Context, id int) (types.Author, error) {
	const query = `
		SELECT id, username, email, password_hash, created_at
		FROM authors
		WHERE id = $1`
	return scanAuthor(r.db.QueryRowContext(ctx, query, id))
}

func (r *AuthorRepository) GetByUsername(ctx context.Context, username string) (types.Author, error) {
	const query = `
		SELECT id, username, email, password_hash, created_at
		FROM authors
		WHERE username = $1`
	return scanAuthor(r.db.QueryRowContext(ctx, query, username))
}

func scanAuthor(row *sql.Row) (types.Author, error) {
	var author types.Author
	err := row.Scan(
		&author.ID,
		&author.Username,
		&author.Email,
		&author.PasswordHash,
		&author.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Author{}, ErrNotFound
		}
		return types.Author{}, err
	}
	return author, nil
}
