package book

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository implements Repository on a pgx connection pool. Price
// values cross the boundary as strings against a NUMERIC(10,2) column; the
// schema's CHECK constraints back up the validation layer.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const bookColumns = `id, title, author, description, price::text, active, image_url, image_public_id, created_at, updated_at`

func (r *PostgresRepository) Insert(ctx context.Context, b *Book) error {
	query := `
		INSERT INTO books (title, author, description, price, image_url, image_public_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, active, created_at, updated_at`

	var imageURL, imagePublicID *string
	if b.Image != nil {
		imageURL = &b.Image.URL
		imagePublicID = &b.Image.PublicID
	}

	err := r.pool.QueryRow(ctx, query,
		b.Title, b.Author, b.Description, b.Price, imageURL, imagePublicID,
	).Scan(&b.ID, &b.Active, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert book: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*Book, error) {
	query := `SELECT ` + bookColumns + ` FROM books WHERE id = $1 AND active = true`

	b, err := scanBook(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get book: %w", err)
	}
	return b, nil
}

// Update applies a partial mutation inside one transaction. The row is
// locked for the read-modify-write so no partial field set is ever visible
// to other readers; inactive rows behave as absent.
func (r *PostgresRepository) Update(ctx context.Context, id int64, m Mutation) (*Book, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin update: %w", err)
	}
	defer tx.Rollback(ctx)

	selectQuery := `SELECT ` + bookColumns + ` FROM books WHERE id = $1 AND active = true FOR UPDATE`
	b, err := scanBook(tx.QueryRow(ctx, selectQuery, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("lock book for update: %w", err)
	}

	if m.Title != nil {
		b.Title = *m.Title
	}
	if m.Author != nil {
		b.Author = *m.Author
	}
	if m.Description != nil {
		b.Description = *m.Description
	}
	if m.Price != nil {
		b.Price = *m.Price
	}
	if m.Image.Set {
		b.Image = m.Image.Ref
	}

	var imageURL, imagePublicID *string
	if b.Image != nil {
		imageURL = &b.Image.URL
		imagePublicID = &b.Image.PublicID
	}

	updateQuery := `
		UPDATE books
		SET title = $2, author = $3, description = $4, price = $5,
		    image_url = $6, image_public_id = $7, updated_at = now()
		WHERE id = $1
		RETURNING updated_at`

	err = tx.QueryRow(ctx, updateQuery,
		id, b.Title, b.Author, b.Description, b.Price, imageURL, imagePublicID,
	).Scan(&b.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("update book: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit update: %w", err)
	}
	return b, nil
}

func (r *PostgresRepository) SoftDelete(ctx context.Context, id int64) error {
	query := `UPDATE books SET active = false, updated_at = now() WHERE id = $1 AND active = true`

	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("soft delete book: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) CountActive(ctx context.Context) (int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM books WHERE active = true`).Scan(&total); err != nil {
		return 0, fmt.Errorf("count books: %w", err)
	}
	return total, nil
}

func (r *PostgresRepository) ListActive(ctx context.Context, limit, offset int) ([]Book, error) {
	// Identifiers are monotonically increasing, so the id tie-break keeps
	// newest-first ordering stable across rows created in the same instant.
	query := `
		SELECT ` + bookColumns + `
		FROM books
		WHERE active = true
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2`

	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	defer rows.Close()

	books := []Book{}
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, fmt.Errorf("scan book: %w", err)
		}
		books = append(books, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate books: %w", err)
	}
	return books, nil
}

func scanBook(row pgx.Row) (*Book, error) {
	var b Book
	var imageURL, imagePublicID *string

	err := row.Scan(
		&b.ID,
		&b.Title,
		&b.Author,
		&b.Description,
		&b.Price,
		&b.Active,
		&imageURL,
		&imagePublicID,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if imageURL != nil && imagePublicID != nil {
		b.Image = &ImageRef{URL: *imageURL, PublicID: *imagePublicID}
	}
	return &b, nil
}
