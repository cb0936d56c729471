package books

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/geekconsole/geekconsole/internal/apperror"
)

// Repository defines the data access contract for books and cover images.
type Repository interface {
	Create(ctx context.Context, book *Book) error
	FindByID(ctx context.Context, id string) (*Book, error)
	ListForOwner(ctx context.Context, ownerID string) ([]*Book, error)
	Update(ctx context.Context, book *Book) error
	Delete(ctx context.Context, id string) error

	// SetImage replaces the book's cover image. The previous image row, if
	// any, is removed in the same transaction.
	SetImage(ctx context.Context, img *BookImage) error
	FindImage(ctx context.Context, imageID string) (*BookImage, error)
}

type repository struct {
	db *sql.DB
}

// NewRepository creates a book repository backed by the given DB pool.
func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, book *Book) error {
	query := `INSERT INTO books
	          (id, owner_id, title, author, year, reading_status, description, comments, created_at, updated_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		book.ID, book.OwnerID, book.Title, book.Author, book.Year,
		book.ReadingStatus, book.Description, book.Comments, book.CreatedAt, book.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting book: %w", err)
	}
	return nil
}

func (r *repository) FindByID(ctx context.Context, id string) (*Book, error) {
	query := `SELECT b.id, b.owner_id, b.title, b.author, b.year, b.reading_status,
	                 b.description, b.comments, i.id, b.created_at, b.updated_at
	          FROM books b
	          LEFT JOIN book_images i ON i.book_id = b.id
	          WHERE b.id = ?`

	book := &Book{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&book.ID, &book.OwnerID, &book.Title, &book.Author, &book.Year,
		&book.ReadingStatus, &book.Description, &book.Comments, &book.ImageID,
		&book.CreatedAt, &book.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("book not found")
	}
	if err != nil {
		return nil, fmt.Errorf("querying book: %w", err)
	}

	return book, nil
}

func (r *repository) ListForOwner(ctx context.Context, ownerID string) ([]*Book, error) {
	query := `SELECT b.id, b.owner_id, b.title, b.author, b.year, b.reading_status,
	                 b.description, b.comments, i.id, b.created_at, b.updated_at
	          FROM books b
	          LEFT JOIN book_images i ON i.book_id = b.id
	          WHERE b.owner_id = ?
	          ORDER BY b.created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("listing books: %w", err)
	}
	defer rows.Close()

	var books []*Book
	for rows.Next() {
		book := &Book{}
		if err := rows.Scan(
			&book.ID, &book.OwnerID, &book.Title, &book.Author, &book.Year,
			&book.ReadingStatus, &book.Description, &book.Comments, &book.ImageID,
			&book.CreatedAt, &book.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning book: %w", err)
		}
		books = append(books, book)
	}
	return books, rows.Err()
}

// Update writes the mutable fields. The owner column is deliberately
// absent from the SET list.
func (r *repository) Update(ctx context.Context, book *Book) error {
	query := `UPDATE books
	          SET title = ?, author = ?, year = ?, reading_status = ?,
	              description = ?, comments = ?, updated_at = ?
	          WHERE id = ?`

	_, err := r.db.ExecContext(ctx, query,
		book.Title, book.Author, book.Year, book.ReadingStatus,
		book.Description, book.Comments, book.UpdatedAt, book.ID)
	if err != nil {
		return fmt.Errorf("updating book: %w", err)
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM books WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting book: %w", err)
	}
	return nil
}

func (r *repository) SetImage(ctx context.Context, img *BookImage) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning image transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM book_images WHERE book_id = ?`, img.BookID); err != nil {
		return fmt.Errorf("removing previous image: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO book_images (id, book_id, alt_text, content_type, data, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		img.ID, img.BookID, img.AltText, img.ContentType, img.Blob, img.CreatedAt); err != nil {
		return fmt.Errorf("inserting image: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing image: %w", err)
	}
	return nil
}

func (r *repository) FindImage(ctx context.Context, imageID string) (*BookImage, error) {
	query := `SELECT id, book_id, alt_text, content_type, data, created_at
	          FROM book_images WHERE id = ?`

	img := &BookImage{}
	err := r.db.QueryRowContext(ctx, query, imageID).Scan(
		&img.ID, &img.BookID, &img.AltText, &img.ContentType, &img.Blob, &img.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("image not found")
	}
	if err != nil {
		return nil, fmt.Errorf("querying image: %w", err)
	}

	return img, nil
}
