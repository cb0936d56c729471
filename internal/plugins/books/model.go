// Package books implements the library itself: the books users track,
// their reading status, and cover images. Every operation on a single book
// runs through the ownership-aware policy guard.
//
// This is a CORE plugin -- always enabled, cannot be disabled.
package books

import "time"

// Reading statuses. The set is closed; anything else is rejected at the
// validation boundary.
const (
	StatusWantToRead = "want to read"
	StatusReading    = "reading"
	StatusHaveRead   = "have read"
)

// validStatuses is the membership check for the closed status set.
var validStatuses = map[string]bool{
	StatusWantToRead: true,
	StatusReading:    true,
	StatusHaveRead:   true,
}

// Book is a tracked book. OwnerID is set at creation and never changes for
// the life of the record.
type Book struct {
	ID            string    `json:"id"`
	OwnerID       string    `json:"-"`
	Title         string    `json:"title"`
	Author        string    `json:"author"`
	Year          int       `json:"year"`
	ReadingStatus string    `json:"reading_status"`
	Description   string    `json:"description"`
	Comments      string    `json:"comments"`
	ImageID       *string   `json:"image_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// BookImage is a cover image stored as a blob alongside the book.
type BookImage struct {
	ID          string
	BookID      string
	AltText     string
	ContentType string
	Blob        []byte
	CreatedAt   time.Time
}

// --- Request DTOs ---

// BookRequest holds the data submitted when creating or updating a book.
type BookRequest struct {
	Title         string `json:"title" form:"title"`
	Author        string `json:"author" form:"author"`
	Year          int    `json:"year" form:"year"`
	ReadingStatus string `json:"reading_status" form:"reading_status"`
	Description   string `json:"description" form:"description"`
	Comments      string `json:"comments" form:"comments"`
}

// --- Service Input DTOs ---

// BookInput is the validated input for creating or updating a book.
type BookInput struct {
	Title         string
	Author        string
	Year          int
	ReadingStatus string
	Description   string
	Comments      string
}

// ImageInput is the validated input for attaching a cover image.
type ImageInput struct {
	AltText     string
	ContentType string
	Blob        []byte
}
