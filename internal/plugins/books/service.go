package books

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/geekconsole/geekconsole/internal/apperror"
	"github.com/geekconsole/geekconsole/internal/plugins/rbac"
	"github.com/geekconsole/geekconsole/internal/sanitize"
)

// EntityBook is the entity name books use in permission grants.
const EntityBook = "book"

// Service defines the business logic contract for books.
type Service interface {
	// List returns the user's own books. Listing is always owner-scoped;
	// there is no cross-user browse.
	List(ctx context.Context, userID string) ([]*Book, error)

	// Get loads a single book through the policy guard.
	Get(ctx context.Context, userID, bookID string) (*Book, error)

	// Create adds a book owned by the user.
	Create(ctx context.Context, userID string, input BookInput) (*Book, error)

	// Update modifies a book through the policy guard. The owner never
	// changes, regardless of who edits.
	Update(ctx context.Context, userID, bookID string, input BookInput) (*Book, error)

	// Delete removes a book through the policy guard.
	Delete(ctx context.Context, userID, bookID string) error

	// AttachImage sets the book's cover image through the policy guard.
	AttachImage(ctx context.Context, userID, bookID string, input ImageInput) error

	// GetImage serves a cover image. Access follows the book it belongs to.
	GetImage(ctx context.Context, userID, imageID string) (*BookImage, error)
}

type service struct {
	repo    Repository
	perms   rbac.Service
	maxSize int64
	logger  *slog.Logger
}

// NewService creates the book service. maxSize caps cover image blobs.
func NewService(repo Repository, perms rbac.Service, maxSize int64, logger *slog.Logger) Service {
	return &service{repo: repo, perms: perms, maxSize: maxSize, logger: logger}
}

func (s *service) List(ctx context.Context, userID string) ([]*Book, error) {
	if err := s.perms.RequirePermission(ctx, userID, rbac.Permission{
		Action: rbac.ActionRead, Entity: EntityBook, Access: rbac.AccessOwn,
	}); err != nil {
		return nil, err
	}
	return s.repo.ListForOwner(ctx, userID)
}

func (s *service) Get(ctx context.Context, userID, bookID string) (*Book, error) {
	return s.authorize(ctx, userID, bookID, rbac.ActionRead)
}

func (s *service) Create(ctx context.Context, userID string, input BookInput) (*Book, error) {
	if err := s.perms.RequirePermission(ctx, userID, rbac.Permission{
		Action: rbac.ActionCreate, Entity: EntityBook, Access: rbac.AccessOwn,
	}); err != nil {
		return nil, err
	}

	if err := validateInput(&input); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	book := &Book{
		ID:            uuid.NewString(),
		OwnerID:       userID,
		Title:         input.Title,
		Author:        input.Author,
		Year:          input.Year,
		ReadingStatus: input.ReadingStatus,
		Description:   input.Description,
		Comments:      input.Comments,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.Create(ctx, book); err != nil {
		return nil, err
	}

	s.logger.Info("book created", "book_id", book.ID, "owner_id", userID)
	return book, nil
}

func (s *service) Update(ctx context.Context, userID, bookID string, input BookInput) (*Book, error) {
	book, err := s.authorize(ctx, userID, bookID, rbac.ActionUpdate)
	if err != nil {
		return nil, err
	}

	if err := validateInput(&input); err != nil {
		return nil, err
	}

	book.Title = input.Title
	book.Author = input.Author
	book.Year = input.Year
	book.ReadingStatus = input.ReadingStatus
	book.Description = input.Description
	book.Comments = input.Comments
	book.UpdatedAt = time.Now().UTC()

	if err := s.repo.Update(ctx, book); err != nil {
		return nil, err
	}
	return book, nil
}

func (s *service) Delete(ctx context.Context, userID, bookID string) error {
	book, err := s.authorize(ctx, userID, bookID, rbac.ActionDelete)
	if err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, book.ID); err != nil {
		return err
	}

	s.logger.Info("book deleted", "book_id", book.ID, "by", userID)
	return nil
}

func (s *service) AttachImage(ctx context.Context, userID, bookID string, input ImageInput) error {
	book, err := s.authorize(ctx, userID, bookID, rbac.ActionUpdate)
	if err != nil {
		return err
	}

	if input.ContentType == "" || !allowedImageTypes[input.ContentType] {
		return apperror.NewBadRequest("unsupported image type: " + input.ContentType)
	}
	if int64(len(input.Blob)) > s.maxSize {
		return apperror.NewBadRequest("image too large")
	}
	if !validateMagicBytes(input.Blob, input.ContentType) {
		return apperror.NewBadRequest("image content does not match declared type")
	}

	img := &BookImage{
		ID:          uuid.NewString(),
		BookID:      book.ID,
		AltText:     sanitize.Text(input.AltText),
		ContentType: input.ContentType,
		Blob:        input.Blob,
		CreatedAt:   time.Now().UTC(),
	}
	return s.repo.SetImage(ctx, img)
}

func (s *service) GetImage(ctx context.Context, userID, imageID string) (*BookImage, error) {
	img, err := s.repo.FindImage(ctx, imageID)
	if err != nil {
		return nil, err
	}
	if _, err := s.authorize(ctx, userID, img.BookID, rbac.ActionRead); err != nil {
		return nil, err
	}
	return img, nil
}

// authorize is the policy guard every single-book operation passes through.
// The resource is loaded first: a missing book is NotFound no matter who
// asks. Ownership then selects which scope is checked -- owners against
// the "own" grant, everyone else against "any". The "any" grant is never
// consulted for an owner.
func (s *service) authorize(ctx context.Context, userID, bookID string, action rbac.Action) (*Book, error) {
	book, err := s.repo.FindByID(ctx, bookID)
	if err != nil {
		return nil, err
	}

	access := rbac.AccessAny
	if book.OwnerID == userID {
		access = rbac.AccessOwn
	}

	if err := s.perms.RequirePermission(ctx, userID, rbac.Permission{
		Action: action, Entity: EntityBook, Access: access,
	}); err != nil {
		return nil, err
	}

	return book, nil
}

// allowedImageTypes is the closed set of cover image content types.
var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
	"image/gif":  true,
}

// validateMagicBytes checks that the blob's leading bytes match the
// declared content type, rejecting spoofed uploads.
func validateMagicBytes(data []byte, declared string) bool {
	if len(data) < 4 {
		return false
	}
	switch declared {
	case "image/jpeg":
		return data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF
	case "image/png":
		return len(data) >= 8 &&
			data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47 &&
			data[4] == 0x0D && data[5] == 0x0A && data[6] == 0x1A && data[7] == 0x0A
	case "image/gif":
		return len(data) >= 6 && string(data[:3]) == "GIF"
	case "image/webp":
		return len(data) >= 12 && string(data[:4]) == "RIFF" && string(data[8:12]) == "WEBP"
	default:
		return false
	}
}

func validateInput(input *BookInput) error {
	input.Title = sanitize.Text(input.Title)
	input.Author = sanitize.Text(input.Author)
	input.Description = sanitize.Text(input.Description)
	input.Comments = sanitize.Text(input.Comments)

	if input.Title == "" {
		return apperror.NewValidation("title is required")
	}
	if len(input.Title) > 200 {
		return apperror.NewValidation("title must be at most 200 characters")
	}
	if len(input.Author) > 200 {
		return apperror.NewValidation("author must be at most 200 characters")
	}
	if input.Year != 0 && (input.Year < 0 || input.Year > time.Now().Year()+1) {
		return apperror.NewValidation("year is out of range")
	}
	if input.ReadingStatus == "" {
		input.ReadingStatus = StatusWantToRead
	}
	if !validStatuses[input.ReadingStatus] {
		return apperror.NewValidation("reading status must be one of: want to read, reading, have read")
	}
	return nil
}
