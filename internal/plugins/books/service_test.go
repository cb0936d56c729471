package books

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/geekconsole/geekconsole/internal/apperror"
	"github.com/geekconsole/geekconsole/internal/plugins/rbac"
)

// --- mocks ---

type mockRepo struct {
	books  map[string]*Book
	images map[string]*BookImage
}

func newMockRepo() *mockRepo {
	return &mockRepo{books: map[string]*Book{}, images: map[string]*BookImage{}}
}

func (m *mockRepo) Create(ctx context.Context, book *Book) error {
	m.books[book.ID] = book
	return nil
}

func (m *mockRepo) FindByID(ctx context.Context, id string) (*Book, error) {
	if b, ok := m.books[id]; ok {
		copy := *b
		return &copy, nil
	}
	return nil, apperror.NewNotFound("book not found")
}

func (m *mockRepo) ListForOwner(ctx context.Context, ownerID string) ([]*Book, error) {
	var out []*Book
	for _, b := range m.books {
		if b.OwnerID == ownerID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *mockRepo) Update(ctx context.Context, book *Book) error {
	m.books[book.ID] = book
	return nil
}

func (m *mockRepo) Delete(ctx context.Context, id string) error {
	delete(m.books, id)
	return nil
}

func (m *mockRepo) SetImage(ctx context.Context, img *BookImage) error {
	m.images[img.ID] = img
	return nil
}

func (m *mockRepo) FindImage(ctx context.Context, imageID string) (*BookImage, error) {
	if img, ok := m.images[imageID]; ok {
		return img, nil
	}
	return nil, apperror.NewNotFound("image not found")
}

// mockPerms evaluates permissions against a fixed grant set per user,
// using the same superset rule the real evaluator applies.
type mockPerms struct {
	grants map[string][]rbac.Permission
}

func newMockPerms() *mockPerms {
	return &mockPerms{grants: map[string][]rbac.Permission{}}
}

func (m *mockPerms) grant(userID string, perms ...rbac.Permission) {
	m.grants[userID] = append(m.grants[userID], perms...)
}

func (m *mockPerms) HasPermission(ctx context.Context, userID string, perm rbac.Permission) (bool, error) {
	for _, g := range m.grants[userID] {
		if g.Satisfies(perm) {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockPerms) RequirePermission(ctx context.Context, userID string, perm rbac.Permission) error {
	ok, _ := m.HasPermission(ctx, userID, perm)
	if !ok {
		return apperror.NewForbidden("You are not allowed to do that.")
	}
	return nil
}

func (m *mockPerms) HasRole(ctx context.Context, userID, roleName string) (bool, error) {
	return false, nil
}

func (m *mockPerms) RequireRole(ctx context.Context, userID, roleName string) error {
	return apperror.NewForbidden("You are not allowed to do that.")
}

func (m *mockPerms) RolesForUser(ctx context.Context, userID string) ([]string, error) {
	return nil, nil
}

func (m *mockPerms) AssignRole(ctx context.Context, userID, roleName string) error { return nil }
func (m *mockPerms) RevokeRole(ctx context.Context, userID, roleName string) error { return nil }

func perm(action rbac.Action, access rbac.Access) rbac.Permission {
	return rbac.Permission{Action: action, Entity: EntityBook, Access: access}
}

func assertAppError(t *testing.T, err error, wantCode int) {
	t.Helper()
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected AppError, got %T: %v", err, err)
	}
	if appErr.Code != wantCode {
		t.Fatalf("expected code %d, got %d (%s)", wantCode, appErr.Code, appErr.Message)
	}
}

func newTestService(repo Repository, perms rbac.Service) Service {
	return NewService(repo, perms, 3*1024*1024, slog.New(slog.DiscardHandler))
}

func seedBook(repo *mockRepo, id, ownerID string) *Book {
	b := &Book{
		ID: id, OwnerID: ownerID, Title: "Dune", Author: "Frank Herbert",
		Year: 1965, ReadingStatus: StatusHaveRead,
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	repo.books[id] = b
	return b
}

// --- policy guard ---

func TestOwnerCanDeleteWithOwnGrant(t *testing.T) {
	repo := newMockRepo()
	seedBook(repo, "book-1", "alice")
	perms := newMockPerms()
	perms.grant("alice", perm(rbac.ActionDelete, rbac.AccessOwn))
	svc := newTestService(repo, perms)

	if err := svc.Delete(context.Background(), "alice", "book-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok := repo.books["book-1"]; ok {
		t.Fatal("book should be gone")
	}
}

func TestNonOwnerWithOwnGrantForbidden(t *testing.T) {
	repo := newMockRepo()
	seedBook(repo, "book-1", "alice")
	perms := newMockPerms()
	perms.grant("bob", perm(rbac.ActionDelete, rbac.AccessOwn))
	svc := newTestService(repo, perms)

	err := svc.Delete(context.Background(), "bob", "book-1")
	assertAppError(t, err, 403)
	if _, ok := repo.books["book-1"]; !ok {
		t.Fatal("book must survive a denied delete")
	}
}

func TestNonOwnerWithAnyGrantAllowed(t *testing.T) {
	repo := newMockRepo()
	seedBook(repo, "book-1", "alice")
	perms := newMockPerms()
	perms.grant("mod", perm(rbac.ActionDelete, rbac.AccessAny))
	svc := newTestService(repo, perms)

	if err := svc.Delete(context.Background(), "mod", "book-1"); err != nil {
		t.Fatalf("moderator delete: %v", err)
	}
}

func TestOwnerWithOnlyAnyGrantAllowed(t *testing.T) {
	// "any" is a superset of "own": an admin deleting their own book is
	// covered by their any grant even though the guard asks for own.
	repo := newMockRepo()
	seedBook(repo, "book-1", "admin")
	perms := newMockPerms()
	perms.grant("admin", perm(rbac.ActionDelete, rbac.AccessAny))
	svc := newTestService(repo, perms)

	if err := svc.Delete(context.Background(), "admin", "book-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
}

func TestOwnerWithoutGrantForbidden(t *testing.T) {
	repo := newMockRepo()
	seedBook(repo, "book-1", "alice")
	svc := newTestService(repo, newMockPerms())

	err := svc.Delete(context.Background(), "alice", "book-1")
	assertAppError(t, err, 403)
}

func TestMissingBookIsNotFoundBeforePermission(t *testing.T) {
	// Existence wins over authorization: a user with no grants at all
	// still gets 404 for a missing id, never 403.
	svc := newTestService(newMockRepo(), newMockPerms())

	err := svc.Delete(context.Background(), "alice", "no-such-book")
	assertAppError(t, err, 404)

	_, err = svc.Get(context.Background(), "alice", "no-such-book")
	assertAppError(t, err, 404)
}

// --- create / update ---

func TestCreateRequiresGrant(t *testing.T) {
	svc := newTestService(newMockRepo(), newMockPerms())

	_, err := svc.Create(context.Background(), "alice", BookInput{Title: "Dune"})
	assertAppError(t, err, 403)
}

func TestCreateSetsOwner(t *testing.T) {
	repo := newMockRepo()
	perms := newMockPerms()
	perms.grant("alice", perm(rbac.ActionCreate, rbac.AccessOwn))
	svc := newTestService(repo, perms)

	book, err := svc.Create(context.Background(), "alice", BookInput{Title: "Dune", Author: "Frank Herbert"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if book.OwnerID != "alice" {
		t.Fatalf("owner should be the creator, got %q", book.OwnerID)
	}
	if book.ReadingStatus != StatusWantToRead {
		t.Fatalf("default status should be %q, got %q", StatusWantToRead, book.ReadingStatus)
	}
}

func TestUpdateNeverChangesOwner(t *testing.T) {
	repo := newMockRepo()
	seedBook(repo, "book-1", "alice")
	perms := newMockPerms()
	perms.grant("mod", perm(rbac.ActionUpdate, rbac.AccessAny))
	svc := newTestService(repo, perms)

	book, err := svc.Update(context.Background(), "mod", "book-1", BookInput{
		Title: "Dune Messiah", Author: "Frank Herbert", ReadingStatus: StatusReading,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if book.OwnerID != "alice" {
		t.Fatalf("owner must be immutable, got %q", book.OwnerID)
	}
	if book.Title != "Dune Messiah" {
		t.Fatalf("title not updated: %q", book.Title)
	}
}

func TestCreateRejectsUnknownStatus(t *testing.T) {
	perms := newMockPerms()
	perms.grant("alice", perm(rbac.ActionCreate, rbac.AccessOwn))
	svc := newTestService(newMockRepo(), perms)

	_, err := svc.Create(context.Background(), "alice", BookInput{Title: "Dune", ReadingStatus: "finished"})
	assertAppError(t, err, 400)
}

func TestCreateStripsMarkup(t *testing.T) {
	perms := newMockPerms()
	perms.grant("alice", perm(rbac.ActionCreate, rbac.AccessOwn))
	svc := newTestService(newMockRepo(), perms)

	book, err := svc.Create(context.Background(), "alice", BookInput{
		Title: "<script>alert(1)</script>Dune",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if book.Title != "Dune" {
		t.Fatalf("markup should be stripped, got %q", book.Title)
	}
}

// --- listing ---

func TestListIsOwnerScoped(t *testing.T) {
	repo := newMockRepo()
	seedBook(repo, "book-1", "alice")
	seedBook(repo, "book-2", "bob")
	perms := newMockPerms()
	perms.grant("alice", perm(rbac.ActionRead, rbac.AccessOwn))
	svc := newTestService(repo, perms)

	books, err := svc.List(context.Background(), "alice")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(books) != 1 || books[0].ID != "book-1" {
		t.Fatalf("expected only alice's book, got %+v", books)
	}
}

// --- images ---

// pngBytes is a minimal valid PNG header for magic byte checks.
var pngBytes = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 0}

func TestAttachImage(t *testing.T) {
	repo := newMockRepo()
	seedBook(repo, "book-1", "alice")
	perms := newMockPerms()
	perms.grant("alice", perm(rbac.ActionUpdate, rbac.AccessOwn), perm(rbac.ActionRead, rbac.AccessOwn))
	svc := newTestService(repo, perms)

	err := svc.AttachImage(context.Background(), "alice", "book-1", ImageInput{
		AltText: "cover", ContentType: "image/png", Blob: pngBytes,
	})
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	if len(repo.images) != 1 {
		t.Fatal("image not stored")
	}
}

func TestAttachImageRejectsSpoofedType(t *testing.T) {
	repo := newMockRepo()
	seedBook(repo, "book-1", "alice")
	perms := newMockPerms()
	perms.grant("alice", perm(rbac.ActionUpdate, rbac.AccessOwn))
	svc := newTestService(repo, perms)

	err := svc.AttachImage(context.Background(), "alice", "book-1", ImageInput{
		ContentType: "image/png", Blob: []byte("not a png at all"),
	})
	assertAppError(t, err, 400)
}

func TestGetImageFollowsBookAccess(t *testing.T) {
	repo := newMockRepo()
	seedBook(repo, "book-1", "alice")
	repo.images["img-1"] = &BookImage{ID: "img-1", BookID: "book-1", ContentType: "image/png", Blob: pngBytes}
	perms := newMockPerms()
	perms.grant("alice", perm(rbac.ActionRead, rbac.AccessOwn))
	svc := newTestService(repo, perms)

	if _, err := svc.GetImage(context.Background(), "alice", "img-1"); err != nil {
		t.Fatalf("owner fetch: %v", err)
	}

	_, err := svc.GetImage(context.Background(), "bob", "img-1")
	assertAppError(t, err, 403)
}
