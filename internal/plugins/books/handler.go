package books

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/geekconsole/geekconsole/internal/apperror"
	"github.com/geekconsole/geekconsole/internal/plugins/session"
)

// Handler processes HTTP requests for books.
type Handler struct {
	service Service
	maxSize int64
}

// NewHandler creates a new book handler.
func NewHandler(service Service, maxSize int64) *Handler {
	return &Handler{service: service, maxSize: maxSize}
}

// List handles GET /api/books.
func (h *Handler) List(c echo.Context) error {
	books, err := h.service.List(c.Request().Context(), session.GetUserID(c))
	if err != nil {
		return err
	}
	if books == nil {
		books = []*Book{}
	}
	return c.JSON(http.StatusOK, books)
}

// Get handles GET /api/books/:id.
func (h *Handler) Get(c echo.Context) error {
	book, err := h.service.Get(c.Request().Context(), session.GetUserID(c), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, book)
}

// Create handles POST /api/books.
func (h *Handler) Create(c echo.Context) error {
	var req BookRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request data")
	}

	book, err := h.service.Create(c.Request().Context(), session.GetUserID(c), inputFrom(req))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, book)
}

// Update handles PUT /api/books/:id.
func (h *Handler) Update(c echo.Context) error {
	var req BookRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request data")
	}

	book, err := h.service.Update(c.Request().Context(), session.GetUserID(c), c.Param("id"), inputFrom(req))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, book)
}

// Delete handles DELETE /api/books/:id.
func (h *Handler) Delete(c echo.Context) error {
	if err := h.service.Delete(c.Request().Context(), session.GetUserID(c), c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// UploadImage handles POST /api/books/:id/image.
func (h *Handler) UploadImage(c echo.Context) error {
	file, err := c.FormFile("image")
	if err != nil {
		return apperror.NewBadRequest("no image provided")
	}
	if file.Size > h.maxSize {
		return apperror.NewBadRequest("image too large")
	}

	src, err := file.Open()
	if err != nil {
		return apperror.NewBadRequest("could not read image")
	}
	defer src.Close()

	blob, err := io.ReadAll(io.LimitReader(src, h.maxSize+1))
	if err != nil {
		return apperror.NewInternal(err)
	}
	if int64(len(blob)) > h.maxSize {
		return apperror.NewBadRequest("image too large")
	}

	input := ImageInput{
		AltText:     c.FormValue("alt_text"),
		ContentType: file.Header.Get("Content-Type"),
		Blob:        blob,
	}
	if err := h.service.AttachImage(c.Request().Context(), session.GetUserID(c), c.Param("id"), input); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// ServeImage handles GET /api/images/:id: streams the cover blob with its
// stored content type.
func (h *Handler) ServeImage(c echo.Context) error {
	img, err := h.service.GetImage(c.Request().Context(), session.GetUserID(c), c.Param("id"))
	if err != nil {
		return err
	}

	c.Response().Header().Set("Cache-Control", "private, max-age=86400")
	return c.Blob(http.StatusOK, img.ContentType, img.Blob)
}

func inputFrom(req BookRequest) BookInput {
	return BookInput{
		Title:         req.Title,
		Author:        req.Author,
		Year:          req.Year,
		ReadingStatus: req.ReadingStatus,
		Description:   req.Description,
		Comments:      req.Comments,
	}
}
