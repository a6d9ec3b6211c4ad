package book

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned when no active book matches the requested ID.
// Soft-deleted rows still exist in the database but are treated as missing.
var ErrNotFound = errors.New("book not found")

// ErrNoImage is returned when an image operation targets a book that has
// no cover image attached.
var ErrNoImage = errors.New("book has no image")

// ErrMediaHostDisabled is returned when an image operation is requested but
// the media host was not configured at startup.
var ErrMediaHostDisabled = errors.New("media host is not configured")

// ErrUnsupportedMediaType is returned when a request body encoding is
// neither JSON nor multipart form data.
var ErrUnsupportedMediaType = errors.New("unsupported media type")

// ImageRef identifies a cover image stored in the external media host.
// It is always a complete pair; a book either has both values or no image.
type ImageRef struct {
	URL      string `json:"url"`
	PublicID string `json:"public_id"`
}

// Book represents a catalog record. Price is always a 2-decimal-place
// string; it is never handled as a float.
type Book struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Author      string    `json:"author"`
	Description string    `json:"description"`
	Price       string    `json:"price"`
	Active      bool      `json:"active"`
	Image       *ImageRef `json:"image"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// FieldError describes a single violated validation rule.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError carries every violated field of a request, not just the
// first one.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Message))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// UploadError wraps a media host failure during an attach. A cover was
// explicitly requested, so this aborts the whole operation.
type UploadError struct {
	Err error
}

func (e *UploadError) Error() string { return "image upload failed: " + e.Err.Error() }
func (e *UploadError) Unwrap() error { return e.Err }

// StorageError wraps a persistence failure. The in-flight transaction has
// already been rolled back by the time it surfaces.
type StorageError struct {
	Err error
}

func (e *StorageError) Error() string { return "storage failure: " + e.Err.Error() }
func (e *StorageError) Unwrap() error { return e.Err }
