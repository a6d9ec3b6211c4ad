package book

import (
	"context"
)

// ImageMutation expresses the three image outcomes of an update: leave the
// attachment untouched (Set false), replace it (Set true with a ref), or
// clear it (Set true with nil).
type ImageMutation struct {
	Set bool
	Ref *ImageRef
}

// Mutation is a partial update applied to a persisted book. Nil field
// pointers leave the stored value untouched.
type Mutation struct {
	Title       *string
	Author      *string
	Description *string
	Price       *string
	Image       ImageMutation
}

// Repository defines the contract for book storage. Implementations own
// the transaction boundary: no partial write is visible to other readers.
// All read paths see active rows only; soft-deleted rows behave as absent.
type Repository interface {
	Insert(ctx context.Context, b *Book) error
	GetByID(ctx context.Context, id int64) (*Book, error)
	Update(ctx context.Context, id int64, m Mutation) (*Book, error)
	SoftDelete(ctx context.Context, id int64) error
	CountActive(ctx context.Context) (int, error)
	ListActive(ctx context.Context, limit, offset int) ([]Book, error)
}

// MediaHost is the external image store. Delete is best effort by
// contract: it never fails the caller, it only reports success.
type MediaHost interface {
	Enabled() bool
	Upload(ctx context.Context, data []byte, contentType string) (ImageRef, error)
	Delete(ctx context.Context, publicID string) bool
}
