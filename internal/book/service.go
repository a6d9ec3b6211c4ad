package book

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
)

// ImageUpload carries raw cover bytes received from a client.
type ImageUpload struct {
	Data        []byte
	ContentType string
}

// ImagePolicy bounds what the service will accept before any network call
// reaches the media host.
type ImagePolicy struct {
	MaxBytes     int64
	AllowedTypes []string
}

// Service orchestrates the book lifecycle against the repository and the
// media host. It holds no mutable state of its own; concurrency control is
// the store's row-level consistency (last write wins).
type Service struct {
	repo   Repository
	media  MediaHost
	policy ImagePolicy
	logger *slog.Logger
}

func NewService(repo Repository, media MediaHost, policy ImagePolicy, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		media:  media,
		policy: policy,
		logger: logger.With(slog.String("component", "book_service")),
	}
}

// Create validates and persists a new active book, attaching a cover first
// when one is supplied. An upload failure aborts the operation; a storage
// failure after a successful upload purges the fresh asset best-effort so
// nothing half-created survives.
func (s *Service) Create(ctx context.Context, in CreateInput, img *ImageUpload) (*Book, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	b := &Book{
		Title:       in.Title,
		Author:      in.Author,
		Description: in.Description,
		Price:       in.Price,
		Active:      true,
	}

	if img != nil {
		ref, err := s.attach(ctx, img)
		if err != nil {
			return nil, err
		}
		b.Image = ref
	}

	if err := s.repo.Insert(ctx, b); err != nil {
		if b.Image != nil {
			s.purge(ctx, b.Image.PublicID)
		}
		return nil, &StorageError{Err: err}
	}

	s.logger.InfoContext(ctx, "book created", slog.Int64("book_id", b.ID), slog.String("title", b.Title))
	return b, nil
}

// Get returns the active book with the given ID.
func (s *Service) Get(ctx context.Context, id int64) (*Book, error) {
	b, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if err == ErrNotFound {
			return nil, err
		}
		return nil, &StorageError{Err: err}
	}
	return b, nil
}

// List returns one window of the active catalog, newest first, along with
// the total active count. The item slice is never nil.
func (s *Service) List(ctx context.Context, req PageRequest) (Page[Book], error) {
	total, err := s.repo.CountActive(ctx)
	if err != nil {
		return Page[Book]{}, &StorageError{Err: err}
	}

	items, err := s.repo.ListActive(ctx, req.Limit, req.Offset)
	if err != nil {
		return Page[Book]{}, &StorageError{Err: err}
	}

	return NewPage(items, total, req), nil
}

// Update applies the present fields of in to an active book. Absent fields
// are untouched. removeImage clears the attachment (purging the remote
// asset best-effort); otherwise a supplied image replaces any existing one,
// with the reference swap committing atomically alongside the field
// updates. A request carrying nothing at all is rejected.
func (s *Service) Update(ctx context.Context, id int64, in UpdateInput, img *ImageUpload, removeImage bool) (*Book, error) {
	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if in.Empty() && img == nil && !removeImage {
		return nil, NoFieldsError()
	}

	if err := in.Validate(); err != nil {
		return nil, err
	}

	m := Mutation{
		Title:       in.Title,
		Author:      in.Author,
		Description: in.Description,
		Price:       in.Price,
	}

	var uploaded *ImageRef
	switch {
	case removeImage:
		if current.Image != nil {
			s.purge(ctx, current.Image.PublicID)
		}
		m.Image = ImageMutation{Set: true, Ref: nil}
	case img != nil:
		if current.Image != nil {
			s.purge(ctx, current.Image.PublicID)
		}
		ref, err := s.attach(ctx, img)
		if err != nil {
			return nil, err
		}
		uploaded = ref
		m.Image = ImageMutation{Set: true, Ref: ref}
	}

	updated, err := s.repo.Update(ctx, id, m)
	if err != nil {
		if uploaded != nil {
			s.purge(ctx, uploaded.PublicID)
		}
		if err == ErrNotFound {
			return nil, err
		}
		return nil, &StorageError{Err: err}
	}

	s.logger.InfoContext(ctx, "book updated", slog.Int64("book_id", updated.ID), slog.String("title", updated.Title))
	return updated, nil
}

// Delete soft-deletes an active book. Any attached cover is purged from
// the media host best-effort first; remote cleanup failure never blocks
// the deletion. A second delete of the same ID reports ErrNotFound.
func (s *Service) Delete(ctx context.Context, id int64) error {
	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if current.Image != nil {
		s.purge(ctx, current.Image.PublicID)
	}

	if err := s.repo.SoftDelete(ctx, id); err != nil {
		if err == ErrNotFound {
			return err
		}
		return &StorageError{Err: err}
	}

	s.logger.InfoContext(ctx, "book soft deleted", slog.Int64("book_id", current.ID), slog.String("title", current.Title))
	return nil
}

// AttachImage uploads a cover for an active book, replacing any existing
// attachment. Returns ErrMediaHostDisabled when no media host was
// configured at startup.
func (s *Service) AttachImage(ctx context.Context, id int64, img *ImageUpload) (*Book, error) {
	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !s.media.Enabled() {
		return nil, ErrMediaHostDisabled
	}

	if current.Image != nil {
		s.purge(ctx, current.Image.PublicID)
	}

	ref, err := s.attach(ctx, img)
	if err != nil {
		return nil, err
	}

	updated, err := s.repo.Update(ctx, id, Mutation{Image: ImageMutation{Set: true, Ref: ref}})
	if err != nil {
		s.purge(ctx, ref.PublicID)
		if err == ErrNotFound {
			return nil, err
		}
		return nil, &StorageError{Err: err}
	}

	return updated, nil
}

// RemoveImage clears a book's attachment, purging the remote asset
// best-effort. Returns ErrNoImage when the book has no cover.
func (s *Service) RemoveImage(ctx context.Context, id int64) (*Book, error) {
	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if current.Image == nil {
		return nil, ErrNoImage
	}

	s.purge(ctx, current.Image.PublicID)

	updated, err := s.repo.Update(ctx, id, Mutation{Image: ImageMutation{Set: true, Ref: nil}})
	if err != nil {
		if err == ErrNotFound {
			return nil, err
		}
		return nil, &StorageError{Err: err}
	}

	return updated, nil
}

// attach validates the upload against the image policy and hands it to the
// media host. Policy violations never reach the network.
func (s *Service) attach(ctx context.Context, img *ImageUpload) (*ImageRef, error) {
	if err := s.checkImage(img); err != nil {
		return nil, err
	}

	if !s.media.Enabled() {
		return nil, &UploadError{Err: ErrMediaHostDisabled}
	}

	ref, err := s.media.Upload(ctx, img.Data, img.ContentType)
	if err != nil {
		return nil, &UploadError{Err: err}
	}
	return &ref, nil
}

func (s *Service) checkImage(img *ImageUpload) error {
	var fields []FieldError

	if !slices.Contains(s.policy.AllowedTypes, img.ContentType) {
		fields = append(fields, FieldError{
			Field:   "image",
			Message: fmt.Sprintf("content type %q is not allowed", img.ContentType),
		})
	}
	if int64(len(img.Data)) > s.policy.MaxBytes {
		fields = append(fields, FieldError{
			Field:   "image",
			Message: fmt.Sprintf("exceeds the maximum size of %d bytes", s.policy.MaxBytes),
		})
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// purge deletes a remote asset best-effort. Failure is logged and
// swallowed: an orphaned remote asset is the accepted, recoverable cost.
func (s *Service) purge(ctx context.Context, publicID string) {
	if !s.media.Enabled() {
		return
	}
	if ok := s.media.Delete(ctx, publicID); !ok {
		s.logger.WarnContext(ctx, "failed to delete media asset", slog.String("public_id", publicID))
	}
}
