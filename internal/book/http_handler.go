package book

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"bookcatalog/internal/httpx"
)

// multipartMaxMemory bounds how much of a parsed form is held in memory;
// larger parts spill to temporary files.
const multipartMaxMemory = 10 << 20

type HTTPHandler struct {
	service *Service
	logger  *slog.Logger
}

func NewHTTPHandler(service *Service, logger *slog.Logger) *HTTPHandler {
	return &HTTPHandler{
		service: service,
		logger:  logger.With(slog.String("component", "book_handler")),
	}
}

// Register mounts the book routes on mux.
func (h *HTTPHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/books", h.Create)
	mux.HandleFunc("GET /v1/books", h.List)
	mux.HandleFunc("GET /v1/books/{id}", h.Get)
	mux.HandleFunc("PUT /v1/books/{id}", h.Update)
	mux.HandleFunc("DELETE /v1/books/{id}", h.Delete)
	mux.HandleFunc("POST /v1/books/{id}/image", h.AttachImage)
	mux.HandleFunc("DELETE /v1/books/{id}/image", h.RemoveImage)
}

// Create handles POST /v1/books (JSON or multipart).
func (h *HTTPHandler) Create(w http.ResponseWriter, r *http.Request) {
	in, img, err := h.decodeCreateBody(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	created, err := h.service.Create(r.Context(), in, img)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	httpx.JSON(w, http.StatusCreated, created)
}

// List handles GET /v1/books?limit&offset.
func (h *HTTPHandler) List(w http.ResponseWriter, r *http.Request) {
	req, err := ParsePageRequest(r.URL.Query())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	page, err := h.service.List(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("X-Total-Count", strconv.Itoa(page.Total))
	if link := page.LinkHeader(r.URL.Path); link != "" {
		w.Header().Set("Link", link)
	}
	httpx.JSON(w, http.StatusOK, page)
}

// Get handles GET /v1/books/{id}.
func (h *HTTPHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, ErrNotFound)
		return
	}

	b, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	httpx.JSON(w, http.StatusOK, b)
}

// Update handles PUT /v1/books/{id} (JSON or multipart).
func (h *HTTPHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, ErrNotFound)
		return
	}

	in, img, removeImage, err := h.decodeUpdateBody(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	updated, err := h.service.Update(r.Context(), id, in, img, removeImage)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	httpx.JSON(w, http.StatusOK, updated)
}

// Delete handles DELETE /v1/books/{id}.
func (h *HTTPHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, ErrNotFound)
		return
	}

	if err := h.service.Delete(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}

	httpx.Message(w, http.StatusOK, fmt.Sprintf("Book with ID %d was deleted successfully", id))
}

// AttachImage handles POST /v1/books/{id}/image.
func (h *HTTPHandler) AttachImage(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, ErrNotFound)
		return
	}

	img, err := h.decodeImageBody(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	updated, err := h.service.AttachImage(r.Context(), id, img)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	httpx.JSON(w, http.StatusOK, updated.Image)
}

// RemoveImage handles DELETE /v1/books/{id}/image.
func (h *HTTPHandler) RemoveImage(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, ErrNotFound)
		return
	}

	if _, err := h.service.RemoveImage(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}

	httpx.Message(w, http.StatusOK, fmt.Sprintf("Image for book %d was removed successfully", id))
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(r.PathValue("id"), 10, 64)
}

// createPayload decodes a JSON create body. Price arrives as a raw token
// so both "19.99" and 19.99 parse without a float ever being involved.
type createPayload struct {
	Title       string          `json:"title"`
	Author      string          `json:"author"`
	Description string          `json:"description"`
	Price       json.RawMessage `json:"price"`
}

type updatePayload struct {
	Title       *string         `json:"title"`
	Author      *string         `json:"author"`
	Description *string         `json:"description"`
	Price       json.RawMessage `json:"price"`
	RemoveImage bool            `json:"remove_image"`
}

// priceToken converts a raw JSON price to its literal string form. Absent
// and null both mean "not provided".
func priceToken(raw json.RawMessage) (*string, error) {
	token := strings.TrimSpace(string(raw))
	if token == "" || token == "null" {
		return nil, nil
	}
	if strings.HasPrefix(token, `"`) {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		return &s, nil
	}
	return &token, nil
}

func (h *HTTPHandler) decodeCreateBody(r *http.Request) (CreateInput, *ImageUpload, error) {
	switch mediaType(r) {
	case "application/json":
		var payload createPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			return CreateInput{}, nil, malformedBody()
		}
		in := CreateInput{
			Title:       payload.Title,
			Author:      payload.Author,
			Description: payload.Description,
		}
		price, err := priceToken(payload.Price)
		if err != nil {
			return CreateInput{}, nil, malformedBody()
		}
		if price != nil {
			in.Price = *price
		}
		return in, nil, nil

	case "multipart/form-data":
		if err := r.ParseMultipartForm(multipartMaxMemory); err != nil {
			return CreateInput{}, nil, malformedBody()
		}
		in := CreateInput{
			Title:       r.FormValue("title"),
			Author:      r.FormValue("author"),
			Description: r.FormValue("description"),
			Price:       r.FormValue("price"),
		}
		img, err := formImage(r)
		if err != nil {
			return CreateInput{}, nil, err
		}
		return in, img, nil

	default:
		return CreateInput{}, nil, ErrUnsupportedMediaType
	}
}

func (h *HTTPHandler) decodeUpdateBody(r *http.Request) (UpdateInput, *ImageUpload, bool, error) {
	switch mediaType(r) {
	case "application/json":
		var payload updatePayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			return UpdateInput{}, nil, false, malformedBody()
		}
		in := UpdateInput{
			Title:       payload.Title,
			Author:      payload.Author,
			Description: payload.Description,
		}
		price, err := priceToken(payload.Price)
		if err != nil {
			return UpdateInput{}, nil, false, malformedBody()
		}
		in.Price = price
		return in, nil, payload.RemoveImage, nil

	case "multipart/form-data":
		if err := r.ParseMultipartForm(multipartMaxMemory); err != nil {
			return UpdateInput{}, nil, false, malformedBody()
		}

		in := UpdateInput{
			Title:       formOptional(r, "title"),
			Author:      formOptional(r, "author"),
			Description: formOptional(r, "description"),
			Price:       formOptional(r, "price"),
		}

		removeImage := false
		if raw := formOptional(r, "remove_image"); raw != nil {
			parsed, err := strconv.ParseBool(*raw)
			if err != nil {
				return UpdateInput{}, nil, false, &ValidationError{Fields: []FieldError{
					{Field: "remove_image", Message: "must be a boolean"},
				}}
			}
			removeImage = parsed
		}

		img, err := formImage(r)
		if err != nil {
			return UpdateInput{}, nil, false, err
		}
		return in, img, removeImage, nil

	default:
		return UpdateInput{}, nil, false, ErrUnsupportedMediaType
	}
}

// decodeImageBody reads the cover for the attach endpoint: a multipart
// "image" part or a raw image body.
func (h *HTTPHandler) decodeImageBody(r *http.Request) (*ImageUpload, error) {
	mt := mediaType(r)

	if mt == "multipart/form-data" {
		if err := r.ParseMultipartForm(multipartMaxMemory); err != nil {
			return nil, malformedBody()
		}
		img, err := formImage(r)
		if err != nil {
			return nil, err
		}
		if img == nil {
			return nil, &ValidationError{Fields: []FieldError{{Field: "image", Message: msgRequired}}}
		}
		return img, nil
	}

	if strings.HasPrefix(mt, "image/") {
		data, err := io.ReadAll(r.Body)
		if err != nil || len(data) == 0 {
			return nil, malformedBody()
		}
		return &ImageUpload{Data: data, ContentType: mt}, nil
	}

	return nil, ErrUnsupportedMediaType
}

func mediaType(r *http.Request) string {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return ""
	}
	return mt
}

// formOptional distinguishes an absent form field from a supplied one.
func formOptional(r *http.Request, key string) *string {
	if r.MultipartForm == nil {
		return nil
	}
	values, ok := r.MultipartForm.Value[key]
	if !ok || len(values) == 0 {
		return nil
	}
	return &values[0]
}

func formImage(r *http.Request) (*ImageUpload, error) {
	file, header, err := r.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, malformedBody()
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, malformedBody()
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return &ImageUpload{Data: data, ContentType: contentType}, nil
}

func malformedBody() error {
	return &ValidationError{Fields: []FieldError{{Field: "body", Message: "must be a well-formed request body"}}}
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		httpx.Error(w, http.StatusUnprocessableEntity, "Validation failed",
			map[string]any{"validation_errors": ve.Fields})
		return
	}

	// UploadError wraps ErrMediaHostDisabled when a cover rides along on a
	// create or update, so it must be matched before the sentinel: those
	// paths report an upload failure, not an unimplemented endpoint.
	var ue *UploadError
	if errors.As(err, &ue) {
		h.logger.Error("image upload failed",
			slog.Any("error", err),
			slog.String("request_id", httpx.RequestIDFrom(r)),
		)
		httpx.Error(w, http.StatusInternalServerError, "Image upload failed", nil)
		return
	}

	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Error(w, http.StatusNotFound, "Book not found", nil)
	case errors.Is(err, ErrNoImage):
		httpx.Error(w, http.StatusNotFound, "Book has no image", nil)
	case errors.Is(err, ErrUnsupportedMediaType):
		httpx.Error(w, http.StatusUnsupportedMediaType, "Unsupported media type", nil)
	case errors.Is(err, ErrMediaHostDisabled):
		httpx.Error(w, http.StatusNotImplemented, "Image hosting is not configured", nil)
	default:
		h.logger.Error("request failed",
			slog.Any("error", err),
			slog.String("request_id", httpx.RequestIDFrom(r)),
		)
		httpx.Error(w, http.StatusInternalServerError, "Internal server error", nil)
	}
}
