package book

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"bookcatalog/internal/httpx"
	"bookcatalog/internal/testutil"
)

func readerOf(s string) io.Reader { return strings.NewReader(s) }

func newTestMux(repo Repository, media MediaHost) *http.ServeMux {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(repo, media, ImagePolicy{
		MaxBytes:     1 << 20,
		AllowedTypes: []string{"image/jpeg", "image/png"},
	}, logger)

	mux := http.NewServeMux()
	NewHTTPHandler(svc, logger).Register(mux)
	return mux
}

func TestHandler_Create_JSON(t *testing.T) {
	repo := new(mockRepository)
	mux := newTestMux(repo, new(mockMediaHost))

	repo.On("Insert", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		args.Get(1).(*Book).ID = 42
	}).Return(nil)

	r := testutil.NewJSONRequest(t, http.MethodPost, "/v1/books", map[string]any{
		"title":       "The Great Gatsby",
		"author":      "F. Scott Fitzgerald",
		"description": "A novel about the Jazz Age",
		"price":       "19.9",
	})
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)

	require.Equal(t, http.StatusCreated, w.Code)

	var got Book
	testutil.DecodeJSON(t, w, &got)
	assert.Equal(t, int64(42), got.ID)
	assert.Equal(t, "19.90", got.Price)
	assert.True(t, got.Active)
}

func TestHandler_Create_NumericPriceAccepted(t *testing.T) {
	repo := new(mockRepository)
	mux := newTestMux(repo, new(mockMediaHost))

	repo.On("Insert", mock.Anything, mock.MatchedBy(func(b *Book) bool {
		return b.Price == "19.90"
	})).Return(nil)

	r := testutil.NewJSONRequest(t, http.MethodPost, "/v1/books", map[string]any{
		"title":       "T",
		"author":      "A",
		"description": "D",
		"price":       19.9,
	})
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)

	require.Equal(t, http.StatusCreated, w.Code)
	repo.AssertExpectations(t)
}

func TestHandler_Create_ValidationErrorShape(t *testing.T) {
	mux := newTestMux(new(mockRepository), new(mockMediaHost))

	r := testutil.NewJSONRequest(t, http.MethodPost, "/v1/books", map[string]any{
		"title": "   ",
		"price": "19.999",
	})
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)

	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var body struct {
		Error   string `json:"error"`
		Details struct {
			ValidationErrors []FieldError `json:"validation_errors"`
		} `json:"details"`
	}
	testutil.DecodeJSON(t, w, &body)

	assert.Equal(t, "Validation failed", body.Error)
	require.Len(t, body.Details.ValidationErrors, 4)

	byField := map[string]string{}
	for _, f := range body.Details.ValidationErrors {
		byField[f.Field] = f.Message
	}
	assert.Equal(t, "cannot be empty or whitespace only", byField["title"])
	assert.Equal(t, "is required", byField["author"])
	assert.Equal(t, "is required", byField["description"])
	assert.Equal(t, "must be a non-negative amount with at most 2 decimal places", byField["price"])
}

func TestHandler_Create_MalformedJSON(t *testing.T) {
	mux := newTestMux(new(mockRepository), new(mockMediaHost))

	r := httptest.NewRequest(http.MethodPost, "/v1/books", readerOf(`{"title": `))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestHandler_Create_UnsupportedContentType(t *testing.T) {
	mux := newTestMux(new(mockRepository), new(mockMediaHost))

	r := httptest.NewRequest(http.MethodPost, "/v1/books", readerOf("title=x"))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)

	require.Equal(t, http.StatusUnsupportedMediaType, w.Code)

	var body httpx.ErrorBody
	testutil.DecodeJSON(t, w, &body)
	assert.Equal(t, "Unsupported media type", body.Error)
	assert.NotNil(t, body.Details)
}

func TestHandler_Create_Multipart(t *testing.T) {
	repo := new(mockRepository)
	media := new(mockMediaHost)
	mux := newTestMux(repo, media)

	ref := ImageRef{URL: "https://cdn.example/covers/abc.jpg", PublicID: "covers/abc"}
	media.On("Enabled").Return(true)
	media.On("Upload", mock.Anything, []byte("fakeimg"), "image/png").Return(ref, nil)
	repo.On("Insert", mock.Anything, mock.MatchedBy(func(b *Book) bool {
		return b.Title == "Dune" && b.Image != nil && b.Image.PublicID == "covers/abc"
	})).Return(nil)

	r := testutil.NewMultipartRequest(t, http.MethodPost, "/v1/books", map[string]string{
		"title":       "Dune",
		"author":      "Frank Herbert",
		"description": "Desert planet",
		"price":       "12.00",
	}, testutil.MultipartFile{
		Field:       "image",
		Filename:    "cover.png",
		ContentType: "image/png",
		Data:        []byte("fakeimg"),
	})
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)

	require.Equal(t, http.StatusCreated, w.Code)
	repo.AssertExpectations(t)
}

func TestHandler_Create_WithImageOnDisabledHost(t *testing.T) {
	repo := new(mockRepository)
	media := new(mockMediaHost)
	mux := newTestMux(repo, media)

	media.On("Enabled").Return(false)

	r := testutil.NewMultipartRequest(t, http.MethodPost, "/v1/books", map[string]string{
		"title":       "Dune",
		"author":      "Frank Herbert",
		"description": "Desert planet",
		"price":       "12.00",
	}, testutil.MultipartFile{
		Field:       "image",
		Filename:    "cover.jpg",
		ContentType: "image/jpeg",
		Data:        []byte("img"),
	})
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)

	// A cover riding along on a create is an upload failure, not an
	// unimplemented endpoint.
	require.Equal(t, http.StatusInternalServerError, w.Code)

	var body httpx.ErrorBody
	testutil.DecodeJSON(t, w, &body)
	assert.Equal(t, "Image upload failed", body.Error)
	repo.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
}

func TestHandler_Update_WithImageOnDisabledHost(t *testing.T) {
	repo := new(mockRepository)
	media := new(mockMediaHost)
	mux := newTestMux(repo, media)

	media.On("Enabled").Return(false)
	repo.On("GetByID", mock.Anything, int64(1)).Return(activeBook(1), nil)

	r := testutil.NewMultipartRequest(t, http.MethodPut, "/v1/books/1", map[string]string{
		"title": "New Title",
	}, testutil.MultipartFile{
		Field:       "image",
		Filename:    "cover.jpg",
		ContentType: "image/jpeg",
		Data:        []byte("img"),
	})
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)

	require.Equal(t, http.StatusInternalServerError, w.Code)

	var body httpx.ErrorBody
	testutil.DecodeJSON(t, w, &body)
	assert.Equal(t, "Image upload failed", body.Error)
}

func TestHandler_Update_MalformedRemoveImage(t *testing.T) {
	repo := new(mockRepository)
	mux := newTestMux(repo, new(mockMediaHost))

	r := testutil.NewMultipartRequest(t, http.MethodPut, "/v1/books/1", map[string]string{
		"title":        "New Title",
		"remove_image": "yes",
	})
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)

	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var body struct {
		Details struct {
			ValidationErrors []FieldError `json:"validation_errors"`
		} `json:"details"`
	}
	testutil.DecodeJSON(t, w, &body)
	require.Len(t, body.Details.ValidationErrors, 1)
	assert.Equal(t, "remove_image", body.Details.ValidationErrors[0].Field)
	assert.Equal(t, "must be a boolean", body.Details.ValidationErrors[0].Message)
}

func TestHandler_Get(t *testing.T) {
	repo := new(mockRepository)
	mux := newTestMux(repo, new(mockMediaHost))

	repo.On("GetByID", mock.Anything, int64(7)).Return(activeBook(7), nil)

	r := httptest.NewRequest(http.MethodGet, "/v1/books/7", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)

	var got Book
	testutil.DecodeJSON(t, w, &got)
	assert.Equal(t, int64(7), got.ID)
}

func TestHandler_Get_NotFound(t *testing.T) {
	repo := new(mockRepository)
	mux := newTestMux(repo, new(mockMediaHost))

	repo.On("GetByID", mock.Anything, int64(999)).Return(nil, ErrNotFound)

	r := httptest.NewRequest(http.MethodGet, "/v1/books/999", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)

	require.Equal(t, http.StatusNotFound, w.Code)

	var body httpx.ErrorBody
	testutil.DecodeJSON(t, w, &body)
	assert.Equal(t, "Book not found", body.Error)
}

func TestHandler_Get_MalformedID(t *testing.T) {
	mux := newTestMux(new(mockRepository), new(mockMediaHost))

	r := httptest.NewRequest(http.MethodGet, "/v1/books/abc", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandler_List_Headers(t *testing.T) {
	repo := new(mockRepository)
	mux := newTestMux(repo, new(mockMediaHost))

	repo.On("CountActive", mock.Anything).Return(50, nil)
	repo.On("ListActive", mock.Anything, 10, 20).Return([]Book{*activeBook(21)}, nil)

	r := httptest.NewRequest(http.MethodGet, "/v1/books?limit=10&offset=20", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "50", w.Header().Get("X-Total-Count"))
	assert.Equal(t,
		`</v1/books?limit=10&offset=30>; rel="next", </v1/books?limit=10&offset=10>; rel="prev"`,
		w.Header().Get("Link"))

	var page Page[Book]
	testutil.DecodeJSON(t, w, &page)
	assert.Equal(t, 50, page.Total)
	assert.Len(t, page.Data, 1)
}

func TestHandler_List_NoLinkOnSinglePage(t *testing.T) {
	repo := new(mockRepository)
	mux := newTestMux(repo, new(mockMediaHost))

	repo.On("CountActive", mock.Anything).Return(3, nil)
	repo.On("ListActive", mock.Anything, 20, 0).Return([]Book{}, nil)

	r := httptest.NewRequest(http.MethodGet, "/v1/books", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "3", w.Header().Get("X-Total-Count"))
	_, hasLink := w.Header()["Link"]
	assert.False(t, hasLink)
}

func TestHandler_List_EmptyBeyondEnd(t *testing.T) {
	repo := new(mockRepository)
	mux := newTestMux(repo, new(mockMediaHost))

	repo.On("CountActive", mock.Anything).Return(5, nil)
	repo.On("ListActive", mock.Anything, 20, 100).Return([]Book{}, nil)

	r := httptest.NewRequest(http.MethodGet, "/v1/books?offset=100", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)

	var page Page[Book]
	testutil.DecodeJSON(t, w, &page)
	assert.Equal(t, 5, page.Total)
	assert.NotNil(t, page.Data)
	assert.Empty(t, page.Data)
}

func TestHandler_List_BadParams(t *testing.T) {
	mux := newTestMux(new(mockRepository), new(mockMediaHost))

	r := httptest.NewRequest(http.MethodGet, "/v1/books?limit=0&offset=-1", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestHandler_Update_SingleField(t *testing.T) {
	repo := new(mockRepository)
	mux := newTestMux(repo, new(mockMediaHost))

	updated := activeBook(1)
	updated.Title = "New Title"

	repo.On("GetByID", mock.Anything, int64(1)).Return(activeBook(1), nil)
	repo.On("Update", mock.Anything, int64(1), mock.MatchedBy(func(m Mutation) bool {
		return m.Title != nil && *m.Title == "New Title" && m.Price == nil
	})).Return(updated, nil)

	r := testutil.NewJSONRequest(t, http.MethodPut, "/v1/books/1", map[string]any{
		"title": "New   Title",
	})
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)

	var got Book
	testutil.DecodeJSON(t, w, &got)
	assert.Equal(t, "New Title", got.Title)
}

func TestHandler_Update_EmptyBody(t *testing.T) {
	repo := new(mockRepository)
	mux := newTestMux(repo, new(mockMediaHost))

	repo.On("GetByID", mock.Anything, int64(1)).Return(activeBook(1), nil)

	r := testutil.NewJSONRequest(t, http.MethodPut, "/v1/books/1", map[string]any{})
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)

	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var body struct {
		Details struct {
			ValidationErrors []FieldError `json:"validation_errors"`
		} `json:"details"`
	}
	testutil.DecodeJSON(t, w, &body)
	require.Len(t, body.Details.ValidationErrors, 1)
	assert.Equal(t, "body", body.Details.ValidationErrors[0].Field)
}

func TestHandler_Update_NullPriceTreatedAsAbsent(t *testing.T) {
	repo := new(mockRepository)
	mux := newTestMux(repo, new(mockMediaHost))

	updated := activeBook(1)
	repo.On("GetByID", mock.Anything, int64(1)).Return(activeBook(1), nil)
	repo.On("Update", mock.Anything, int64(1), mock.MatchedBy(func(m Mutation) bool {
		return m.Price == nil && m.Author != nil
	})).Return(updated, nil)

	r := testutil.NewJSONRequest(t, http.MethodPut, "/v1/books/1", map[string]any{
		"author": "New Author",
		"price":  nil,
	})
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	repo.AssertExpectations(t)
}

func TestHandler_Update_RemoveImage(t *testing.T) {
	repo := new(mockRepository)
	media := new(mockMediaHost)
	mux := newTestMux(repo, media)

	current := activeBook(1)
	current.Image = &ImageRef{URL: "https://cdn.example/old.jpg", PublicID: "covers/old"}
	cleared := activeBook(1)

	media.On("Enabled").Return(true)
	media.On("Delete", mock.Anything, "covers/old").Return(true)
	repo.On("GetByID", mock.Anything, int64(1)).Return(current, nil)
	repo.On("Update", mock.Anything, int64(1), mock.MatchedBy(func(m Mutation) bool {
		return m.Image.Set && m.Image.Ref == nil
	})).Return(cleared, nil)

	r := testutil.NewJSONRequest(t, http.MethodPut, "/v1/books/1", map[string]any{
		"remove_image": true,
	})
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)
}

func TestHandler_Update_NotFound(t *testing.T) {
	repo := new(mockRepository)
	mux := newTestMux(repo, new(mockMediaHost))

	repo.On("GetByID", mock.Anything, int64(999)).Return(nil, ErrNotFound)

	r := testutil.NewJSONRequest(t, http.MethodPut, "/v1/books/999", map[string]any{
		"title": "x",
	})
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandler_Delete_Message(t *testing.T) {
	repo := new(mockRepository)
	mux := newTestMux(repo, new(mockMediaHost))

	repo.On("GetByID", mock.Anything, int64(12)).Return(activeBook(12), nil)
	repo.On("SoftDelete", mock.Anything, int64(12)).Return(nil)

	r := httptest.NewRequest(http.MethodDelete, "/v1/books/12", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)

	var body httpx.MessageBody
	testutil.DecodeJSON(t, w, &body)
	assert.Equal(t, "Book with ID 12 was deleted successfully", body.Message)
}

func TestHandler_AttachImage_DisabledHost(t *testing.T) {
	repo := new(mockRepository)
	media := new(mockMediaHost)
	mux := newTestMux(repo, media)

	media.On("Enabled").Return(false)
	repo.On("GetByID", mock.Anything, int64(1)).Return(activeBook(1), nil)

	r := testutil.NewMultipartRequest(t, http.MethodPost, "/v1/books/1/image", nil,
		testutil.MultipartFile{
			Field:       "image",
			Filename:    "cover.jpg",
			ContentType: "image/jpeg",
			Data:        []byte("img"),
		})
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)

	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestHandler_AttachImage_RawBody(t *testing.T) {
	repo := new(mockRepository)
	media := new(mockMediaHost)
	mux := newTestMux(repo, media)

	ref := ImageRef{URL: "https://cdn.example/covers/raw.jpg", PublicID: "covers/raw"}
	updated := activeBook(1)
	updated.Image = &ref

	media.On("Enabled").Return(true)
	media.On("Upload", mock.Anything, []byte("rawbytes"), "image/jpeg").Return(ref, nil)
	repo.On("GetByID", mock.Anything, int64(1)).Return(activeBook(1), nil)
	repo.On("Update", mock.Anything, int64(1), mock.Anything).Return(updated, nil)

	r := httptest.NewRequest(http.MethodPost, "/v1/books/1/image", readerOf("rawbytes"))
	r.Header.Set("Content-Type", "image/jpeg")
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)

	var got ImageRef
	testutil.DecodeJSON(t, w, &got)
	assert.Equal(t, "covers/raw", got.PublicID)
}

func TestHandler_RemoveImage_NoImage(t *testing.T) {
	repo := new(mockRepository)
	mux := newTestMux(repo, new(mockMediaHost))

	repo.On("GetByID", mock.Anything, int64(1)).Return(activeBook(1), nil)

	r := httptest.NewRequest(http.MethodDelete, "/v1/books/1/image", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)

	require.Equal(t, http.StatusNotFound, w.Code)

	var body httpx.ErrorBody
	testutil.DecodeJSON(t, w, &body)
	assert.Equal(t, "Book has no image", body.Error)
}

func TestHandler_StorageErrorIs500(t *testing.T) {
	repo := new(mockRepository)
	mux := newTestMux(repo, new(mockMediaHost))

	repo.On("CountActive", mock.Anything).Return(0, assert.AnError)

	r := httptest.NewRequest(http.MethodGet, "/v1/books", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)

	require.Equal(t, http.StatusInternalServerError, w.Code)

	var body httpx.ErrorBody
	testutil.DecodeJSON(t, w, &body)
	assert.Equal(t, "Internal server error", body.Error)
}
