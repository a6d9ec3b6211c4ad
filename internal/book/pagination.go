package book

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Page window bounds for list requests.
const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// PageRequest is a validated window over the active catalog.
type PageRequest struct {
	Limit  int
	Offset int
}

// ParsePageRequest reads limit/offset from a query string, applying
// defaults when absent and rejecting out-of-range values. Both parameters
// are checked so a single bad request reports every violation.
func ParsePageRequest(values url.Values) (PageRequest, error) {
	req := PageRequest{Limit: DefaultPageLimit, Offset: 0}
	var fields []FieldError

	if raw := values.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > MaxPageLimit {
			fields = append(fields, FieldError{
				Field:   "limit",
				Message: fmt.Sprintf("must be an integer between 1 and %d", MaxPageLimit),
			})
		} else {
			req.Limit = n
		}
	}

	if raw := values.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			fields = append(fields, FieldError{
				Field:   "offset",
				Message: "must be a non-negative integer",
			})
		} else {
			req.Offset = n
		}
	}

	if len(fields) > 0 {
		return PageRequest{}, &ValidationError{Fields: fields}
	}
	return req, nil
}

// Page holds one window of results plus the metadata clients need to walk
// the collection. Data is always present in JSON, never null.
type Page[T any] struct {
	Data   []T `json:"data"`
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// NewPage builds a Page, guaranteeing a non-nil item slice.
func NewPage[T any](data []T, total int, req PageRequest) Page[T] {
	if data == nil {
		data = []T{}
	}
	return Page[T]{
		Data:   data,
		Total:  total,
		Limit:  req.Limit,
		Offset: req.Offset,
	}
}

// HasNext reports whether a further window exists past this one.
func (p Page[T]) HasNext() bool { return p.Offset+p.Limit < p.Total }

// HasPrev reports whether this window starts after the collection head.
func (p Page[T]) HasPrev() bool { return p.Offset > 0 }

// LinkHeader renders RFC 5988 next/prev relations against the list
// endpoint's own path, comma-joined when both are present. It returns ""
// when the page has no neighbors.
func (p Page[T]) LinkHeader(path string) string {
	var links []string

	if p.HasNext() {
		links = append(links, fmt.Sprintf(`<%s?limit=%d&offset=%d>; rel="next"`,
			path, p.Limit, p.Offset+p.Limit))
	}
	if p.HasPrev() {
		prev := p.Offset - p.Limit
		if prev < 0 {
			prev = 0
		}
		links = append(links, fmt.Sprintf(`<%s?limit=%d&offset=%d>; rel="prev"`,
			path, p.Limit, prev))
	}

	return strings.Join(links, ", ")
}
