package book

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

const (
	msgRequired = "is required"
	msgBlank    = "cannot be empty or whitespace only"
	msgPrice    = "must be a non-negative amount with at most 2 decimal places"
	msgNoFields = "at least one field must be provided"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterValidation("notblank", validateNotBlank)
	validate.RegisterValidation("price", validatePrice)
}

func validateNotBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

func validatePrice(fl validator.FieldLevel) bool {
	return priceValid(fl.Field().String())
}

// priceValid accepts non-negative decimals with at most 2 fractional digits
// as supplied. Over-precise values ("19.999") are rejected here, before any
// rounding, so "too precise to accept" never turns into silent rounding.
func priceValid(s string) bool {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return false
	}
	if d.IsNegative() {
		return false
	}
	return d.Exponent() >= -2
}

// NormalizePrice renders an accepted price with exactly 2 fractional
// digits, rounding half-up. Rounding happens once, at this boundary.
func NormalizePrice(s string) string {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return s
	}
	return d.Round(2).StringFixed(2)
}

// CollapseWhitespace trims s and collapses internal runs of whitespace to a
// single space.
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// CreateInput holds the fields a client must supply when creating a book.
type CreateInput struct {
	Title       string `json:"title" validate:"required,notblank"`
	Author      string `json:"author" validate:"required,notblank"`
	Description string `json:"description" validate:"required,notblank"`
	Price       string `json:"price" validate:"required,price"`
}

// Validate checks every field, accumulating one error per violation, and
// normalizes accepted values in place (whitespace collapse, 2dp price).
func (in *CreateInput) Validate() error {
	if err := validate.Struct(in); err != nil {
		verrs, ok := err.(validator.ValidationErrors)
		if !ok {
			return err
		}
		return fieldErrors(verrs)
	}

	in.Title = CollapseWhitespace(in.Title)
	in.Author = CollapseWhitespace(in.Author)
	in.Description = CollapseWhitespace(in.Description)
	in.Price = NormalizePrice(in.Price)
	return nil
}

// UpdateInput holds the fields a client may supply when partially updating
// a book. Nil means "leave unchanged"; a present field is validated with
// the same rules as create. Text fields cannot be cleared to empty.
type UpdateInput struct {
	Title       *string `json:"title"`
	Author      *string `json:"author"`
	Description *string `json:"description"`
	Price       *string `json:"price"`
}

// Empty reports whether no field is present at all.
func (in *UpdateInput) Empty() bool {
	return in.Title == nil && in.Author == nil && in.Description == nil && in.Price == nil
}

// Validate checks the present fields, accumulating one error per violation,
// and normalizes accepted values in place.
func (in *UpdateInput) Validate() error {
	var fields []FieldError

	checkText := func(name string, v *string) {
		if v == nil {
			return
		}
		if strings.TrimSpace(*v) == "" {
			fields = append(fields, FieldError{Field: name, Message: msgBlank})
			return
		}
		*v = CollapseWhitespace(*v)
	}

	checkText("title", in.Title)
	checkText("author", in.Author)
	checkText("description", in.Description)

	if in.Price != nil {
		if !priceValid(*in.Price) {
			fields = append(fields, FieldError{Field: "price", Message: msgPrice})
		} else {
			*in.Price = NormalizePrice(*in.Price)
		}
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// fieldErrors converts validator violations into the service's error shape,
// keeping one entry per violated field.
func fieldErrors(verrs validator.ValidationErrors) *ValidationError {
	fields := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		name := strings.ToLower(fe.Field())

		var message string
		switch fe.Tag() {
		case "required":
			message = msgRequired
		case "notblank":
			message = msgBlank
		case "price":
			message = msgPrice
		default:
			message = "is invalid"
		}

		fields = append(fields, FieldError{Field: name, Message: message})
	}
	return &ValidationError{Fields: fields}
}

// NoFieldsError reports an update request that carried nothing to apply.
func NoFieldsError() *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: "body", Message: msgNoFields}}}
}
