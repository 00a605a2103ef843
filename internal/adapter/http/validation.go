package http

import (
	"math/big"
	"regexp"

	"github.com/go-playground/validator/v10"
)

// Reusable error payload
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}
type ErrorResponse struct {
	Error   string       `json:"error"`
	Details []FieldError `json:"details,omitempty"`
}

var reHex32 = regexp.MustCompile(`^[a-f0-9]{32}$`)

type CustomValidator struct{ v *validator.Validate }

func NewValidator() *CustomValidator {
	v := validator.New()

	// account id = 32-char lowercase hex
	_ = v.RegisterValidation("hex32", func(fl validator.FieldLevel) bool {
		return reHex32.MatchString(fl.Field().String())
	})
	// amount = non-negative base-10 integer string (18-decimal fixed point)
	_ = v.RegisterValidation("wad", func(fl validator.FieldLevel) bool {
		n, ok := new(big.Int).SetString(fl.Field().String(), 10)
		return ok && n.Sign() >= 0
	})
	// basis points within 0..10000
	_ = v.RegisterValidation("bps", func(fl validator.FieldLevel) bool {
		return fl.Field().Uint() <= 10_000
	})

	return &CustomValidator{v: v}
}

func (cv *CustomValidator) Validate(i any) error { return cv.v.Struct(i) }

// Map validator.ValidationErrors → []FieldError with readable messages.
func ToFieldErrors(err error) []FieldError {
	ve, ok := err.(validator.ValidationErrors)
	if !ok {
		return []FieldError{{Field: "_", Message: err.Error()}}
	}
	out := make([]FieldError, 0, len(ve))
	for _, e := range ve {
		field := e.Field()
		switch e.Tag() {
		case "required":
			out = append(out, FieldError{Field: field, Message: "is required"})
		case "hex32":
			out = append(out, FieldError{Field: field, Message: "must be 32-char lowercase hex"})
		case "wad":
			out = append(out, FieldError{Field: field, Message: "must be a non-negative integer string"})
		case "bps":
			out = append(out, FieldError{Field: field, Message: "must be at most 10000 basis points"})
		case "gte":
			out = append(out, FieldError{Field: field, Message: "must be greater than or equal to " + e.Param()})
		case "lte":
			out = append(out, FieldError{Field: field, Message: "must be less than or equal to " + e.Param()})
		default:
			out = append(out, FieldError{Field: field, Message: e.Tag() + " validation failed"})
		}
	}
	return out
}
