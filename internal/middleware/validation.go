package middleware

import (
	"encoding/json"
	"net/http"
	"reflect"
	"strings"

	"shop-admin/internal/domain"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// maxJSONBody bounds decoded request bodies
const maxJSONBody = 1 << 20

// Validator instance
var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())

	// report fields by their wire name rather than the Go field name
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		for _, tag := range []string{"json", "form"} {
			name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name != "" {
				return name
			}
		}
		return fld.Name
	})

	validate.RegisterCustomTypeFunc(func(v reflect.Value) any {
		if d, ok := v.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
}

// ValidateRequest validates v against its struct tags. Failures come back as
// a domain validation error carrying one entry per field.
func ValidateRequest(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	if fields := FormatValidationErrors(err); len(fields) > 0 {
		return domain.NewValidationError(fields...)
	}
	return errors.Wrap(err, "validating request")
}

// DecodeAndValidate decodes a JSON request body into v and validates it. A
// body that is not valid JSON is reported as a validation error on "body".
func DecodeAndValidate(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxJSONBody))
	if err := dec.Decode(v); err != nil {
		return domain.Invalid("body", "request body must be valid JSON")
	}
	return ValidateRequest(v)
}

// FormatValidationErrors converts validator errors to field errors. Errors
// already converted by ValidateRequest are returned as they are.
func FormatValidationErrors(err error) []domain.FieldError {
	if fields := domain.ValidationFields(err); len(fields) > 0 {
		return fields
	}

	var fields []domain.FieldError

	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		for _, e := range validationErrors {
			fields = append(fields, domain.FieldError{
				Field:   fieldPath(e),
				Message: getErrorMessage(e),
			})
		}
	}

	return fields
}

// fieldPath drops the root struct name from the namespace so nested fields
// read like "products[0].productId"
func fieldPath(e validator.FieldError) string {
	ns := e.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return e.Field()
}

func getErrorMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "This field is required"
	case "email":
		return "Invalid email format"
	case "min":
		return "Value is too short"
	case "max":
		return "Value is too long"
	case "gte":
		return "Value must be greater than or equal to " + e.Param()
	case "lte":
		return "Value must be less than or equal to " + e.Param()
	case "gt":
		return "Value must be greater than " + e.Param()
	case "lt":
		return "Value must be less than " + e.Param()
	case "oneof":
		return "Value must be one of " + e.Param()
	case "dive":
		return "Invalid entry"
	default:
		return "Invalid value"
	}
}
