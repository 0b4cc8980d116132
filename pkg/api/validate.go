package api

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/waypointgames/waypoint/pkg/page"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("page_ref", validatePageRef)
	return v
}

// validatePageRef accepts a concrete page id: not empty and not the
// end-of-game sentinel.
func validatePageRef(fl validator.FieldLevel) bool {
	id := fl.Field().String()
	return id != "" && id != page.EndPageID
}

type fieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func formatValidationErrors(err error) []fieldError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []fieldError{{Message: err.Error()}}
	}

	out := make([]fieldError, 0, len(verrs))
	for _, fe := range verrs {
		var msg string
		switch fe.Tag() {
		case "required":
			msg = fe.Field() + " is required"
		case "min":
			msg = fe.Field() + " must have at least " + fe.Param() + " entries"
		case "max":
			msg = fe.Field() + " must be at most " + fe.Param() + " long"
		case "page_ref":
			msg = fe.Field() + " must name a page"
		default:
			msg = fe.Field() + " is invalid"
		}
		out = append(out, fieldError{Field: fe.Field(), Message: msg})
	}
	return out
}
