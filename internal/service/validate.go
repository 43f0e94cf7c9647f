package service

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/yourname/focustracker/internal"
)

var validate = validator.New()

// validationError turns validator output into an internal validation error.
func validationError(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		parts := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			field := fe.Field()
			if field == "" {
				field = "value"
			}
			parts = append(parts, field+" failed '"+fe.Tag()+"'")
		}
		return internal.ValidationErrorf("%s", strings.Join(parts, ", "))
	}
	return internal.ValidationErrorf("%v", err)
}

func validateOwner(ownerID string) error {
	if err := validate.Var(ownerID, "required,max=128"); err != nil {
		return internal.ValidationErrorf("owner id is required")
	}
	return nil
}
