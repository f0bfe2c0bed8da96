package dto

import (
	"errors"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate runs struct tags on v. On failure it returns the failed tag keyed
// by field name.
func Validate(v any) map[string]string {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return map[string]string{"_": err.Error()}
	}

	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Tag()
	}
	return fields
}
