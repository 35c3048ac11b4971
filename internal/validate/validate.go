// Package validate wraps go-playground/validator behind a single Struct
// helper so handlers can validate bound request bodies in one call. Field
// names in error messages come from the json tags, matching what the client
// actually sent.
package validate

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var v = newValidator()

func newValidator() *validator.Validate {
	val := validator.New()
	val.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return val
}

// Struct validates a single struct object against its validate tags and
// returns a flattened, human-readable error listing every failed field.
func Struct(s interface{}) error {
	if s == nil {
		return fmt.Errorf("is nil")
	}
	err := v.Struct(s)
	if err == nil {
		return nil
	}
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		parts := make([]string, 0, len(validationErrors))
		for _, fieldErr := range validationErrors {
			parts = append(parts, fmt.Sprintf("%s %s", fieldErr.Field(), fieldErr.Tag()))
		}
		return errors.New(strings.Join(parts, "; "))
	}
	return err
}

// Email reports whether a single address has a valid email format.
func Email(addr string) bool {
	return v.Var(addr, "required,email") == nil
}
