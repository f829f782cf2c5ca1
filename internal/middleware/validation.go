package middleware

import (
	"reflect"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/hitpixel/pillflow-api/pkg/token"
)

// RegisterValidators installs custom binding validators. Called once at
// startup before any route binds a request struct.
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return nil
	}

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return fld.Name
		}
		return name
	})

	return v.RegisterValidation("sharetoken", func(fl validator.FieldLevel) bool {
		return token.WellFormed(fl.Field().String())
	})
}
