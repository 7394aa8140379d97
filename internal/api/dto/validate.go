package dto

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	entranslations "github.com/go-playground/validator/v10/translations/en"

	apperrors "github.com/spec-kit/repairdesk/pkg/util"
)

var (
	once       sync.Once
	validate   *validator.Validate
	translator ut.Translator
)

func lazyInit() {
	once.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(fieldName)

		locale := en.New()
		translator, _ = ut.New(locale, locale).GetTranslator("en")
		_ = entranslations.RegisterDefaultTranslations(validate, translator)
	})
}

// fieldName reports fields by their json or form name.
func fieldName(f reflect.StructField) string {
	for _, tag := range []string{"json", "form"} {
		name := strings.SplitN(f.Tag.Get(tag), ",", 2)[0]
		if name != "" && name != "-" {
			return name
		}
	}
	return f.Name
}

// Validate checks struct tags and returns a VALIDATION_FAILED error whose
// details map each offending field to a message.
func Validate(req any) error {
	lazyInit()
	err := validate.Struct(req)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	details := make(map[string]any, len(fieldErrs))
	for _, fe := range fieldErrs {
		details[fe.Field()] = fe.Translate(translator)
	}
	return apperrors.NewValidationError("validation failed", details)
}
