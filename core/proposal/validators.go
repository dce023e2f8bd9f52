package proposal

import (
	"fmt"
	"reflect"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/tribunal/core"
)

var (
	// custom validation tags & texts
	categoryTag  = "category"
	categoryText = "must be one of theoretical, practical or checkpoint"

	hierarchyTag  = "hierarchy"
	hierarchyText = fmt.Sprintf("must be between %d and %d", MinHierarchy, MaxHierarchy)
)

// RegisterValidators registers the proposal validation tags and their translations.
func RegisterValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(categoryTag, categoryValidation)
	core.RegisterCustomTranslation(validate, translator, categoryTag, categoryText)

	_ = validate.RegisterValidation(hierarchyTag, hierarchyValidation)
	core.RegisterCustomTranslation(validate, translator, hierarchyTag, hierarchyText)
}

// NewValidator returns a validator ready for proposal payloads, along with its translator.
func NewValidator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	RegisterValidators(validate, translator)
	return validate, translator
}

func categoryValidation(fl validator.FieldLevel) bool {
	switch v := fl.Field().Interface().(type) {
	case Category:
		return v.Valid()
	case string:
		return Category(v).Valid()
	}
	return false
}

func hierarchyValidation(fl validator.FieldLevel) bool {
	switch fl.Field().Kind() {
	case reflect.Int, reflect.Int64, reflect.Int32:
		h := fl.Field().Int()
		return h >= MinHierarchy && h <= MaxHierarchy
	}
	return false
}
