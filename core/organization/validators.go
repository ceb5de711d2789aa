package organization

import (
	"strings"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/forma/core"
)

var (
	moffinKeyTag  = "moffinkey"
	moffinKeyText = "the Moffin API key must be formatted as client_id:client_secret"
)

// RegisterValidators registers the organization validators and their translations.
func RegisterValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(moffinKeyTag, moffinKeyValidation)
	core.RegisterCustomTranslation(validate, translator, moffinKeyTag, moffinKeyText)
}

func moffinKeyValidation(fl validator.FieldLevel) bool {
	parts := strings.SplitN(fl.Field().String(), ":", 2)
	return len(parts) == 2 && parts[0] != "" && parts[1] != ""
}
