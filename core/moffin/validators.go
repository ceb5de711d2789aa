package moffin

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/forma/core"
)

var (
	accountTypeTag  = "accounttype"
	accountTypeText = "must be one of PF or PM"
)

func RegisterValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(accountTypeTag, func(fl validator.FieldLevel) bool {
		return core.StringInSlice(fl.Field().String(), AccountTypes)
	})
	core.RegisterCustomTranslation(validate, translator, accountTypeTag, accountTypeText)
}
