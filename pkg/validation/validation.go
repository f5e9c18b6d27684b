// Package validation wraps go-playground/validator with pt-BR messages and the
// custom tags used by request payloads.
package validation

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/locales/pt_BR"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	ptBRTranslations "github.com/go-playground/validator/v10/translations/pt_BR"

	appErrors "github.com/noah-isme/repense-api/pkg/errors"
)

// Validator validates structs and renders field errors in Portuguese.
type Validator struct {
	validate *validator.Validate
	trans    ut.Translator
}

// FieldError describes one rejected field.
type FieldError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// New constructs a Validator with the cpf tag registered.
func New() *Validator {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})

	locale := pt_BR.New()
	uni := ut.New(locale, locale)
	trans, _ := uni.GetTranslator("pt_BR")
	_ = ptBRTranslations.RegisterDefaultTranslations(validate, trans)

	_ = validate.RegisterValidation("cpf", func(fl validator.FieldLevel) bool {
		return ValidCPF(fl.Field().String())
	})
	registerMessage(validate, trans, "cpf", "{0} deve ser um CPF válido")

	return &Validator{validate: validate, trans: trans}
}

func registerMessage(validate *validator.Validate, trans ut.Translator, tag, text string) {
	_ = validate.RegisterTranslation(tag, trans,
		func(t ut.Translator) error { return t.Add(tag, text, true) },
		func(t ut.Translator, fe validator.FieldError) string {
			msg, err := t.T(tag, fe.Field())
			if err != nil {
				return fe.Error()
			}
			return msg
		},
	)
}

// Struct validates s and returns a VALIDATION_ERROR carrying per-field details.
func (v *Validator) Struct(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	details := make([]FieldError, 0, len(fieldErrs))
	messages := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msg := fe.Translate(v.trans)
		details = append(details, FieldError{Field: fe.Field(), Rule: fe.Tag(), Message: msg})
		messages = append(messages, msg)
	}
	return appErrors.WithDetails(appErrors.Clone(appErrors.ErrValidation, strings.Join(messages, "; ")), details)
}

// Var validates a single value against the tag.
func (v *Validator) Var(field interface{}, tag string) error {
	if err := v.validate.Var(field, tag); err != nil {
		return appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	return nil
}

// DigitsOnly keeps the ASCII digits of raw, e.g. "123.456.789-09" -> "12345678909".
func DigitsOnly(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ValidCPF checks the length and both verification digits of a CPF.
func ValidCPF(raw string) bool {
	cpf := DigitsOnly(raw)
	if len(cpf) != 11 {
		return false
	}
	allSame := true
	for i := 1; i < 11; i++ {
		if cpf[i] != cpf[0] {
			allSame = false
			break
		}
	}
	if allSame {
		return false
	}
	for _, size := range []int{9, 10} {
		sum := 0
		for i := 0; i < size; i++ {
			sum += int(cpf[i]-'0') * (size + 1 - i)
		}
		digit := (sum * 10) % 11
		if digit == 10 {
			digit = 0
		}
		if digit != int(cpf[size]-'0') {
			return false
		}
	}
	return true
}
