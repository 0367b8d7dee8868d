package validation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/h2non/filetype"

	"github.com/ignatzorin/freelance-marketplace/internal/pkg/apperror"
)

// textFormats форматы без сигнатуры, которые filetype не распознаёт.
var textFormats = map[string]struct{}{
	"txt": {}, "md": {}, "csv": {}, "json": {}, "html": {}, "css": {}, "js": {}, "ts": {}, "go": {}, "py": {}, "sql": {},
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.RegisterValidation("fileformat", func(fl validator.FieldLevel) bool {
		return IsKnownFileFormat(fl.Field().String())
	}); err != nil {
		panic(fmt.Sprintf("validation: не удалось зарегистрировать fileformat: %v", err))
	}
	return v
}

// IsKnownFileFormat принимает расширение (pdf, .png) или MIME тип (application/zip).
func IsKnownFileFormat(format string) bool {
	f := strings.ToLower(strings.TrimSpace(format))
	if f == "" {
		return false
	}
	if strings.Contains(f, "/") {
		return filetype.IsMIMESupported(f)
	}
	f = strings.TrimPrefix(f, ".")
	if _, ok := textFormats[f]; ok {
		return true
	}
	return filetype.IsSupported(f)
}

// Struct проверяет структуру по тегам validate и возвращает VALIDATION_ERROR.
func Struct(s interface{}) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apperror.Wrap(err, apperror.ErrCodeValidation, "некорректные данные")
	}

	messages := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		messages = append(messages, fmt.Sprintf("%s: %s", fe.Field(), message(fe)))
	}
	return apperror.Wrap(err, apperror.ErrCodeValidation, strings.Join(messages, "; "))
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "обязательное поле"
	case "gt":
		return "должно быть больше " + fe.Param()
	case "gte", "min":
		return "должно быть не меньше " + fe.Param()
	case "lte", "max":
		return "должно быть не больше " + fe.Param()
	case "oneof":
		return "допустимые значения: " + fe.Param()
	case "fileformat":
		return "неизвестный формат файла"
	}
	return "некорректное значение"
}
