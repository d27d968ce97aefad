package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

var indexPattern = regexp.MustCompile(`\[(\d+)\]`)

type CustomValidator struct {
	validator *validator.Validate
}

// NewValidator создает валидатор, который называет поля по JSON-тегам.
func NewValidator() *CustomValidator {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return field.Name
		}
		return name
	})
	return &CustomValidator{validator: v}
}

// Validate запускает проверку структуры по тегам.
func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}

// FieldErrors собирает ошибки по ключам вида items.0.description.
type FieldErrors map[string][]string

func (f FieldErrors) Add(field, message string) {
	f[field] = append(f[field], message)
}

// Merge добавляет ошибки валидатора. Прочие ошибки возвращаются как есть.
func (f FieldErrors) Merge(err error) error {
	if err == nil {
		return nil
	}

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err
	}

	for _, fe := range validationErrs {
		field := fieldKey(fe.Namespace())
		f.Add(field, fieldMessage(field, fe))
	}
	return nil
}

// DecimalRange проверяет значение на попадание в [min, max]; nil max без верхней границы.
func (f FieldErrors) DecimalRange(field string, value *decimal.Decimal, min decimal.Decimal, max *decimal.Decimal) {
	if value == nil {
		return
	}
	if value.LessThan(min) {
		f.Add(field, fmt.Sprintf("The %s field must be at least %s.", field, min.String()))
		return
	}
	if max != nil && value.GreaterThan(*max) {
		f.Add(field, fmt.Sprintf("The %s field must not be greater than %s.", field, max.String()))
	}
}

func unprocessable(c echo.Context, errs FieldErrors) error {
	return c.JSON(http.StatusUnprocessableEntity, map[string]any{
		"message": firstMessage(errs),
		"errors":  errs,
	})
}

func fieldKey(namespace string) string {
	if idx := strings.Index(namespace, "."); idx >= 0 {
		namespace = namespace[idx+1:]
	}
	return indexPattern.ReplaceAllString(namespace, ".$1")
}

func fieldMessage(field string, fe validator.FieldError) string {
	isString := fe.Kind() == reflect.String
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("The %s field is required.", field)
	case "min", "gte":
		if isString {
			return fmt.Sprintf("The %s field must be at least %s characters.", field, fe.Param())
		}
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("The %s field must have at least %s items.", field, fe.Param())
		}
		return fmt.Sprintf("The %s field must be at least %s.", field, fe.Param())
	case "max", "lte":
		if isString {
			return fmt.Sprintf("The %s field must not be greater than %s characters.", field, fe.Param())
		}
		return fmt.Sprintf("The %s field must not be greater than %s.", field, fe.Param())
	case "email":
		return fmt.Sprintf("The %s field must be a valid email address.", field)
	case "oneof":
		return fmt.Sprintf("The selected %s is invalid.", field)
	default:
		return fmt.Sprintf("The %s field is invalid.", field)
	}
}

// firstMessage возвращает первую ошибку по алфавиту ключей.
func firstMessage(errs FieldErrors) string {
	first := ""
	for field := range errs {
		if first == "" || field < first {
			first = field
		}
	}
	if first == "" {
		return "The given data was invalid."
	}

	message := errs[first][0]
	if extra := len(errs) - 1; extra > 0 {
		return fmt.Sprintf("%s (and %d more %s)", message, extra, pluralError(extra))
	}
	return message
}

func pluralError(n int) string {
	if n == 1 {
		return "error"
	}
	return "errors"
}
