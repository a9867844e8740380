package validator

import (
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

const (
	defaultMinYear = 2000
	defaultMaxYear = 2100
)

type CustomValidator struct {
	validator *validator.Validate
	minYear   int
	maxYear   int
}

type Option func(*CustomValidator)

// WithYearRange bounds the "year" tag, inclusive.
func WithYearRange(minYear, maxYear int) Option {
	return func(cv *CustomValidator) {
		cv.minYear = minYear
		cv.maxYear = maxYear
	}
}

func NewValidator(opts ...Option) *CustomValidator {
	cv := &CustomValidator{
		minYear: defaultMinYear,
		maxYear: defaultMaxYear,
	}
	for _, opt := range opts {
		opt(cv)
	}

	v := validator.New()
	// report json field names so errors match the request body
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	v.RegisterValidation("year", func(fl validator.FieldLevel) bool {
		year := fl.Field().Int()
		return year >= int64(cv.minYear) && year <= int64(cv.maxYear)
	})

	cv.validator = v
	return cv
}

func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}

func (cv *CustomValidator) FormatValidationErrors(err error) map[string]string {
	errors := make(map[string]string)

	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		for _, e := range validationErrors {
			field := e.Field()
			switch e.Tag() {
			case "required":
				errors[field] = field + " is required"
			case "oneof":
				errors[field] = field + " must be one of: " + e.Param()
			case "min":
				errors[field] = field + " must be at least " + e.Param()
			case "max":
				errors[field] = field + " must be at most " + e.Param()
			case "gte":
				errors[field] = field + " must be greater than or equal to " + e.Param()
			case "lte":
				errors[field] = field + " must be less than or equal to " + e.Param()
			case "year":
				errors[field] = field + " must be between " + strconv.Itoa(cv.minYear) + " and " + strconv.Itoa(cv.maxYear)
			default:
				errors[field] = field + " is invalid"
			}
		}
	}

	return errors
}
