package service

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		if name := fld.Tag.Get("param"); name != "" {
			return name
		}
		return fld.Name
	})
	return v
}

type pageParams struct {
	Page     int `param:"page" validate:"gte=1"`
	PageSize int `param:"page_size" validate:"gte=1,lte=100"`
}

type movieRatingsParams struct {
	MovieID  string `param:"movie_id" validate:"required"`
	Page     int    `param:"page" validate:"gte=1"`
	PageSize int    `param:"page_size" validate:"gte=1,lte=100"`
}

type idParams struct {
	ID string `param:"id" validate:"required"`
}

type limitParams struct {
	ID    string `param:"id" validate:"required"`
	Limit int    `param:"limit" validate:"gte=1,lte=100"`
}

type searchParams struct {
	Limit int `param:"limit" validate:"gte=1,lte=100"`
}

// check validates params and returns the first failure as *ValidationError.
func check(params any) error {
	err := validate.Struct(params)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return &ValidationError{Field: fe.Field(), Reason: reason(fe)}
	}
	return err
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be at most %s", fe.Param())
	default:
		return "is invalid"
	}
}
