package service

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// validateStruct 把 validator 的错误转换为 ErrValidation 分类下的首个字段错误。
func validateStruct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return newError(ErrValidation, "Invalid payload")
	}
	fe := fieldErrs[0]
	switch fe.Tag() {
	case "required":
		return newError(ErrValidation, fe.Field()+" is required")
	case "oneof":
		return newError(ErrValidation, fe.Field()+" must be one of: "+fe.Param())
	case "max":
		return newError(ErrValidation, fe.Field()+" is too long")
	default:
		return newError(ErrValidation, fe.Field()+" is invalid")
	}
}
