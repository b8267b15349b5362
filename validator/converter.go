// Package validator turns ozzo-validation failures into LayeredErrors
package validator

import (
	"errors"

	"github.com/chrlshc/Huntaze-sub010/errcode"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

func init() {
	// field errors are keyed by config file name
	validation.ErrorTag = "mapstructure"
}

// Validatable is implemented by config sections and policies
type Validatable interface {
	Validate() error
}

// Validate runs v.Validate and converts the failure with Convert
func Validate(base *errcode.LayeredError, v Validatable) error {
	return Convert(base, v.Validate())
}

// Convert attaches per-field messages to base under the "fields" data key and
// keeps err as the cause. Errors that are not validation.Errors are only wrapped.
// A nil err returns nil.
func Convert(base *errcode.LayeredError, err error) error {
	if err == nil {
		return nil
	}

	var validationErrs validation.Errors
	if !errors.As(err, &validationErrs) {
		return base.Wrap(err)
	}

	fields := make(map[string]string, len(validationErrs))
	for field, fieldErr := range validationErrs {
		if fieldErr != nil {
			fields[field] = fieldErr.Error()
		}
	}
	return base.WithMsgf("%s: %v", base.Message(), err).WithData("fields", fields).Wrap(err)
}

// Fields returns the per-field messages Convert attached, if any
func Fields(err error) map[string]string {
	le, ok := errcode.From(err)
	if !ok {
		return nil
	}
	fields, _ := le.Data()["fields"].(map[string]string)
	return fields
}
