package config

import (
	"reflect"

	sserr "github.com/StricklySoft/bedrock-auth/pkg/errors"
)

// Validator is an optional interface that configuration structs may
// implement for checks beyond the `required` tag. If the struct passed to
// [Loader.Load] implements Validator, its Validate method is called after
// tag-based validation succeeds.
//
// Only the top-level struct is asked. A struct that nests other
// validatable sections, such as the authd ServerConfig nesting the key
// provider and login sections, must call their Validate methods itself.
//
// Validate should return an error describing the first failure, or nil.
// Errors that are already [*sserr.Error] are returned as-is; other errors
// are wrapped with [sserr.CodeValidation].
//
// Example:
//
//	type LoginConfig struct {
//	    MaxPlayers int `env:"MAX_PLAYERS" envDefault:"20"`
//	}
//
//	func (c *LoginConfig) Validate() error {
//	    if c.MaxPlayers < 1 {
//	        return sserr.Validationf("login: max players must be positive, got %d", c.MaxPlayers)
//	    }
//	    return nil
//	}
type Validator interface {
	Validate() error
}

// validate performs tag-based required validation and then invokes the
// Validator interface if the config struct implements it. cfg is the
// original pointer (for the type assertion); rv is the dereferenced struct.
func validate(cfg any, rv reflect.Value) error {
	if err := validateRequired(rv, ""); err != nil {
		return err
	}
	v, ok := cfg.(Validator)
	if !ok {
		return nil
	}
	if err := v.Validate(); err != nil {
		// Pass through sserr.Error instances unchanged.
		if _, isSSErr := sserr.AsError(err); isSSErr {
			return err
		}
		return sserr.Wrap(err, sserr.CodeValidation, "config: custom validation failed")
	}
	return nil
}

// validateRequired recursively checks that all fields tagged with
// `required:"true"` hold non-zero values. The path parameter tracks the
// dotted field path for error messages (e.g. "Keys.Audience").
//
// Nested structs are traversed; time.Duration is treated as a scalar.
// Unexported fields are skipped.
func validateRequired(rv reflect.Value, path string) error {
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		field, sf := rv.Field(i), rt.Field(i)
		if !field.CanSet() {
			continue
		}
		fieldPath := sf.Name
		if path != "" {
			fieldPath = path + "." + sf.Name
		}
		if isNested(field) {
			if err := validateRequired(field, fieldPath); err != nil {
				return err
			}
			continue
		}
		if sf.Tag.Get("required") == "true" && field.IsZero() {
			return sserr.Newf(sserr.CodeValidationRequired,
				"config: required field %q is empty", fieldPath)
		}
	}
	return nil
}
