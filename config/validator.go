package config

import "fmt"

// Validator is implemented by every config section
type Validator interface {
	Validate() error
}

// ValidateAll stops at the first failing section
func ValidateAll(validators ...Validator) error {
	for _, v := range validators {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Section prefixes v's error with its config key, e.g. "store: addrs: cannot be blank"
func Section(key string, v Validator) Validator {
	return section{key: key, v: v}
}

type section struct {
	key string
	v   Validator
}

func (s section) Validate() error {
	if err := s.v.Validate(); err != nil {
		return fmt.Errorf("%s: %w", s.key, err)
	}
	return nil
}
