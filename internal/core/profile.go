package core

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the profile's field formats. A blank name is allowed:
// it only means no group member can be matched to the current user.
func (p Profile) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidProfile, err)
	}
	return nil
}

// Trimmed returns a copy with surrounding whitespace removed from every field.
func (p Profile) Trimmed() Profile {
	p.Name = strings.TrimSpace(p.Name)
	p.Email = strings.TrimSpace(p.Email)
	p.Phone = strings.TrimSpace(p.Phone)
	p.Note = strings.TrimSpace(p.Note)
	return p
}

// DisplayName is the name shown for the current user.
func (p Profile) DisplayName() string {
	if n := strings.TrimSpace(p.Name); n != "" {
		return n
	}
	return "You"
}
