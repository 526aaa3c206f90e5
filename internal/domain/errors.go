package domain

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Domain errors surfaced by storage and the services built on it.
var (
	ErrCardNotFound = errors.New("card not found")
	ErrDeckNotFound = errors.New("deck not found")
	ErrPersistence  = errors.New("persistence failure")
	ErrInvalidInput = errors.New("invalid input")
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the struct tags of a Card or Deck.
func Validate(v any) error {
	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			f := verrs[0]
			return invalidf("%s failed %q", f.Field(), f.Tag())
		}
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
