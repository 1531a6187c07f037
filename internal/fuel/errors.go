package fuel

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var (
	ErrMalformed  = errors.New("malformed input")
	ErrConflict   = errors.New("return DO conflicts with an existing link")
	ErrCancelled  = errors.New("fuel record is cancelled")
	ErrNotPending = errors.New("event is not pending")
)

var validate = validator.New()

// check runs the struct's validate tags and maps failures to ErrMalformed.
func check(v interface{}) error {
	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%w: %s failed on %s", ErrMalformed, fe.Field(), fe.Tag())
		}
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

func malformed(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))
}
