package req

import (
	"fmt"
	"unicode/utf8"

	"groupchat/internal/pkg/errs"
	"groupchat/internal/pkg/randx"
)

// Validator accumulates field errors so a caller sees every failed rule at once.
type Validator struct {
	fields []errs.FieldError
}

// Check records message for field when ok is false.
func (v *Validator) Check(ok bool, field, message string) {
	if !ok {
		v.fields = append(v.fields, errs.FieldError{Field: field, Message: message})
	}
}

// Length checks that s holds between min and max characters.
func (v *Validator) Length(s string, min, max int, field string) {
	n := utf8.RuneCountInString(s)
	v.Check(n >= min && n <= max, field, fmt.Sprintf("length must be between %d and %d characters", min, max))
}

// UUID checks that s is a canonical UUID.
func (v *Validator) UUID(s, field string) {
	v.Check(randx.IsValidUUID(s), field, "must be a valid UUID")
}

// Range checks min <= n <= max.
func (v *Validator) Range(n, min, max int, field string) {
	v.Check(n >= min && n <= max, field, fmt.Sprintf("must be between %d and %d", min, max))
}

// OneOf checks that s is one of allowed.
func (v *Validator) OneOf(s string, field string, allowed ...string) {
	for _, a := range allowed {
		if s == a {
			return
		}
	}
	v.Check(false, field, fmt.Sprintf("must be one of %v", allowed))
}

// Err returns an ErrInvalidParams error with the collected fields, or nil.
func (v *Validator) Err() *errs.CustomError {
	if len(v.fields) == 0 {
		return nil
	}
	return errs.Invalid(v.fields...)
}
