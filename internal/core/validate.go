package core

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func headerValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
	})
	return validate
}

// ValidateHeader checks the header fields a ledger row needs. Every failing
// field is reported in one error wrapping ErrInvalidHeader.
func (f *Form) ValidateHeader() error {
	var problems []string
	if err := headerValidator().Struct(f); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("%w: %v", ErrInvalidHeader, err)
		}
		for _, fe := range verrs {
			problems = append(problems, fmt.Sprintf("%s:%s", fe.Field(), fe.Tag()))
		}
	}
	if f.Date.IsZero() {
		problems = append(problems, "Date:required")
	}
	if f.DeclaredTotal.IsNegative() {
		problems = append(problems, "DeclaredTotal:min")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidHeader, strings.Join(problems, ", "))
	}
	return nil
}

// FieldErrors flattens a ValidateHeader error into field -> rule pairs for display.
func FieldErrors(err error) map[string]string {
	out := make(map[string]string)
	if err == nil {
		return out
	}
	_, detail, ok := strings.Cut(err.Error(), ": ")
	if !ok {
		return out
	}
	for _, part := range strings.Split(detail, ", ") {
		field, tag, ok := strings.Cut(part, ":")
		if ok {
			out[field] = tag
		}
	}
	return out
}
