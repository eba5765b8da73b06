package bring

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ValidationError lists every pre-flight problem found in a payload. It is
// returned before anything is sent to Bring.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid Bring payload: " + strings.Join(e.Problems, "; ")
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate runs the pre-flight checks.
func Validate(p *Payload) error {
	if p == nil {
		return &ValidationError{Problems: []string{"payload is empty"}}
	}

	err := validate.Struct(p)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("validate Bring payload: %w", err)
	}

	problems := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		problems = append(problems, describe(fe))
	}
	return &ValidationError{Problems: problems}
}

func describe(fe validator.FieldError) string {
	// Namespace is "Payload.consignments[0].parties.sender.name"; drop the type.
	path := fe.Namespace()
	if i := strings.Index(path, "."); i >= 0 {
		path = path[i+1:]
	}

	switch fe.Tag() {
	case "required":
		return path + " is missing"
	case "eq":
		return fmt.Sprintf("%s must be %s", path, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", path, fe.Param())
	case "min":
		return fmt.Sprintf("%s needs at least %s entries", path, fe.Param())
	default:
		return fmt.Sprintf("%s failed %q", path, fe.Tag())
	}
}
