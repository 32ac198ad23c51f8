package approval

import (
	"context"
	"fmt"
	"strings"

	"github.com/sells-group/workbench/internal/model"
	"github.com/sells-group/workbench/internal/patch"
)

// Problem is one reason an approved patch cannot be applied.
type Problem struct {
	Key     patch.Key `json:"key"`
	Message string    `json:"message"`
}

// ValidationError is returned by Confirm when the approved subset fails
// validation.
type ValidationError struct {
	Problems []Problem
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		msgs[i] = p.Key.String() + ": " + p.Message
	}
	return fmt.Sprintf("approval: %d patch(es) failed validation: %s", len(e.Problems), strings.Join(msgs, "; "))
}

// Validator checks approved entries before they are confirmed. A returned
// error means validation could not run; problems mean it ran and failed.
type Validator interface {
	Validate(ctx context.Context, entries []patch.Entry) ([]Problem, error)
}

// ValidatorFunc adapts a function to Validator.
type ValidatorFunc func(ctx context.Context, entries []patch.Entry) ([]Problem, error)

// Validate calls f.
func (f ValidatorFunc) Validate(ctx context.Context, entries []patch.Entry) ([]Problem, error) {
	return f(ctx, entries)
}

// ValidateBasic rejects patches that lack a real object type or field name.
func ValidateBasic(_ context.Context, entries []patch.Entry) ([]Problem, error) {
	var problems []Problem
	for _, e := range entries {
		if missingLabel(e.Patch.ObjectType) {
			problems = append(problems, Problem{Key: e.Key, Message: "missing object type"})
		}
		if missingLabel(e.Patch.FieldName) {
			problems = append(problems, Problem{Key: e.Key, Message: "missing field name"})
		}
	}
	return problems, nil
}

func missingLabel(s string) bool {
	s = strings.TrimSpace(s)
	return s == "" || s == model.UnknownLabel
}

// Chain runs validators in order and collects every problem. It stops at the
// first validator that returns an error.
func Chain(validators ...Validator) Validator {
	return ValidatorFunc(func(ctx context.Context, entries []patch.Entry) ([]Problem, error) {
		var all []Problem
		for _, v := range validators {
			if v == nil {
				continue
			}
			problems, err := v.Validate(ctx, entries)
			if err != nil {
				return nil, err
			}
			all = append(all, problems...)
		}
		return all, nil
	})
}
