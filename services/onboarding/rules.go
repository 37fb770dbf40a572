package onboarding

import (
	"fmt"
	"strings"

	"carematch/pkg/errutil"
)

// Result is the outcome of one rule: valid, or invalid with a reason.
type Result struct {
	Reason string
}

func Valid() Result {
	return Result{}
}

func Invalid(reason string) Result {
	return Result{Reason: reason}
}

func (r Result) OK() bool {
	return r.Reason == ""
}

// Rule checks one field path of a profile. Check must accept a nil profile
// and nil sections.
type Rule[P any] struct {
	Field string
	Check func(p *P) Result
}

type Violation struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

type Violations []Violation

// Err converts violations into a validation error, nil when there are none.
func (v Violations) Err() error {
	if len(v) == 0 {
		return nil
	}
	details := make([]errutil.Detail, 0, len(v))
	for _, violation := range v {
		details = append(details, errutil.Detail{Field: violation.Field, Message: violation.Reason})
	}
	return errutil.ValidationFailed("profile incomplete", nil, errutil.WithDetails(details...))
}

func notBlank(s string) Result {
	if strings.TrimSpace(s) == "" {
		return Invalid("must not be blank")
	}
	return Valid()
}

func positive[N int | int64 | float64](n N) Result {
	if n <= 0 {
		return Invalid("must be positive")
	}
	return Valid()
}

func nonNegative[N int | int64 | float64](n N) Result {
	if n < 0 {
		return Invalid("must not be negative")
	}
	return Valid()
}

// field builds a rule on a value of the profile.
func field[P any](name string, check func(p *P) Result) Rule[P] {
	return Rule[P]{Field: name, Check: func(p *P) Result {
		if p == nil {
			return Invalid("profile is missing")
		}
		return check(p)
	}}
}

// nested builds a rule on a field of an optional section.
func nested[P, S any](section, name string, get func(p *P) *S, check func(s *S) Result) Rule[P] {
	return field(section+"."+name, func(p *P) Result {
		s := get(p)
		if s == nil {
			return Invalid(section + " is required")
		}
		return check(s)
	})
}

// Validate runs every rule and returns the failing ones in table order.
func Validate[P any](rules []Rule[P], p *P) Violations {
	var out Violations
	for _, r := range rules {
		if res := r.Check(p); !res.OK() {
			out = append(out, Violation{Field: r.Field, Reason: res.Reason})
		}
	}
	return out
}

// ValidateField runs the rule registered for field.
func ValidateField[P any](rules []Rule[P], p *P, name string) (Result, error) {
	for _, r := range rules {
		if r.Field == name {
			return r.Check(p), nil
		}
	}
	return Result{}, errutil.NotFound(fmt.Sprintf("no rule for field %q", name), nil)
}

// Fields lists the field paths of a rule table.
func Fields[P any](rules []Rule[P]) []string {
	out := make([]string, 0, len(rules))
	for _, r := range rules {
		out = append(out, r.Field)
	}
	return out
}
