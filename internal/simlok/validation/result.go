// Package validation holds the pure field-completeness and cross-field rules that gate
// every submission transition. Nothing here touches the network.
package validation

import (
	"strings"
)

// Failure is one blocking problem, keyed by a machine-readable field id.
type Failure struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Result collects failures. The zero value is a passing result.
type Result struct {
	Failures []Failure `json:"failures,omitempty"`
}

// OK reports whether no failure was recorded.
func (r Result) OK() bool {
	return len(r.Failures) == 0
}

// First returns the first blocking failure, the one callers surface.
func (r Result) First() (Failure, bool) {
	if len(r.Failures) == 0 {
		return Failure{}, false
	}
	return r.Failures[0], true
}

// Has reports whether a failure was recorded for field.
func (r Result) Has(field string) bool {
	for _, f := range r.Failures {
		if f.Field == field {
			return true
		}
	}
	return false
}

// Fields lists the failing field ids in order.
func (r Result) Fields() []string {
	out := make([]string, 0, len(r.Failures))
	for _, f := range r.Failures {
		out = append(out, f.Field)
	}
	return out
}

// Err converts a failing result into an *Error, nil when OK.
func (r Result) Err() error {
	if r.OK() {
		return nil
	}
	return &Error{Failures: append([]Failure(nil), r.Failures...)}
}

func (r *Result) add(field, message string) {
	r.Failures = append(r.Failures, Failure{Field: field, Message: message})
}

func (r *Result) merge(other Result) {
	r.Failures = append(r.Failures, other.Failures...)
}

// Error is the boundary form of a failing Result.
type Error struct {
	Failures []Failure
}

func (e *Error) Error() string {
	if len(e.Failures) == 0 {
		return "validation failed"
	}
	if len(e.Failures) == 1 {
		return e.Failures[0].Message
	}
	msgs := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		msgs = append(msgs, f.Message)
	}
	return strings.Join(msgs, "; ")
}

// First is the failure a UI highlights first.
func (e *Error) First() Failure {
	if len(e.Failures) == 0 {
		return Failure{}
	}
	return e.Failures[0]
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}
