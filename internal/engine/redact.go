package engine

import (
	"sort"
	"strings"
)

const redacted = "[REDACTED]"

// Redactor scrubs known secret values from text.
type Redactor struct {
	values []string
}

// NewRedactor returns a redactor for the given values. Empty values are
// ignored.
func NewRedactor(values ...string) *Redactor {
	r := &Redactor{}
	r.Add(values...)
	return r
}

// Add registers more values. Longer values are replaced first so a value
// containing another is scrubbed whole.
func (r *Redactor) Add(values ...string) {
	for _, v := range values {
		if v != "" {
			r.values = append(r.values, v)
		}
	}
	sort.Slice(r.values, func(i, j int) bool { return len(r.values[i]) > len(r.values[j]) })
}

func (r *Redactor) String(s string) string {
	if r == nil {
		return s
	}
	for _, v := range r.values {
		s = strings.ReplaceAll(s, v, redacted)
	}
	return s
}

// Error returns err with a scrubbed message. The chain stays inspectable with
// errors.Is and errors.As.
func (r *Redactor) Error(err error) error {
	if err == nil {
		return nil
	}
	msg := r.String(err.Error())
	if msg == err.Error() {
		return err
	}
	return &redactedError{msg: msg, err: err}
}

type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }
func (e *redactedError) Unwrap() error { return e.err }
