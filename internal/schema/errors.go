package schema

import "fmt"

// ParseError reports a document that is not well-formed, or whose
// recognized fields hold values of the wrong type.
type ParseError struct {
	// Path is the file that failed to parse. It may be empty when the
	// input did not come from a file.
	Path string
	// Err is the underlying decoder or validation error.
	Err error
}

func (e *ParseError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("failed to parse: %v", e.Err)
	}
	return fmt.Sprintf("failed to parse %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ValidationError reports a well-formed value that is unusable: a required
// field left empty or an enum value outside its closed set.
type ValidationError struct {
	// Field is the settings key that failed validation.
	Field string
	// Value is the raw offending value. It is empty for undefined fields.
	Value string
	// Reason describes the failure, e.g. "undefined".
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("`%s` %s", e.Field, e.Reason)
}

// Undefined returns a ValidationError for a required field that is empty.
func Undefined(field string) *ValidationError {
	return &ValidationError{Field: field, Reason: "undefined"}
}

// Invalid returns a ValidationError for a value outside the accepted set.
func Invalid(field, value string) *ValidationError {
	return &ValidationError{
		Field:  field,
		Value:  value,
		Reason: fmt.Sprintf("has invalid value %q", value),
	}
}

// IOError reports a failed filesystem or network operation. The cause is
// propagated verbatim through Unwrap.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("failed to %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}
