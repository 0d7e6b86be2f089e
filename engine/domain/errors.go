package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors, one per failure kind. Typed errors below wrap them so callers
// can branch with errors.Is and still recover context with errors.As.
var (
	ErrDataFormat  = errors.New("malformed hazard data")
	ErrCurveFit    = errors.New("curve fit failed")
	ErrGraphAccess = errors.New("graph access failed")
	ErrLookup      = errors.New("lookup failed")
	ErrParse       = errors.New("not a number")
)

// DataFormatError reports a missing or malformed hazard curve file.
type DataFormatError struct {
	Model string
	Path  string
	Row   int // 0 when the problem is not tied to a row
	Msg   string
	Err   error
}

func (e *DataFormatError) Error() string {
	loc := e.Path
	if e.Row > 0 {
		loc = fmt.Sprintf("%s row %d", e.Path, e.Row)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: model %s: %s: %s: %v", ErrDataFormat, e.Model, loc, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: model %s: %s: %s", ErrDataFormat, e.Model, loc, e.Msg)
}

func (e *DataFormatError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrDataFormat, e.Err}
	}
	return []error{ErrDataFormat}
}

// CurveFitError reports a degenerate curve for one (location, model) pair.
type CurveFitError struct {
	Location string
	Model    string
	Reason   string
}

func (e *CurveFitError) Error() string {
	return fmt.Sprintf("%s: %s/%s: %s", ErrCurveFit, e.Location, e.Model, e.Reason)
}

func (e *CurveFitError) Unwrap() error { return ErrCurveFit }

// NewCurveFitError creates a CurveFitError.
func NewCurveFitError(location, model, format string, args ...any) *CurveFitError {
	return &CurveFitError{Location: location, Model: model, Reason: fmt.Sprintf(format, args...)}
}

// GraphAccessError reports an unreachable or malformed triple store.
type GraphAccessError struct {
	Op  string
	Err error
}

func (e *GraphAccessError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrGraphAccess, e.Op, e.Err)
}

func (e *GraphAccessError) Unwrap() []error { return []error{ErrGraphAccess, e.Err} }

// LookupError reports a shape name missing from the reference table.
type LookupError struct {
	Table string
	Key   string
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("%s: %q not in %s", ErrLookup, e.Key, e.Table)
}

func (e *LookupError) Unwrap() error { return ErrLookup }

// ParseError reports a field that should have held a number.
type ParseError struct {
	Field string
	Value string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s (value=%q)", ErrParse, e.Field, e.Value)
}

func (e *ParseError) Unwrap() error { return ErrParse }
