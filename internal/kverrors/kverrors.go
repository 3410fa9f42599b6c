// Package kverrors defines the error taxonomy shared by every storage
// component: memtable, WAL, segment store, compaction engine, and the
// orchestrating engine. Each error carries a Kind so callers can branch on
// failure category without parsing messages.
package kverrors

// Kind categorizes a storage failure into one of the five kinds the engine
// recognizes. NotFound is included for completeness but callers should
// prefer the (value, bool) return shape over constructing one of these.
type Kind string

const (
	// KindCorruption marks a segment or WAL line that failed to parse as
	// key,value. The current operation is failed outright; no partial
	// recovery is attempted.
	KindCorruption Kind = "CORRUPTION"

	// KindFilterFull marks a Cuckoo filter that exhausted its kick budget.
	// The filter's size counter is rolled back before this is returned.
	KindFilterFull Kind = "FILTER_FULL"

	// KindNotFound marks a missing key. Exported for symmetry; Get/Delete
	// report misses via a boolean, not this kind.
	KindNotFound Kind = "NOT_FOUND"

	// KindIO marks an underlying read/write/rename/remove failure.
	KindIO Kind = "IO"

	// KindInvalidInput marks a key or value containing a forbidden
	// delimiter (comma or newline), or an empty key.
	KindInvalidInput Kind = "INVALID_INPUT"
)

// baseError is the shared error implementation. It wraps an optional cause
// and exposes it through Unwrap so errors.Is/errors.As keep working across
// the component-specific wrapper types below.
type baseError struct {
	kind    Kind
	message string
	cause   error
	details map[string]any
}

func newBase(kind Kind, msg string, cause error) *baseError {
	return &baseError{kind: kind, message: msg, cause: cause}
}

func (e *baseError) Error() string {
	if e.cause != nil {
		return e.message + ": " + e.cause.Error()
	}
	return e.message
}

func (e *baseError) Unwrap() error { return e.cause }

// Kind returns the error's failure category.
func (e *baseError) Kind() Kind { return e.kind }

// WithDetail attaches a debugging field, lazily allocating the map.
func (e *baseError) WithDetail(key string, value any) *baseError {
	if e.details == nil {
		e.details = make(map[string]any)
	}
	e.details[key] = value
	return e
}

// Details returns the attached debugging fields, if any.
func (e *baseError) Details() map[string]any { return e.details }

// SegmentError reports a failure tied to a specific on-disk segment.
type SegmentError struct {
	*baseError
	SegmentID string
}

// NewSegmentError builds a SegmentError of the given kind for segmentID.
func NewSegmentError(kind Kind, segmentID, msg string, cause error) *SegmentError {
	return &SegmentError{baseError: newBase(kind, msg, cause), SegmentID: segmentID}
}

// FilterError reports a failure inside an approximate-membership filter.
type FilterError struct {
	*baseError
	FilterName string
}

// NewFilterError builds a FilterError of the given kind for filterName.
func NewFilterError(kind Kind, filterName, msg string, cause error) *FilterError {
	return &FilterError{baseError: newBase(kind, msg, cause), FilterName: filterName}
}

// WALError reports a failure in the write-ahead log.
type WALError struct {
	*baseError
	Path string
}

// NewWALError builds a WALError of the given kind for the WAL at path.
func NewWALError(kind Kind, path, msg string, cause error) *WALError {
	return &WALError{baseError: newBase(kind, msg, cause), Path: path}
}

// ValidationError reports an InvalidInput rejection at the Set boundary.
type ValidationError struct {
	*baseError
	Field string
}

// NewValidationError builds a ValidationError for the given field.
func NewValidationError(field, msg string) *ValidationError {
	return &ValidationError{baseError: newBase(KindInvalidInput, msg, nil), Field: field}
}

// Is reports whether err carries the given Kind, looking through wrapped
// causes the way errors.Is would.
func Is(err error, kind Kind) bool {
	type kinder interface{ Kind() Kind }
	for err != nil {
		if k, ok := err.(kinder); ok && k.Kind() == kind {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
