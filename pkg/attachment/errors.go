package attachment

import "fmt"

// ParsingError is returned when incoming content cannot be parsed, e.g.
// invalid base64.
type ParsingError struct {
	Msg string
}

func (e *ParsingError) Error() string { return e.Msg }

func newParsingError(format string, args ...any) *ParsingError {
	return &ParsingError{Msg: fmt.Sprintf(format, args...)}
}

// IllegalPathError is returned when a file path violates the path-safety
// rules enforced by SafePath.
type IllegalPathError struct {
	Msg string
}

func (e *IllegalPathError) Error() string { return e.Msg }

func newIllegalPathError(format string, args ...any) *IllegalPathError {
	return &IllegalPathError{Msg: fmt.Sprintf(format, args...)}
}
