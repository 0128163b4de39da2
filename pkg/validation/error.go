package validation

import "fmt"

// ValidationError distinguishes request-validation failures from internal
// errors so API boundaries can map them to 400s.
type ValidationError struct {
	message string
}

func (e *ValidationError) Error() string {
	return e.message
}

func Error(msg string) *ValidationError {
	return &ValidationError{message: msg}
}

func Errorf(format string, args ...any) *ValidationError {
	return &ValidationError{message: fmt.Sprintf(format, args...)}
}
