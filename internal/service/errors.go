package service

import (
	"errors"
	"fmt"
)

var (
	ErrJobNotCompleted   = errors.New("job not completed")
	ErrInvalidResultPath = errors.New("invalid result path")
	ErrResultNotFound    = errors.New("result file not found")
	ErrDispatchFailed    = errors.New("failed to dispatch job")
)

// ValidationError is a request problem the caller can fix. It never creates a job.
type ValidationError struct {
	Message string
	Details map[string]interface{}
}

func (e *ValidationError) Error() string {
	return e.Message
}

func validationErrorf(details map[string]interface{}, format string, args ...interface{}) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...), Details: details}
}
