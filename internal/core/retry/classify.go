package retry

import (
	"context"
	"errors"
)

// Action determines how to handle a failed attempt.
type Action int

const (
	ActionRetry Action = iota
	ActionFatal
)

func (a Action) String() string {
	if a == ActionFatal {
		return "fatal"
	}
	return "retry"
}

// Classifier maps a failure to an Action.
type Classifier func(err error) Action

// DefaultClassifier retries everything except permanent and context errors.
func DefaultClassifier(err error) Action {
	if err == nil {
		return ActionRetry
	}
	if IsPermanent(err) {
		return ActionFatal
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ActionFatal
	}
	return ActionRetry
}

// FatalOn returns a classifier that treats any of targets as fatal and
// otherwise defers to DefaultClassifier.
func FatalOn(targets ...error) Classifier {
	return func(err error) Action {
		for _, target := range targets {
			if errors.Is(err, target) {
				return ActionFatal
			}
		}
		return DefaultClassifier(err)
	}
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}
