// Package errkind classifies campaign errors into the kinds the summary
// reports. Only Config and Planning are fatal; every other kind is logged,
// counted, and recovered locally.
//
// Use Wrap to tag an error with its kind and KindOf to read the tag back;
// untagged errors classify as Unknown.
package errkind

import (
	"errors"
	"fmt"
)

// Kind is an error category. The string values appear in logs, metrics
// labels, and the campaign summary.
type Kind string

const (
	Config           Kind = "config"
	Planning         Kind = "planning"
	Discovery        Kind = "discovery"
	Fetch            Kind = "fetch"
	Evaluation       Kind = "evaluation"
	Persistence      Kind = "persistence"
	DeadlineExceeded Kind = "deadline_exceeded"
	Unknown          Kind = "unknown"
)

// Fatal reports whether errors of this kind abort the campaign.
func (k Kind) Fatal() bool {
	return k == Config || k == Planning
}

// Error carries a Kind alongside the wrapped cause.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Wrap tags err with kind. A nil err returns nil.
func Wrap(kind Kind, err error) error {
	if err == nil {
		return nil
	}

	return &Error{Kind: kind, Err: err}
}

// Wrapf tags a formatted error with kind.
func Wrapf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind tagged on err, or Unknown.
func KindOf(err error) Kind {
	var ke *Error
	if errors.As(err, &ke) {
		return ke.Kind
	}

	return Unknown
}

// IsFatal reports whether err carries a fatal kind.
func IsFatal(err error) bool {
	return KindOf(err).Fatal()
}
