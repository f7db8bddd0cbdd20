package migerr

import (
	"errors"
	"fmt"

	"github.com/vitebski/interdb-migrator/pkg/models"
)

// Error tags an underlying error with a migration error kind
type Error struct {
	Kind models.ErrorKind
	Err  error
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Err.Error())
}

// New wraps err with kind
func New(kind models.ErrorKind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

func SourceNotFound(err error) *Error {
	return New(models.SourceNotFound, err)
}

func DestinationExists(err error) *Error {
	return New(models.DestinationExists, err)
}

func DestinationNotFound(err error) *Error {
	return New(models.DestinationNotFound, err)
}

func TransferFailed(err error) *Error {
	return New(models.TransferFailed, err)
}

func ConnectionError(err error) *Error {
	return New(models.ConnectionError, err)
}

// KindOf returns the kind attached to err, or fallback if none is
func KindOf(err error, fallback models.ErrorKind) models.ErrorKind {
	var me *Error
	if errors.As(err, &me) {
		return me.Kind
	}
	return fallback
}
