// Package apperr holds the sentinel errors shared by the service layer and
// its transports.
package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalidModel  = errors.New("invalid model")
)
