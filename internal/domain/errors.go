package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidRecord      = errors.New("invalid record")
	ErrUnmappable         = errors.New("unmappable record")
	ErrTransient          = errors.New("transient failure")
	ErrPermanent          = errors.New("permanent failure")
	ErrMissingCredentials = errors.New("missing credentials")
)
