package store

import (
	"github.com/xtxerr/croft/internal/errors"
)

var (
	ErrNotFound = errors.ErrNotFound
	ErrDatabase = errors.ErrDatabase
	ErrClosed   = errors.ErrClosed
)
