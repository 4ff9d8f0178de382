package db

import "errors"

// ErrNotFound is returned when a journal entry does not exist.
var ErrNotFound = errors.New("not found")
