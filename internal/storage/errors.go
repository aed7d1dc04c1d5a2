package storage

import "errors"

// ErrNotFound is returned when the requested account does not exist.
var ErrNotFound = errors.New("account not found")

// ErrDuplicate is returned when saving an account would reuse another
// account's API key.
var ErrDuplicate = errors.New("api key already assigned to another account")
