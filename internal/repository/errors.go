package repository

import "errors"

// ErrNotFound indicates an entity was not located.
var ErrNotFound = errors.New("repository: not found")

// ErrDuplicate indicates a uniqueness constraint was violated.
var ErrDuplicate = errors.New("repository: duplicate")

// ErrInvalidArgument indicates the storage layer rejected a malformed value.
var ErrInvalidArgument = errors.New("repository: invalid argument")

// ErrUnavailable indicates the backing store could not be reached. Routes
// must map this to 500, never to a semantic 400/404.
var ErrUnavailable = errors.New("repository: unavailable")
