package domain

import "errors"

// ErrNotFound is returned by repositories when no principal matches.
// Login flows fold it into ErrInvalidCredentials before it reaches a client.
var ErrNotFound = errors.New("principal not found")
