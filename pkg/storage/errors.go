package storage

import "errors"

// ErrObjectNotFound is returned when no object exists under the
// requested key.
//
// All Backend implementations map their native not-found conditions
// (os.ErrNotExist, S3 NoSuchKey) onto this sentinel so callers can
// test with errors.Is regardless of the configured backend.
var ErrObjectNotFound = errors.New("object not found")

// ErrInvalidKey is returned for keys that are empty, absolute, or
// would escape the backend root via ".." segments.
var ErrInvalidKey = errors.New("invalid object key")
