package metadata

import "errors"

// ErrItemNotFound is returned when no record exists under the
// requested key. Both store variants map their native not-found
// conditions onto this sentinel; match with errors.Is.
var ErrItemNotFound = errors.New("item not found")

// ErrStoreClosed is returned for operations on a closed store.
var ErrStoreClosed = errors.New("metadata store closed")
