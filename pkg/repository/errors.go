package repository

import "errors"

// ErrRepositoryNotFound is returned when a repository ID does not
// exist in the current registry snapshot.
//
// Callers should check with errors.Is and translate this into a
// not-found result rather than a generic failure.
var ErrRepositoryNotFound = errors.New("repository not found")

// ErrNoRepositories is returned by a refresh that produced an empty
// repository list from a source that is expected to be non-empty.
var ErrNoRepositories = errors.New("repository source returned no repositories")
