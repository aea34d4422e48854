package repository

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
)

// Prober answers existence checks against a storage backend. Satisfied
// by storage.Backend; kept minimal so name resolution does not depend
// on the storage package.
type Prober interface {
	Exists(ctx context.Context, key string) (bool, error)
}

// OpaqueItemID returns a generated storage identifier: an uppercase
// UUID without dashes. Used when the repository hides original
// filenames (IsFileNameEncrypt).
func OpaqueItemID() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
}

// ResolveItemID decides the stored identifier for a new file.
//
// With opaque naming the identifier is generated and collisions are
// effectively impossible, so no probing happens. With literal naming
// and overwrite enabled, the filename is used as-is and an existing
// object is replaced. Otherwise the backend is probed under dir and a
// numeric disambiguator is inserted before the extension until a free
// name is found.
func ResolveItemID(ctx context.Context, p Prober, dir, fileName string, opaque, overwrite bool) (string, error) {
	if opaque {
		return OpaqueItemID(), nil
	}
	if overwrite {
		return fileName, nil
	}
	return UniqueFileName(ctx, p, dir, fileName)
}

// UniqueFileName probes the backend for fileName under dir and, on
// collision, tries "name (0).ext", "name (1).ext", ... until a free
// name is found.
func UniqueFileName(ctx context.Context, p Prober, dir, fileName string) (string, error) {
	exists, err := p.Exists(ctx, dir+fileName)
	if err != nil {
		return "", fmt.Errorf("probe %q: %w", dir+fileName, err)
	}
	if !exists {
		return fileName, nil
	}

	ext := path.Ext(fileName)
	base := strings.TrimSuffix(fileName, ext)
	for n := 0; ; n++ {
		candidate := fmt.Sprintf("%s (%d)%s", base, n, ext)
		exists, err := p.Exists(ctx, dir+candidate)
		if err != nil {
			return "", fmt.Errorf("probe %q: %w", dir+candidate, err)
		}
		if !exists {
			return candidate, nil
		}
	}
}
