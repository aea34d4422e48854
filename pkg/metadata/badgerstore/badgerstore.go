// Package badgerstore implements metadata.Store on BadgerDB.
//
// This is the local store variant: an embedded key-value database
// scoped to this process, used when a repository is configured as
// self-contained (IsLocalDB).
//
// Storage Model:
// Records are stored as JSON under namespaced keys:
//
//	item/<repositoryID>/<businessID>/<itemID>
//
// The prefix up to the item id gives an efficient range scan for
// "all items of a repository in a business scope", which GetItems
// filters by DependencyID. Repository and business ids never contain
// "/", so the layout is unambiguous.
package badgerstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/stormrose-io/filegate/internal/logger"
	"github.com/stormrose-io/filegate/pkg/metadata"
)

// Config configures the badger-backed store.
type Config struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path string

	// InMemory runs badger without persistence. Used by tests.
	InMemory bool

	// SyncWrites makes every write durable before returning. Slower,
	// but survives a crash without losing acknowledged upserts.
	SyncWrites bool
}

// Store is a metadata.Store backed by BadgerDB.
//
// Badger transactions provide the per-operation atomicity; the mutex
// only serializes Close against in-flight operations.
type Store struct {
	mu     sync.RWMutex
	db     *badger.DB
	closed bool
}

// New opens (or creates) the database.
func New(cfg Config) (*Store, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, fmt.Errorf("badger store: path is required")
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	if !cfg.InMemory {
		logger.Info("badger metadata store opened at %s", cfg.Path)
	}
	return &Store{db: db}, nil
}

func itemKey(key metadata.ItemKey) []byte {
	return []byte("item/" + key.RepositoryID + "/" + key.BusinessID + "/" + key.ItemID)
}

func scopePrefix(repositoryID, businessID string) []byte {
	return []byte("item/" + repositoryID + "/" + businessID + "/")
}

func (s *Store) guard() error {
	if s.closed {
		return metadata.ErrStoreClosed
	}
	return nil
}

func (s *Store) GetItem(ctx context.Context, key metadata.ItemKey) (*metadata.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.guard(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var item metadata.Item
	err := s.db.View(func(txn *badger.Txn) error {
		entry, err := txn.Get(itemKey(key))
		if err != nil {
			return err
		}
		return entry.Value(func(val []byte) error {
			return json.Unmarshal(val, &item)
		})
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, fmt.Errorf("item %s/%s: %w", key.RepositoryID, key.ItemID, metadata.ErrItemNotFound)
		}
		return nil, fmt.Errorf("get item: %w", err)
	}
	return &item, nil
}

func (s *Store) GetItems(ctx context.Context, repositoryID, dependencyID, businessID string) ([]*metadata.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.guard(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var items []*metadata.Item
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := scopePrefix(repositoryID, businessID)
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var item metadata.Item
				if err := json.Unmarshal(val, &item); err != nil {
					return err
				}
				if item.DependencyID == dependencyID {
					items = append(items, &item)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan items: %w", err)
	}

	sort.SliceStable(items, func(a, b int) bool {
		if items[a].Sequence != items[b].Sequence {
			return items[a].Sequence < items[b].Sequence
		}
		return strings.Compare(items[a].ItemID, items[b].ItemID) < 0
	})
	return items, nil
}

func (s *Store) UpsertItem(ctx context.Context, item *metadata.Item) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.guard(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if item.ItemID == "" || item.RepositoryID == "" {
		return fmt.Errorf("upsert item: itemId and repositoryId are required")
	}

	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshal item: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(itemKey(item.Key()), data)
	})
	if err != nil {
		return fmt.Errorf("upsert item: %w", err)
	}
	return nil
}

func (s *Store) DeleteItem(ctx context.Context, key metadata.ItemKey) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.guard(); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	affected := 0
	err := s.db.Update(func(txn *badger.Txn) error {
		k := itemKey(key)
		if _, err := txn.Get(k); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		if err := txn.Delete(k); err != nil {
			return err
		}
		affected = 1
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("delete item: %w", err)
	}
	return affected, nil
}

func (s *Store) UpdateDependencyID(ctx context.Context, key metadata.ItemKey, newDependencyID string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.guard(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		k := itemKey(key)
		entry, err := txn.Get(k)
		if err != nil {
			return err
		}
		var item metadata.Item
		if err := entry.Value(func(val []byte) error {
			return json.Unmarshal(val, &item)
		}); err != nil {
			return err
		}
		item.DependencyID = newDependencyID
		data, err := json.Marshal(&item)
		if err != nil {
			return err
		}
		return txn.Set(k, data)
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("item %s/%s: %w", key.RepositoryID, key.ItemID, metadata.ErrItemNotFound)
		}
		return fmt.Errorf("update dependency id: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
