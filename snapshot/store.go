// ABOUTME: Last-known server snapshot store backed by BadgerDB
// ABOUTME: Persists ServerEntity state per entity type and ID for offline projection
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/dgraph-io/badger/v3"

	"github.com/harperreed/relay/models"
)

// Store holds the last server state seen for each entity. The sync engine
// overlays pending local actions on top of it to produce effective entities.
type Store struct {
	db *badger.DB
}

// Open opens (creating if needed) the snapshot store at dir.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	opts := badger.DefaultOptions(dir).
		WithLogger(nil) // Badger's own logging is noise for a client-side store

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot store: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func entityKey(entityType, id string) []byte {
	return []byte("snap/" + entityType + "/" + id)
}

// Put stores the authoritative server state for an entity. A deleted entity is
// removed rather than stored.
func (s *Store) Put(entity models.ServerEntity) error {
	if entity.Deleted {
		return s.Delete(entity.EntityType, entity.ID)
	}

	value, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(entityKey(entity.EntityType, entity.ID), value)
	})
	if err != nil {
		return fmt.Errorf("failed to store snapshot: %w", err)
	}

	return nil
}

// Get returns the snapshot for an entity, or nil if none is stored.
func (s *Store) Get(entityType, id string) (*models.ServerEntity, error) {
	var entity *models.ServerEntity
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(entityKey(entityType, id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(value []byte) error {
			entity = &models.ServerEntity{}
			return json.Unmarshal(value, entity)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	return entity, nil
}

// Delete removes the snapshot for an entity. Missing keys are not an error.
func (s *Store) Delete(entityType, id string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(entityKey(entityType, id))
	})
	if err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}

// List returns all snapshots for an entity type.
func (s *Store) List(entityType string) ([]models.ServerEntity, error) {
	prefix := []byte("snap/" + entityType + "/")

	var entities []models.ServerEntity
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(value []byte) error {
				var entity models.ServerEntity
				if err := json.Unmarshal(value, &entity); err != nil {
					return err
				}
				entities = append(entities, entity)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}

	return entities, nil
}

// EntityTypes returns the distinct entity types with stored snapshots.
func (s *Store) EntityTypes() ([]string, error) {
	seen := make(map[string]bool)
	var types []string

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte("snap/")
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			key := string(it.Item().Key())
			parts := strings.SplitN(key, "/", 3)
			if len(parts) == 3 && !seen[parts[1]] {
				seen[parts[1]] = true
				types = append(types, parts[1])
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan snapshot types: %w", err)
	}

	return types, nil
}
