// Package memdbstore is an in-memory storage backed by hashicorp/go-memdb.
// Every operation runs in its own transaction, and Keys iterates a read
// transaction, so listings are consistent snapshots even under writes.
package memdbstore

import (
	"fmt"

	memdb "github.com/hashicorp/go-memdb"

	"github.com/on-the-ground/memo_ive_go/cachekey"
	"github.com/on-the-ground/memo_ive_go/storage"
)

// Mode is the registry mode under which this storage is usually registered.
const Mode storage.Mode = "memdb"

const (
	table = "entries"
	index = "id"
)

var _ storage.Storage = (*Store)(nil)

type record struct {
	ID    string
	Key   cachekey.CacheKey
	Value any
}

func schema() *memdb.DBSchema {
	return &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			table: {
				Name: table,
				Indexes: map[string]*memdb.IndexSchema{
					index: {
						Name:    index,
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "ID"},
					},
				},
			},
		},
	}
}

type Store struct {
	db *memdb.MemDB
}

func New() (*Store, error) {
	db, err := memdb.NewMemDB(schema())
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func idOf(key cachekey.CacheKey) string {
	return fmt.Sprintf("%016x", key.Hash())
}

// lookup finds the record stored under key's id. A record holding another
// key is a hash collision.
func lookup(txn *memdb.Txn, key cachekey.CacheKey) (*record, error) {
	raw, err := txn.First(table, index, idOf(key))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", storage.ErrStorageIO, err)
	}
	if raw == nil {
		return nil, nil
	}
	rec := raw.(*record)
	if !rec.Key.Equal(key) {
		return nil, fmt.Errorf("%w: %s is taken by %s", storage.ErrKeyEncoding, key, rec.Key)
	}
	return rec, nil
}

func (s *Store) Contains(key cachekey.CacheKey) (bool, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	rec, err := lookup(txn, key)
	return rec != nil, err
}

func (s *Store) Fetch(key cachekey.CacheKey) (any, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	rec, err := lookup(txn, key)
	if err != nil {
		return nil, err
	} else if rec == nil {
		return nil, fmt.Errorf("%w: %s", storage.ErrKeyNotFound, key)
	}
	return rec.Value, nil
}

func (s *Store) Store(key cachekey.CacheKey, value any) error {
	txn := s.db.Txn(true)
	defer txn.Abort()

	if _, err := lookup(txn, key); err != nil {
		return err
	}
	if err := txn.Insert(table, &record{ID: idOf(key), Key: key, Value: value}); err != nil {
		return fmt.Errorf("%w: %w", storage.ErrStorageIO, err)
	}
	txn.Commit()
	return nil
}

func (s *Store) Clear() error {
	txn := s.db.Txn(true)
	defer txn.Abort()

	if _, err := txn.DeleteAll(table, index); err != nil {
		return fmt.Errorf("%w: %w", storage.ErrStorageIO, err)
	}
	txn.Commit()
	return nil
}

func (s *Store) Remove(key cachekey.CacheKey) (bool, error) {
	txn := s.db.Txn(true)
	defer txn.Abort()

	rec, err := lookup(txn, key)
	if err != nil || rec == nil {
		return false, err
	}
	if err := txn.Delete(table, rec); err != nil {
		return false, fmt.Errorf("%w: %w", storage.ErrStorageIO, err)
	}
	txn.Commit()
	return true, nil
}

func (s *Store) Keys() ([]cachekey.CacheKey, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	it, err := txn.Get(table, index)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", storage.ErrStorageIO, err)
	}
	var keys []cachekey.CacheKey
	for obj := it.Next(); obj != nil; obj = it.Next() {
		keys = append(keys, obj.(*record).Key)
	}
	return keys, nil
}
