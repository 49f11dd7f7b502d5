package trash

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/dgraph-io/badger/v4"
)

// keyPrefix namespaces trash records in the index database.
const keyPrefix = "t:"

// Index is the persistent trash record store backed by Badger.
type Index struct {
	db *badger.DB
}

// OpenIndex opens or creates the index at the given path.
func OpenIndex(path string) (*Index, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil // Badger's own logging is too chatty for an index this small

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &Index{db: db}, nil
}

// Close closes the index database.
func (i *Index) Close() error {
	return i.db.Close()
}

// Put stores a record.
func (i *Index) Put(rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return i.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(rec.ID), data)
	})
}

// Get retrieves a record by id.
func (i *Index) Get(id string) (Record, error) {
	var rec Record
	err := i.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Record{}, fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Delete removes a record by id.
func (i *Index) Delete(id string) error {
	return i.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key(id))
	})
}

// List returns all records, newest first.
func (i *Index) List() ([]Record, error) {
	var records []Record

	err := i.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(keyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var rec Record
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				return err
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(records, func(a, b int) bool {
		return records[a].TrashedAt.After(records[b].TrashedAt)
	})
	return records, nil
}

func key(id string) []byte {
	return []byte(keyPrefix + id)
}
