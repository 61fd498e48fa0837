// Package store keeps the execution history of the kernel in a bbolt
// database, so that front-ends can query past cells with history requests.
package store

import (
	"errors"
	"time"

	bolt "go.etcd.io/bbolt"

	"src.swiftkernel.dev/pkg/logutil"
)

var logger = logutil.GetLogger("[store] ")

// Functions that initialize the buckets of the database, keyed by
// description.
var initDB = map[string]func(*bolt.Tx) error{}

// Store is the permanent storage backend of the kernel. It is safe for
// concurrent use.
type Store struct {
	db *bolt.DB
}

// Open opens the database at path, creating it if it does not exist.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0644, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	return NewStoreFromDB(db)
}

// NewStoreFromDB creates a new Store from a bbolt DB, initializing the
// buckets it needs.
func NewStoreFromDB(db *bolt.DB) (*Store, error) {
	logger.Println("initializing store")
	defer logger.Println("initialized store")
	err := db.Update(func(tx *bolt.Tx) error {
		for name, fn := range initDB {
			if err := fn(tx); err != nil {
				return errors.New(name + ": " + err.Error())
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
