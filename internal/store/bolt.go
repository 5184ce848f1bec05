package store

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketDocuments = []byte("documents")

// BoltStore implements Store using BoltDB.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens or creates a BoltDB database.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketDocuments)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Load(key string, v any) error {
	return s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDocuments)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketDocuments)
		}
		data := b.Get([]byte(key))
		if data == nil {
			return fmt.Errorf("document %s: %w", key, ErrNotFound)
		}
		if err := json.Unmarshal(data, v); err != nil {
			return fmt.Errorf("decode document %s: %w", key, err)
		}
		return nil
	})
}

func (s *BoltStore) Save(key string, v any) error {
	// Encode outside the write transaction so a bad value never opens one.
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode document %s: %w", key, err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDocuments)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketDocuments)
		}
		return b.Put([]byte(key), data)
	})
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
