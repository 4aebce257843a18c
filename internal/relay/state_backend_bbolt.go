package relay

import (
	"encoding/json"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	boltBucketState = []byte("relay_state")
	boltKeyDocument = []byte("document")
)

// BoltStateBackend persists the metadata document to a single key in an
// embedded bbolt database, used when the relay runs as a standalone
// binary against a local data directory without a Postgres dependency.
type BoltStateBackend struct {
	db *bolt.DB
}

func NewBoltStateBackend(path string) (*BoltStateBackend, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, ErrInvalidInput
	}
	db, err := bolt.Open(path, 0o644, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(boltBucketState)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &BoltStateBackend{db: db}, nil
}

func (b *BoltStateBackend) Load() (*persistedState, error) {
	if b == nil {
		return nil, nil
	}
	var payload []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(boltBucketState)
		if bucket == nil {
			return nil
		}
		v := bucket.Get(boltKeyDocument)
		if v != nil {
			payload = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if payload == nil {
		return nil, nil
	}
	var state persistedState
	if err := json.Unmarshal(payload, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

func (b *BoltStateBackend) Save(state *persistedState) error {
	if b == nil || state == nil {
		return nil
	}
	payload, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists(boltBucketState)
		if err != nil {
			return err
		}
		return bucket.Put(boltKeyDocument, payload)
	})
}

func (b *BoltStateBackend) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}
