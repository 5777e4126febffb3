package kvstore

import (
	"encoding/json"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/tekton-fabric/core/errs"
)

// BoltStore is the key-value family's embedded fallback, used when Redis
// is Unavailable (spec §4.4 backend-selection step 3). Each namespace gets
// its own bucket in a shared bbolt file; a TTL is stored alongside the
// value and enforced on read since bbolt has no native expiry.
type BoltStore struct {
	db        *bolt.DB
	namespace string
}

type boltEntry struct {
	Value     []byte `json:"value"`
	ExpiresAt int64  `json:"expires_at,omitempty"` // unix nanos, 0 = no expiry
}

// NewBoltStore opens (creating if absent) the bbolt file at path and
// ensures namespace's bucket exists.
func NewBoltStore(path, namespace string) (Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, errs.New(component, "open", errs.Internal, "open bbolt file").WithCause(err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(namespace))
		return err
	})
	if err != nil {
		db.Close()
		return nil, errs.New(component, "open", errs.Internal, "create bucket").WithCause(err)
	}
	return &BoltStore{db: db, namespace: namespace}, nil
}

func (s *BoltStore) Namespace() string { return s.namespace }
func (s *BoltStore) Backend() string   { return "bbolt" }
func (s *BoltStore) Close() error      { return s.db.Close() }

func (s *BoltStore) encode(value []byte, ttl time.Duration) ([]byte, error) {
	entry := boltEntry{Value: value}
	if ttl > 0 {
		entry.ExpiresAt = time.Now().Add(ttl).UnixNano()
	}
	return json.Marshal(entry)
}

func (s *BoltStore) decode(raw []byte) (boltEntry, bool) {
	var entry boltEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return boltEntry{}, false
	}
	if entry.ExpiresAt != 0 && time.Now().UnixNano() > entry.ExpiresAt {
		return boltEntry{}, false
	}
	return entry, true
}

func (s *BoltStore) Set(key string, value []byte, ttl time.Duration) error {
	encoded, err := s.encode(value, ttl)
	if err != nil {
		return errs.New(component, "set", errs.Internal, "encode entry").WithCause(err)
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(s.namespace)).Put([]byte(key), encoded)
	})
	if err != nil {
		return errs.New(component, "set", errs.Internal, "bbolt put failed").WithCause(err)
	}
	return nil
}

func (s *BoltStore) Get(key string) ([]byte, bool, error) {
	var value []byte
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket([]byte(s.namespace)).Get([]byte(key))
		if raw == nil {
			return nil
		}
		entry, ok := s.decode(raw)
		if !ok {
			return nil
		}
		value = entry.Value
		found = true
		return nil
	})
	if err != nil {
		return nil, false, errs.New(component, "get", errs.Internal, "bbolt view failed").WithCause(err)
	}
	return value, found, nil
}

func (s *BoltStore) Delete(key string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(s.namespace)).Delete([]byte(key))
	})
	if err != nil {
		return errs.New(component, "delete", errs.Internal, "bbolt delete failed").WithCause(err)
	}
	return nil
}

func (s *BoltStore) Exists(key string) (bool, error) {
	_, found, err := s.Get(key)
	return found, err
}

func (s *BoltStore) SetBatch(entries map[string][]byte, ttl time.Duration) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(s.namespace))
		for key, value := range entries {
			encoded, err := s.encode(value, ttl)
			if err != nil {
				return err
			}
			if err := bucket.Put([]byte(key), encoded); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return errs.New(component, "set_batch", errs.Internal, "bbolt batch put failed").WithCause(err)
	}
	return nil
}

func (s *BoltStore) GetBatch(keys []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(s.namespace))
		for _, key := range keys {
			raw := bucket.Get([]byte(key))
			if raw == nil {
				continue
			}
			if entry, ok := s.decode(raw); ok {
				out[key] = entry.Value
			}
		}
		return nil
	})
	if err != nil {
		return nil, errs.New(component, "get_batch", errs.Internal, "bbolt view failed").WithCause(err)
	}
	return out, nil
}

func (s *BoltStore) DeleteBatch(keys []string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(s.namespace))
		for _, key := range keys {
			if err := bucket.Delete([]byte(key)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return errs.New(component, "delete_batch", errs.Internal, "bbolt batch delete failed").WithCause(err)
	}
	return nil
}

func (s *BoltStore) ClearNamespace() error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket([]byte(s.namespace)); err != nil {
			return err
		}
		_, err := tx.CreateBucket([]byte(s.namespace))
		return err
	})
	if err != nil {
		return errs.New(component, "clear_namespace", errs.Internal, "bbolt bucket reset failed").WithCause(err)
	}
	return nil
}
