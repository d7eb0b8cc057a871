package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	bolt "go.etcd.io/bbolt"
)

var settingsBucket = []byte("settings")

// BoltStore keeps settings in a local bbolt file; used by the CLI.
type BoltStore struct {
	db *bolt.DB
}

func OpenBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open settings db: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(settingsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init settings db: %w", err)
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) get(key string) ([]byte, error) {
	var value []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		if raw := tx.Bucket(settingsBucket).Get([]byte(key)); raw != nil {
			value = append([]byte{}, raw...)
		}
		return nil
	})
	return value, err
}

func (s *BoltStore) put(key string, value []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(settingsBucket)
		if value == nil {
			return b.Delete([]byte(key))
		}
		return b.Put([]byte(key), value)
	})
}

func (s *BoltStore) EnabledProviderIDs(ctx context.Context) ([]string, bool, error) {
	raw, err := s.get(fieldEnabledProviders)
	if err != nil || raw == nil {
		return nil, false, err
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, false, err
	}
	return normalizeIDs(append([]string{}, ids...)), true, nil
}

func (s *BoltStore) MaxResults(ctx context.Context) (int, bool, error) {
	raw, err := s.get(fieldMaxResults)
	if err != nil || raw == nil {
		return 0, false, err
	}
	n, err := strconv.Atoi(string(raw))
	if err != nil || n < 0 {
		return 0, false, nil
	}
	return n, true, nil
}

func (s *BoltStore) SetEnabledProviderIDs(ctx context.Context, ids []string) error {
	if ids == nil {
		return s.put(fieldEnabledProviders, nil)
	}
	encoded, err := json.Marshal(normalizeIDs(ids))
	if err != nil {
		return err
	}
	return s.put(fieldEnabledProviders, encoded)
}

func (s *BoltStore) SetMaxResults(ctx context.Context, n int) error {
	if err := validateMaxResults(n); err != nil {
		return err
	}
	return s.put(fieldMaxResults, []byte(strconv.Itoa(n)))
}
