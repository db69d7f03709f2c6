// Package boltdb persists clients, books, industries, training data, column mappings,
// templates and custom rule documents in a single bolt file.
package boltdb

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"time"

	"github.com/boltdb/bolt"
	"github.com/pkg/errors"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when a name is already taken.
	ErrDuplicate = errors.New("duplicate")
)

var (
	bucketClients          = []byte("clients")
	bucketBooks            = []byte("books")
	bucketIndustries       = []byte("industries")
	bucketTraining         = []byte("training")
	bucketMappings         = []byte("column_mappings")
	bucketMappingTemplates = []byte("mapping_templates")
	bucketConfigTemplates  = []byte("config_templates")
	bucketRules            = []byte("rules")

	allBuckets = [][]byte{
		bucketClients, bucketBooks, bucketIndustries, bucketTraining,
		bucketMappings, bucketMappingTemplates, bucketConfigTemplates, bucketRules,
	}
)

// Store is a bolt-backed repository. It is safe for concurrent use.
type Store struct {
	db  *bolt.DB
	now func() time.Time
}

// Open opens or creates the database at path and makes sure every bucket exists.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "Unable to open boltdb at %v", path)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return errors.Wrapf(err, "Unable to create bucket %s", name)
			}
		}
		return nil
	}); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close releases the database file.
func (s *Store) Close() error {
	return s.db.Close()
}

func encode(v interface{}) ([]byte, error) {
	var val bytes.Buffer
	if err := gob.NewEncoder(&val).Encode(v); err != nil {
		return nil, errors.Wrapf(err, "Unable to encode %T", v)
	}
	return val.Bytes(), nil
}

func decode(data []byte, v interface{}) error {
	if err := gob.NewDecoder(bytes.NewBuffer(data)).Decode(v); err != nil {
		return errors.Wrapf(err, "Unable to decode %T from value of length %d", v, len(data))
	}
	return nil
}

func put(b *bolt.Bucket, key string, v interface{}) error {
	data, err := encode(v)
	if err != nil {
		return err
	}
	return b.Put([]byte(key), data)
}

func get(b *bolt.Bucket, key string, v interface{}) error {
	data := b.Get([]byte(key))
	if data == nil {
		return errors.Wrapf(ErrNotFound, "key %q", key)
	}
	return decode(data, v)
}

// each decodes every value of b in key order. newValue returns a fresh pointer and
// visit receives it once decoded.
func each(b *bolt.Bucket, newValue func() interface{}, visit func(v interface{}) error) error {
	c := b.Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		if v == nil {
			continue
		}
		dst := newValue()
		if err := decode(v, dst); err != nil {
			return err
		}
		if err := visit(dst); err != nil {
			return err
		}
	}
	return nil
}

func seqKey(n uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, n)
	return k
}

// scopeKey joins a client and book ID into one key.
func scopeKey(clientID, bookID string) []byte {
	return []byte(clientID + "\x00" + bookID)
}
