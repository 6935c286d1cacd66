// Package cache provides a self-cleaning on-disk cache of whole-file
// content hashes, used by the popularity acquisition collaborator to avoid
// re-hashing unchanged files across runs.
package cache

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	bucketName = "hashes"
)

// FileIdentity is the subset of file metadata a cache entry is keyed on:
// any change to any field is treated as a cache miss.
type FileIdentity struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// Cache provides persistent caching of whole-file hashes using BoltDB.
// Self-cleaning: each run creates a new database; only entries looked up
// during the run survive into it.
type Cache struct {
	readDB  *bolt.DB
	writeDB *bolt.DB
	path    string
	enabled bool
}

// Open opens the existing cache for reading and creates a new cache for
// writing. BoltDB's file locking on the .new path prevents concurrent
// instances. Returns a disabled cache if path is empty.
func Open(path string) (*Cache, error) {
	if path == "" {
		return &Cache{enabled: false}, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("cache: create dir: %w", err)
	}

	c := &Cache{path: path, enabled: true}

	if _, statErr := os.Stat(path); statErr == nil {
		readDB, err := bolt.Open(path, 0o600, &bolt.Options{
			ReadOnly: true,
			Timeout:  1 * time.Second,
		})
		if err == nil {
			c.readDB = readDB
		}
	}

	newPath := path + ".new"
	writeDB, err := bolt.Open(newPath, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("cache: create new cache (locked by another instance?): %w", err)
	}
	c.writeDB = writeDB

	if err := c.writeDB.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	}); err != nil {
		_ = c.Close()
		return nil, err
	}

	return c, nil
}

// Close closes both databases and atomically replaces the old cache file
// with the new one. Only replaces if the write database closed cleanly.
func (c *Cache) Close() error {
	var errs []error
	if c.readDB != nil {
		if err := c.readDB.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.writeDB != nil {
		if err := c.writeDB.Close(); err != nil {
			errs = append(errs, err)
		} else if err := os.Rename(c.path+".new", c.path); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

const keyVersion byte = 1

// makeKey builds a deterministic byte key: ver(1) + path + NUL + size(8) +
// mtime(8).
func makeKey(id FileIdentity) []byte {
	buf := new(bytes.Buffer)
	buf.WriteByte(keyVersion)
	buf.WriteString(id.Path)
	buf.WriteByte(0)
	_ = binary.Write(buf, binary.BigEndian, id.Size)
	_ = binary.Write(buf, binary.BigEndian, id.ModTime.UnixNano())
	return buf.Bytes()
}

// Lookup retrieves a cached hash for id. It returns (nil, nil) on a miss.
// On a hit, the entry is copied into the new database (self-cleaning).
func (c *Cache) Lookup(id FileIdentity, hashSize int) ([]byte, error) {
	if !c.enabled || c.readDB == nil {
		return nil, nil
	}

	key := makeKey(id)
	var h []byte

	err := c.readDB.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b == nil {
			return nil
		}
		data := b.Get(key)
		if len(data) == hashSize {
			h = make([]byte, hashSize)
			copy(h, data)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("cache: lookup: %w", err)
	}
	if h == nil {
		return nil, nil
	}

	_ = c.Store(id, h)

	return h, nil
}

// Store saves a hash for id into the new database.
func (c *Cache) Store(id FileIdentity, h []byte) error {
	if !c.enabled || c.writeDB == nil {
		return nil
	}

	err := c.writeDB.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		return b.Put(makeKey(id), h)
	})
	if err != nil {
		return fmt.Errorf("cache: store: %w", err)
	}
	return nil
}
