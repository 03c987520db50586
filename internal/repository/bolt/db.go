package bolt

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Rrens/chatvault/internal/config"
	bbolt "go.etcd.io/bbolt"
)

// DB wraps a bbolt database holding one bucket per profile namespace
type DB struct {
	db *bbolt.DB
}

// NewDB opens (or creates) the bolt file configured for local storage
func NewDB(cfg config.StorageConfig) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.BoltPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	timeout := cfg.OpenTimeout
	if timeout <= 0 {
		timeout = time.Second
	}

	db, err := bbolt.Open(cfg.BoltPath, 0o600, &bbolt.Options{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database: %w", err)
	}

	return &DB{db: db}, nil
}

func (d *DB) Get(ctx context.Context, namespace, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	var out []byte
	var found bool
	err := d.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(namespace))
		if b == nil {
			return nil
		}
		v := b.Get([]byte(key))
		if v == nil {
			return nil
		}
		// v is only valid for the life of the transaction
		out = append([]byte(nil), v...)
		found = true
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to read %s/%s: %w", namespace, key, err)
	}
	return out, found, nil
}

func (d *DB) Put(ctx context.Context, namespace, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := d.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(namespace))
		if err != nil {
			return err
		}
		return b.Put([]byte(key), value)
	})
	if err != nil {
		return fmt.Errorf("failed to write %s/%s: %w", namespace, key, err)
	}
	return nil
}

func (d *DB) Delete(ctx context.Context, namespace, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := d.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(namespace))
		if b == nil {
			return nil
		}
		return b.Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", namespace, key, err)
	}
	return nil
}

func (d *DB) DeleteNamespace(ctx context.Context, namespace string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := d.db.Update(func(tx *bbolt.Tx) error {
		err := tx.DeleteBucket([]byte(namespace))
		if errors.Is(err, bbolt.ErrBucketNotFound) {
			return nil
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to delete namespace %s: %w", namespace, err)
	}
	return nil
}

func (d *DB) Namespaces(ctx context.Context) ([]string, error) {
	var names []string
	err := d.db.View(func(tx *bbolt.Tx) error {
		return tx.ForEach(func(name []byte, _ *bbolt.Bucket) error {
			names = append(names, string(name))
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list namespaces: %w", err)
	}
	return names, nil
}

// Ping verifies the database file is open and readable
func (d *DB) Ping(ctx context.Context) error {
	return d.db.View(func(tx *bbolt.Tx) error { return nil })
}

// Close closes the bolt file
func (d *DB) Close() error {
	return d.db.Close()
}
