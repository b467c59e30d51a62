package storage

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/goccy/go-json"
	bolt "go.etcd.io/bbolt"
)

var (
	metaBucket = []byte("meta")
	dataBucket = []byte("data")
)

// Bolt stores uploads in a local bbolt database. Each owner has a top-level
// bucket named by OwnerKey holding "meta" and "data" sub-buckets keyed by
// log type.
type Bolt struct {
	db *bolt.DB
}

// OpenBolt opens or creates the database at path.
func OpenBolt(path string) (*Bolt, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open upload db: %w", err)
	}
	return &Bolt{db: db}, nil
}

// Close closes the database.
func (b *Bolt) Close() error {
	return b.db.Close()
}

// Put implements Store.
func (b *Bolt) Put(ctx context.Context, meta Meta, data []byte) (Meta, error) {
	if err := ctx.Err(); err != nil {
		return Meta{}, err
	}
	meta.Size = int64(len(data))
	meta.Hash = ContentHash(data)
	if meta.Uploaded.IsZero() {
		meta.Uploaded = time.Now().UTC()
	}
	encoded, err := json.Marshal(meta)
	if err != nil {
		return Meta{}, fmt.Errorf("encode meta: %w", err)
	}

	err = b.db.Update(func(tx *bolt.Tx) error {
		owner, err := tx.CreateBucketIfNotExists([]byte(OwnerKey(meta.Owner)))
		if err != nil {
			return err
		}
		metaB, err := owner.CreateBucketIfNotExists(metaBucket)
		if err != nil {
			return err
		}
		dataB, err := owner.CreateBucketIfNotExists(dataBucket)
		if err != nil {
			return err
		}
		if err := dataB.Put([]byte(meta.LogType), data); err != nil {
			return err
		}
		return metaB.Put([]byte(meta.LogType), encoded)
	})
	if err != nil {
		return Meta{}, fmt.Errorf("store upload: %w", err)
	}
	return meta, nil
}

// Get implements Store.
func (b *Bolt) Get(ctx context.Context, owner, logType string) ([]byte, Meta, error) {
	if err := ctx.Err(); err != nil {
		return nil, Meta{}, err
	}
	var data []byte
	var meta Meta
	err := b.db.View(func(tx *bolt.Tx) error {
		ob := tx.Bucket([]byte(OwnerKey(owner)))
		if ob == nil {
			return ErrNotFound
		}
		var err error
		if meta, err = readMeta(ob, logType); err != nil {
			return err
		}
		v := ob.Bucket(dataBucket).Get([]byte(logType))
		if v == nil {
			return ErrNotFound
		}
		// v is only valid inside the transaction
		data = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, Meta{}, err
	}
	return data, meta, nil
}

// Stat implements Store.
func (b *Bolt) Stat(ctx context.Context, owner, logType string) (Meta, error) {
	if err := ctx.Err(); err != nil {
		return Meta{}, err
	}
	var meta Meta
	err := b.db.View(func(tx *bolt.Tx) error {
		ob := tx.Bucket([]byte(OwnerKey(owner)))
		if ob == nil {
			return ErrNotFound
		}
		var err error
		meta, err = readMeta(ob, logType)
		return err
	})
	return meta, err
}

// List implements Store. Results are sorted by log type.
func (b *Bolt) List(ctx context.Context, owner string) ([]Meta, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []Meta
	err := b.db.View(func(tx *bolt.Tx) error {
		ob := tx.Bucket([]byte(OwnerKey(owner)))
		if ob == nil {
			return nil
		}
		mb := ob.Bucket(metaBucket)
		if mb == nil {
			return nil
		}
		return mb.ForEach(func(_, v []byte) error {
			var m Meta
			if err := json.Unmarshal(v, &m); err != nil {
				return fmt.Errorf("decode meta: %w", err)
			}
			out = append(out, m)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LogType < out[j].LogType })
	return out, nil
}

// Delete implements Store.
func (b *Bolt) Delete(ctx context.Context, owner, logType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		ob := tx.Bucket([]byte(OwnerKey(owner)))
		if ob == nil {
			return ErrNotFound
		}
		mb := ob.Bucket(metaBucket)
		if mb == nil || mb.Get([]byte(logType)) == nil {
			return ErrNotFound
		}
		if err := mb.Delete([]byte(logType)); err != nil {
			return err
		}
		return ob.Bucket(dataBucket).Delete([]byte(logType))
	})
}

func readMeta(ob *bolt.Bucket, logType string) (Meta, error) {
	mb := ob.Bucket(metaBucket)
	if mb == nil {
		return Meta{}, ErrNotFound
	}
	v := mb.Get([]byte(logType))
	if v == nil {
		return Meta{}, ErrNotFound
	}
	var m Meta
	if err := json.Unmarshal(v, &m); err != nil {
		return Meta{}, fmt.Errorf("decode meta: %w", err)
	}
	return m, nil
}
