// Package storage persists uploaded log files per user.
//
// Each owner gets an isolated namespace derived from a hash of the owner id,
// so owners never see or overwrite each other's uploads. An owner holds at
// most one upload per log type; a new upload replaces the old one.
package storage

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"time"

	"github.com/minio/highwayhash"
)

var (
	// ErrNotFound is returned when the owner has no upload for a log type.
	ErrNotFound = errors.New("upload not found")

	// ErrNotSupported is returned by stores that cannot issue signed URLs.
	ErrNotSupported = errors.New("operation not supported by store")
)

// Anonymous is the owner used when authentication is disabled.
const Anonymous = "anonymous"

// Meta describes a stored upload.
type Meta struct {
	ID          string    `json:"id"`
	Owner       string    `json:"owner"`
	LogType     string    `json:"log_type"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	Lines       int       `json:"lines"`
	Hash        string    `json:"hash"`
	Uploaded    time.Time `json:"uploaded"`
}

// Store persists uploads.
type Store interface {
	// Put stores data as the owner's upload for meta.LogType, replacing any
	// previous one. Size and Hash are filled in by the store.
	Put(ctx context.Context, meta Meta, data []byte) (Meta, error)
	Get(ctx context.Context, owner, logType string) ([]byte, Meta, error)
	Stat(ctx context.Context, owner, logType string) (Meta, error)
	List(ctx context.Context, owner string) ([]Meta, error)
	Delete(ctx context.Context, owner, logType string) error
	Close() error
}

// URLSigner is implemented by stores that can hand out time-limited
// download URLs.
type URLSigner interface {
	SignedURL(ctx context.Context, owner, logType string, ttl time.Duration) (string, error)
}

// hashKey is the fixed highwayhash key. Hashes are content identities, not
// secrets, so the key only needs to be stable across restarts.
var hashKey = []byte("logstory-go/content-identity-key")

// ContentHash returns a stable hex identity for data.
func ContentHash(data []byte) string {
	sum := highwayhash.Sum128(data, hashKey)
	return hex.EncodeToString(sum[:])
}

// OwnerKey returns the storage namespace of owner.
func OwnerKey(owner string) string {
	sum := highwayhash.Sum64([]byte(owner), hashKey)
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], sum)
	return hex.EncodeToString(b[:])
}

type ownerCtxKey struct{}

// WithOwner returns a context carrying the caller's owner id.
func WithOwner(ctx context.Context, owner string) context.Context {
	return context.WithValue(ctx, ownerCtxKey{}, owner)
}

// OwnerFrom returns the owner id carried by ctx, or Anonymous.
func OwnerFrom(ctx context.Context) string {
	if owner, ok := ctx.Value(ownerCtxKey{}).(string); ok && owner != "" {
		return owner
	}
	return Anonymous
}
