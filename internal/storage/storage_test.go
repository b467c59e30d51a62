package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storeContract runs the behaviour every Store must share.
func storeContract(t *testing.T, s Store) {
	ctx := context.Background()

	meta, err := s.Put(ctx, Meta{ID: "u1", Owner: "alice", LogType: "SYSLOG", Filename: "sys.log", Lines: 2}, []byte("a\nb\n"))
	require.NoError(t, err)
	assert.Equal(t, int64(4), meta.Size)
	assert.Equal(t, ContentHash([]byte("a\nb\n")), meta.Hash)
	assert.False(t, meta.Uploaded.IsZero())

	data, got, err := s.Get(ctx, "alice", "SYSLOG")
	require.NoError(t, err)
	assert.Equal(t, "a\nb\n", string(data))
	assert.Equal(t, "u1", got.ID)
	assert.Equal(t, "sys.log", got.Filename)
	assert.Equal(t, 2, got.Lines)
	assert.Equal(t, meta.Hash, got.Hash)

	// Other owners are isolated.
	_, _, err = s.Get(ctx, "bob", "SYSLOG")
	assert.True(t, errors.Is(err, ErrNotFound))
	list, err := s.List(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, list)

	// Replace.
	_, err = s.Put(ctx, Meta{ID: "u2", Owner: "alice", LogType: "SYSLOG", Filename: "new.log", Lines: 1}, []byte("c\n"))
	require.NoError(t, err)
	st, err := s.Stat(ctx, "alice", "SYSLOG")
	require.NoError(t, err)
	assert.Equal(t, "u2", st.ID)

	_, err = s.Put(ctx, Meta{ID: "u3", Owner: "alice", LogType: "APACHE"}, []byte("x\n"))
	require.NoError(t, err)

	list, err = s.List(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "APACHE", list[0].LogType)
	assert.Equal(t, "SYSLOG", list[1].LogType)

	require.NoError(t, s.Delete(ctx, "alice", "SYSLOG"))
	_, err = s.Stat(ctx, "alice", "SYSLOG")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.True(t, errors.Is(s.Delete(ctx, "alice", "SYSLOG"), ErrNotFound))
	assert.True(t, errors.Is(s.Delete(ctx, "bob", "APACHE"), ErrNotFound))
}

func TestBolt(t *testing.T) {
	s, err := OpenBolt(filepath.Join(t.TempDir(), "uploads.db"))
	require.NoError(t, err)
	defer s.Close()
	storeContract(t, s)
}

func TestBolt_Persists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "uploads.db")
	s, err := OpenBolt(path)
	require.NoError(t, err)
	_, err = s.Put(context.Background(), Meta{Owner: "alice", LogType: "X"}, []byte("1\n"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = OpenBolt(path)
	require.NoError(t, err)
	defer s.Close()
	data, _, err := s.Get(context.Background(), "alice", "X")
	require.NoError(t, err)
	assert.Equal(t, "1\n", string(data))
}

func TestOwnerKey(t *testing.T) {
	assert.Len(t, OwnerKey("alice"), 16)
	assert.Equal(t, OwnerKey("alice"), OwnerKey("alice"))
	assert.NotEqual(t, OwnerKey("alice"), OwnerKey("bob"))
}

func TestOwnerContext(t *testing.T) {
	assert.Equal(t, Anonymous, OwnerFrom(context.Background()))
	assert.Equal(t, "alice", OwnerFrom(WithOwner(context.Background(), "alice")))
	assert.Equal(t, Anonymous, OwnerFrom(WithOwner(context.Background(), "")))
}
