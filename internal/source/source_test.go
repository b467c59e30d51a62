package source

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/logstory/logstory-go/internal/storage"
	"github.com/logstory/logstory-go/pkg/logstory"
)

func TestDecoder_Lines(t *testing.T) {
	tests := []struct {
		name   string
		policy InvalidPolicy
		data   []byte
		want   []string
	}{
		{"plain", Replace, []byte("a\nb\r\nc"), []string{"a\n", "b\r\n", "c"}},
		{"trailing newline", Replace, []byte("a\nb\n"), []string{"a\n", "b\n"}},
		{"empty", Replace, nil, nil},
		{"utf8 bom", Replace, []byte("\xef\xbb\xbfa\n"), []string{"a\n"}},
		{"utf16le bom", Replace, []byte{0xff, 0xfe, 'h', 0, 'i', 0, '\n', 0}, []string{"hi\n"}},
		{"invalid replaced", Replace, []byte("a\xffb\n"), []string{"a�b\n"}},
		{"invalid dropped", Drop, []byte("a\xffb\n"), []string{"ab\n"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lines, err := Decoder{Policy: tt.policy}.Lines(tt.data)
			require.NoError(t, err)
			assert.Equal(t, tt.want, lines)
		})
	}
}

func TestDecoder_Compressed(t *testing.T) {
	plain := []byte("Jan 15 09:31:23 host a\nJan 15 09:31:24 host b\n")

	var gz bytes.Buffer
	zw := gzip.NewWriter(&gz)
	_, err := zw.Write(plain)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	assert.Equal(t, "gzip", Compressed(gz.Bytes()))

	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	zs := enc.EncodeAll(plain, nil)
	require.NoError(t, enc.Close())
	assert.Equal(t, "zstd", Compressed(zs))

	assert.Equal(t, "", Compressed(plain))

	for name, data := range map[string][]byte{"gzip": gz.Bytes(), "zstd": zs} {
		t.Run(name, func(t *testing.T) {
			lines, err := Decoder{}.Lines(data)
			require.NoError(t, err)
			assert.Len(t, lines, 2)

			_, err = Decoder{MaxSize: 10}.Lines(data)
			assert.ErrorIs(t, err, ErrTooLarge)
		})
	}
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, Replace, p)
	p, err = ParsePolicy("DROP")
	require.NoError(t, err)
	assert.Equal(t, Drop, p)
	_, err = ParsePolicy("ignore")
	assert.Error(t, err)
}

func TestFiles_DirectFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "SYSLOG.log")
	require.NoError(t, os.WriteFile(path, []byte("one\ntwo\n"), 0o600))

	f, err := NewFiles(dir)
	require.NoError(t, err)

	lines, err := f.Lines(context.Background(), "SYSLOG")
	require.NoError(t, err)
	assert.Equal(t, []string{"one\n", "two\n"}, lines)

	// A rewritten file has a new identity and is re-read.
	require.NoError(t, os.WriteFile(path, []byte("three\nfour\nfive\n"), 0o600))
	future := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, future, future))
	lines, err = f.Lines(context.Background(), "SYSLOG")
	require.NoError(t, err)
	assert.Len(t, lines, 3)

	_, err = f.Lines(context.Background(), "MISSING")
	assert.ErrorIs(t, err, logstory.ErrNoLines)
}

func TestFiles_RejectsTraversal(t *testing.T) {
	f, err := NewFiles(t.TempDir())
	require.NoError(t, err)
	for _, lt := range []string{"../etc/passwd", "a/b", "", ".hidden"} {
		_, err := f.Lines(context.Background(), lt)
		assert.ErrorIs(t, err, ErrInvalidLogType, lt)
	}
}

func TestFiles_RejectsSymlink(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "real.txt")
	require.NoError(t, os.WriteFile(target, []byte("x\n"), 0o600))
	if err := os.Symlink(target, filepath.Join(dir, "LINK.log")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	f, err := NewFiles(dir)
	require.NoError(t, err)
	_, err = f.Lines(context.Background(), "LINK")
	assert.ErrorIs(t, err, logstory.ErrNoLines)
}

func TestFiles_Globs(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "nested", "app")
	require.NoError(t, os.MkdirAll(sub, 0o755))

	older := filepath.Join(sub, "app-1.log")
	newer := filepath.Join(sub, "app-2.log")
	require.NoError(t, os.WriteFile(older, []byte("old\n"), 0o600))
	require.NoError(t, os.WriteFile(newer, []byte("new\n"), 0o600))
	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(older, past, past))

	f, err := NewFiles("", WithGlobs(map[string][]string{
		"APP": {filepath.ToSlash(dir) + "/**/app-*.log"},
	}))
	require.NoError(t, err)

	path, err := f.Resolve("APP")
	require.NoError(t, err)
	assert.Equal(t, newer, path)

	lines, err := f.Lines(context.Background(), "APP")
	require.NoError(t, err)
	assert.Equal(t, []string{"new\n"}, lines)

	_, err = NewFiles("", WithGlobs(map[string][]string{"BAD": {"[unclosed"}}))
	assert.Error(t, err)
}

func TestFiles_TooLarge(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "BIG.log"), bytes.Repeat([]byte("x"), 100), 0o600))

	f, err := NewFiles(dir, WithMaxFileSize(10))
	require.NoError(t, err)
	_, err = f.Lines(context.Background(), "BIG")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")
}

func TestUploadsAndChain(t *testing.T) {
	store, err := storage.OpenBolt(filepath.Join(t.TempDir(), "u.db"))
	require.NoError(t, err)
	defer store.Close()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "SYSLOG.log"), []byte("from disk\n"), 0o600))
	files, err := NewFiles(dir)
	require.NoError(t, err)

	uploads := NewUploads(store, Decoder{}, 8)
	chain := Chain{uploads, files}

	alice := storage.WithOwner(context.Background(), "alice")
	bob := storage.WithOwner(context.Background(), "bob")

	lines, err := chain.Lines(alice, "SYSLOG")
	require.NoError(t, err)
	assert.Equal(t, []string{"from disk\n"}, lines)

	_, err = store.Put(alice, storage.Meta{Owner: "alice", LogType: "SYSLOG"}, []byte("from upload\n"))
	require.NoError(t, err)

	lines, err = chain.Lines(alice, "SYSLOG")
	require.NoError(t, err)
	assert.Equal(t, []string{"from upload\n"}, lines, "the caller's upload takes precedence")

	lines, err = chain.Lines(bob, "SYSLOG")
	require.NoError(t, err)
	assert.Equal(t, []string{"from disk\n"}, lines, "uploads are per owner")

	_, err = chain.Lines(alice, "NOTHING")
	assert.ErrorIs(t, err, logstory.ErrNoLines)
}

// replacingStore swaps the upload for other content right before the first
// Get, after Lines has already read the old metadata.
type replacingStore struct {
	storage.Store
	replacement []byte
	replaced    bool
}

func (s *replacingStore) Get(ctx context.Context, owner, logType string) ([]byte, storage.Meta, error) {
	if !s.replaced {
		s.replaced = true
		if _, err := s.Store.Put(ctx, storage.Meta{Owner: owner, LogType: logType}, s.replacement); err != nil {
			return nil, storage.Meta{}, err
		}
	}
	return s.Store.Get(ctx, owner, logType)
}

func TestUploads_ReplacedBetweenStatAndGet(t *testing.T) {
	bolt, err := storage.OpenBolt(filepath.Join(t.TempDir(), "u.db"))
	require.NoError(t, err)
	defer bolt.Close()

	store := &replacingStore{Store: bolt, replacement: []byte("new\n")}
	uploads := NewUploads(store, Decoder{}, 8)

	alice := storage.WithOwner(context.Background(), "alice")
	bob := storage.WithOwner(context.Background(), "bob")

	_, err = bolt.Put(alice, storage.Meta{Owner: "alice", LogType: "SYSLOG"}, []byte("old\n"))
	require.NoError(t, err)
	_, err = bolt.Put(bob, storage.Meta{Owner: "bob", LogType: "SYSLOG"}, []byte("old\n"))
	require.NoError(t, err)

	lines, err := uploads.Lines(alice, "SYSLOG")
	require.NoError(t, err)
	assert.Equal(t, []string{"new\n"}, lines)

	lines, err = uploads.Lines(bob, "SYSLOG")
	require.NoError(t, err)
	assert.Equal(t, []string{"old\n"}, lines, "content read after a replacement is not cached under the old hash")

	lines, err = uploads.Lines(alice, "SYSLOG")
	require.NoError(t, err)
	assert.Equal(t, []string{"new\n"}, lines)
}

type brokenSource struct{}

func (brokenSource) Lines(context.Context, string) ([]string, error) {
	return nil, errors.New("broken")
}

func TestChain_StopsOnError(t *testing.T) {
	_, err := Chain{brokenSource{}}.Lines(context.Background(), "X")
	require.Error(t, err)
	assert.NotErrorIs(t, err, logstory.ErrNoLines)
}
