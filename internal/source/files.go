package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/logstory/logstory-go/internal/cache"
	"github.com/logstory/logstory-go/pkg/logstory"
)

// ErrNotRegularFile is returned when a log path is a symlink, FIFO, device,
// socket or directory.
var ErrNotRegularFile = errors.New("not a regular file")

// ErrInvalidLogType is returned for log type names that could escape the
// log directory.
var ErrInvalidLogType = errors.New("invalid log type name")

// DefaultMaxFileSize bounds a single log file read (64MB).
const DefaultMaxFileSize = 64 * 1024 * 1024

var logTypeName = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_.-]*$`)

// ValidLogType reports whether name is safe to use as a file name.
func ValidLogType(name string) bool {
	return logTypeName.MatchString(name)
}

// fileKey identifies a file version: a changed file gets a new key.
type fileKey struct {
	path    string
	modTime int64
	size    int64
}

// Files reads log lines from disk.
//
// A log type resolves to <Dir>/<logType>.log when it exists, otherwise to
// the most recently modified regular file matching one of its globs.
type Files struct {
	dir     string
	globs   map[string][]string
	maxSize int64
	decoder Decoder
	cache   *cache.LRU[fileKey, []string]
	log     *slog.Logger
}

// FilesOption configures Files.
type FilesOption func(*Files)

// WithGlobs sets per-log-type doublestar patterns (e.g. "/var/log/**/*.log").
func WithGlobs(globs map[string][]string) FilesOption {
	return func(f *Files) {
		f.globs = globs
	}
}

// WithDecoder sets the decoder used for file content.
func WithDecoder(d Decoder) FilesOption {
	return func(f *Files) {
		f.decoder = d
	}
}

// WithMaxFileSize bounds the size of a log file. Default: DefaultMaxFileSize.
func WithMaxFileSize(n int64) FilesOption {
	return func(f *Files) {
		if n > 0 {
			f.maxSize = n
		}
	}
}

// WithCacheEntries sets how many decoded files are kept.
func WithCacheEntries(n int) FilesOption {
	return func(f *Files) {
		f.cache = cache.New[fileKey, []string](n)
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) FilesOption {
	return func(f *Files) {
		if l != nil {
			f.log = l
		}
	}
}

// NewFiles creates a file line source rooted at dir.
func NewFiles(dir string, opts ...FilesOption) (*Files, error) {
	f := &Files{
		dir:     dir,
		maxSize: DefaultMaxFileSize,
		cache:   cache.New[fileKey, []string](cache.DefaultSize),
		log:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	for lt, patterns := range f.globs {
		for _, p := range patterns {
			if !doublestar.ValidatePathPattern(p) {
				return nil, fmt.Errorf("log type %s: invalid glob %q", lt, p)
			}
		}
	}
	return f, nil
}

// Lines implements logstory.LineSource.
func (f *Files) Lines(ctx context.Context, logType string) ([]string, error) {
	if !ValidLogType(logType) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidLogType, logType)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path, err := f.Resolve(logType)
	if err != nil {
		return nil, err
	}

	file, info, err := openRegular(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, logstory.ErrNoLines
		}
		return nil, fmt.Errorf("open log: %w", sanitizePathError(err))
	}
	defer file.Close()

	if info.Size() > f.maxSize {
		return nil, fmt.Errorf("log file too large: %d bytes (max %d)", info.Size(), f.maxSize)
	}

	key := fileKey{path: path, modTime: info.ModTime().UnixNano(), size: info.Size()}
	return f.cache.GetOrLoad(key, func() ([]string, error) {
		f.log.Debug("reading log file", slog.String("log_type", logType), slog.Int64("size", info.Size()))
		data, err := io.ReadAll(io.LimitReader(file, f.maxSize+1))
		if err != nil {
			return nil, fmt.Errorf("read log: %w", sanitizePathError(err))
		}
		return f.decoder.Lines(data)
	})
}

// Resolve returns the file path that backs logType. It returns
// logstory.ErrNoLines when nothing matches.
func (f *Files) Resolve(logType string) (string, error) {
	if f.dir != "" {
		direct := filepath.Join(f.dir, logType+".log")
		if info, err := os.Lstat(direct); err == nil && info.Mode().IsRegular() {
			return direct, nil
		}
	}
	if patterns := f.globs[logType]; len(patterns) > 0 {
		if path, err := findLatest(patterns); err == nil {
			return path, nil
		}
	}
	return "", logstory.ErrNoLines
}

// candidate holds a path and its cached modification time so the sort does
// not race with files being deleted.
type candidate struct {
	path    string
	modTime int64
}

// findLatest returns the most recently modified regular file matching any
// of patterns.
func findLatest(patterns []string) (string, error) {
	var candidates []candidate
	for _, p := range patterns {
		matches, err := doublestar.FilepathGlob(p)
		if err != nil {
			return "", fmt.Errorf("globbing log files: %w", err)
		}
		for _, m := range matches {
			info, err := os.Lstat(m)
			if err != nil || !info.Mode().IsRegular() {
				continue
			}
			candidates = append(candidates, candidate{path: m, modTime: info.ModTime().UnixNano()})
		}
	}
	if len(candidates) == 0 {
		return "", logstory.ErrNoLines
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].modTime > candidates[j].modTime
	})
	return candidates[0].path, nil
}

// openRegular opens path after checking with Lstat that it is a regular
// file, then re-checks the open descriptor.
func openRegular(path string) (*os.File, os.FileInfo, error) {
	linkInfo, err := os.Lstat(path)
	if err != nil {
		return nil, nil, err
	}
	if !linkInfo.Mode().IsRegular() {
		return nil, nil, ErrNotRegularFile
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return nil, nil, ErrNotRegularFile
	}
	return f, info, nil
}

// sanitizePathError removes the path from os.PathError so errors can be
// returned to remote callers.
func sanitizePathError(err error) error {
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		return fmt.Errorf("%s: %w", pathErr.Op, pathErr.Err)
	}
	return err
}
