// Package hotreload keeps a rule file loaded and swaps in a new rule set
// whenever the file changes on disk.
package hotreload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/logstory/logstory-go/pkg/logstory/rules"
)

// DefaultDebounce is how long to wait after the last change before reloading.
const DefaultDebounce = 100 * time.Millisecond

// errBuffer is the buffer size for the error channel.
const errBuffer = 16

var (
	ErrClosed          = errors.New("rule watcher closed")
	ErrAlreadyWatching = errors.New("watch already called")
)

// Rules holds the current rule set. Readers always see a complete,
// immutable set; a failed reload keeps the previous one.
type Rules struct {
	path     string
	current  atomic.Pointer[rules.RuleSet]
	debounce time.Duration
	log      *slog.Logger
	onReload func(rules.RuleSet)

	mu       sync.Mutex
	closed   bool
	watching bool
	cancel   context.CancelFunc
	doneCh   chan struct{}
}

// Option configures Rules.
type Option func(*Rules)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Rules) {
		if l != nil {
			r.log = l
		}
	}
}

// WithDebounce sets the reload debounce interval.
func WithDebounce(d time.Duration) Option {
	return func(r *Rules) {
		if d > 0 {
			r.debounce = d
		}
	}
}

// WithOnReload registers a callback run after each successful reload.
func WithOnReload(fn func(rules.RuleSet)) Option {
	return func(r *Rules) {
		r.onReload = fn
	}
}

// New loads path and returns a holder for it.
func New(path string, opts ...Option) (*Rules, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve rule file path: %w", err)
	}
	r := &Rules{
		path:     abs,
		debounce: DefaultDebounce,
		log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Current returns the active rule set.
func (r *Rules) Current() rules.RuleSet {
	return *r.current.Load()
}

// Rules implements logstory.RuleSource.
func (r *Rules) Rules(ctx context.Context, logType string) ([]rules.Rule, error) {
	return r.Current().Rules(ctx, logType)
}

// LogTypes returns the log types of the active set.
func (r *Rules) LogTypes() []string {
	return r.Current().LogTypes()
}

// Reload reads the file again. On error the active set is unchanged.
func (r *Rules) Reload() error {
	rs, err := rules.Load(r.path)
	if err != nil {
		return err
	}
	r.current.Store(&rs)
	if r.onReload != nil {
		r.onReload(rs)
	}
	return nil
}

// Watch reloads the rule file whenever it changes until ctx is cancelled
// or Close is called. Reload failures are sent on the returned channel,
// which is closed when watching stops. The parent directory is watched so
// that editors replacing the file are seen.
func (r *Rules) Watch(ctx context.Context) (<-chan error, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrClosed
	}
	if r.watching {
		return nil, ErrAlreadyWatching
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(r.path)); err != nil {
		w.Close()
		return nil, fmt.Errorf("watch rule directory: %w", err)
	}
	r.watching = true

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.doneCh = make(chan struct{})
	errCh := make(chan error, errBuffer)

	go r.run(ctx, w, errCh)
	return errCh, nil
}

// Close stops watching. Safe to call multiple times.
func (r *Rules) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	if r.cancel != nil {
		r.cancel()
	}
	doneCh := r.doneCh
	r.mu.Unlock()

	if doneCh != nil {
		<-doneCh
	}
	return nil
}

func (r *Rules) run(ctx context.Context, w *fsnotify.Watcher, errCh chan<- error) {
	defer close(r.doneCh)
	defer close(errCh)
	defer w.Close()

	timer := time.NewTimer(r.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != r.path {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				timer.Reset(r.debounce)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			send(ctx, errCh, err)
		case <-timer.C:
			if err := r.Reload(); err != nil {
				r.log.Warn("rule reload failed, keeping previous rules", slog.String("error", err.Error()))
				send(ctx, errCh, err)
				continue
			}
			r.log.Info("rules reloaded", slog.Int("log_types", len(r.Current())))
		}
	}
}

func send(ctx context.Context, errCh chan<- error, err error) {
	select {
	case errCh <- err:
	case <-ctx.Done():
	default:
	}
}
