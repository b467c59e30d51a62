package logstory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/nxadm/tail"

	"github.com/logstory/logstory-go/pkg/logstory/rules"
)

// followerErrBuffer is the buffer size for the error channel.
const followerErrBuffer = 16

// FollowError wraps an error raised while following a file.
type FollowError struct {
	Path string
	Err  error
}

func (e *FollowError) Error() string {
	return fmt.Sprintf("follow %s: %v", e.Path, e.Err)
}

func (e *FollowError) Unwrap() error {
	return e.Err
}

// Follower matches the lines of a growing file as they are written.
type Follower struct {
	path    string
	rules   []rules.Rule
	scanner *Scanner
	cfg     *config

	mu        sync.Mutex
	closed    bool
	following bool
	cancel    context.CancelFunc
	doneCh    chan struct{}
}

// NewFollower creates a Follower for path using rs.
func NewFollower(path string, rs []rules.Rule, opts ...Option) (*Follower, error) {
	if path == "" {
		return nil, errors.New("path is required")
	}
	cfg := applyOptions(opts)
	ruleCopy := make([]rules.Rule, len(rs))
	copy(ruleCopy, rs)
	return &Follower{
		path:    path,
		rules:   ruleCopy,
		scanner: &Scanner{matcher: &Matcher{cfg: cfg}},
		cfg:     cfg,
	}, nil
}

// Follow starts following and returns channels of results and errors.
// Lines are numbered from 1 in arrival order. Both channels close when ctx
// is cancelled, Close is called or the file cannot be followed.
// Follow can only be called once per Follower.
func (f *Follower) Follow(ctx context.Context) (<-chan LineResult, <-chan error, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil, nil, ErrFollowerClosed
	}
	if f.following {
		return nil, nil, ErrAlreadyFollowing
	}

	tcfg := tail.Config{
		Follow:    true,
		ReOpen:    true,
		MustExist: true,
		Poll:      f.cfg.poll,
		Logger:    tail.DiscardingLogger,
	}
	if !f.cfg.fromStart {
		tcfg.Location = &tail.SeekInfo{Offset: 0, Whence: io.SeekEnd}
	}
	t, err := tail.TailFile(f.path, tcfg)
	if err != nil {
		return nil, nil, &FollowError{Path: f.path, Err: err}
	}
	f.following = true

	ctx, cancel := context.WithCancel(ctx)
	f.cancel = cancel
	f.doneCh = make(chan struct{})

	resultCh := make(chan LineResult)
	errCh := make(chan error, followerErrBuffer)

	go f.run(ctx, t, resultCh, errCh)

	return resultCh, errCh, nil
}

// Close stops following and waits for the goroutine to exit.
// Safe to call multiple times.
func (f *Follower) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	if f.cancel != nil {
		f.cancel()
	}
	doneCh := f.doneCh
	f.mu.Unlock()

	if doneCh != nil {
		<-doneCh
	}
	return nil
}

func (f *Follower) run(ctx context.Context, t *tail.Tail, resultCh chan<- LineResult, errCh chan<- error) {
	defer close(f.doneCh)
	defer close(resultCh)
	defer close(errCh)
	defer t.Cleanup()
	defer func() {
		if err := t.Stop(); err != nil {
			f.cfg.logger.Debug("tail stop", slog.String("error", err.Error()))
		}
	}()

	lineNo := 0
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-t.Lines:
			if !ok {
				if err := t.Err(); err != nil {
					sendError(ctx, errCh, &FollowError{Path: f.path, Err: err})
				}
				return
			}
			if line.Err != nil {
				sendError(ctx, errCh, &FollowError{Path: f.path, Err: line.Err})
				continue
			}
			lineNo++
			lr := f.scanner.Line(lineNo, line.Text, f.rules)
			select {
			case resultCh <- lr:
			case <-ctx.Done():
				return
			}
		}
	}
}

// sendError delivers err without blocking shutdown. Errors are dropped
// only when the buffer is full.
func sendError(ctx context.Context, errCh chan<- error, err error) {
	if err == nil {
		return
	}
	select {
	case errCh <- err:
	case <-ctx.Done():
	default:
	}
}
