package logstory

import "errors"

var (
	// ErrNoLines is returned by a LineSource that has no content for a log
	// type. The Engine turns it into an empty scan.
	ErrNoLines = errors.New("no lines available")

	// ErrFollowerClosed is returned when Follow is called on a closed Follower.
	ErrFollowerClosed = errors.New("follower closed")

	// ErrAlreadyFollowing is returned when Follow is called twice.
	ErrAlreadyFollowing = errors.New("follow already called")

	errPatternTooLong = errors.New("pattern exceeds maximum length")
)
