package main

import "io"

// outputFile is a destination that only becomes visible on Commit.
type outputFile interface {
	io.Writer
	Commit() error
	Abort()
}

// stdoutOutput writes straight through.
type stdoutOutput struct{ io.Writer }

func (stdoutOutput) Commit() error { return nil }
func (stdoutOutput) Abort()        {}

// openOutput returns stdout for an empty path or "-", otherwise a file that
// replaces path atomically on Commit.
func openOutput(path string, stdout io.Writer) (outputFile, error) {
	if path == "" || path == "-" {
		return stdoutOutput{stdout}, nil
	}
	return createAtomic(path)
}
