//go:build windows

package main

import (
	"fmt"
	"os"
)

// renameio has no Windows support; write to a sibling file and rename.
type atomicOutput struct {
	*os.File
	path string
}

func createAtomic(path string) (outputFile, error) {
	f, err := os.Create(path + ".tmp")
	if err != nil {
		return nil, fmt.Errorf("create output: %w", err)
	}
	return atomicOutput{File: f, path: path}, nil
}

func (o atomicOutput) Commit() error {
	if err := o.Close(); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	if err := os.Rename(o.Name(), o.path); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}

func (o atomicOutput) Abort() {
	o.Close()
	os.Remove(o.Name())
}
