//go:build !windows

package main

import (
	"fmt"

	"github.com/google/renameio"
)

type atomicOutput struct {
	*renameio.PendingFile
}

func createAtomic(path string) (outputFile, error) {
	f, err := renameio.TempFile("", path)
	if err != nil {
		return nil, fmt.Errorf("create output: %w", err)
	}
	return atomicOutput{f}, nil
}

func (o atomicOutput) Commit() error {
	if err := o.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}

func (o atomicOutput) Abort() {
	_ = o.Cleanup()
}
