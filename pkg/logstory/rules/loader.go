package rules

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	// MaxRuleFileSize is the maximum allowed size for a rule file (4MB).
	MaxRuleFileSize = 4 * 1024 * 1024

	// MaxPatternLength is the maximum allowed length for a rule pattern.
	MaxPatternLength = 1024

	// MaxRuleCount is the maximum number of rules per log type.
	MaxRuleCount = 1000
)

// sanitizePathError removes the path from os.PathError so loader errors
// can be shown to remote callers.
func sanitizePathError(err error) error {
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		return fmt.Errorf("%s: %w", pathErr.Op, pathErr.Err)
	}
	return err
}

// Load reads and decodes a rule file.
//
// Load only decodes; it does not compile patterns or check rule semantics.
// Call Validate (or logstory.ValidateRuleSet) for that. Non-regular files
// (FIFOs, devices) are rejected before reading.
func Load(path string) (RuleSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open rule file: %w", sanitizePathError(err))
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat rule file: %w", sanitizePathError(err))
	}
	if !info.Mode().IsRegular() {
		return nil, errors.New("rule file must be a regular file")
	}
	if info.Size() > MaxRuleFileSize {
		return nil, fmt.Errorf("rule file too large: %d bytes (max %d)", info.Size(), MaxRuleFileSize)
	}

	data, err := io.ReadAll(io.LimitReader(f, MaxRuleFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read rule file: %w", sanitizePathError(err))
	}
	return LoadBytes(data)
}

// LoadBytes decodes a rule file from memory.
func LoadBytes(data []byte) (RuleSet, error) {
	if len(data) == 0 {
		return nil, errors.New("rule file is empty")
	}
	if len(data) > MaxRuleFileSize {
		return nil, fmt.Errorf("rule file too large: %d bytes (max %d)", len(data), MaxRuleFileSize)
	}

	var rs RuleSet
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if len(rs) == 0 {
		return nil, errors.New("rule file defines no log types")
	}
	return rs, nil
}
