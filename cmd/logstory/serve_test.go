package main

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mixedRules = `SYSLOG:
  timestamps:
    - name: epoch
      pattern: 'ts=(\d+)'
      group: 1
      epoch: true
      base_time: true
    - name: lookbehind
      pattern: '(?<=at=)(\d+)'
      group: 1
      epoch: true
EVENTS:
  events:
    - name: login
      pattern: 'accepted'
`

func TestLoadRules_ToleratesBadRules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logtypes.yaml")
	require.NoError(t, os.WriteFile(path, []byte(mixedRules), 0o644))

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	rc, err := loadRules(path, logger)
	require.NoError(t, err)
	defer rc.Close()

	assert.Equal(t, []string{"EVENTS", "SYSLOG"}, rc.LogTypes())
	list, err := rc.Rules(context.Background(), "SYSLOG")
	require.NoError(t, err)
	assert.Len(t, list, 2)

	assert.Contains(t, logs.String(), "invalid rule")
	assert.Contains(t, logs.String(), "lookbehind")
	assert.NotContains(t, logs.String(), "EVENTS")
	assert.NotContains(t, logs.String(), "rules reloaded", "reloads are logged by the watcher only")
}

func TestLoadRules_RejectsUndecodableFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logtypes.yaml")
	require.NoError(t, os.WriteFile(path, []byte("SYSLOG: [broken"), 0o644))

	_, err := loadRules(path, slog.Default())
	assert.ErrorContains(t, err, "failed to parse YAML")
}
