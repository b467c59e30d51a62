package hotreload

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/logstory/logstory-go/pkg/logstory/rules"
)

const ruleV1 = `A:
  timestamps:
    - name: epoch
      pattern: '(\d{10})'
      group: 1
      epoch: true
      base_time: true
`

const ruleV2 = ruleV1 + `B:
  timestamps:
    - name: epoch
      pattern: 'ts=(\d{10})'
      group: 1
      epoch: true
      base_time: true
`

func writeRules(t *testing.T, path, content string) {
	t.Helper()
	tmp := path + ".tmp"
	require.NoError(t, os.WriteFile(tmp, []byte(content), 0o600))
	require.NoError(t, os.Rename(tmp, path))
}

func TestNew_LoadsAndServes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	writeRules(t, path, ruleV1)

	r, err := New(path)
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, []string{"A"}, r.LogTypes())
	got, err := r.Rules(context.Background(), "A")
	require.NoError(t, err)
	assert.Equal(t, "epoch", got[0].Name)

	_, err = r.Rules(context.Background(), "B")
	assert.True(t, errors.Is(err, rules.ErrUnknownLogType))
}

func TestNew_Invalid(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "rules.yaml")
	writeRules(t, path, "A: [broken")
	_, err = New(path)
	assert.ErrorContains(t, err, "failed to parse YAML")
}

func TestReload_KeepsPreviousOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	writeRules(t, path, ruleV1)
	r, err := New(path)
	require.NoError(t, err)

	writeRules(t, path, "A: [broken")
	require.Error(t, r.Reload())
	assert.Equal(t, []string{"A"}, r.LogTypes())

	writeRules(t, path, ruleV2)
	require.NoError(t, r.Reload())
	assert.Equal(t, []string{"A", "B"}, r.LogTypes())
}

func TestWatch_ReloadsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	writeRules(t, path, ruleV1)

	reloaded := make(chan rules.RuleSet, 4)
	r, err := New(path,
		WithDebounce(20*time.Millisecond),
		WithOnReload(func(rs rules.RuleSet) { reloaded <- rs }),
	)
	require.NoError(t, err)
	<-reloaded // initial load

	errs, err := r.Watch(context.Background())
	require.NoError(t, err)

	writeRules(t, path, ruleV2)

	select {
	case rs := <-reloaded:
		assert.Len(t, rs, 2)
	case <-time.After(5 * time.Second):
		t.Fatal("rule file change was not picked up")
	}
	assert.Equal(t, []string{"A", "B"}, r.LogTypes())

	_, err = r.Watch(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyWatching)

	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
	for range errs {
	}

	_, err = r.Watch(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}
