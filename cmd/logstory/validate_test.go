package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunValidate(t *testing.T) {
	tests := []struct {
		name        string
		opts        validateOptions
		wantProblem bool
		contains    []string
	}{
		{
			name:     "valid rules",
			opts:     validateOptions{rulesFile: filepath.Join("testdata", "logtypes.yaml")},
			contains: []string{"logtypes.yaml: OK"},
		},
		{
			name: "valid samples",
			opts: validateOptions{
				rulesFile:  filepath.Join("testdata", "logtypes.yaml"),
				samplesDir: filepath.Join("testdata", "samples"),
			},
			contains: []string{
				"no samples: 1 log type(s)",
				"samples: 1 log type(s) tested, 0 failure(s), 0 overlap(s)",
				"logtypes.yaml: OK",
			},
		},
		{
			name: "sample failure",
			opts: validateOptions{
				rulesFile:  filepath.Join("testdata", "logtypes.yaml"),
				samplesDir: filepath.Join("testdata", "logs"),
			},
			wantProblem: true,
			contains: []string{
				"EPOCH:2: rule ts: 0: ",
				"samples: 2 log type(s) tested, 1 failure(s), 0 overlap(s)",
				"problems found",
			},
		},
		{
			name:        "invalid rules",
			opts:        validateOptions{rulesFile: filepath.Join("testdata", "invalid.yaml")},
			wantProblem: true,
			contains:    []string{"error: ", "BROKEN", "problems found"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			err := runValidate(context.Background(), tt.opts, &out)
			if tt.wantProblem {
				assert.ErrorIs(t, err, errProblems)
			} else {
				assert.NoError(t, err)
			}
			for _, s := range tt.contains {
				assert.Contains(t, out.String(), s)
			}
		})
	}
}

func TestRunValidate_JSON(t *testing.T) {
	var out bytes.Buffer
	err := runValidate(context.Background(), validateOptions{
		rulesFile:  filepath.Join("testdata", "logtypes.yaml"),
		samplesDir: filepath.Join("testdata", "logs"),
		jsonOut:    true,
	}, &out)
	require.ErrorIs(t, err, errProblems)

	var report validateReport
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))
	assert.False(t, report.Valid)
	assert.Empty(t, report.Errors)
	require.NotNil(t, report.Samples)
	assert.Equal(t, []string{"EPOCH", "SYSLOG"}, report.Samples.Tested)
	require.Len(t, report.Samples.Failures, 1)
	assert.Equal(t, "EPOCH", report.Samples.Failures[0].LogType)
	assert.Equal(t, 2, report.Samples.Failures[0].Line)
	assert.Equal(t, "0", report.Samples.Failures[0].Text)
}

func TestRunValidate_MissingFile(t *testing.T) {
	var out bytes.Buffer
	err := runValidate(context.Background(), validateOptions{
		rulesFile: filepath.Join("testdata", "nope.yaml"),
	}, &out)
	require.Error(t, err)
	assert.NotErrorIs(t, err, errProblems)
}

func TestFlattenErrors(t *testing.T) {
	assert.Equal(t, []string{}, flattenErrors(nil))
	assert.Equal(t, []string{"x"}, flattenErrors(errString("x")))
}

type errString string

func (e errString) Error() string { return string(e) }
