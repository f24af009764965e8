package cli

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func positionals() []string {
	return []string{"/opt/read_output", "/opt/harm_analysis", "template.sh", "harm.con", "16", "1", "24"}
}

func TestParse(t *testing.T) {
	out := &bytes.Buffer{}
	cfg, shouldExit, err := Parse(positionals(), out)
	require.NoError(t, err)
	require.False(t, shouldExit)

	assert.Equal(t, "/opt/read_output", cfg.ExtractExe)
	assert.Equal(t, "/opt/harm_analysis", cfg.AnalysisExe)
	assert.Equal(t, "template.sh", cfg.TemplatePath)
	assert.Equal(t, "harm.con", cfg.ConstantsFile)
	assert.Equal(t, 16, cfg.TaskCount)
	assert.Equal(t, 1, cfg.StartStack)
	assert.Equal(t, 24, cfg.EndStack)
	assert.Equal(t, ".", cfg.WorkDir)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestParse_Flags(t *testing.T) {
	args := append([]string{
		"-workdir", "/scratch/run1",
		"-log-level", "debug",
		"-log-format", "json",
		"-poll-interval", "30s",
		"-deadline", "2h",
		"-status-port", "8080",
		"-dry-run",
	}, positionals()...)

	cfg, _, err := Parse(args, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, "/scratch/run1", cfg.WorkDir)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 30*time.Second, cfg.PollInterval)
	assert.Equal(t, 2*time.Hour, cfg.Deadline)
	assert.Equal(t, 8080, cfg.StatusPort)
	assert.True(t, cfg.DryRun)
}

func TestParse_Help(t *testing.T) {
	_, shouldExit, err := Parse([]string{"-h"}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.True(t, shouldExit)
}

func TestParse_Errors(t *testing.T) {
	cases := []struct {
		name string
		args []string
		want string
	}{
		{"no arguments", nil, "expected 7 positional arguments, got 0"},
		{"too few", positionals()[:5], "expected 7 positional arguments, got 5"},
		{"bad task count", []string{"a", "b", "c", "d", "zero", "1", "2"}, "TASK_COUNT must be an integer"},
		{"zero tasks", []string{"a", "b", "c", "d", "0", "1", "2"}, "TASK_COUNT must be at least 1"},
		{"bad start stack", []string{"a", "b", "c", "d", "4", "x", "2"}, "START_STACK must be an integer"},
		{"stacks reversed", []string{"a", "b", "c", "d", "4", "9", "2"}, "start stack 9 is after end stack 2"},
		{"bad log level", append([]string{"-log-level", "loud"}, positionals()...), "invalid log-level"},
		{"bad log format", append([]string{"-log-format", "xml"}, positionals()...), "invalid log-format"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out := &bytes.Buffer{}
			_, _, err := Parse(tc.args, out)
			require.Error(t, err)
			exitErr, ok := err.(*ExitError)
			require.True(t, ok, "want *ExitError, got %T", err)
			assert.Equal(t, 2, exitErr.Code)
			assert.Contains(t, exitErr.Message, tc.want)
		})
	}
}

func TestParse_UsagePrintedOnWrongArity(t *testing.T) {
	out := &bytes.Buffer{}
	_, _, err := Parse(nil, out)
	require.Error(t, err)
	assert.Contains(t, out.String(), "Usage:")
	assert.Contains(t, out.String(), "TASK_COUNT")
}
