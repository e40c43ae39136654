package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExitCode(t *testing.T) {
	assert.Equal(t, ExitOK, exitCode(nil))
	assert.Equal(t, ExitCanceled, exitCode(context.Canceled))
	assert.Equal(t, ExitCanceled, exitCode(fmt.Errorf("sync: %w", context.Canceled)))
	assert.Equal(t, ExitFailure, exitCode(errors.New("boom")))
	assert.Equal(t, ExitFailure, exitCode(context.DeadlineExceeded))
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestRecoverRejectsBadID(t *testing.T) {
	path := writeConfig(t, "db:\n  driver: memory\n")
	e := &env{}
	root := newRootCmd(e)
	root.SetArgs([]string{"--config", path, "recover", "abc"})
	err := root.ExecuteContext(context.Background())
	require.ErrorContains(t, err, "invalid program id")
}

func TestRecoverUnknownProgram(t *testing.T) {
	path := writeConfig(t, "db:\n  driver: memory\n")
	e := &env{}
	root := newRootCmd(e)
	root.SetArgs([]string{"--config", path, "recover", "42"})
	err := root.ExecuteContext(context.Background())
	require.ErrorContains(t, err, "not found")
	assert.Equal(t, ExitFailure, exitCode(err))
}

func TestInvalidConfigFails(t *testing.T) {
	path := writeConfig(t, "db:\n  driver: sqlite\n")
	root := newRootCmd(&env{})
	root.SetArgs([]string{"--config", path, "recover", "1"})
	require.ErrorContains(t, root.ExecuteContext(context.Background()), "db.driver")
}

func TestExecuteReportsCanceledRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	path := writeConfig(t, "db:\n  driver: memory\n")
	args := os.Args
	t.Cleanup(func() { os.Args = args })
	os.Args = []string{"radiko-archiver", "--config", path, "run"}
	assert.Equal(t, ExitCanceled, Execute(ctx))
}
