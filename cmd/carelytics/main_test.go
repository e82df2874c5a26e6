package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCheckCommand(t *testing.T) {
	t.Chdir(t.TempDir())
	path := filepath.Join(t.TempDir(), "patients.json")
	t.Setenv("CARELYTICS_STORE_PATH", path)
	t.Setenv("CARELYTICS_LOG_LEVEL", "error")

	valid := `{"p1":{"name":"John","city":"Lisbon","age":30,"gender":"male","height":1.75,"weight":70}}`
	require.NoError(t, os.WriteFile(path, []byte(valid), 0o644))

	out, err := runCLI(t, "check")
	require.NoError(t, err)
	assert.Contains(t, out, "1 records, 0 invalid")

	broken := `{
  "p1": {"name":"John","city":"Lisbon","age":30,"gender":"male","height":1.75,"weight":70},
  "p2": {"name":"Old","city":"Porto","age":150,"gender":"male","height":1.7,"weight":60}
}`
	require.NoError(t, os.WriteFile(path, []byte(broken), 0o644))

	out, err = runCLI(t, "check")
	require.Error(t, err)
	assert.Contains(t, out, "p2: validation failed")
	assert.Contains(t, out, "2 records, 1 invalid")
}

func TestCheckCorruptStore(t *testing.T) {
	t.Chdir(t.TempDir())
	path := filepath.Join(t.TempDir(), "patients.json")
	t.Setenv("CARELYTICS_STORE_PATH", path)
	t.Setenv("CARELYTICS_LOG_LEVEL", "error")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := runCLI(t, "check")
	require.Error(t, err)
}

func TestUnknownDriver(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CARELYTICS_STORE_DRIVER", "sqlite")

	_, err := runCLI(t, "check")
	assert.ErrorContains(t, err, "unknown store.driver")
}
