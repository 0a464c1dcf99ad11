package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunCLI_Help(t *testing.T) {
	var stderr bytes.Buffer
	require.NoError(t, runCLI([]string{"fetchbridge", "help"}, &bytes.Buffer{}, &stderr))
	assert.Contains(t, stderr.String(), "Commands:")
}

func TestRunCLI_InvalidCommand(t *testing.T) {
	for _, args := range [][]string{{"fetchbridge"}, {"fetchbridge", "unknown"}} {
		err := runCLI(args, &bytes.Buffer{}, &bytes.Buffer{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid command")
	}
}

func TestRunCLI_Schema(t *testing.T) {
	var stdout bytes.Buffer
	require.NoError(t, runCLI([]string{"fetchbridge", "schema"}, &stdout, &bytes.Buffer{}))
	assert.Contains(t, stdout.String(), "max_concurrent")
}

func TestRunCLI_GetRequiresTargets(t *testing.T) {
	err := runCLI([]string{"fetchbridge", "get"}, &bytes.Buffer{}, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestRunCLI_GetFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hello.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o600))

	var stdout bytes.Buffer
	err := runCLI([]string{"fetchbridge", "get", "-body", path}, &stdout, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Contains(t, stdout.String(), "ok")
	assert.Contains(t, stdout.String(), "hello")
}

func TestRunCLI_GetMissingFileFails(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.txt")

	var stdout bytes.Buffer
	err := runCLI([]string{"fetchbridge", "get", missing}, &stdout, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, stdout.String(), "NotFound")
}

func TestRunCLI_GetWithConfig(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "data.txt"), []byte("x"), 0o600))
	cfgPath := filepath.Join(dir, "fetch.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("files:\n  root: "+dir+"\n"), 0o600))

	var stdout bytes.Buffer
	err := runCLI([]string{"fetchbridge", "get", "-config", cfgPath, "data.txt"}, &stdout, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Contains(t, stdout.String(), "ok")
}

func TestRunCLI_GetBadConfig(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "fetch.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("dispatcher:\n  max_concurrent: 0\n"), 0o600))

	err := runCLI([]string{"fetchbridge", "get", "-config", cfgPath, "x"}, &bytes.Buffer{}, &bytes.Buffer{})
	assert.Error(t, err)
}
