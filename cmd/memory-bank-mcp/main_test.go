package main

import (
	"bytes"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inderdeep-singh-zomato/memory-bank-mcp/internal/rules"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "memory-bank-mcp dev\n", out)
}

func TestModesCmd_CreateMissing(t *testing.T) {
	dir := t.TempDir()
	out, err := execute(t, "modes", "--create-missing",
		"--project-dir", dir, "--modes", "code,ask", "--log.level", "error")
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(dir, rules.Filename("code")))
	assert.FileExists(t, filepath.Join(dir, rules.Filename("ask")))
	assert.Contains(t, out, "created .clinerules-code")
	assert.Regexp(t, `code\s+loaded\s+yes\s+architect,test,debug,ask\s+`+regexp.QuoteMeta(filepath.Join(dir, ".clinerules-code")), out)
	assert.Regexp(t, `ask\s+loaded`, out)
}

func TestModesCmd_NothingLoaded(t *testing.T) {
	out, err := execute(t, "modes",
		"--project-dir", t.TempDir(), "--modes", "zz-unknown-mode", "--log.level", "error")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--create-missing")
	assert.Regexp(t, `zz-unknown-mode\s+missing`, out)
}

func TestModesCmd_InvalidConfig(t *testing.T) {
	_, err := execute(t, "modes", "--project-dir", t.TempDir(), "--storage.backend", "s3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestServeCmd_RejectsArgs(t *testing.T) {
	_, err := execute(t, "serve", "extra")
	assert.Error(t, err)
}
