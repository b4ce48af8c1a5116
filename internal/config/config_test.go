package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inderdeep-singh-zomato/memory-bank-mcp/internal/rules"
)

func validConfig() *Config {
	return &Config{
		ProjectDir: "/work/project",
		Modes:      []string{"code"},
		Storage:    Storage{Backend: BackendLocal},
		Journal:    Journal{Enabled: true, DataDir: "/data"},
		Log:        Log{Level: "info", Format: "json"},
	}
}

// --- Load ---

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("MEMORY_BANK_PROJECT_DIR", t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, rules.DefaultModes, cfg.Modes)
	assert.Equal(t, BackendLocal, cfg.Storage.Backend)
	assert.Equal(t, 22, cfg.Storage.SFTP.Port)
	assert.Equal(t, 30*time.Second, cfg.Storage.SFTP.Timeout)
	assert.Equal(t, 50*time.Millisecond, cfg.RulesDebounce)
	assert.True(t, cfg.Journal.Enabled)
	assert.Equal(t, filepath.Join(xdg.DataHome, AppName), cfg.Journal.DataDir)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Empty(t, cfg.InitialMode)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_ProjectConfigFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("MEMORY_BANK_PROJECT_DIR", dir)
	content := `
initial_mode: architect
modes: [architect, code]
storage:
  backend: sftp
  sftp:
    host: files.example.com
    user: deploy
    password: secret
    timeout: 5s
log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, AppName+".yaml"), []byte(content), 0o644))

	l := NewLoader("")
	cfg, err := l.Load()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, AppName+".yaml"), l.ConfigFileUsed())
	assert.Equal(t, "architect", cfg.InitialMode)
	assert.Equal(t, []string{"architect", "code"}, cfg.Modes)
	assert.Equal(t, BackendSFTP, cfg.Storage.Backend)
	assert.Equal(t, "files.example.com", cfg.Storage.SFTP.Host)
	assert.Equal(t, 5*time.Second, cfg.Storage.SFTP.Timeout)
	assert.Equal(t, 22, cfg.Storage.SFTP.Port)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.NoError(t, cfg.Validate())

	sc := cfg.SFTPConfig()
	assert.Equal(t, "deploy", sc.User)
	assert.Equal(t, "secret", sc.Password)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(file, []byte("initial_mode: ask\nlog:\n  level: warn\n"), 0o644))

	t.Setenv("MEMORY_BANK_PROJECT_DIR", dir)
	t.Setenv("MEMORY_BANK_INITIAL_MODE", "debug")
	t.Setenv("MEMORY_BANK_JOURNAL_ENABLED", "false")
	t.Setenv("MEMORY_BANK_MODES", "code,test")

	cfg, err := Load(file)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.InitialMode)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.False(t, cfg.Journal.Enabled)
	assert.Equal(t, []string{"code", "test"}, cfg.Modes)
}

func TestLoad_ExplicitFileMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "reading config")
}

func TestLoad_MalformedFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(file, []byte("modes: [unclosed\n"), 0o644))
	_, err := Load(file)
	assert.Error(t, err)
}

func TestLoad_ProjectDirMadeAbsolute(t *testing.T) {
	t.Setenv("MEMORY_BANK_PROJECT_DIR", ".")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(cfg.ProjectDir))
}

func TestBindFlags(t *testing.T) {
	t.Setenv("MEMORY_BANK_PROJECT_DIR", t.TempDir())
	t.Setenv("MEMORY_BANK_INITIAL_MODE", "ask")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("initial-mode", "", "")
	fs.String("log.level", "", "")
	require.NoError(t, fs.Parse([]string{"--initial-mode", "test", "--log.level", "debug"}))

	l := NewLoader("")
	require.NoError(t, l.BindFlags(fs))
	cfg, err := l.Load()
	require.NoError(t, err)
	assert.Equal(t, "test", cfg.InitialMode, "flags beat env")
	assert.Equal(t, "debug", cfg.Log.Level)
}

// --- Validate ---

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"no modes", func(c *Config) { c.Modes = nil }, "at least one mode"},
		{"bad mode", func(c *Config) { c.Modes = []string{"a/b"} }, "invalid mode name"},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "s3" }, "unknown backend"},
		{"sftp without host", func(c *Config) {
			c.Storage.Backend = BackendSFTP
			c.Storage.SFTP = SFTP{User: "u", Password: "p"}
		}, "host is required"},
		{"sftp without auth", func(c *Config) {
			c.Storage.Backend = BackendSFTP
			c.Storage.SFTP = SFTP{Host: "h", User: "u"}
		}, "password or key_file"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"journal without dir", func(c *Config) { c.Journal.DataDir = "" }, "journal.data_dir"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.errMsg)
		})
	}

	assert.NoError(t, validConfig().Validate())
}

// --- RuleRoots ---

func TestRuleRoots(t *testing.T) {
	cfg := validConfig()
	roots := cfg.RuleRoots()
	require.NotEmpty(t, roots)
	assert.Equal(t, "/work/project", roots[0])
	assert.Equal(t, os.TempDir(), roots[len(roots)-1])
}

func TestRuleRoots_Dedupes(t *testing.T) {
	cfg := validConfig()
	cfg.ProjectDir = os.TempDir()
	roots := cfg.RuleRoots()

	seen := map[string]int{}
	for _, r := range roots {
		seen[r]++
	}
	assert.Equal(t, 1, seen[os.TempDir()])
	assert.Equal(t, os.TempDir(), roots[0])
}
