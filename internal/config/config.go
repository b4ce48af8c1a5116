// Package config loads the server configuration from defaults, an
// optional YAML file, MEMORY_BANK_* environment variables and CLI flags,
// in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/inderdeep-singh-zomato/memory-bank-mcp/internal/rules"
	"github.com/inderdeep-singh-zomato/memory-bank-mcp/internal/storage"
)

const (
	// AppName names the config file, the config and data directories.
	AppName = "memory-bank-mcp"
	// EnvPrefix prefixes every environment variable.
	EnvPrefix = "MEMORY_BANK"

	BackendLocal = "local"
	BackendSFTP  = "sftp"
)

// Config is the complete server configuration.
type Config struct {
	ProjectDir     string        `mapstructure:"project_dir"`
	MemoryBankPath string        `mapstructure:"memory_bank_path"`
	InitialMode    string        `mapstructure:"initial_mode"`
	Modes          []string      `mapstructure:"modes"`
	RulesDebounce  time.Duration `mapstructure:"rules_debounce"`
	Storage        Storage       `mapstructure:"storage"`
	Journal        Journal       `mapstructure:"journal"`
	Log            Log           `mapstructure:"log"`
}

// Storage selects and configures the memory bank backend.
type Storage struct {
	Backend string `mapstructure:"backend"`
	SFTP    SFTP   `mapstructure:"sftp"`
}

// SFTP holds the remote connection settings.
type SFTP struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	User           string        `mapstructure:"user"`
	Password       string        `mapstructure:"password"`
	KeyFile        string        `mapstructure:"key_file"`
	BasePath       string        `mapstructure:"base_path"`
	KnownHostsFile string        `mapstructure:"known_hosts_file"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

// Journal configures the SQLite mode journal.
type Journal struct {
	Enabled bool   `mapstructure:"enabled"`
	DataDir string `mapstructure:"data_dir"`
}

// Log configures the zap logger.
type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Loader wraps a viper instance with the server's defaults and sources.
type Loader struct {
	v          *viper.Viper
	configFile string
}

// NewLoader returns a loader with defaults and environment binding set up.
// configFile, when non-empty, must exist.
func NewLoader(configFile string) *Loader {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	return &Loader{v: v, configFile: configFile}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("project_dir", "")
	v.SetDefault("memory_bank_path", "")
	v.SetDefault("initial_mode", "")
	v.SetDefault("modes", rules.DefaultModes)
	v.SetDefault("rules_debounce", 50*time.Millisecond)

	v.SetDefault("storage.backend", BackendLocal)
	v.SetDefault("storage.sftp.host", "")
	v.SetDefault("storage.sftp.port", 22)
	v.SetDefault("storage.sftp.user", "")
	v.SetDefault("storage.sftp.password", "")
	v.SetDefault("storage.sftp.key_file", "")
	v.SetDefault("storage.sftp.base_path", "")
	v.SetDefault("storage.sftp.known_hosts_file", "")
	v.SetDefault("storage.sftp.timeout", 30*time.Second)

	v.SetDefault("journal.enabled", true)
	v.SetDefault("journal.data_dir", filepath.Join(xdg.DataHome, AppName))

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// BindFlags binds command-line flags. Flag names use dashes; each is bound
// to the key with dashes replaced by underscores, so --project-dir sets
// project_dir and --storage.backend sets storage.backend.
func (l *Loader) BindFlags(fs *pflag.FlagSet) error {
	var errs []error
	fs.VisitAll(func(f *pflag.Flag) {
		key := strings.ReplaceAll(f.Name, "-", "_")
		if err := l.v.BindPFlag(key, f); err != nil {
			errs = append(errs, fmt.Errorf("binding flag %s: %w", f.Name, err))
		}
	})
	return errors.Join(errs...)
}

// Load reads the config file, if any, and decodes the merged result.
func (l *Loader) Load() (*Config, error) {
	if l.configFile != "" {
		l.v.SetConfigFile(l.configFile)
	} else {
		l.v.SetConfigName(AppName)
		l.v.SetConfigType("yaml")
		if dir := l.v.GetString("project_dir"); dir != "" {
			l.v.AddConfigPath(dir)
		}
		l.v.AddConfigPath(".")
		l.v.AddConfigPath(filepath.Join(xdg.ConfigHome, AppName))
	}

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if l.configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if cfg.ProjectDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolving working directory: %w", err)
		}
		cfg.ProjectDir = wd
	}
	if abs, err := filepath.Abs(cfg.ProjectDir); err == nil {
		cfg.ProjectDir = abs
	}

	return &cfg, nil
}

// ConfigFileUsed returns the path of the config file that was read.
func (l *Loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// Load is a shortcut for NewLoader(configFile).Load().
func Load(configFile string) (*Config, error) {
	return NewLoader(configFile).Load()
}

// Validate reports configuration errors.
func (c *Config) Validate() error {
	var errs []error

	if len(c.Modes) == 0 {
		errs = append(errs, errors.New("modes: at least one mode is required"))
	}
	for _, m := range c.Modes {
		if strings.TrimSpace(m) == "" || strings.ContainsAny(m, `/\`) {
			errs = append(errs, fmt.Errorf("modes: invalid mode name %q", m))
		}
	}

	switch c.Storage.Backend {
	case BackendLocal:
	case BackendSFTP:
		if c.Storage.SFTP.Host == "" {
			errs = append(errs, errors.New("storage.sftp.host is required for the sftp backend"))
		}
		if c.Storage.SFTP.User == "" {
			errs = append(errs, errors.New("storage.sftp.user is required for the sftp backend"))
		}
		if c.Storage.SFTP.Password == "" && c.Storage.SFTP.KeyFile == "" {
			errs = append(errs, errors.New("storage.sftp needs a password or key_file"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.backend: unknown backend %q (want %s or %s)", c.Storage.Backend, BackendLocal, BackendSFTP))
	}

	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log.format: unknown format %q (want json or console)", c.Log.Format))
	}

	if c.Journal.Enabled && c.Journal.DataDir == "" {
		errs = append(errs, errors.New("journal.data_dir is required when the journal is enabled"))
	}

	return errors.Join(errs...)
}

// RuleRoots returns the ordered candidate directories for rule files: the
// project directory, the home directory, then the temp directory.
func (c *Config) RuleRoots() []string {
	candidates := []string{c.ProjectDir, xdg.Home, os.TempDir()}
	seen := make(map[string]bool, len(candidates))
	roots := make([]string, 0, len(candidates))
	for _, r := range candidates {
		if r == "" || seen[r] {
			continue
		}
		seen[r] = true
		roots = append(roots, r)
	}
	return roots
}

// SFTPConfig converts the SFTP section for the storage layer.
func (c *Config) SFTPConfig() storage.SFTPConfig {
	s := c.Storage.SFTP
	return storage.SFTPConfig{
		Host:           s.Host,
		Port:           s.Port,
		User:           s.User,
		Password:       s.Password,
		KeyFile:        s.KeyFile,
		BasePath:       s.BasePath,
		KnownHostsFile: s.KnownHostsFile,
		Timeout:        s.Timeout,
	}
}
