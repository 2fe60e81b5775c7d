package pensee

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/pensee/internal/store"
)

// Config configures the pensee service.
type Config struct {
	// StorageDir is the root directory for per-project session files.
	StorageDir string `yaml:"storage_dir"`

	// DefaultProject is the project used when a request carries no
	// project_id.
	DefaultProject string `yaml:"default_project"`

	// LockTimeout bounds the wait for a project's session lock.
	LockTimeout time.Duration `yaml:"lock_timeout"`

	// LockPoll is the retry interval while waiting for the lock.
	LockPoll time.Duration `yaml:"lock_poll"`

	// Backups is the per-project backup retention count.
	Backups int `yaml:"backups"`
}

func (c *Config) defaults() {
	if c.StorageDir == "" {
		c.StorageDir = "data"
	}
	if c.DefaultProject == "" {
		c.DefaultProject = store.DefaultProjectID
	}
	if c.LockTimeout <= 0 {
		c.LockTimeout = 5 * time.Second
	}
	if c.LockPoll <= 0 {
		c.LockPoll = 50 * time.Millisecond
	}
	if c.Backups <= 0 {
		c.Backups = 5
	}
}

func defaultConfig() *Config {
	cfg := &Config{}
	cfg.defaults()
	return cfg
}

// LoadConfigFile reads a YAML config file.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.defaults()
	return cfg, nil
}

func (c *Config) storeConfig() store.Config {
	return store.Config{
		LockTimeout: c.LockTimeout,
		LockPoll:    c.LockPoll,
		Backups:     c.Backups,
	}
}
