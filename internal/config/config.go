// Package config loads service and CLI settings from an optional YAML file
// and NITRITE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/t77yq/nitrite-automation/internal/executor"
	"github.com/t77yq/nitrite-automation/internal/model"
	"github.com/t77yq/nitrite-automation/internal/security"
)

// EnvPrefix prefixes every environment override, e.g. NITRITE_DATA_DIR
const EnvPrefix = "NITRITE"

type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Data      DataConfig      `mapstructure:"data"`
	Security  SecurityConfig  `mapstructure:"security"`
	Executor  ExecutorConfig  `mapstructure:"executor"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Watch     WatchConfig     `mapstructure:"watch"`
	History   HistoryConfig   `mapstructure:"history"`
	NATS      NATSConfig      `mapstructure:"nats"`
	API       APIConfig       `mapstructure:"api"`
	Log       LogConfig       `mapstructure:"log"`
}

type AppConfig struct {
	Name string `mapstructure:"name"`
}

// DataConfig locates the on-disk state. Relative file names resolve
// against Dir.
type DataConfig struct {
	Dir          string `mapstructure:"dir"`
	ScriptsIndex string `mapstructure:"scripts_index"`
	TasksIndex   string `mapstructure:"tasks_index"`
	HistoryDB    string `mapstructure:"history_db"`
}

type SecurityConfig struct {
	MaxScriptSize int                    `mapstructure:"max_script_size"`
	AllowHighRisk bool                   `mapstructure:"allow_high_risk"`
	ExtraPatterns []security.PatternSpec `mapstructure:"extra_patterns"`
}

type ExecutorConfig struct {
	Timeout       time.Duration                          `mapstructure:"timeout"`
	MaxConcurrent int                                    `mapstructure:"max_concurrent"`
	Interpreters  map[model.Language]executor.Invocation `mapstructure:"interpreters"`
}

type SchedulerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Tick    string `mapstructure:"tick"`
}

type MetricsConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	SampleInterval time.Duration `mapstructure:"sample_interval"`
	RefreshEvery   time.Duration `mapstructure:"refresh_every"`
}

type WatchConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Debounce time.Duration `mapstructure:"debounce"`
}

// HistoryConfig controls pruning of the execution history. A zero
// retention keeps everything.
type HistoryConfig struct {
	Retention     time.Duration `mapstructure:"retention"`
	PruneInterval time.Duration `mapstructure:"prune_interval"`
}

type NATSConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	URL           string        `mapstructure:"url"`
	Stream        string        `mapstructure:"stream"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
}

type APIConfig struct {
	Listen          string        `mapstructure:"listen"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "NiTriTe_Scripts"
	}
	return filepath.Join(home, "NiTriTe_Scripts")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "nitrite-automation")

	v.SetDefault("data.dir", defaultDataDir())
	v.SetDefault("data.scripts_index", "scripts_index.json")
	v.SetDefault("data.tasks_index", "scheduled_tasks.json")
	v.SetDefault("data.history_db", "history.db")

	v.SetDefault("security.max_script_size", security.DefaultMaxSize)
	v.SetDefault("security.allow_high_risk", false)

	v.SetDefault("executor.timeout", executor.DefaultTimeout)
	v.SetDefault("executor.max_concurrent", 0)

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.tick", "0 * * * * *")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.sample_interval", 200*time.Millisecond)
	v.SetDefault("metrics.refresh_every", 30*time.Second)

	v.SetDefault("watch.enabled", true)
	v.SetDefault("watch.debounce", 200*time.Millisecond)

	v.SetDefault("history.retention", 30*24*time.Hour)
	v.SetDefault("history.prune_interval", 24*time.Hour)

	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.url", "nats://127.0.0.1:4222")
	v.SetDefault("nats.stream", "SCRIPTS")
	v.SetDefault("nats.max_reconnects", 10)
	v.SetDefault("nats.reconnect_wait", 2*time.Second)

	v.SetDefault("api.listen", "127.0.0.1:8080")
	v.SetDefault("api.shutdown_timeout", 10*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// Load reads configuration. An empty path searches ./config and the working
// directory for config.yaml; a missing file is not an error in that case.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Data.Dir = expandHome(cfg.Data.Dir)
	return &cfg, nil
}

// Validate rejects settings the components cannot start with
func (c *Config) Validate() error {
	if c.Data.Dir == "" {
		return errors.New("data.dir must be set")
	}
	if c.Executor.Timeout <= 0 {
		return fmt.Errorf("executor.timeout must be positive, got %s", c.Executor.Timeout)
	}
	if c.Executor.MaxConcurrent < 0 {
		return fmt.Errorf("executor.max_concurrent must not be negative, got %d", c.Executor.MaxConcurrent)
	}
	for lang := range c.Executor.Interpreters {
		if _, err := lang.Extension(); err != nil {
			return fmt.Errorf("executor.interpreters: %w", err)
		}
	}
	return nil
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

func (c *Config) resolve(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.Data.Dir, name)
}

// ScriptsIndexPath returns the absolute location of the script index
func (c *Config) ScriptsIndexPath() string {
	return c.resolve(c.Data.ScriptsIndex)
}

// TasksIndexPath returns the absolute location of the task index
func (c *Config) TasksIndexPath() string {
	return c.resolve(c.Data.TasksIndex)
}

// HistoryDBPath returns the absolute location of the history database
func (c *Config) HistoryDBPath() string {
	return c.resolve(c.Data.HistoryDB)
}

// ClassifierConfig converts the security section
func (c *Config) ClassifierConfig() security.Config {
	return security.Config{
		MaxSize:       c.Security.MaxScriptSize,
		ExtraPatterns: c.Security.ExtraPatterns,
	}
}

// EngineConfig converts the executor section
func (c *Config) EngineConfig() executor.Config {
	return executor.Config{
		Timeout:       c.Executor.Timeout,
		MaxConcurrent: c.Executor.MaxConcurrent,
		AllowHighRisk: c.Security.AllowHighRisk,
		Interpreters:  c.Executor.Interpreters,
	}
}
