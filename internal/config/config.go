package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Workspace  WorkspaceConfig  `yaml:"workspace" mapstructure:"workspace"`
	Agents     AgentsConfig     `yaml:"agents" mapstructure:"agents"`
	Backfill   BackfillConfig   `yaml:"backfill" mapstructure:"backfill"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Salesforce SalesforceConfig `yaml:"salesforce" mapstructure:"salesforce"`
	Notion     NotionConfig     `yaml:"notion" mapstructure:"notion"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// WorkspaceConfig locates the per-account artifact directories.
type WorkspaceConfig struct {
	AccountsRoot string `yaml:"accounts_root" mapstructure:"accounts_root"`
}

// AgentsConfig configures how external generation agents are launched.
// Scripts maps an agent name to the script passed after Args.
type AgentsConfig struct {
	Command       string            `yaml:"command" mapstructure:"command"`
	Args          []string          `yaml:"args" mapstructure:"args"`
	Dir           string            `yaml:"dir" mapstructure:"dir"`
	Scripts       map[string]string `yaml:"scripts" mapstructure:"scripts"`
	SummaryLength int               `yaml:"summary_length" mapstructure:"summary_length"`
}

// BackfillConfig configures how backfill proposals are reviewed.
type BackfillConfig struct {
	ObjectType string `yaml:"object_type" mapstructure:"object_type"`
}

// StoreConfig configures the run ledger backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// SalesforceConfig holds Salesforce JWT credentials and validation toggles.
type SalesforceConfig struct {
	ClientID       string  `yaml:"client_id" mapstructure:"client_id"`
	Username       string  `yaml:"username" mapstructure:"username"`
	KeyPath        string  `yaml:"key_path" mapstructure:"key_path"`
	LoginURL       string  `yaml:"login_url" mapstructure:"login_url"`
	RateLimit      float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	ValidateFields bool    `yaml:"validate_fields" mapstructure:"validate_fields"`
	CheckDrift     bool    `yaml:"check_drift" mapstructure:"check_drift"`
}

// Enabled reports whether enough credentials are set to open a client.
func (c SalesforceConfig) Enabled() bool {
	return c.ClientID != "" && c.Username != "" && c.KeyPath != ""
}

// NotionConfig holds the Notion token and the database artifacts publish to.
type NotionConfig struct {
	Token      string  `yaml:"token" mapstructure:"token"`
	DatabaseID string  `yaml:"database_id" mapstructure:"database_id"`
	RateLimit  float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from config.yaml (optional) and environment
// variables prefixed with WORKBENCH_.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("WORKBENCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("workspace.accounts_root", "data/accounts")
	v.SetDefault("agents.command", "npx")
	v.SetDefault("agents.args", []string{"tsx"})
	v.SetDefault("agents.summary_length", 200)
	v.SetDefault("backfill.object_type", "Opportunity")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "workbench.db")
	v.SetDefault("salesforce.login_url", "https://login.salesforce.com")
	v.SetDefault("salesforce.rate_limit", 5)
	v.SetDefault("salesforce.validate_fields", true)
	v.SetDefault("salesforce.check_drift", false)
	v.SetDefault("notion.rate_limit", 3)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command mode depends on. Modes are
// "workbench" (artifact and agent commands), "notion" and "serve".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "workbench":
		errs = append(errs, c.validateWorkbench()...)
	case "notion":
		errs = append(errs, c.validateWorkbench()...)
		if c.Notion.Token == "" {
			errs = append(errs, "notion.token is required")
		}
		if c.Notion.DatabaseID == "" {
			errs = append(errs, "notion.database_id is required")
		}
	case "serve":
		errs = append(errs, c.validateWorkbench()...)
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateWorkbench() []string {
	var errs []string
	if c.Workspace.AccountsRoot == "" {
		errs = append(errs, "workspace.accounts_root is required")
	}
	if c.Agents.Command == "" {
		errs = append(errs, "agents.command is required")
	}
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, "store.driver must be sqlite or postgres")
	}
	if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required for postgres")
	}
	if c.Agents.SummaryLength < 0 {
		errs = append(errs, "agents.summary_length must be >= 0")
	}
	return errs
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
