package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the application configuration loaded from files and environment variables.
type Config struct {
	AppName  string `mapstructure:"app_name"`
	Env      string `mapstructure:"app_env"`
	LogLevel string `mapstructure:"log_level"`

	// ClearBooks account. CB_USER and CB_PASSWORD are read here and nowhere else.
	CBUser             string        `mapstructure:"cb_user"`
	CBPassword         string        `mapstructure:"cb_password"`
	CBBaseURL          string        `mapstructure:"cb_base_url"`
	CBCompany          string        `mapstructure:"cb_company"`
	HTTPTimeoutSeconds int64         `mapstructure:"http_timeout"`
	HTTPTimeout        time.Duration `mapstructure:"-"`
	TimesheetStepDays  int64         `mapstructure:"timesheet_step_days"`
	TimesheetStep      time.Duration `mapstructure:"-"`

	ExportsFile           string        `mapstructure:"exports_file"`
	PublishersFile        string        `mapstructure:"publishers_file"`
	ExportIntervalSeconds int64         `mapstructure:"export_interval"`
	ExportInterval        time.Duration `mapstructure:"-"`

	StorageType            string        `mapstructure:"storage_type"`
	BBoltPath              string        `mapstructure:"bbolt_path"`
	StorageTTLSeconds      int64         `mapstructure:"storage_ttl_seconds"`
	StorageCleanupSeconds  int64         `mapstructure:"storage_cleanup_interval_seconds"`
	StorageTTL             time.Duration `mapstructure:"-"`
	StorageCleanupInterval time.Duration `mapstructure:"-"`
}

// Load reads configuration from environment variables and configs/.env.
func Load() (*Config, error) {
	return LoadWithEnvFile("configs/.env")
}

// LoadWithEnvFile is Load with an explicit dotenv file. A missing file is not an error.
func LoadWithEnvFile(envFile string) (*Config, error) {
	if envFile != "" {
		_ = godotenv.Load(envFile)
	}

	v := viper.New()

	v.SetDefault("app_name", "clearbooks-exporter")
	v.SetDefault("app_env", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("cb_user", "")
	v.SetDefault("cb_password", "")
	v.SetDefault("cb_base_url", "https://secure.clearbooks.co.uk/")
	v.SetDefault("cb_company", "springboardproltd")
	v.SetDefault("http_timeout", 20) // seconds
	v.SetDefault("timesheet_step_days", 365)
	v.SetDefault("exports_file", "./configs/exports.yaml")
	v.SetDefault("publishers_file", "./configs/publishers.yaml")
	v.SetDefault("export_interval", 0) // seconds, 0 runs once
	v.SetDefault("storage_type", "bbolt")
	v.SetDefault("bbolt_path", "./data/exported.db")
	v.SetDefault("storage_ttl_seconds", int64((400*24*time.Hour)/time.Second))
	v.SetDefault("storage_cleanup_interval_seconds", int64((24*time.Hour)/time.Second))

	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.HTTPTimeoutSeconds <= 0 {
		return nil, fmt.Errorf("invalid http_timeout (must be positive seconds)")
	}
	cfg.HTTPTimeout = time.Duration(cfg.HTTPTimeoutSeconds) * time.Second

	if cfg.TimesheetStepDays <= 0 {
		return nil, fmt.Errorf("invalid timesheet_step_days (must be positive days)")
	}
	cfg.TimesheetStep = time.Duration(cfg.TimesheetStepDays) * 24 * time.Hour

	if cfg.ExportIntervalSeconds < 0 {
		return nil, fmt.Errorf("invalid export_interval (must be zero or positive seconds)")
	}
	cfg.ExportInterval = time.Duration(cfg.ExportIntervalSeconds) * time.Second

	if cfg.StorageTTLSeconds <= 0 {
		return nil, fmt.Errorf("invalid storage_ttl_seconds (must be positive seconds)")
	}
	if cfg.StorageCleanupSeconds <= 0 {
		return nil, fmt.Errorf("invalid storage_cleanup_interval_seconds (must be positive seconds)")
	}
	cfg.StorageTTL = time.Duration(cfg.StorageTTLSeconds) * time.Second
	cfg.StorageCleanupInterval = time.Duration(cfg.StorageCleanupSeconds) * time.Second

	return &cfg, nil
}

// Redacted returns a copy that is safe to log.
func (c Config) Redacted() Config {
	if c.CBPassword != "" {
		c.CBPassword = "***"
	}
	return c
}
