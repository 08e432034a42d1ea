package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

type Config struct {
	DaemonPort         int    `mapstructure:"daemon_port"`
	DBPath             string `mapstructure:"db_path"`
	DefaultDestination string `mapstructure:"default_destination"`
	Remote             string `mapstructure:"remote"`
	RemoteFolder       string `mapstructure:"remote_folder"`
	UploadChunkMB      int    `mapstructure:"upload_chunk_mb"`
	UploadRetries      int    `mapstructure:"upload_retries"`
}

var Default = Config{
	DaemonPort:    9031,
	DBPath:        "packrat.db",
	Remote:        "gdrive",
	RemoteFolder:  "packrat",
	UploadChunkMB: 8,
	UploadRetries: 5,
}

// Dir returns ~/.packrat, creating it if needed. Credentials, tokens, the
// job database and logs all live under it.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home dir: %w", err)
	}

	dir := filepath.Join(home, ".packrat")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create config dir: %w", err)
	}

	return dir, nil
}

func Load() (*Config, error) {
	configDir, err := Dir()
	if err != nil {
		return nil, err
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)

	viper.SetDefault("daemon_port", Default.DaemonPort)
	viper.SetDefault("db_path", Default.DBPath)
	viper.SetDefault("default_destination", "")
	viper.SetDefault("remote", Default.Remote)
	viper.SetDefault("remote_folder", Default.RemoteFolder)
	viper.SetDefault("upload_chunk_mb", Default.UploadChunkMB)
	viper.SetDefault("upload_retries", Default.UploadRetries)

	viper.SetEnvPrefix("PACKRAT")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := errors.AsType[viper.ConfigFileNotFoundError](err); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if !filepath.IsAbs(cfg.DBPath) {
		cfg.DBPath = filepath.Join(configDir, cfg.DBPath)
	}

	if cfg.DefaultDestination == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home dir: %w", err)
		}
		cfg.DefaultDestination = filepath.Join(home, "Backups")
	}

	return &cfg, nil
}
