// This file defines the configuration structure for the application.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/eHtmlu/peak-publisher/internal/artifacts"
	"github.com/eHtmlu/peak-publisher/internal/models"
)

// Config holds all configuration settings for the application.
// It maps directly to the structure of config.yml.
type Config struct {
	Port      int    `mapstructure:"port"`
	PublicURL string `mapstructure:"public_url"`
	Database  struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"database"`
	Storage struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"storage"`
	Uploads struct {
		Path      string `mapstructure:"path"`
		TTLHours  int    `mapstructure:"ttl_hours"`
		MaxSizeMB int64  `mapstructure:"max_size_mb"`
	} `mapstructure:"uploads"`
	Ingest Ingest `mapstructure:"ingest"`
	Log    struct {
		Level       string `mapstructure:"level"`
		Development bool   `mapstructure:"development"`
	} `mapstructure:"log"`
}

// Ingest holds the options that shape how uploads are analyzed.
type Ingest struct {
	AutoAddTopLevelFolder        bool     `mapstructure:"auto_add_top_level_folder"`
	AutoRemoveWorkspaceArtifacts bool     `mapstructure:"auto_remove_workspace_artifacts"`
	ArtifactPatterns             []string `mapstructure:"artifact_patterns"`
	ManifestMaxDepth             int      `mapstructure:"manifest_max_depth"`
}

// Settings returns the snapshot recorded with every upload.
func (i Ingest) Settings() models.IngestSettings {
	return models.IngestSettings{
		AutoAddTopLevelFolder:        i.AutoAddTopLevelFolder,
		AutoRemoveWorkspaceArtifacts: i.AutoRemoveWorkspaceArtifacts,
		ArtifactPatterns:             append([]string(nil), i.ArtifactPatterns...),
	}
}

// UploadTTL is how long an abandoned upload session is kept.
func (c *Config) UploadTTL() time.Duration {
	return time.Duration(c.Uploads.TTLHours) * time.Hour
}

// MaxUploadBytes is the multipart upload limit.
func (c *Config) MaxUploadBytes() int64 {
	return c.Uploads.MaxSizeMB << 20
}

// Default returns the built-in configuration. Neither config.yml nor the
// environment is consulted.
func Default() *Config {
	cfg, err := load(viper.New(), "", false)
	if err != nil {
		panic(fmt.Sprintf("config: invalid built-in defaults: %v", err))
	}
	return cfg
}

// Load reads configuration from a file named "config.yml" in the
// current directory and unmarshals it into a Config struct.
func Load() (*Config, error) {
	return LoadFrom(".")
}

// LoadFrom is Load with an explicit directory to look for config.yml in.
func LoadFrom(dir string) (*Config, error) {
	return load(viper.New(), dir, true)
}

func load(v *viper.Viper, dir string, env bool) (*Config, error) {
	if dir != "" {
		v.SetConfigName("config")
		v.SetConfigType("yml")
		v.AddConfigPath(dir)
	}

	if env {
		// PUBLISHER_DATABASE_PATH overrides `database.path`, and so on.
		v.SetEnvPrefix("PUBLISHER")
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		v.AutomaticEnv()
	}

	v.SetDefault("port", 8080)
	v.SetDefault("public_url", "")
	v.SetDefault("database.path", "./publisher.db")
	v.SetDefault("storage.path", "./data")
	v.SetDefault("uploads.path", filepath.Join(".", "data", "tmp-uploads"))
	v.SetDefault("uploads.ttl_hours", 24)
	v.SetDefault("uploads.max_size_mb", 100)
	v.SetDefault("ingest.auto_add_top_level_folder", true)
	v.SetDefault("ingest.auto_remove_workspace_artifacts", true)
	v.SetDefault("ingest.artifact_patterns", artifacts.DefaultPatterns)
	v.SetDefault("ingest.manifest_max_depth", 0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	if dir != "" {
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				// Config file was found but another error was produced
				return nil, err
			}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}
	config.Ingest.ArtifactPatterns = artifacts.SanitizePatterns(config.Ingest.ArtifactPatterns)
	config.PublicURL = strings.TrimRight(config.PublicURL, "/")
	if config.Ingest.ManifestMaxDepth < 0 {
		config.Ingest.ManifestMaxDepth = 0
	}

	return &config, nil
}
