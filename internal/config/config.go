// Package config provides configuration management for sitegraph using Viper
// for flexible configuration loading from files, environment variables, and
// command-line flags.
//
// The configuration system supports YAML files, environment variable overrides
// with the SITEGRAPH_ prefix, defaults and validation. It covers the project
// layout (source and output roots), the preview server, the watch debounce,
// the script target, publishing and logging.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/conneroisu/sitegraph/internal/paths"
)

// EnvPrefix is the prefix of every environment variable override.
const EnvPrefix = "SITEGRAPH"

type Config struct {
	Paths   paths.Roots   `yaml:"paths" mapstructure:"paths"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Watch   WatchConfig   `yaml:"watch" mapstructure:"watch"`
	Scripts ScriptsConfig `yaml:"scripts" mapstructure:"scripts"`
	Deploy  DeployConfig  `yaml:"deploy" mapstructure:"deploy"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

type ServerConfig struct {
	Host           string   `yaml:"host" mapstructure:"host"`
	Port           int      `yaml:"port" mapstructure:"port"`
	Open           bool     `yaml:"open" mapstructure:"open"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

type WatchConfig struct {
	Debounce time.Duration `yaml:"debounce" mapstructure:"debounce"`
	Ignore   []string      `yaml:"ignore" mapstructure:"ignore"`
}

type ScriptsConfig struct {
	Target string `yaml:"target" mapstructure:"target"`
}

type DeployConfig struct {
	Remote      string `yaml:"remote" mapstructure:"remote"`
	Branch      string `yaml:"branch" mapstructure:"branch"`
	Message     string `yaml:"message" mapstructure:"message"`
	AuthorName  string `yaml:"author_name" mapstructure:"author_name"`
	AuthorEmail string `yaml:"author_email" mapstructure:"author_email"`
}

type LogConfig struct {
	Level      string `yaml:"level" mapstructure:"level"`
	Format     string `yaml:"format" mapstructure:"format"`
	File       string `yaml:"file" mapstructure:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" mapstructure:"max_age_days"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Paths: paths.DefaultRoots(),
		Server: ServerConfig{
			Host: "localhost",
			Port: 3000,
		},
		Watch: WatchConfig{
			Debounce: 300 * time.Millisecond,
			Ignore:   []string{"**/.DS_Store", "**/*.tmp"},
		},
		Scripts: ScriptsConfig{
			Target: "es2015",
		},
		Deploy: DeployConfig{
			Remote:      "origin",
			Branch:      "gh-pages",
			Message:     "Update site",
			AuthorName:  "sitegraph",
			AuthorEmail: "sitegraph@localhost",
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// SetDefaults registers every default with v. Registering the keys also lets
// AutomaticEnv resolve SITEGRAPH_<SECTION>_<KEY> overrides during Unmarshal.
func SetDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("paths.templates", d.Paths.Templates)
	v.SetDefault("paths.scripts", d.Paths.Scripts)
	v.SetDefault("paths.styles", d.Paths.Styles)
	v.SetDefault("paths.style_entry", d.Paths.StyleEntry)
	v.SetDefault("paths.images", d.Paths.Images)
	v.SetDefault("paths.files", d.Paths.Files)
	v.SetDefault("paths.output", d.Paths.Output)
	v.SetDefault("paths.domain_marker", d.Paths.DomainMarker)

	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.open", d.Server.Open)

	v.SetDefault("watch.debounce", d.Watch.Debounce)
	v.SetDefault("watch.ignore", d.Watch.Ignore)

	v.SetDefault("scripts.target", d.Scripts.Target)

	v.SetDefault("deploy.remote", d.Deploy.Remote)
	v.SetDefault("deploy.branch", d.Deploy.Branch)
	v.SetDefault("deploy.message", d.Deploy.Message)
	v.SetDefault("deploy.author_name", d.Deploy.AuthorName)
	v.SetDefault("deploy.author_email", d.Deploy.AuthorEmail)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.max_age_days", d.Log.MaxAgeDays)
}

// Load reads the configuration from the global viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom unmarshals, defaults and validates the configuration held by v.
func LoadFrom(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("decoding configuration: %w", err)
	}

	// Handle slices set via viper (workaround for viper slice handling)
	if v.IsSet("server.allowed_origins") && len(config.Server.AllowedOrigins) == 0 {
		config.Server.AllowedOrigins = v.GetStringSlice("server.allowed_origins")
	}
	if v.IsSet("watch.ignore") && len(config.Watch.Ignore) == 0 {
		config.Watch.Ignore = v.GetStringSlice("watch.ignore")
	}

	// Normalize through the resolver so validation sees the same roots the
	// tasks will.
	config.Paths = paths.Resolve(config.Paths).Roots()

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// EnvKeyReplacer maps nested keys such as server.port to SERVER_PORT.
func EnvKeyReplacer() *strings.Replacer {
	return strings.NewReplacer(".", "_")
}
