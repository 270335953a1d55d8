package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadFrom(viper.New())
	require.NoError(t, err)

	d := Default()
	assert.Equal(t, d.Paths, cfg.Paths)
	assert.Equal(t, d.Watch, cfg.Watch)
	assert.Equal(t, d.Scripts, cfg.Scripts)
	assert.Equal(t, d.Deploy, cfg.Deploy)
	assert.Equal(t, d.Log, cfg.Log)
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.False(t, cfg.Server.Open)
	assert.Equal(t, "dist", cfg.Paths.Output)
	assert.Equal(t, 300*time.Millisecond, cfg.Watch.Debounce)
	assert.Equal(t, "gh-pages", cfg.Deploy.Branch)
}

func TestLoadGlobal(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	viper.Set("server.port", 8080)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, ".sitegraph.yml")
	content := `
paths:
  output: ./build/
  templates: pages
server:
  port: 4000
  open: true
watch:
  debounce: 1s
scripts:
  target: es2020
deploy:
  branch: pages
log:
  level: debug
  format: json
`
	require.NoError(t, os.WriteFile(file, []byte(content), 0o644))

	v := viper.New()
	v.SetConfigFile(file)
	require.NoError(t, v.ReadInConfig())

	cfg, err := LoadFrom(v)
	require.NoError(t, err)

	assert.Equal(t, "build", cfg.Paths.Output)
	assert.Equal(t, "pages", cfg.Paths.Templates)
	assert.Equal(t, "css", cfg.Paths.Styles)
	assert.Equal(t, 4000, cfg.Server.Port)
	assert.True(t, cfg.Server.Open)
	assert.Equal(t, time.Second, cfg.Watch.Debounce)
	assert.Equal(t, "es2020", cfg.Scripts.Target)
	assert.Equal(t, "pages", cfg.Deploy.Branch)
	assert.Equal(t, "origin", cfg.Deploy.Remote)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("SITEGRAPH_SERVER_PORT", "9090")
	t.Setenv("SITEGRAPH_PATHS_OUTPUT", "public_html")
	t.Setenv("SITEGRAPH_WATCH_DEBOUNCE", "50ms")

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(EnvKeyReplacer())
	v.AutomaticEnv()

	cfg, err := LoadFrom(v)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "public_html", cfg.Paths.Output)
	assert.Equal(t, 50*time.Millisecond, cfg.Watch.Debounce)
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value interface{}
	}{
		{"port out of range", "server.port", 70000},
		{"port not a number", "server.port", "invalid_port"},
		{"host injection", "server.host", "localhost;rm -rf /"},
		{"output is project root", "paths.output", "."},
		{"output is filesystem root", "paths.output", "/"},
		{"output equals source root", "paths.output", "public"},
		{"output inside source root", "paths.output", "views/out"},
		{"output traversal", "paths.output", "../site"},
		{"absolute source", "paths.styles", "/etc"},
		{"dangerous path", "paths.scripts", "js;ls"},
		{"negative debounce", "watch.debounce", "-1s"},
		{"unknown script target", "scripts.target", "es3"},
		{"empty branch", "deploy.branch", ""},
		{"bad branch", "deploy.branch", "gh pages"},
		{"bad log level", "log.level", "verbose"},
		{"bad log format", "log.format", "xml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := viper.New()
			v.Set(tt.key, tt.value)

			cfg, err := LoadFrom(v)
			assert.Error(t, err)
			assert.Nil(t, cfg)
		})
	}
}

func TestValidatePath(t *testing.T) {
	tests := []struct {
		path    string
		wantErr bool
	}{
		{"dist", false},
		{"site/build", false},
		{"..", true},
		{"../x", true},
		{"a/../../x", true},
		{"a$b", true},
		{"", true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			err := validatePath(tt.path)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
