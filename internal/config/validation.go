package config

import (
	"fmt"
	"path"
	"strings"

	"github.com/conneroisu/sitegraph/internal/logging"
	"github.com/conneroisu/sitegraph/internal/paths"
)

var dangerousChars = []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'"}

// validateConfig validates configuration values for security and correctness
func validateConfig(config *Config) error {
	if err := validatePaths(&config.Paths); err != nil {
		return fmt.Errorf("paths config: %w", err)
	}

	if err := validateServerConfig(&config.Server); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if config.Watch.Debounce < 0 {
		return fmt.Errorf("watch config: debounce must not be negative: %s", config.Watch.Debounce)
	}

	if err := validateScriptsConfig(&config.Scripts); err != nil {
		return fmt.Errorf("scripts config: %w", err)
	}

	if err := validateDeployConfig(&config.Deploy); err != nil {
		return fmt.Errorf("deploy config: %w", err)
	}

	if _, err := logging.ParseLevel(config.Log.Level); err != nil {
		return fmt.Errorf("log config: %w", err)
	}
	if config.Log.Format != "text" && config.Log.Format != "json" {
		return fmt.Errorf("log config: unknown format %q", config.Log.Format)
	}

	return nil
}

// validatePaths checks every root and keeps the output root apart from the
// project root and from every source root, since clean empties it.
func validatePaths(roots *paths.Roots) error {
	named := []struct {
		field string
		value string
	}{
		{"templates", roots.Templates},
		{"scripts", roots.Scripts},
		{"styles", roots.Styles},
		{"style_entry", roots.StyleEntry},
		{"images", roots.Images},
		{"files", roots.Files},
		{"output", roots.Output},
		{"domain_marker", roots.DomainMarker},
	}

	for _, n := range named {
		if err := validatePath(n.value); err != nil {
			return fmt.Errorf("invalid %s path '%s': %w", n.field, n.value, err)
		}
	}

	out := roots.Output
	if out == "." || out == "/" {
		return fmt.Errorf("output root must be a subdirectory of the project, got %q", out)
	}

	for _, src := range []string{roots.Templates, roots.Scripts, roots.Styles, roots.Images, roots.Files} {
		if src == "." || src == out || strings.HasPrefix(out, src+"/") || strings.HasPrefix(src, out+"/") {
			return fmt.Errorf("output root %q overlaps source root %q", out, src)
		}
	}

	return nil
}

// validatePath validates a file path for security
func validatePath(p string) error {
	if p == "" {
		return fmt.Errorf("empty path")
	}

	cleanPath := path.Clean(p)

	// Reject path traversal attempts
	if cleanPath == ".." || strings.HasPrefix(cleanPath, "../") {
		return fmt.Errorf("path contains traversal: %s", p)
	}

	if path.IsAbs(cleanPath) && cleanPath != "/" {
		return fmt.Errorf("path should be relative: %s", p)
	}

	for _, char := range dangerousChars {
		if strings.Contains(cleanPath, char) {
			return fmt.Errorf("path contains dangerous character: %s", char)
		}
	}

	return nil
}

// validateServerConfig validates server configuration values
func validateServerConfig(config *ServerConfig) error {
	// Allow 0 for system-assigned ports in testing
	if config.Port < 0 || config.Port > 65535 {
		return fmt.Errorf("port %d is not in valid range 0-65535", config.Port)
	}

	if config.Host != "" {
		for _, char := range append(dangerousChars, "\\") {
			if strings.Contains(config.Host, char) {
				return fmt.Errorf("host contains dangerous character: %s", char)
			}
		}
	}

	return nil
}

var scriptTargets = map[string]bool{
	"es5": true, "es2015": true, "es2016": true, "es2017": true, "es2018": true,
	"es2019": true, "es2020": true, "es2021": true, "es2022": true, "es2023": true,
	"es2024": true, "esnext": true,
}

func validateScriptsConfig(config *ScriptsConfig) error {
	if !scriptTargets[strings.ToLower(config.Target)] {
		return fmt.Errorf("unsupported script target %q", config.Target)
	}
	return nil
}

func validateDeployConfig(config *DeployConfig) error {
	if config.Branch == "" {
		return fmt.Errorf("branch must not be empty")
	}
	if strings.ContainsAny(config.Branch, " ~^:?*[\\") || strings.Contains(config.Branch, "..") {
		return fmt.Errorf("invalid branch name %q", config.Branch)
	}
	for _, char := range []string{";", "`", "$("} {
		if strings.Contains(config.Remote, char) {
			return fmt.Errorf("remote contains dangerous character: %s", char)
		}
	}
	return nil
}
