package errors

import (
	"fmt"
	"strings"
)

// ErrorSuggestion represents a suggestion for fixing an error
type ErrorSuggestion struct {
	Title       string
	Description string
	Command     string
	Example     string
}

// ServerStartError generates suggestions for preview server startup failures
func ServerStartError(err error, port int) []ErrorSuggestion {
	suggestions := []ErrorSuggestion{}

	errStr := err.Error()

	if strings.Contains(errStr, "address already in use") || strings.Contains(errStr, "bind") {
		suggestions = append(suggestions, ErrorSuggestion{
			Title:       "Port already in use",
			Description: fmt.Sprintf("Port %d is already being used by another process", port),
			Command:     fmt.Sprintf("lsof -i :%d", port),
		})

		suggestions = append(suggestions, ErrorSuggestion{
			Title:       "Use a different port",
			Description: "Start the preview server on a different port",
			Command:     fmt.Sprintf("sitegraph serve --port %d", port+1),
		})
	}

	if strings.Contains(errStr, "permission denied") && port < 1024 {
		suggestions = append(suggestions, ErrorSuggestion{
			Title:       "Use unprivileged port",
			Description: "Ports below 1024 require root privileges",
			Command:     "sitegraph serve --port 3000",
		})
	}

	return suggestions
}

// ConfigurationError generates suggestions for configuration issues
func ConfigurationError(configError string, configPath string) []ErrorSuggestion {
	suggestions := []ErrorSuggestion{
		{
			Title:       "Check configuration file",
			Description: "Verify " + configPath + " exists and has valid syntax",
			Command:     "cat " + configPath,
		},
		{
			Title:       "Show effective configuration",
			Description: "Print the configuration sitegraph resolved from files, env and flags",
			Command:     "sitegraph config",
		},
	}

	if strings.Contains(configError, "yaml") || strings.Contains(configError, "decoding") {
		suggestions = append(suggestions, ErrorSuggestion{
			Title:       "Fix YAML syntax",
			Description: "There's a syntax or type error in your YAML configuration",
			Example:     "Use proper indentation and avoid tabs",
		})
	}

	if strings.Contains(configError, "path") || strings.Contains(configError, "output") {
		suggestions = append(suggestions, ErrorSuggestion{
			Title:       "Check directory paths",
			Description: "Paths must be relative, inside the project, and the output root must differ from every source root",
			Example:     "paths:\n  output: dist",
		})
	}

	return suggestions
}

// DeployError generates suggestions for publish failures
func DeployError(err error, remote, branch string) []ErrorSuggestion {
	errStr := err.Error()
	suggestions := []ErrorSuggestion{}

	if strings.Contains(errStr, "authentication") || strings.Contains(errStr, "authorization") {
		suggestions = append(suggestions, ErrorSuggestion{
			Title:       "Provide credentials",
			Description: "HTTPS remotes need a token",
			Example:     "export SITEGRAPH_DEPLOY_TOKEN=<token>",
		})
	}

	if strings.Contains(errStr, "remote") || remote == "" {
		suggestions = append(suggestions, ErrorSuggestion{
			Title:       "Check the deploy remote",
			Description: "Configure deploy.remote or add an origin remote to the project repository",
			Command:     "git remote -v",
		})
	}

	if strings.Contains(errStr, "non-fast-forward") {
		suggestions = append(suggestions, ErrorSuggestion{
			Title:       "Branch moved",
			Description: fmt.Sprintf("Someone else pushed to %s; run deploy again", branch),
		})
	}

	return suggestions
}

// FormatSuggestions formats suggestions into a user-friendly string
func FormatSuggestions(title string, suggestions []ErrorSuggestion) string {
	if len(suggestions) == 0 {
		return title
	}

	var output strings.Builder
	output.WriteString(title + "\n\n")
	output.WriteString("Suggestions:\n")

	for i, suggestion := range suggestions {
		output.WriteString(fmt.Sprintf("  %d. %s\n", i+1, suggestion.Title))
		if suggestion.Description != "" {
			output.WriteString(fmt.Sprintf("     %s\n", suggestion.Description))
		}
		if suggestion.Command != "" {
			output.WriteString(fmt.Sprintf("     Run: %s\n", suggestion.Command))
		}
		if suggestion.Example != "" {
			output.WriteString(fmt.Sprintf("     Example: %s\n", suggestion.Example))
		}
		output.WriteString("\n")
	}

	return output.String()
}

// EnhancedError wraps an error with suggestions
type EnhancedError struct {
	OriginalError error
	Title         string
	Suggestions   []ErrorSuggestion
}

// Error implements the error interface
func (e *EnhancedError) Error() string {
	title := e.Title
	if e.OriginalError != nil {
		title += ": " + e.OriginalError.Error()
	}
	return FormatSuggestions(title, e.Suggestions)
}

// Unwrap returns the original error
func (e *EnhancedError) Unwrap() error {
	return e.OriginalError
}

// NewEnhancedError creates a new enhanced error with suggestions
func NewEnhancedError(title string, originalError error, suggestions []ErrorSuggestion) *EnhancedError {
	return &EnhancedError{
		OriginalError: originalError,
		Title:         title,
		Suggestions:   suggestions,
	}
}
