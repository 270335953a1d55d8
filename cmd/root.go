// Package cmd provides the command-line interface for sitegraph with
// configuration management supporting multiple configuration sources.
//
// Configuration System:
//
//	The CLI resolves configuration from several sources, highest priority first:
//	1. Command-line flags (--config, --log-level, --port, ...)
//	2. Individual environment variables (SITEGRAPH_SERVER_PORT, ...)
//	3. A .env file in the project directory
//	4. The configuration file: --config, SITEGRAPH_CONFIG_FILE or .sitegraph.yml
//	5. Built-in defaults
//
// Environment Variables:
//
//	SITEGRAPH_CONFIG_FILE: Path to custom configuration file
//	SITEGRAPH_SERVER_PORT: Override server port
//	SITEGRAPH_PATHS_OUTPUT: Override the output root
//	SITEGRAPH_DEPLOY_TOKEN: Token for HTTPS deploy remotes (GITHUB_TOKEN also works)
//	And every other key following the SITEGRAPH_<SECTION>_<OPTION> pattern
package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/sitegraph/internal/config"
	"github.com/conneroisu/sitegraph/internal/graph"
)

var (
	cfgFile    string
	projectDir string
	strictMode bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "sitegraph [task]",
	Short: "Build, preview and publish a static site",
	Long: `sitegraph builds a static site from stylesheets, handlebars templates,
scripts, images and static files, serves it with live reload and publishes
it to a hosting branch.

Every task is a node of the build graph. Running sitegraph without a task
runs the default composition: watch, serve, images, files, styles, scripts,
templates and cname.

Quick Start:
  sitegraph                       Build everything, serve and watch
  sitegraph styles                Compile stylesheets once
  sitegraph clean                 Empty the output root
  sitegraph deploy                Publish the output root
  sitegraph tasks                 List every task`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTask(cmd, graph.NameDefault)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .sitegraph.yml, can also use SITEGRAPH_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().StringVarP(&projectDir, "dir", "C", ".", "project directory")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&strictMode, "strict", false, "exit non-zero when a transform reported errors")
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
}

// initConfig initializes the configuration system with support for multiple config sources.
//
// Configuration Loading Priority (highest to lowest):
//  1. --config flag: Explicitly specified config file path
//  2. SITEGRAPH_CONFIG_FILE environment variable: Custom config file path
//  3. Default: .sitegraph.yml in the project directory
//
// A .env file in the project directory is loaded first; variables already set
// in the environment win over it.
func initConfig() {
	if err := godotenv.Load(filepath.Join(projectDir, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "Warning: failed to load .env:", err)
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv(config.EnvPrefix + "_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(projectDir)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".sitegraph")
	}

	viper.SetEnvPrefix(config.EnvPrefix)
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(config.EnvKeyReplacer())

	// A missing config file falls back to defaults; a broken one surfaces
	// through config.Load
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	} else {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			configErr = err
		}
	}
}

// configErr holds a config file read error until a command loads the config.
var configErr error
