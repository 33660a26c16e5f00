package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zjrosen/connreg/internal/config"
	"github.com/zjrosen/connreg/internal/log"
	"github.com/zjrosen/connreg/internal/presentation"
)

func init() {
	// Force lipgloss/termenv to query terminal background color BEFORE
	// any Bubble Tea program starts. This prevents the terminal's OSC 11
	// response from racing with Bubble Tea's input loop and appearing as
	// garbage text in input fields.
	//
	// See: https://github.com/charmbracelet/bubbletea/issues/1036
	_ = lipgloss.HasDarkBackground()
}

// localConfigPath is checked before the user config.
const localConfigPath = ".connreg/config.yaml"

var (
	version    = "dev"
	cfgFile    string
	debugFlag  bool
	outputFlag string
	cfg        config.Config
	logCleanup func()
)

var rootCmd = &cobra.Command{
	Use:   "connreg",
	Short: "A shared registry of saved connections",
	Long: `connreg keeps one registry of saved hosts, grouped in categories, that every
application on the machine reads and edits. Changes made by one process reach
the others through the shared database.

Running connreg without a subcommand opens the interactive browser.`,
	Version:           version,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logCleanup != nil {
			logCleanup()
			logCleanup = nil
		}
	},
	RunE: runBrowse,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: ~/.config/connreg/config.yaml)")
	rootCmd.PersistentFlags().String("db", "",
		"registry database path (default: ~/.config/connreg/registry.db)")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false,
		"write a debug log")
	rootCmd.PersistentFlags().StringVarP(&outputFlag, "output", "o", "text",
		"output format: text or json")

	// Bind flags to viper
	_ = viper.BindPFlag("db_path", rootCmd.PersistentFlags().Lookup("db"))
}

func initConfig() {
	defaults := config.Defaults()
	viper.SetDefault("db_path", defaults.DBPath)
	viper.SetDefault("notify.debounce", defaults.Notify.Debounce)
	viper.SetDefault("notify.poll_interval", defaults.Notify.PollInterval)
	viper.SetDefault("notify.retain", defaults.Notify.Retain)
	viper.SetDefault("discovery.enabled", defaults.Discovery.Enabled)
	viper.SetDefault("discovery.file", defaults.Discovery.File)
	viper.SetDefault("discovery.debounce", defaults.Discovery.Debounce)
	viper.SetDefault("search.cache_ttl", defaults.Search.CacheTTL)
	viper.SetDefault("log.file", defaults.Log.File)
	viper.SetDefault("log.debug", defaults.Log.Debug)
	viper.SetDefault("log.level", defaults.Log.Level)
	viper.SetDefault("tracing.enabled", defaults.Tracing.Enabled)
	viper.SetDefault("tracing.exporter", defaults.Tracing.Exporter)
	viper.SetDefault("tracing.file_path", defaults.Tracing.FilePath)
	viper.SetDefault("tracing.otlp_endpoint", defaults.Tracing.OTLPEndpoint)
	viper.SetDefault("tracing.sample_rate", defaults.Tracing.SampleRate)

	viper.SetEnvPrefix("connreg")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// Config lookup order:
		// 1. .connreg/config.yaml (current directory)
		// 2. ~/.config/connreg/config.yaml (user config)
		if _, err := os.Stat(localConfigPath); err == nil {
			viper.SetConfigFile(localConfigPath)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(filepath.Join(home, ".config", "connreg"))
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		// No config file found anywhere - create the user default
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			if defaultPath := config.DefaultConfigPath(); defaultPath != "" {
				if writeErr := config.WriteDefaultConfig(defaultPath); writeErr == nil {
					viper.SetConfigFile(defaultPath)
					_ = viper.ReadInConfig()
				}
			}
			// If write fails, just continue with defaults (no config file)
		}
	}

	cfg = config.Config{}
	_ = viper.Unmarshal(&cfg)
}

// setup validates the configuration and starts the debug log.
func setup(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if _, err := presentation.ParseFormat(outputFlag); err != nil {
		return err
	}

	debug := debugFlag || cfg.Log.Debug || os.Getenv("CONNREG_DEBUG") != ""
	if !debug {
		return nil
	}
	path := cfg.Log.File
	if path == "" {
		path = filepath.Join(filepath.Dir(cfg.DBPath), "debug.log")
	}
	cleanup, err := log.Init(path)
	if err != nil {
		return fmt.Errorf("opening debug log: %w", err)
	}
	logCleanup = cleanup
	log.SetMinLevel(log.ParseLevel(cfg.Log.Level))
	if debugFlag {
		log.SetMinLevel(log.LevelDebug)
	}
	log.Info(log.CatConfig, "Configuration loaded", "file", viper.ConfigFileUsed(), "db", cfg.DBPath)
	return nil
}

// formatter writes to the command's output in the selected format.
func formatter(cmd *cobra.Command) *presentation.Formatter {
	format, _ := presentation.ParseFormat(outputFlag)
	return presentation.NewFormatter(cmd.OutOrStdout(), format)
}

// Execute runs the root command until it finishes or the process is
// interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

// SetVersion sets the version string (called from main with ldflags)
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}
