package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/vaultos/vaultwm/internal/config"
	"github.com/vaultos/vaultwm/internal/logger"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "vaultwm",
		Short: "VaultWM - a tiling and floating window manager",
		Long: `VaultWM manages the windows of an X11 session: nine workspaces,
five tiling layouts, floating windows and a status line.

Features:
  • Tiling, monocle, grid, fibonacci and dwindle layouts
  • Per-application placement rules
  • Status line with CPU, memory and network readings
  • Command channel on a named pipe (see "vaultwm msg")
  • Live config reload
  • Optional read-only status endpoint over HTTP`,
		SilenceUsage: true,
	}
)

// flagKeys maps persistent flags to the config keys they override
var flagKeys = map[string]string{
	"log-level": "log_level",
	"ipc-path":  "ipc_path",
	"http-addr": "status_http_addr",
	"backend":   "backend",
	"rules":     "rules_file",
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $XDG_CONFIG_HOME/vaultwm/config)")
	rootCmd.PersistentFlags().String("rules", "", "rules file (default is ~/.config/vaultwm/rules)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-pretty", false, "human-readable console logs")
	rootCmd.PersistentFlags().String("ipc-path", "", "command FIFO path (default is /tmp/vaultwm-ipc)")
	rootCmd.PersistentFlags().String("http-addr", "", "serve read-only status on this loopback address")
	rootCmd.PersistentFlags().String("backend", "", "display backend (auto, x11, wayland)")

	// Bind flags to viper
	for flag, key := range flagKeys {
		viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag))
	}
	viper.BindPFlag("log_pretty", rootCmd.PersistentFlags().Lookup("log-pretty"))
}

func initConfig() {
	viper.SetEnvPrefix("VAULTWM")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if cfgFile == "" {
		cfgFile = viper.GetString("config")
	}
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// GetConfigFile returns the config file path
func GetConfigFile() string {
	return cfgFile
}

// loadConfig opens the config file and applies flag and VAULTWM_*
// environment overrides on top of it.
func loadConfig() (*config.Manager, error) {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := applyOverrides(configMgr); err != nil {
		return nil, err
	}
	return configMgr, nil
}

func applyOverrides(configMgr *config.Manager) error {
	for _, key := range flagKeys {
		if !viper.IsSet(key) {
			continue
		}
		value := viper.GetString(key)
		if value == "" {
			continue
		}
		if err := configMgr.Override(key, value); err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
	}
	return nil
}

// initLogging configures the global logger from the effective config
func initLogging(cfg *config.Config) {
	logger.Init(cfg.LogLevel, viper.GetBool("log_pretty"))
}
