package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vaultos/vaultwm/internal/api"
	"github.com/vaultos/vaultwm/internal/config"
	"github.com/vaultos/vaultwm/internal/ipc"
	"github.com/vaultos/vaultwm/internal/logger"
	"github.com/vaultos/vaultwm/internal/notify"
	"github.com/vaultos/vaultwm/internal/window"
	"github.com/vaultos/vaultwm/internal/wm"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the window manager",
	Long: `Take over window management of the current display session.

The config and rules files are watched and reloaded on change. SIGHUP
also reloads; SIGINT and SIGTERM shut down cleanly.`,
	Example: `  # Start with the default config
  vaultwm run

  # Start with a specific config file and debug logging
  vaultwm run --config ~/vault.conf --log-level debug

  # Also serve read-only status on localhost
  vaultwm run --http-addr 127.0.0.1:7878`,
	Args: cobra.NoArgs,
	RunE: runWM,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runWM(cmd *cobra.Command, args []string) error {
	configMgr, err := loadConfig()
	if err != nil {
		return err
	}
	cfg := configMgr.Get()
	initLogging(cfg)
	log := logger.WithComponent("main")
	log.Info().Str("config", configMgr.GetConfigPath()).Str("log_level", cfg.LogLevel).Msg("Starting VaultWM")

	backend, err := window.Detect(cfg.Backend)
	if err != nil {
		return fmt.Errorf("failed to open display: %w", err)
	}

	reloads := make(chan struct{}, 1)
	rulesPath, err := configMgr.RulesPath()
	if err != nil {
		log.Warn().Err(err).Msg("Rules file will not be watched")
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	watcher, err := newFileWatcher(reloads, configMgr.GetConfigPath(), rulesPath)
	if err != nil {
		log.Warn().Err(err).Msg("Live reload disabled")
	} else {
		defer watcher.Close()
		go watcher.Run(ctx)
	}
	go forwardHangups(ctx, reloads)

	loop, err := wm.New(wm.Options{
		Backend:  backend,
		Config:   configMgr,
		Notifier: notify.New(cfg.Notifications),
		Reloads:  reloads,
	})
	if err != nil {
		backend.Close()
		return err
	}
	defer loop.Close()

	if err := loop.Start(); err != nil {
		return fmt.Errorf("failed to start: %w", err)
	}

	// only the instance that owns the display may take the command channel
	ipcPath, err := config.ExpandPath(cfg.IPCPath)
	if err != nil {
		return err
	}
	commands, err := ipc.Listen(ipcPath)
	if err != nil {
		return fmt.Errorf("failed to open command channel: %w", err)
	}
	defer commands.Close()
	loop.AttachCommands(commands.Requests())

	if cfg.StatusHTTPAddr != "" {
		server := api.NewServer(loop.Hub())
		if err := server.Start(cfg.StatusHTTPAddr); err != nil {
			log.Warn().Err(err).Str("addr", cfg.StatusHTTPAddr).Msg("Status endpoint disabled")
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					log.Warn().Err(err).Msg("Status endpoint did not stop cleanly")
				}
			}()
		}
	}

	log.Info().Str("ipc", commands.Path()).Msg("VaultWM is running")
	err = loop.Run(ctx)
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		log.Info().Msg("Shutting down gracefully")
		err = nil
	default:
		log.Error().Err(err).Msg("Control loop stopped")
	}
	return err
}

// forwardHangups turns SIGHUP into a reload request
func forwardHangups(ctx context.Context, reloads chan<- struct{}) {
	hups := make(chan os.Signal, 1)
	signal.Notify(hups, syscall.SIGHUP)
	defer signal.Stop(hups)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hups:
			logger.WithComponent("main").Info().Msg("Received SIGHUP, reloading config")
			requestReload(reloads)
		}
	}
}
