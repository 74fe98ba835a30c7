package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/vaultos/vaultwm/internal/config"
	"github.com/vaultos/vaultwm/internal/ipc"
)

var msgTimeout time.Duration

var msgCmd = &cobra.Command{
	Use:   "msg COMMAND [ARGS...]",
	Short: "Send a command to the running window manager",
	Long: `Write one command to the window manager's command channel and print
its reply.

Commands: quit, reload, workspace N, move_to_workspace N, focus_next,
focus_prev, close_window, toggle_float, toggle_layout, get_status.`,
	Example: `  # Switch to workspace 3
  vaultwm msg workspace 3

  # Print a one-line summary of the current state
  vaultwm msg get_status`,
	Args: cobra.MinimumNArgs(1),
	RunE: runMsg,
}

func init() {
	rootCmd.AddCommand(msgCmd)
	msgCmd.Flags().DurationVar(&msgTimeout, "timeout", 2*time.Second, "how long to wait for the reply")
}

func runMsg(cmd *cobra.Command, args []string) error {
	configMgr, err := loadConfig()
	if err != nil {
		return err
	}
	path, err := config.ExpandPath(configMgr.Get().IPCPath)
	if err != nil {
		return err
	}

	reply, err := ipc.Send(path, strings.Join(args, " "), msgTimeout)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), reply)
	if strings.HasPrefix(reply, "ERROR") {
		return fmt.Errorf("command rejected")
	}
	return nil
}
