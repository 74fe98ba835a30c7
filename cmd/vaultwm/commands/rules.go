package commands

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vaultos/vaultwm/internal/config"
	"github.com/vaultos/vaultwm/internal/rules"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect window rules",
}

var rulesCheckCmd = &cobra.Command{
	Use:   "check [FILE]",
	Short: "Parse a rules file and list the rules it yields",
	Long: `Parse the rules file, or the configured one when FILE is omitted, and
list the effective rules in priority order. Malformed lines are reported
in the log and skipped, exactly as the window manager would.`,
	Example: `  # Check the configured rules
  vaultwm rules check

  # Check a draft before installing it
  vaultwm rules check ./rules.new`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRulesCheck,
}

func init() {
	rootCmd.AddCommand(rulesCmd)
	rulesCmd.AddCommand(rulesCheckCmd)
}

func runRulesCheck(cmd *cobra.Command, args []string) error {
	var table *rules.Table
	if len(args) == 1 {
		path, err := config.ExpandPath(args[0])
		if err != nil {
			return err
		}
		if table, err = rules.LoadFile(path); err != nil {
			return err
		}
	} else {
		configMgr, err := loadConfig()
		if err != nil {
			return err
		}
		if table, err = configMgr.LoadRules(); err != nil {
			return err
		}
	}
	return writeRules(cmd.OutOrStdout(), table)
}

func writeRules(w io.Writer, table *rules.Table) error {
	if table.Len() == 0 {
		_, err := fmt.Fprintln(w, "No rules")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PRIORITY\tCLASS\tINSTANCE\tKIND\tVALUE")
	for _, r := range table.Rules() {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", r.Priority, r.Class, r.Instance, r.Kind, r.Value)
	}
	return tw.Flush()
}
