package cli

import (
	"fmt"
	"queuectl/internal/config"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func configCmd(a *app) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	getCmd := &cobra.Command{
		Use:   "get [key]",
		Short: "Show one configuration value, or all of them",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if len(args) == 1 {
				value, err := a.cfg.Get(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(out, value)
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			for _, key := range config.Keys() {
				value, _ := a.cfg.Get(key)
				fmt.Fprintf(tw, "%s\t%s\n", key, value)
			}
			return tw.Flush()
		},
	}

	setCmd := &cobra.Command{
		Use:     "set <key> <value>",
		Short:   "Set a configuration value",
		Example: "  queuectl config set max-retries 5\n  queuectl config set backoff_base 1.5",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.Set(args[0], args[1]); err != nil {
				return err
			}
			if err := a.saveConfig(); err != nil {
				return err
			}

			value, _ := a.cfg.Get(args[0])
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", config.NormalizeKey(args[0]), value)
			return nil
		},
	}

	resetCmd := &cobra.Command{
		Use:   "reset [key]",
		Short: "Restore one configuration value, or all of them, to the default",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := ""
			if len(args) == 1 {
				key = args[0]
			}
			if err := a.cfg.Reset(key); err != nil {
				return err
			}
			if err := a.saveConfig(); err != nil {
				return err
			}

			if key == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "Configuration reset to defaults.")
			} else {
				value, _ := a.cfg.Get(key)
				fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", config.NormalizeKey(key), value)
			}
			return nil
		},
	}

	configCmd.AddCommand(getCmd)
	configCmd.AddCommand(setCmd)
	configCmd.AddCommand(resetCmd)
	return configCmd
}
