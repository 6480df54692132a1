package cli

import (
	"fmt"
	"queuectl/internal/config"

	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags "-X queuectl/internal/cli.Version=..."
var Version = "dev"

// Execute runs the queuectl command line
func Execute() error {
	a := newApp()
	defer a.close()
	return newRootCmd(a).Execute()
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "queuectl",
		Short:        "A CLI-based background job queue",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.loadConfig()
		},
	}

	rootCmd.PersistentFlags().StringVar(&a.configPath, "config", config.DefaultPath(), "path to the config file (.json, .yaml or .yml)")
	rootCmd.PersistentFlags().StringVar(&a.dbPath, "db", "", "job store location, overrides the configured data_dir/dsn")

	rootCmd.AddCommand(enqueueCmd(a))
	rootCmd.AddCommand(statusCmd(a))
	rootCmd.AddCommand(listCmd(a))
	rootCmd.AddCommand(infoCmd(a))
	rootCmd.AddCommand(workerCmd(a))
	rootCmd.AddCommand(dlqCmd(a))
	rootCmd.AddCommand(configCmd(a))
	rootCmd.AddCommand(serveCmd(a))
	rootCmd.AddCommand(versionCmd())

	return rootCmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the queuectl version",
		Args:  cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "queuectl %s\n", Version)
		},
	}
}
