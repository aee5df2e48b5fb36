package main

import (
	"github.com/spf13/cobra"

	"github.com/watercache/watercache/pkg/version"
)

// cfgFile is the --config flag shared by every subcommand.
var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watercache",
		Short: "Supervised expiring cache",
		Long: `watercache runs an in-process expiring cache whose maintenance tick is
supervised by a watchdog that reports stalled and skipped ticks.`,
		Version:       version.FullString(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Path to configuration file")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}
