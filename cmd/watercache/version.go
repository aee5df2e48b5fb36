package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/watercache/watercache/pkg/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Display detailed version information including build date, git commit, and Go version.`,
		Run: func(cmd *cobra.Command, args []string) {
			info := version.Info()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "watercache version: %s\n", info["version"])
			fmt.Fprintf(out, "  build date: %s\n", info["buildDate"])
			fmt.Fprintf(out, "  git commit: %s\n", info["gitCommit"])
			fmt.Fprintf(out, "  go version: %s\n", info["goVersion"])
		},
	}
}
