package main

import (
	"os"

	"github.com/kids-first/dataservice-utils/cmd"
	"github.com/kids-first/dataservice-utils/cmd/descendants"
	"github.com/kids-first/dataservice-utils/cmd/purge"
	"github.com/kids-first/dataservice-utils/cmd/report"
	"github.com/kids-first/dataservice-utils/cmd/visibility"
)

func main() {
	rootCmd := cmd.NewRootCommand()

	rootCmd.AddCommand(cmd.NewVersionCommand())
	rootCmd.AddCommand(descendants.NewDescendantsCommand())
	rootCmd.AddCommand(visibility.NewHideCommand())
	rootCmd.AddCommand(visibility.NewUnhideCommand())
	rootCmd.AddCommand(purge.NewPurgeCommand())
	rootCmd.AddCommand(report.NewReportCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
