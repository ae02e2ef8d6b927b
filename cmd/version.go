package cmd

import (
	"log"

	"github.com/spf13/cobra"

	"github.com/kids-first/dataservice-utils/internal/build"
)

// NewVersionCommand returns the command to get the dataservice-utils version.
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Return the dataservice-utils version",
		RunE:  version,
		Args:  cobra.NoArgs,
	}
}

func version(_ *cobra.Command, _ []string) error {
	log.Printf("dataservice-utils version %s commit %s", build.Version, build.Commit)
	return nil
}
