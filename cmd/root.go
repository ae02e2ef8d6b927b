// Package cmd contains all the commands included in the binary file.
package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kids-first/dataservice-utils/cmd/util"
)

const (
	apiURLFlag    = "api-url"
	logFormatFlag = "log-format"
	logLevelFlag  = "log-level"
)

// NewRootCommand enables all children commands to read flags from CLI flags,
// environment variables prefixed with KFDS, or config.yaml (in that order).
func NewRootCommand() *cobra.Command {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetEnvPrefix("KFDS")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	configPaths := []string{"/etc/kf-dataservice", "$HOME/.kf-dataservice", "."}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}
	_ = viper.ReadInConfig()

	cmd := &cobra.Command{
		Use:   "dataservice-utils",
		Short: "Utilities for operating on the Kids First dataservice",
		Long: `Utilities for operating on the Kids First dataservice.

Finds the full descendant closure of studies, families, participants, or
biospecimens, and hides, shows, or deletes those closures in bulk while
protecting genomic files that have hidden contributors outside the set.`,
	}

	cmd.PersistentFlags().String(apiURLFlag, "http://localhost:5000", "dataservice base URL")
	util.MustBindPFlag(apiURLFlag, cmd.PersistentFlags().Lookup(apiURLFlag))

	cmd.PersistentFlags().String(logFormatFlag, "text", "log output format (text, json)")
	util.MustBindPFlag(logFormatFlag, cmd.PersistentFlags().Lookup(logFormatFlag))

	cmd.PersistentFlags().String(logLevelFlag, "info", "log level (none, debug, info, warn, error, fatal)")
	util.MustBindPFlag(logLevelFlag, cmd.PersistentFlags().Lookup(logLevelFlag))

	return cmd
}
