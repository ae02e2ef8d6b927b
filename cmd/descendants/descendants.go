// Package descendants contains the command that prints the descendant
// closure of a set of records as JSON.
package descendants

import (
	"encoding/json"
	"errors"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kids-first/dataservice-utils/pkg/dataservice"
	"github.com/kids-first/dataservice-utils/pkg/descendants"
	"github.com/kids-first/dataservice-utils/pkg/logger"
	"github.com/kids-first/dataservice-utils/pkg/record"
)

func NewDescendantsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "descendants",
		Short: "Find every record reachable below the given records",
		Long: `Find every record reachable below the given records.

Given a family, the result covers its participants, their biospecimens,
outcomes, phenotypes and diagnoses, the biospecimens' genomic files, and the
files' read groups and sequencing experiments.`,
		RunE: runDescendants,
		Args: cobra.NoArgs,
	}

	cmd.Flags().String("type", "", "record type of the seeds, e.g. studies")
	cmd.Flags().StringSlice("kfids", nil, "seed KF IDs")
	cmd.Flags().StringToString("filter", nil, "field=value filter selecting the seeds")
	cmd.Flags().Bool("ids-only", true, "print only KF IDs, not full records")
	cmd.Flags().Bool("ignore-hidden-external", false,
		"exclude genomic files with hidden contributing biospecimens outside the closure")

	return cmd
}

func runDescendants(cmd *cobra.Command, _ []string) error {
	startType, err := record.ParseType(mustString(cmd, "type"))
	if err != nil {
		return err
	}
	kfids, _ := cmd.Flags().GetStringSlice("kfids")
	filter, _ := cmd.Flags().GetStringToString("filter")
	idsOnly, _ := cmd.Flags().GetBool("ids-only")
	ignoreHiddenExternal, _ := cmd.Flags().GetBool("ignore-hidden-external")

	if len(kfids) == 0 && len(filter) == 0 {
		return errors.New("one of --kfids or --filter is required")
	}

	log := logger.MustNewLogger(viper.GetString("log-format"), viper.GetString("log-level"))
	client := dataservice.NewClient(viper.GetString("api-url"), dataservice.WithLogger(log))
	query := descendants.NewClosureQuery(client, descendants.WithLogger(log))

	req := descendants.ExpandRequest{
		StartType:                        startType,
		KFIDs:                            kfids,
		IgnoreHiddenExternalContributors: ignoreHiddenExternal,
	}
	if len(filter) > 0 {
		seeds, err := client.FetchByFilter(cmd.Context(), startType, filter)
		if err != nil {
			return err
		}
		req.KFIDs = nil
		req.Seeds = seeds
	}

	closure, err := query.Execute(cmd.Context(), req)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if idsOnly {
		return enc.Encode(closure.KFIDs())
	}
	return enc.Encode(closure)
}

func mustString(cmd *cobra.Command, name string) string {
	v, _ := cmd.Flags().GetString(name)
	return v
}
