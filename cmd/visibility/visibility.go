// Package visibility contains the commands that hide or show whole
// descendant closures.
package visibility

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kids-first/dataservice-utils/pkg/dataservice"
	"github.com/kids-first/dataservice-utils/pkg/logger"
	"github.com/kids-first/dataservice-utils/pkg/mutation"
	"github.com/kids-first/dataservice-utils/pkg/record"
)

func NewHideCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hide",
		Short: "Hide the given records and all of their descendants",
		Long: `Hide the given records and all of their descendants.

Hiding and showing are not symmetrical: hiding also hides genomic files that
have contributors outside the given set, but showing only shows such files
when every outside contributor is already visible. Keep the printed changed
list if you need to undo exactly this operation.`,
		RunE: runHide,
		Args: cobra.NoArgs,
	}
	addSelectionFlags(cmd)
	cmd.Flags().StringSlice("gf-acl", nil, "ACL to set on genomic files while hiding them")
	return cmd
}

func NewUnhideCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unhide",
		Short: "Show the given records and all of their descendants",
		Long: `Show the given records and all of their descendants, except genomic
files with hidden contributing biospecimens outside the set.

Hiding and showing are not symmetrical: see "hide --help".`,
		RunE: runUnhide,
		Args: cobra.NoArgs,
	}
	addSelectionFlags(cmd)
	return cmd
}

func addSelectionFlags(cmd *cobra.Command) {
	cmd.Flags().String("type", "", "record type of the seeds, e.g. studies")
	cmd.Flags().StringSlice("kfids", nil, "seed KF IDs")
	cmd.Flags().StringToString("filter", nil, "field=value filter selecting the seeds")
	cmd.Flags().Bool("dry-run", false, "report what would change without patching anything")
}

func runHide(cmd *cobra.Command, _ []string) error {
	gfACL, _ := cmd.Flags().GetStringSlice("gf-acl")
	return runVisibilityChange(cmd, func(d *mutation.Dispatcher, sel selection) ([]string, error) {
		if sel.filter != nil {
			return d.HideDescendantsByFilter(cmd.Context(), sel.startType, sel.filter, gfACL)
		}
		return d.HideDescendants(cmd.Context(), sel.startType, sel.kfids, gfACL)
	})
}

func runUnhide(cmd *cobra.Command, _ []string) error {
	return runVisibilityChange(cmd, func(d *mutation.Dispatcher, sel selection) ([]string, error) {
		if sel.filter != nil {
			return d.UnhideDescendantsByFilter(cmd.Context(), sel.startType, sel.filter)
		}
		return d.UnhideDescendants(cmd.Context(), sel.startType, sel.kfids)
	})
}

type selection struct {
	startType record.Type
	kfids     []string
	filter    dataservice.Filter
}

func runVisibilityChange(cmd *cobra.Command, change func(*mutation.Dispatcher, selection) ([]string, error)) error {
	sel, err := parseSelection(cmd)
	if err != nil {
		return err
	}
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	log := logger.MustNewLogger(viper.GetString("log-format"), viper.GetString("log-level"))
	client := dataservice.NewClient(viper.GetString("api-url"), dataservice.WithLogger(log))
	dispatcher := mutation.NewDispatcher(client,
		mutation.WithLogger(log),
		mutation.WithDryRun(dryRun))

	changed, err := change(dispatcher, sel)
	if err != nil {
		return err
	}

	for _, kfid := range changed {
		fmt.Fprintln(cmd.OutOrStdout(), kfid)
	}
	return nil
}

func parseSelection(cmd *cobra.Command) (selection, error) {
	typeName, _ := cmd.Flags().GetString("type")
	startType, err := record.ParseType(typeName)
	if err != nil {
		return selection{}, err
	}

	kfids, _ := cmd.Flags().GetStringSlice("kfids")
	rawFilter, _ := cmd.Flags().GetStringToString("filter")
	if len(kfids) == 0 && len(rawFilter) == 0 {
		return selection{}, errors.New("one of --kfids or --filter is required")
	}

	sel := selection{startType: startType, kfids: kfids}
	if len(rawFilter) > 0 {
		sel.filter = rawFilter
	}
	return sel, nil
}
