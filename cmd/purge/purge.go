// Package purge contains the command that deletes records from a
// dataservice instance, leaves first to avoid cascading deletes.
package purge

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kids-first/dataservice-utils/pkg/dataservice"
	"github.com/kids-first/dataservice-utils/pkg/logger"
	"github.com/kids-first/dataservice-utils/pkg/mutation"
)

func NewPurgeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete records from a dataservice instance",
		Long: `Delete records from a dataservice instance.

With --studies, deletes everything belonging to those studies and then the
studies themselves. With --kfids, deletes exactly those records. With
neither, deletes every record in the instance. Only local instances are
touched unless --force is given.`,
		RunE: runPurge,
		Args: cobra.NoArgs,
	}

	cmd.Flags().StringSlice("studies", nil, "study KF IDs to delete")
	cmd.Flags().StringSlice("kfids", nil, "exact KF IDs to delete")
	cmd.Flags().Bool("force", false, "allow deleting from a non-local host")
	cmd.Flags().Bool("dry-run", false, "report what would be deleted without deleting")

	return cmd
}

func runPurge(cmd *cobra.Command, _ []string) error {
	studies, _ := cmd.Flags().GetStringSlice("studies")
	kfids, _ := cmd.Flags().GetStringSlice("kfids")
	force, _ := cmd.Flags().GetBool("force")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	log := logger.MustNewLogger(viper.GetString("log-format"), viper.GetString("log-level"))
	client := dataservice.NewClient(viper.GetString("api-url"), dataservice.WithLogger(log))
	dispatcher := mutation.NewDispatcher(client,
		mutation.WithLogger(log),
		mutation.WithDryRun(dryRun),
		mutation.WithRemoteDeleteAllowed(force))

	if len(kfids) > 0 {
		return dispatcher.DeleteKFIDs(cmd.Context(), kfids)
	}
	return dispatcher.DeleteStudies(cmd.Context(), studies)
}
