// Package report contains the command that reconciles a study's registered
// genomic files with the contents of its S3 bucket.
package report

import (
	"encoding/json"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kids-first/dataservice-utils/pkg/dataservice"
	"github.com/kids-first/dataservice-utils/pkg/logger"
	"github.com/kids-first/dataservice-utils/pkg/reporting"
)

func NewReportCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Merge a study's genomic files with its S3 bucket inventory",
		Long: `Merge a study's genomic files with its S3 bucket inventory.

Joins on external ID and prints one JSON object per file, with dataservice
fields prefixed kf_ and S3 object fields prefixed s3_. Files missing either
half were never loaded or no longer exist in the bucket.`,
		RunE: runReport,
		Args: cobra.NoArgs,
	}

	cmd.Flags().String("study", "", "study KF ID")
	cmd.Flags().String("bucket", "", "S3 bucket holding the study's files")
	cmd.Flags().String("region", "", "AWS region of the bucket")
	cmd.Flags().StringSlice("exclude-prefix", nil, "bucket key prefixes to leave out")
	_ = cmd.MarkFlagRequired("study")
	_ = cmd.MarkFlagRequired("bucket")

	return cmd
}

func runReport(cmd *cobra.Command, _ []string) error {
	study, _ := cmd.Flags().GetString("study")
	bucket, _ := cmd.Flags().GetString("bucket")
	region, _ := cmd.Flags().GetString("region")
	excludePrefixes, _ := cmd.Flags().GetStringSlice("exclude-prefix")

	log := logger.MustNewLogger(viper.GetString("log-format"), viper.GetString("log-level"))
	client := dataservice.NewClient(viper.GetString("api-url"), dataservice.WithLogger(log))

	lister, err := reporting.NewObjectLister(cmd.Context(), region)
	if err != nil {
		return err
	}

	merged, err := reporting.MergeS3AndDataserviceFiles(cmd.Context(), client, lister, study, bucket, excludePrefixes)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(merged)
}
