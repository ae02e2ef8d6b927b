package reporting

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/require"

	"github.com/kids-first/dataservice-utils/pkg/dataservice/memory"
	"github.com/kids-first/dataservice-utils/pkg/record"
)

// fakeLister serves canned ListObjectsV2 pages keyed by continuation token.
type fakeLister struct {
	pages map[string]*s3.ListObjectsV2Output
	calls int
}

func (f *fakeLister) ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.calls++
	return f.pages[aws.ToString(params.ContinuationToken)], nil
}

func object(key string, size int64) s3types.Object {
	return s3types.Object{
		Key:          aws.String(key),
		Size:         aws.Int64(size),
		ETag:         aws.String(`"deadbeef"`),
		LastModified: aws.Time(time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC)),
	}
}

func TestMergeS3AndDataserviceFiles(t *testing.T) {
	lister := &fakeLister{pages: map[string]*s3.ListObjectsV2Output{
		"": {
			Contents:              []s3types.Object{object("source/a.cram", 100)},
			IsTruncated:           aws.Bool(true),
			NextContinuationToken: aws.String("page2"),
		},
		"page2": {
			Contents: []s3types.Object{
				object("source/b.cram", 200),
				object("scratch/tmp.bin", 5),
			},
			IsTruncated: aws.Bool(false),
		},
	}}

	ds := memory.New()
	ds.Add(
		// Registered and present in the bucket.
		record.Record{
			"kf_id":       "GF_00000001",
			"study_id":    "SD_00000001",
			"external_id": "s3://study-bucket/source/a.cram",
			"visible":     true,
			"_links":      map[string]any{"self": "/genomic-files/GF_00000001"},
		},
		// Registered but the object is gone.
		record.Record{
			"kf_id":       "GF_00000002",
			"study_id":    "SD_00000001",
			"external_id": "s3://study-bucket/source/missing.cram",
			"visible":     true,
		},
		// Another study's file never enters the report.
		record.Record{
			"kf_id":       "GF_00000003",
			"study_id":    "SD_00000002",
			"external_id": "s3://study-bucket/source/b.cram",
			"visible":     true,
		},
	)

	out, err := MergeS3AndDataserviceFiles(context.Background(), ds, lister,
		"SD_00000001", "study-bucket", []string{"scratch/"})
	require.NoError(t, err)
	require.Equal(t, 2, lister.calls)

	// Sorted by external ID: a.cram, b.cram, missing.cram.
	require.Len(t, out, 3)

	both := out[0]
	require.Equal(t, "GF_00000001", both["kf_kf_id"])
	require.Equal(t, "source/a.cram", both["s3_key"])
	require.Equal(t, int64(100), both["s3_size"])
	require.Equal(t, "deadbeef", both["s3_etag"])
	require.NotContains(t, both, "kf__links")

	s3Only := out[1]
	require.Equal(t, "source/b.cram", s3Only["s3_key"])
	require.NotContains(t, s3Only, "kf_kf_id")

	dsOnly := out[2]
	require.Equal(t, "GF_00000002", dsOnly["kf_kf_id"])
	require.NotContains(t, dsOnly, "s3_key")
}

func TestMergeS3AndDataserviceFilesExcludesNothingByDefault(t *testing.T) {
	lister := &fakeLister{pages: map[string]*s3.ListObjectsV2Output{
		"": {Contents: []s3types.Object{object("scratch/tmp.bin", 5)}},
	}}

	out, err := MergeS3AndDataserviceFiles(context.Background(), memory.New(), lister,
		"SD_00000001", "study-bucket", nil)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, "scratch/tmp.bin", out[0]["s3_key"])
}
