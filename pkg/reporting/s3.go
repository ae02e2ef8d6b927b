// Package reporting merges the genomic files registered in the dataservice
// with the objects actually present in a study's S3 bucket, to show which
// bucket files were never loaded and which loaded files no longer exist.
package reporting

import (
	"context"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/kids-first/dataservice-utils/pkg/dataservice"
	"github.com/kids-first/dataservice-utils/pkg/record"
)

// ObjectLister is the slice of the S3 API this package needs. *s3.Client
// satisfies it; tests substitute a fake.
type ObjectLister interface {
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

var _ ObjectLister = (*s3.Client)(nil)

// NewObjectLister builds an S3 client from the default credential chain.
func NewObjectLister(ctx context.Context, region string) (*s3.Client, error) {
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, err
	}
	return s3.NewFromConfig(awsCfg), nil
}

// MergedFile holds the union of one file's dataservice fields (kf_ prefixed)
// and S3 object fields (s3_ prefixed). A file present on only one side has
// only that side's fields.
type MergedFile map[string]any

// MergeS3AndDataserviceFiles joins a study's registered genomic files with
// the bucket's objects on external ID (which the loader sets to the object's
// s3:// URL). Objects under any of excludeKeyPrefixes are dropped after
// listing; the S3 API cannot filter them server-side.
func MergeS3AndDataserviceFiles(
	ctx context.Context,
	fetcher dataservice.Fetcher,
	lister ObjectLister,
	studyKFID string,
	bucket string,
	excludeKeyPrefixes []string,
) ([]MergedFile, error) {
	merged := make(map[string]MergedFile)

	objects, err := listBucketObjects(ctx, lister, bucket)
	if err != nil {
		return nil, err
	}
	for _, obj := range objects {
		key := aws.ToString(obj.Key)
		if excluded(key, excludeKeyPrefixes) {
			continue
		}
		merged["s3://"+bucket+"/"+key] = MergedFile{
			"s3_bucket":       bucket,
			"s3_key":          key,
			"s3_size":         aws.ToInt64(obj.Size),
			"s3_etag":         strings.Trim(aws.ToString(obj.ETag), `"`),
			"s3_lastmodified": aws.ToTime(obj.LastModified),
		}
	}

	recs, err := fetcher.FetchByFilter(ctx, record.GenomicFiles, dataservice.Filter{"study_id": studyKFID})
	if err != nil {
		return nil, err
	}
	for _, r := range recs {
		externalID, _ := r["external_id"].(string)
		m, ok := merged[externalID]
		if !ok {
			m = make(MergedFile)
			merged[externalID] = m
		}
		for k, v := range r {
			switch k {
			case "_links", "access_urls", "urls":
				continue
			}
			m["kf_"+strings.ToLower(k)] = v
		}
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]MergedFile, 0, len(keys))
	for _, k := range keys {
		out = append(out, merged[k])
	}
	return out, nil
}

func listBucketObjects(ctx context.Context, lister ObjectLister, bucket string) ([]s3types.Object, error) {
	var objects []s3types.Object
	var token *string
	for {
		page, err := lister.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(bucket),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, err
		}
		objects = append(objects, page.Contents...)
		if page.IsTruncated != nil && *page.IsTruncated && page.NextContinuationToken != nil {
			token = page.NextContinuationToken
			continue
		}
		break
	}
	return objects, nil
}

func excluded(key string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(key, p) {
			return true
		}
	}
	return false
}
