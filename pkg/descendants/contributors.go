package descendants

import (
	"context"
	"sync"

	"github.com/kids-first/dataservice-utils/internal/concurrency"
	"github.com/kids-first/dataservice-utils/internal/graph"
	"github.com/kids-first/dataservice-utils/pkg/dataservice"
	"github.com/kids-first/dataservice-utils/pkg/record"
)

// ExtraContributors buckets genomic files that have contributing
// biospecimens outside a known set, by the visibility of those extra
// contributors. A file fully owned by the known set appears in no bucket.
type ExtraContributors struct {
	// Visible holds files whose extra contributors are all visible.
	Visible map[string]struct{}

	// Hidden holds files whose extra contributors are all hidden.
	Hidden map[string]struct{}

	// Mixed holds files with both hidden and visible extra contributors.
	Mixed map[string]struct{}
}

// FindExtraContributors classifies the genomic files in gfKFIDs by the
// visibility of their contributing biospecimens outside bsKFIDs. If gfKFIDs
// is empty, the candidate files are first discovered through the
// biospecimen↔genomic-file join rows of bsKFIDs.
//
// Any fetch failure aborts the whole classification: undercounting extra
// contributors could green-light an unsafe visibility change.
func (q *ClosureQuery) FindExtraContributors(ctx context.Context, bsKFIDs, gfKFIDs []string) (ExtraContributors, error) {
	edge, _ := graph.SharedChildEdge(record.GenomicFiles)

	extras := ExtraContributors{
		Visible: make(map[string]struct{}),
		Hidden:  make(map[string]struct{}),
		Mixed:   make(map[string]struct{}),
	}

	known := make(map[string]struct{}, len(bsKFIDs))
	for _, kfid := range bsKFIDs {
		known[kfid] = struct{}{}
	}

	if len(gfKFIDs) == 0 {
		candidates, err := q.candidateFilesFromJoins(ctx, edge, bsKFIDs)
		if err != nil {
			return ExtraContributors{}, err
		}
		gfKFIDs = candidates
	}

	var mu sync.Mutex
	p := concurrency.NewPool(ctx, q.breadthLimit)
	for _, gfKFID := range gfKFIDs {
		gfKFID := gfKFID
		p.Go(func(ctx context.Context) error {
			contribs, err := q.fetcher.FetchByFilter(ctx, record.Biospecimens,
				dataservice.Filter{edge.ChildKey: gfKFID})
			if err != nil {
				return err
			}

			hasVisible, hasHidden, hasExtra := false, false, false
			for _, bs := range contribs {
				if _, ok := known[bs.KFID()]; ok {
					continue
				}
				hasExtra = true
				if bs.Visible() {
					hasVisible = true
				} else {
					hasHidden = true
				}
			}
			if !hasExtra {
				return nil
			}

			mu.Lock()
			switch {
			case hasVisible && hasHidden:
				extras.Mixed[gfKFID] = struct{}{}
			case hasHidden:
				extras.Hidden[gfKFID] = struct{}{}
			default:
				extras.Visible[gfKFID] = struct{}{}
			}
			mu.Unlock()
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return ExtraContributors{}, err
	}
	return extras, nil
}

// candidateFilesFromJoins resolves the genomic files linked to any of the
// given biospecimens by scanning their join rows, which carry the file's KF
// ID in their links rather than as a flat foreign key.
func (q *ClosureQuery) candidateFilesFromJoins(ctx context.Context, edge graph.JoinedEdge, bsKFIDs []string) ([]string, error) {
	var mu sync.Mutex
	seen := make(map[string]struct{})

	p := concurrency.NewPool(ctx, q.breadthLimit)
	for _, bsKFID := range bsKFIDs {
		bsKFID := bsKFID
		p.Go(func(ctx context.Context) error {
			joins, err := q.fetcher.FetchByFilter(ctx, edge.JoinType,
				dataservice.Filter{edge.ParentKey: bsKFID})
			if err != nil {
				return err
			}

			mu.Lock()
			for _, j := range joins {
				if gfKFID := j.LinkID(edge.ChildLink); gfKFID != "" {
					seen[gfKFID] = struct{}{}
				}
			}
			mu.Unlock()
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}

	candidates := make([]string, 0, len(seen))
	for kfid := range seen {
		candidates = append(candidates, kfid)
	}
	return candidates, nil
}
