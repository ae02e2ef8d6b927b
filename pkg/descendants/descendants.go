// Package descendants implements the descendant-closure traversal engine:
// given a seed set of records of one type, it discovers every record of
// every type reachable through the declared descendancy graph, with the
// visibility-aware handling of multi-contributor genomic files.
package descendants

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/kids-first/dataservice-utils/internal/concurrency"
	"github.com/kids-first/dataservice-utils/internal/graph"
	"github.com/kids-first/dataservice-utils/pkg/dataservice"
	"github.com/kids-first/dataservice-utils/pkg/logger"
	"github.com/kids-first/dataservice-utils/pkg/record"
)

// DefaultBreadthLimit bounds how many per-parent child queries run
// concurrently for a single edge.
const DefaultBreadthLimit = 25

// Closure maps each reached record type to its discovered records, keyed by
// KF ID. A type appears at most once and is expanded at most once per
// traversal, so diamond shapes in the graph cannot duplicate work.
type Closure map[record.Type]map[string]record.Record

// KFIDs returns the identifier-only view of the closure, sorted per type.
func (c Closure) KFIDs() map[record.Type][]string {
	out := make(map[record.Type][]string, len(c))
	for t, recs := range c {
		ids := make([]string, 0, len(recs))
		for kfid := range recs {
			ids = append(ids, kfid)
		}
		sort.Strings(ids)
		out[t] = ids
	}
	return out
}

// Size returns the total number of records across all types.
func (c Closure) Size() int {
	n := 0
	for _, recs := range c {
		n += len(recs)
	}
	return n
}

// ExpandRequest describes one closure computation.
type ExpandRequest struct {
	// StartType is the entity kind of the seed set.
	StartType record.Type

	// KFIDs seeds the traversal with bare identifiers; the full records are
	// fetched once before descending. Ignored when Seeds is set.
	KFIDs []string

	// Seeds seeds the traversal with already-fetched records.
	Seeds []record.Record

	// IgnoreHiddenExternalContributors prunes genomic files that have hidden
	// or mixed-visibility contributing biospecimens outside the discovered
	// set. Set it when the closure is destined to become visible, so that no
	// file is exposed on behalf of a still-hidden contributor. Leave it
	// unset when the closure is destined to become hidden, so that
	// everything linked gets hidden.
	IgnoreHiddenExternalContributors bool
}

// ClosureQuery computes descendant closures against a Fetcher.
type ClosureQuery struct {
	fetcher      dataservice.Fetcher
	logger       logger.Logger
	breadthLimit int
}

type ClosureQueryOption func(*ClosureQuery)

func WithLogger(l logger.Logger) ClosureQueryOption {
	return func(q *ClosureQuery) { q.logger = l }
}

// WithBreadthLimit bounds the per-edge fetch fan-out.
func WithBreadthLimit(n int) ClosureQueryOption {
	return func(q *ClosureQuery) { q.breadthLimit = n }
}

func NewClosureQuery(f dataservice.Fetcher, opts ...ClosureQueryOption) *ClosureQuery {
	q := &ClosureQuery{
		fetcher:      f,
		logger:       logger.NewNoopLogger(),
		breadthLimit: DefaultBreadthLimit,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Execute computes the full descendant closure of the request's seed set.
// The closure includes the seeds at their own type. On any fetch failure or
// cancellation the whole computation fails; a partial closure is never
// returned, because the visibility guarantees downstream depend on the
// result being complete.
func (q *ClosureQuery) Execute(ctx context.Context, req ExpandRequest) (Closure, error) {
	seeds := req.Seeds
	if seeds == nil && len(req.KFIDs) > 0 {
		var err error
		seeds, err = q.fetcher.FetchByIDs(ctx, req.KFIDs)
		if err != nil {
			return nil, err
		}
	}

	result := Closure{req.StartType: make(map[string]record.Record, len(seeds))}
	for _, s := range seeds {
		t, err := record.TypeOf(s.KFID())
		if err != nil {
			return nil, err
		}
		if t != req.StartType {
			return nil, fmt.Errorf("seed %s is a %s record, not %s", s.KFID(), t, req.StartType)
		}
		result[req.StartType][s.KFID()] = s
	}

	// Never re-derive a type above the entry point.
	visited := make(map[record.Type]struct{})
	for _, t := range graph.Ancestors(req.StartType) {
		visited[t] = struct{}{}
	}

	if err := q.descend(ctx, &req, visited, req.StartType, result); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		// A canceled traversal must never read as a truncated success.
		return nil, err
	}

	q.logger.Debug("closure complete",
		zap.String("start_type", req.StartType.Endpoint()),
		zap.Int("seed_count", len(seeds)),
		zap.Int("record_count", result.Size()))
	return result, nil
}

// descend expands one type's frontier through each of its outgoing edges,
// then recurses into each reached child type. Depth-first on the DAG:
// genomic-file pruning must complete before that type's own children are
// expanded from the possibly-pruned set.
func (q *ClosureQuery) descend(
	ctx context.Context,
	req *ExpandRequest,
	visited map[record.Type]struct{},
	t record.Type,
	result Closure,
) error {
	if _, ok := visited[t]; ok {
		return nil
	}
	visited[t] = struct{}{}

	frontier := sortedKFIDs(result[t])
	if len(frontier) == 0 {
		return nil
	}

	edges := graph.ChildrenOf(t)
	var errs *multierror.Error

LoopOnEdges:
	for _, edge := range edges {
		children, err := q.fetchChildren(ctx, edge, frontier)
		if err != nil {
			errs = multierror.Append(errs, err)
			break LoopOnEdges
		}

		if len(children) > 0 {
			if result[edge.Child()] == nil {
				result[edge.Child()] = make(map[string]record.Record, len(children))
			}
			for kfid, r := range children {
				result[edge.Child()][kfid] = r
			}
		}

		if edge.Child() == record.GenomicFiles && req.IgnoreHiddenExternalContributors {
			if err := q.pruneExternallyHidden(ctx, result); err != nil {
				errs = multierror.Append(errs, err)
				break LoopOnEdges
			}
		}
	}
	if err := errs.ErrorOrNil(); err != nil {
		return err
	}

	for _, edge := range edges {
		if len(result[edge.Child()]) == 0 {
			continue
		}
		if err := q.descend(ctx, req, visited, edge.Child(), result); err != nil {
			return err
		}
	}
	return nil
}

// fetchChildren issues one child query per frontier identifier, fanned out
// over a bounded pool, and unions the results. It returns only once every
// sub-query has settled: callers need the complete child set.
func (q *ClosureQuery) fetchChildren(ctx context.Context, edge graph.Edge, frontier []string) (map[string]record.Record, error) {
	var mu sync.Mutex
	children := make(map[string]record.Record)

	p := concurrency.NewPool(ctx, q.breadthLimit)
	for _, kfid := range frontier {
		kfid := kfid
		p.Go(func(ctx context.Context) error {
			var filter dataservice.Filter
			switch e := edge.(type) {
			case graph.DirectEdge:
				filter = dataservice.Filter{e.ForeignKey: kfid}
			case graph.JoinedEdge:
				filter = dataservice.Filter{e.ParentKey: kfid}
			default:
				return fmt.Errorf("unsupported edge type %T", edge)
			}

			recs, err := q.fetcher.FetchByFilter(ctx, edge.Child(), filter)
			if err != nil {
				return err
			}

			mu.Lock()
			for _, r := range recs {
				children[r.KFID()] = r
			}
			mu.Unlock()
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}
	return children, nil
}

// pruneExternallyHidden drops from the discovered genomic files every file
// with a hidden or mixed-visibility contributor outside the discovered
// biospecimen set. Files whose extra contributors are all visible stay.
func (q *ClosureQuery) pruneExternallyHidden(ctx context.Context, result Closure) error {
	gfs := result[record.GenomicFiles]
	if len(gfs) == 0 {
		return nil
	}

	extras, err := q.FindExtraContributors(ctx,
		sortedKFIDs(result[record.Biospecimens]),
		sortedKFIDs(gfs))
	if err != nil {
		return err
	}

	for kfid := range extras.Hidden {
		delete(gfs, kfid)
	}
	for kfid := range extras.Mixed {
		delete(gfs, kfid)
	}

	if n := len(extras.Hidden) + len(extras.Mixed); n > 0 {
		q.logger.Info("excluded genomic files with hidden external contributors",
			zap.Int("excluded", n))
	}
	return nil
}

func sortedKFIDs(recs map[string]record.Record) []string {
	ids := make([]string, 0, len(recs))
	for kfid := range recs {
		ids = append(ids, kfid)
	}
	sort.Strings(ids)
	return ids
}
