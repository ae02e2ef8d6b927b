package mutation

import (
	"context"

	"github.com/kids-first/dataservice-utils/pkg/dataservice"
	"github.com/kids-first/dataservice-utils/pkg/descendants"
	"github.com/kids-first/dataservice-utils/pkg/record"
)

// Hiding and showing are deliberately asymmetric. Hiding hides partially
// contributed genomic files too: a human reviewing over-hidden data is lower
// risk than one reviewing accidentally exposed data. Showing only shows a
// partially contributed file if every contributor outside the closure is
// already visible. Callers needing symmetrical behavior must keep the
// changed-ID lists these methods return.

// HideDescendants hides the given records and everything reachable below
// them. Returns the KF IDs whose visibility actually changed.
func (d *Dispatcher) HideDescendants(ctx context.Context, startType record.Type, kfids []string, gfACL []string) ([]string, error) {
	closure, err := d.query().Execute(ctx, descendants.ExpandRequest{
		StartType:                        startType,
		KFIDs:                            kfids,
		IgnoreHiddenExternalContributors: false,
	})
	if err != nil {
		return nil, err
	}
	return d.Hide(ctx, closure, gfACL)
}

// UnhideDescendants shows the given records and everything reachable below
// them, except genomic files whose extra contributors are hidden or of mixed
// visibility. Returns the KF IDs whose visibility actually changed.
func (d *Dispatcher) UnhideDescendants(ctx context.Context, startType record.Type, kfids []string) ([]string, error) {
	closure, err := d.query().Execute(ctx, descendants.ExpandRequest{
		StartType:                        startType,
		KFIDs:                            kfids,
		IgnoreHiddenExternalContributors: true,
	})
	if err != nil {
		return nil, err
	}
	return d.Unhide(ctx, closure)
}

// HideDescendantsByFilter is HideDescendants with a filter query selecting
// the seed records instead of explicit KF IDs.
func (d *Dispatcher) HideDescendantsByFilter(ctx context.Context, startType record.Type, filter dataservice.Filter, gfACL []string) ([]string, error) {
	closure, err := d.expandFromFilter(ctx, startType, filter, false)
	if err != nil {
		return nil, err
	}
	return d.Hide(ctx, closure, gfACL)
}

// UnhideDescendantsByFilter is UnhideDescendants with a filter query
// selecting the seed records instead of explicit KF IDs.
func (d *Dispatcher) UnhideDescendantsByFilter(ctx context.Context, startType record.Type, filter dataservice.Filter) ([]string, error) {
	closure, err := d.expandFromFilter(ctx, startType, filter, true)
	if err != nil {
		return nil, err
	}
	return d.Unhide(ctx, closure)
}

func (d *Dispatcher) expandFromFilter(ctx context.Context, startType record.Type, filter dataservice.Filter, ignoreHiddenExternal bool) (descendants.Closure, error) {
	seeds, err := d.backend.FetchByFilter(ctx, startType, filter)
	if err != nil {
		return nil, err
	}
	return d.query().Execute(ctx, descendants.ExpandRequest{
		StartType:                        startType,
		Seeds:                            seeds,
		IgnoreHiddenExternalContributors: ignoreHiddenExternal,
	})
}
