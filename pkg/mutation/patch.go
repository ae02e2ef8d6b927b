// Package mutation issues the bulk visibility patches and deletions that act
// on a discovered closure. The closure engine only discovers; this package
// decides per record whether a call is actually necessary and reports
// exactly what changed.
package mutation

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/kids-first/dataservice-utils/internal/concurrency"
	"github.com/kids-first/dataservice-utils/pkg/dataservice"
	"github.com/kids-first/dataservice-utils/pkg/descendants"
	"github.com/kids-first/dataservice-utils/pkg/logger"
	"github.com/kids-first/dataservice-utils/pkg/record"
)

// Patch is a partial update for one record.
type Patch map[string]any

// Backend is the full dataservice surface the dispatcher needs: reads for
// closure computation, patches and deletes for mutation, and the host name
// for the deletion safety check.
type Backend interface {
	dataservice.Fetcher
	dataservice.Patcher
	dataservice.Deleter

	// Host returns the hostname the backend mutates.
	Host() string
}

// Dispatcher applies visibility changes and deletions against one backend.
type Dispatcher struct {
	backend           Backend
	logger            logger.Logger
	breadthLimit      int
	dryRun            bool
	allowRemoteDelete bool
}

type DispatcherOption func(*Dispatcher)

func WithLogger(l logger.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.logger = l }
}

// WithBreadthLimit bounds the concurrent patch and fetch fan-out.
func WithBreadthLimit(n int) DispatcherOption {
	return func(d *Dispatcher) { d.breadthLimit = n }
}

// WithDryRun computes and reports what would change without issuing any
// patch or delete calls.
func WithDryRun(dryRun bool) DispatcherOption {
	return func(d *Dispatcher) { d.dryRun = dryRun }
}

// WithRemoteDeleteAllowed disables the localhost-only deletion guard.
func WithRemoteDeleteAllowed(allowed bool) DispatcherOption {
	return func(d *Dispatcher) { d.allowRemoteDelete = allowed }
}

func NewDispatcher(b Backend, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		backend:      b,
		logger:       logger.NewNoopLogger(),
		breadthLimit: dataservice.DefaultBreadthLimit,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Dispatcher) query() *descendants.ClosureQuery {
	return descendants.NewClosureQuery(d.backend,
		descendants.WithLogger(d.logger),
		descendants.WithBreadthLimit(d.breadthLimit))
}

// Hide patches every record in the closure that is currently visible to
// visible=false. Genomic files additionally get their ACL replaced with
// gfACL (emptied when nil). Returns the KF IDs actually changed, sorted;
// records already hidden are skipped, so hiding twice changes nothing.
func (d *Dispatcher) Hide(ctx context.Context, closure descendants.Closure, gfACL []string) ([]string, error) {
	if gfACL == nil {
		gfACL = []string{}
	}

	patches := make(map[string]Patch)
	for t, recs := range closure {
		for kfid, r := range recs {
			if !r.Visible() {
				continue
			}
			p := Patch{"visible": false}
			if t == record.GenomicFiles {
				p["acl"] = gfACL
			}
			patches[kfid] = p
		}
	}

	if err := d.send(ctx, patches); err != nil {
		return nil, err
	}
	return sortedKeys(patches), nil
}

// Unhide patches every record in the closure that is currently hidden to
// visible=true. Returns the KF IDs actually changed, sorted.
func (d *Dispatcher) Unhide(ctx context.Context, closure descendants.Closure) ([]string, error) {
	patches := make(map[string]Patch)
	for _, recs := range closure {
		for kfid, r := range recs {
			if r.Visible() {
				continue
			}
			patches[kfid] = Patch{"visible": true}
		}
	}

	if err := d.send(ctx, patches); err != nil {
		return nil, err
	}
	return sortedKeys(patches), nil
}

// send submits all patches concurrently. Any failed patch cancels the rest
// and is returned.
func (d *Dispatcher) send(ctx context.Context, patches map[string]Patch) error {
	if d.dryRun {
		d.logger.Info("dry run, skipping patches", zap.Int("count", len(patches)))
		return nil
	}

	p := concurrency.NewPool(ctx, d.breadthLimit)
	for kfid, patch := range patches {
		kfid, patch := kfid, patch
		p.Go(func(ctx context.Context) error {
			return d.backend.Patch(ctx, kfid, patch)
		})
	}
	return p.Wait()
}

func sortedKeys(patches map[string]Patch) []string {
	out := make([]string, 0, len(patches))
	for kfid := range patches {
		out = append(out, kfid)
	}
	sort.Strings(out)
	return out
}
