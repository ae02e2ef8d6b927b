package mutation

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kids-first/dataservice-utils/pkg/dataservice"
	"github.com/kids-first/dataservice-utils/pkg/record"
)

// deletionOrder lists endpoints leaves first. DO NOT RE-ORDER: deleting a
// parent first triggers a cascading delete in the service's database, and
// large cascades are known to crash it.
var deletionOrder = []record.Type{
	record.ReadGroups,
	record.ReadGroupGenomicFiles,
	record.SequencingExperiments,
	record.SequencingExperimentGenomicFiles,
	record.GenomicFiles,
	record.BiospecimenGenomicFiles,
	record.BiospecimenDiagnoses,
	record.Biospecimens,
	record.Outcomes,
	record.Phenotypes,
	record.Diagnoses,
	record.Participants,
	record.FamilyRelationships,
	record.Families,
	record.Samples,
}

// deleteConcurrency bounds concurrent DELETE calls. Deletion is the one
// operation the service handles poorly under load, so it stays lower than
// the read fan-out.
const deleteConcurrency = 5

var localHosts = map[string]struct{}{
	"localhost": {},
	"127.0.0.1": {},
	"::1":       {},
}

// ErrRemoteDeleteBlocked guards against deleting from anything that is not a
// local instance.
var ErrRemoteDeleteBlocked = errors.New("refusing to delete from a non-local host")

func (d *Dispatcher) guardDelete() error {
	if d.allowRemoteDelete {
		return nil
	}
	host := d.backend.Host()
	if _, ok := localHosts[host]; !ok {
		return fmt.Errorf("%w: %q (use WithRemoteDeleteAllowed to override)", ErrRemoteDeleteBlocked, host)
	}
	return nil
}

// DeleteKFIDs deletes the given records with a bounded concurrent fan-out.
// Unless remote deletion was explicitly allowed, only local hosts are
// touched.
func (d *Dispatcher) DeleteKFIDs(ctx context.Context, kfids []string) error {
	if err := d.guardDelete(); err != nil {
		return err
	}
	if d.dryRun {
		d.logger.Info("dry run, skipping deletes", zap.Int("count", len(kfids)))
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(deleteConcurrency)
	for _, kfid := range kfids {
		kfid := kfid
		g.Go(func() error {
			return d.backend.Delete(ctx, kfid)
		})
	}
	return g.Wait()
}

// DeleteStudies deletes every record belonging to the given studies, then
// the studies themselves. With no study IDs it empties the whole service.
// Each endpoint is drained leaves first per deletionOrder.
func (d *Dispatcher) DeleteStudies(ctx context.Context, studyKFIDs []string) error {
	if err := d.guardDelete(); err != nil {
		return err
	}

	if len(studyKFIDs) == 0 {
		return d.deleteAll(ctx)
	}

	for _, studyKFID := range studyKFIDs {
		for _, t := range deletionOrder {
			if err := d.deleteMatching(ctx, t, dataservice.Filter{"study_id": studyKFID}); err != nil {
				return err
			}
		}
		if err := d.DeleteKFIDs(ctx, []string{studyKFID}); err != nil {
			return err
		}
		d.logger.Info("deleted study", zap.String("kf_id", studyKFID))
	}
	return nil
}

func (d *Dispatcher) deleteAll(ctx context.Context) error {
	for _, t := range deletionOrder {
		if err := d.deleteMatching(ctx, t, dataservice.Filter{}); err != nil {
			return err
		}
	}
	return d.deleteMatching(ctx, record.Studies, dataservice.Filter{})
}

func (d *Dispatcher) deleteMatching(ctx context.Context, t record.Type, filter dataservice.Filter) error {
	recs, err := d.backend.FetchByFilter(ctx, t, filter)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		return nil
	}

	kfids := make([]string, 0, len(recs))
	for _, r := range recs {
		kfids = append(kfids, r.KFID())
	}
	d.logger.Info("deleting records",
		zap.String("endpoint", t.Endpoint()),
		zap.Int("count", len(kfids)))
	return d.DeleteKFIDs(ctx, kfids)
}
