package mutation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kids-first/dataservice-utils/pkg/dataservice/memory"
	"github.com/kids-first/dataservice-utils/pkg/record"
)

// deleteWorld builds two self-contained studies. Every record carries
// study_id, as it does in the remote API's filterable view.
func deleteWorld(t *testing.T) *memory.Datastore {
	t.Helper()
	ds := memory.New()
	for i, sd := range []string{"SD_00000001", "SD_00000002"} {
		n := i + 1
		pt := memory.KFIDWithPrefix("PT", n)
		bs := memory.KFIDWithPrefix("BS", n)
		gf := memory.KFIDWithPrefix("GF", n)
		ds.Add(
			record.Record{"kf_id": sd, "visible": true},
			record.Record{"kf_id": pt, "visible": true, "study_id": sd},
			record.Record{"kf_id": bs, "visible": true, "study_id": sd, "participant_id": pt},
			record.Record{"kf_id": gf, "visible": true, "study_id": sd},
			record.Record{"kf_id": memory.KFIDWithPrefix("RG", n), "visible": true, "study_id": sd, "genomic_file_id": gf},
			record.Record{"kf_id": memory.KFIDWithPrefix("BG", n), "visible": true, "study_id": sd, "biospecimen_id": bs, "genomic_file_id": gf},
		)
	}
	return ds
}

func TestDeleteStudiesRemovesOnlyTargetStudy(t *testing.T) {
	ds := deleteWorld(t)
	d := NewDispatcher(ds)

	require.NoError(t, d.DeleteStudies(context.Background(), []string{"SD_00000001"}))

	for _, kfid := range []string{"SD_00000001", "PT_00000001", "BS_00000001", "GF_00000001", "RG_00000001", "BG_00000001"} {
		_, ok := ds.Get(kfid)
		require.False(t, ok, "record %s should be gone", kfid)
	}
	for _, kfid := range []string{"SD_00000002", "PT_00000002", "BS_00000002", "GF_00000002", "RG_00000002", "BG_00000002"} {
		_, ok := ds.Get(kfid)
		require.True(t, ok, "record %s should survive", kfid)
	}
}

func TestDeleteStudiesWithNoStudiesEmptiesEverything(t *testing.T) {
	ds := deleteWorld(t)
	d := NewDispatcher(ds)

	require.NoError(t, d.DeleteStudies(context.Background(), nil))

	for _, kfid := range []string{
		"SD_00000001", "PT_00000001", "BS_00000001",
		"SD_00000002", "PT_00000002", "GF_00000002",
	} {
		_, ok := ds.Get(kfid)
		require.False(t, ok, "record %s should be gone", kfid)
	}
}

func TestDeleteKFIDs(t *testing.T) {
	ds := deleteWorld(t)
	d := NewDispatcher(ds)

	require.NoError(t, d.DeleteKFIDs(context.Background(), []string{"RG_00000001", "RG_00000002"}))

	_, ok := ds.Get("RG_00000001")
	require.False(t, ok)
	_, ok = ds.Get("RG_00000002")
	require.False(t, ok)
	_, ok = ds.Get("GF_00000001")
	require.True(t, ok)
}

// remoteBackend wraps the local datastore behind a production-looking host
// name to exercise the deletion guard.
type remoteBackend struct {
	*memory.Datastore
}

func (remoteBackend) Host() string { return "kf-api-dataservice.kidsfirstdrc.org" }

func TestDeleteGuardBlocksRemoteHosts(t *testing.T) {
	ds := deleteWorld(t)
	d := NewDispatcher(remoteBackend{ds})

	err := d.DeleteKFIDs(context.Background(), []string{"RG_00000001"})
	require.ErrorIs(t, err, ErrRemoteDeleteBlocked)

	err = d.DeleteStudies(context.Background(), []string{"SD_00000001"})
	require.ErrorIs(t, err, ErrRemoteDeleteBlocked)

	_, ok := ds.Get("RG_00000001")
	require.True(t, ok)
}

func TestDeleteGuardOverride(t *testing.T) {
	ds := deleteWorld(t)
	d := NewDispatcher(remoteBackend{ds}, WithRemoteDeleteAllowed(true))

	require.NoError(t, d.DeleteKFIDs(context.Background(), []string{"RG_00000001"}))

	_, ok := ds.Get("RG_00000001")
	require.False(t, ok)
}

func TestDeleteDryRun(t *testing.T) {
	ds := deleteWorld(t)
	d := NewDispatcher(ds, WithDryRun(true))

	require.NoError(t, d.DeleteKFIDs(context.Background(), []string{"RG_00000001"}))

	_, ok := ds.Get("RG_00000001")
	require.True(t, ok)
}
