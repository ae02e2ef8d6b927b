// Package memory provides an in-memory dataservice backend with the same
// query semantics as the remote API, including the join-backed cross filters
// between biospecimens and genomic files. It backs tests and dry runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/kids-first/dataservice-utils/pkg/dataservice"
	"github.com/kids-first/dataservice-utils/pkg/record"
)

// Datastore holds records per type, keyed by KF ID.
type Datastore struct {
	mu       sync.RWMutex
	records  map[record.Type]map[string]record.Record
	scans    map[record.Type]int
	failures map[record.Type]error
}

var (
	_ dataservice.Fetcher = (*Datastore)(nil)
	_ dataservice.Patcher = (*Datastore)(nil)
	_ dataservice.Deleter = (*Datastore)(nil)
)

func New() *Datastore {
	return &Datastore{
		records:  make(map[record.Type]map[string]record.Record),
		scans:    make(map[record.Type]int),
		failures: make(map[record.Type]error),
	}
}

// Host reports where this datastore lives. Always local, so destructive
// callers treat it as safe.
func (d *Datastore) Host() string { return "localhost" }

// Add stores copies of the given records, typed by their KF ID prefix.
// Unknown prefixes panic: fixtures with bad IDs are programmer errors.
func (d *Datastore) Add(recs ...record.Record) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, r := range recs {
		t, err := record.TypeOf(r.KFID())
		if err != nil {
			panic(err)
		}
		if d.records[t] == nil {
			d.records[t] = make(map[string]record.Record)
		}
		d.records[t][r.KFID()] = cloneRecord(r)
	}
}

// AddJoin stores a biospecimen↔genomic-file join row carrying both foreign
// keys and the HAL links the remote API attaches to join rows.
func (d *Datastore) AddJoin(joinID, bsID, gfID string) {
	d.Add(record.Record{
		"kf_id":           joinID,
		"visible":         true,
		"biospecimen_id":  bsID,
		"genomic_file_id": gfID,
		"_links": map[string]any{
			"biospecimen":  "/biospecimens/" + bsID,
			"genomic_file": "/genomic-files/" + gfID,
		},
	})
}

// FailScans makes every subsequent filter scan of t return err.
func (d *Datastore) FailScans(t record.Type, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures[t] = err
}

// ScanCount reports how many filter scans were issued against t.
func (d *Datastore) ScanCount(t record.Type) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.scans[t]
}

// Get returns the stored record for kfid, if present.
func (d *Datastore) Get(kfid string) (record.Record, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	t, err := record.TypeOf(kfid)
	if err != nil {
		return nil, false
	}
	r, ok := d.records[t][kfid]
	if !ok {
		return nil, false
	}
	return cloneRecord(r), true
}

func (d *Datastore) FetchByFilter(ctx context.Context, t record.Type, filter dataservice.Filter) ([]record.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	d.scans[t]++
	failure := d.failures[t]
	d.mu.Unlock()
	if failure != nil {
		return nil, failure
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []record.Record
	for _, r := range d.records[t] {
		if d.matchesLocked(t, r, filter) {
			out = append(out, cloneRecord(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].KFID() < out[j].KFID() })
	return out, nil
}

func (d *Datastore) FetchByIDs(ctx context.Context, kfids []string) ([]record.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]record.Record, 0, len(kfids))
	for _, kfid := range kfids {
		t, err := record.TypeOf(kfid)
		if err != nil {
			return nil, err
		}
		r, ok := d.records[t][kfid]
		if !ok {
			return nil, fmt.Errorf("no such record: %s", kfid)
		}
		out = append(out, cloneRecord(r))
	}
	return out, nil
}

func (d *Datastore) Patch(ctx context.Context, kfid string, patch map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	t, err := record.TypeOf(kfid)
	if err != nil {
		return err
	}
	r, ok := d.records[t][kfid]
	if !ok {
		return fmt.Errorf("no such record: %s", kfid)
	}
	for k, v := range patch {
		r[k] = v
	}
	return nil
}

func (d *Datastore) Delete(ctx context.Context, kfid string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	t, err := record.TypeOf(kfid)
	if err != nil {
		return err
	}
	delete(d.records[t], kfid)
	return nil
}

// matchesLocked applies the remote API's filter semantics: every filter
// field must match a record field verbatim, except for the join-backed cross
// filters (genomic-files by biospecimen_id, biospecimens by genomic_file_id)
// which the API resolves through the join rows.
func (d *Datastore) matchesLocked(t record.Type, r record.Record, filter dataservice.Filter) bool {
	for k, want := range filter {
		switch {
		case t == record.GenomicFiles && k == "biospecimen_id":
			if !d.joinedLocked(want, r.KFID()) {
				return false
			}
		case t == record.Biospecimens && k == "genomic_file_id":
			if !d.joinedLocked(r.KFID(), want) {
				return false
			}
		default:
			got, ok := r[k]
			if !ok || fmt.Sprint(got) != want {
				return false
			}
		}
	}
	return true
}

func (d *Datastore) joinedLocked(bsID, gfID string) bool {
	for _, j := range d.records[record.BiospecimenGenomicFiles] {
		if j["biospecimen_id"] == bsID && j["genomic_file_id"] == gfID {
			return true
		}
	}
	return false
}

func cloneRecord(r record.Record) record.Record {
	out := make(record.Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// KFIDWithPrefix builds a deterministic fixture KF ID, e.g.
// KFIDWithPrefix("BS", 3) == "BS_00000003". Panics on unknown prefixes so a
// typo in a fixture fails fast.
func KFIDWithPrefix(prefix string, n int) string {
	kfid := fmt.Sprintf("%s_%08d", strings.ToUpper(prefix), n)
	if _, err := record.TypeOf(kfid); err != nil {
		panic(err)
	}
	return kfid
}
