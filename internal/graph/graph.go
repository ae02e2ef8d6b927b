// Package graph declares the static parent→child descendancy of the
// dataservice's entity kinds. The relation set is fixed at design time and
// forms a DAG; nothing here performs I/O.
package graph

import (
	"github.com/kids-first/dataservice-utils/pkg/record"
)

// Edge is one declared parent→child relation. It is a sealed tagged variant:
// traversal code switches on the concrete type rather than invoking opaque
// extractors.
type Edge interface {
	isEdge()

	// Child is the record type this edge leads to.
	Child() record.Type
}

// DirectEdge is a relation where the child record carries a foreign key
// naming the parent, so children are discovered with a single filter query
// on the child endpoint.
type DirectEdge struct {
	ChildType  record.Type
	ForeignKey string
}

func (DirectEdge) isEdge() {}

func (e DirectEdge) Child() record.Type { return e.ChildType }

// JoinedEdge is a many-to-many relation mediated by a join record type. It
// carries both query forms: the child endpoint still accepts ParentKey as a
// direct filter (used when full child records are wanted), and the join
// endpoint yields the child's KF ID through the ChildLink entry of its
// "_links" (used when record identity alone is enough). ChildKey is the
// filter field that walks the relation in reverse, from a child to all of
// its contributing parents.
type JoinedEdge struct {
	ChildType record.Type
	JoinType  record.Type
	ParentKey string
	ChildKey  string
	ChildLink string
}

func (JoinedEdge) isEdge() {}

func (e JoinedEdge) Child() record.Type { return e.ChildType }

// descendancy lists every parent type in topological order, studies first.
// Deletion order, visited-set seeding, and traversal order all derive from
// this declaration, so the order of entries and of edges within an entry is
// load-bearing for determinism (not for correctness).
var descendancy = []struct {
	parent record.Type
	edges  []Edge
}{
	{record.Studies, []Edge{
		DirectEdge{record.Participants, "study_id"},
		DirectEdge{record.Families, "study_id"},
	}},
	{record.Families, []Edge{
		DirectEdge{record.Participants, "family_id"},
	}},
	{record.Participants, []Edge{
		DirectEdge{record.FamilyRelationships, "participant1_id"},
		DirectEdge{record.FamilyRelationships, "participant2_id"},
		DirectEdge{record.Outcomes, "participant_id"},
		DirectEdge{record.Phenotypes, "participant_id"},
		DirectEdge{record.Diagnoses, "participant_id"},
		DirectEdge{record.Biospecimens, "participant_id"},
	}},
	{record.Biospecimens, []Edge{
		JoinedEdge{
			ChildType: record.GenomicFiles,
			JoinType:  record.BiospecimenGenomicFiles,
			ParentKey: "biospecimen_id",
			ChildKey:  "genomic_file_id",
			ChildLink: "genomic_file",
		},
		DirectEdge{record.BiospecimenDiagnoses, "biospecimen_id"},
	}},
	{record.GenomicFiles, []Edge{
		DirectEdge{record.ReadGroups, "genomic_file_id"},
		DirectEdge{record.ReadGroupGenomicFiles, "genomic_file_id"},
		DirectEdge{record.SequencingExperiments, "genomic_file_id"},
		DirectEdge{record.SequencingExperimentGenomicFiles, "genomic_file_id"},
		DirectEdge{record.BiospecimenGenomicFiles, "genomic_file_id"},
	}},
}

// ChildrenOf returns the declared outgoing edges of t in stable order. A
// type with no declared edges is a leaf and returns nil.
func ChildrenOf(t record.Type) []Edge {
	for _, d := range descendancy {
		if d.parent == t {
			return d.edges
		}
	}
	return nil
}

// Ancestors returns every declared parent type that precedes t in
// topological order. A traversal starting at t must never re-derive these.
// If t itself has no declared edges, every declared parent precedes it.
func Ancestors(t record.Type) []record.Type {
	var above []record.Type
	for _, d := range descendancy {
		if d.parent == t {
			return above
		}
		above = append(above, d.parent)
	}
	return above
}

// SharedChildEdge returns the join-mediated edge whose child is t, if one is
// declared. GenomicFiles is the only such child in the current schema.
func SharedChildEdge(t record.Type) (JoinedEdge, bool) {
	for _, d := range descendancy {
		for _, e := range d.edges {
			if je, ok := e.(JoinedEdge); ok && je.ChildType == t {
				return je, true
			}
		}
	}
	return JoinedEdge{}, false
}
