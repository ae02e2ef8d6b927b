// Package record defines the typed-record model for the dataservice: the
// fixed set of entity kinds, the KF ID prefix table that maps an identifier
// to its kind, and a field-bag view over a single remote record.
package record

import (
	"errors"
	"fmt"
	"strings"
)

// Type names one of the fixed entity kinds. Its string value is the REST
// endpoint for that kind, e.g. "biospecimens".
type Type string

const (
	AliasGroups                      Type = "alias-groups"
	BiospecimenDiagnoses             Type = "biospecimen-diagnoses"
	BiospecimenGenomicFiles          Type = "biospecimen-genomic-files"
	Biospecimens                     Type = "biospecimens"
	CavaticaApps                     Type = "cavatica-apps"
	Diagnoses                        Type = "diagnoses"
	Families                         Type = "families"
	FamilyRelationships              Type = "family-relationships"
	GenomicFiles                     Type = "genomic-files"
	Investigators                    Type = "investigators"
	Outcomes                         Type = "outcomes"
	Phenotypes                       Type = "phenotypes"
	Participants                     Type = "participants"
	ReadGroupGenomicFiles            Type = "read-group-genomic-files"
	ReadGroups                       Type = "read-groups"
	Samples                          Type = "samples"
	SequencingCenters                Type = "sequencing-centers"
	Studies                          Type = "studies"
	SequencingExperiments            Type = "sequencing-experiments"
	StudyFiles                       Type = "study-files"
	SequencingExperimentGenomicFiles Type = "sequencing-experiment-genomic-files"
	TaskGenomicFiles                 Type = "task-genomic-files"
	Tasks                            Type = "tasks"
)

// Endpoint returns the REST path segment for t.
func (t Type) Endpoint() string { return string(t) }

// prefixTypes maps a KF ID prefix to its entity kind. Hand-maintained to
// match the dataservice's ID scheme.
var prefixTypes = map[string]Type{
	"AG": AliasGroups,
	"BD": BiospecimenDiagnoses,
	"BG": BiospecimenGenomicFiles,
	"BS": Biospecimens,
	"CA": CavaticaApps,
	"DG": Diagnoses,
	"FM": Families,
	"FR": FamilyRelationships,
	"GF": GenomicFiles,
	"IG": Investigators,
	"OC": Outcomes,
	"PH": Phenotypes,
	"PT": Participants,
	"RF": ReadGroupGenomicFiles,
	"RG": ReadGroups,
	"SA": Samples,
	"SC": SequencingCenters,
	"SD": Studies,
	"SE": SequencingExperiments,
	"SF": StudyFiles,
	"SG": SequencingExperimentGenomicFiles,
	"TG": TaskGenomicFiles,
	"TK": Tasks,
}

// ParseType resolves an endpoint name like "biospecimens" to its Type.
func ParseType(s string) (Type, error) {
	for _, t := range prefixTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown record type %q", s)
}

// ErrUnknownPrefix is returned when a KF ID's prefix does not map to any
// known entity kind. This is a configuration error, not a leaf condition.
var ErrUnknownPrefix = errors.New("unknown KF ID prefix")

// Prefix returns the leading segment of a KF ID, e.g. "BS" for "BS_12345678".
func Prefix(kfid string) string {
	p, _, _ := strings.Cut(kfid, "_")
	return p
}

// TypeOf resolves a KF ID to its entity kind from its prefix.
func TypeOf(kfid string) (Type, error) {
	t, ok := prefixTypes[Prefix(kfid)]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownPrefix, kfid)
	}
	return t, nil
}

// Endpoint resolves a KF ID to the REST endpoint serving it.
func Endpoint(kfid string) (string, error) {
	t, err := TypeOf(kfid)
	if err != nil {
		return "", err
	}
	return t.Endpoint(), nil
}

// Record is an opaque field bag for one remote record. The service owns the
// schema; callers read fields, they never mutate them in place.
type Record map[string]any

// KFID returns the record's globally unique identifier.
func (r Record) KFID() string {
	id, _ := r["kf_id"].(string)
	return id
}

// Visible reports the record's visibility flag. A missing or non-boolean
// flag reads as hidden.
func (r Record) Visible() bool {
	v, _ := r["visible"].(bool)
	return v
}

// LinkID extracts the trailing KF ID from a HAL-style "_links" entry, e.g.
// LinkID("genomic_file") on a join row whose links contain
// "/genomic-files/GF_12345678" returns "GF_12345678".
func (r Record) LinkID(rel string) string {
	links, _ := r["_links"].(map[string]any)
	href, _ := links[rel].(string)
	if href == "" {
		return ""
	}
	return href[strings.LastIndex(href, "/")+1:]
}
