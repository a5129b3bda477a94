// Package reconcile resolves the free-text division and district of each
// record against the backend's reference lists and normalizes the school id.
package reconcile

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"dcpinventory-desktop/internal/ingest"
	"dcpinventory-desktop/internal/logging"
	"dcpinventory-desktop/internal/models"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"go.uber.org/zap"
)

const (
	UnknownDivision = "Unknown Division"
	UnknownDistrict = "Unknown District"
	UnnamedSchool   = "Unnamed School"

	// NoSchoolID is what division offices type for schools awaiting an id
	NoSchoolID = "No ID yet"

	maxSuggestions = 3
)

// Field names of the reconciled output
const (
	FieldSchoolID = "schoolId"
	FieldName     = "name"
	FieldDivision = "division"
	FieldDistrict = "district"
)

// Columns names the source columns the resolver reads. Matched ignoring case.
type Columns struct {
	SchoolID string
	Name     string
	Division string
	District string
}

var DefaultColumns = Columns{
	SchoolID: "SCHOOL ID",
	Name:     "SCHOOL",
	Division: "DIVISION",
	District: "DISTRICT",
}

// EntityRef is a resolved division or district. ID is nil for the Unknown sentinel.
type EntityRef struct {
	ID   *int64 `json:"id"`
	Name string `json:"name"`
}

// Known reports whether the reference matched a backend entity
func (e EntityRef) Known() bool {
	return e.ID != nil
}

// Mismatch is a division or district value that matched no reference entity
type Mismatch struct {
	Row         int      `json:"row"`
	Field       string   `json:"field"`
	Value       string   `json:"value"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// Reconciled is a record with its references resolved
type Reconciled struct {
	Record   *ingest.Record
	SchoolID any // int64, or the trimmed text when it is not numeric
	Name     string
	Division EntityRef
	District EntityRef

	Mismatches []Mismatch
}

// Flatten returns the record with the resolved fields set on it
func (r *Reconciled) Flatten() *ingest.Record {
	out := ingest.NewRecord()
	if r.Record != nil {
		out = r.Record.Clone()
	}
	out.Set(FieldSchoolID, r.SchoolID)
	out.Set(FieldName, r.Name)
	out.Set(FieldDivision, r.Division)
	out.Set(FieldDistrict, r.District)
	return out
}

// MarshalJSON writes the flattened record
func (r *Reconciled) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Flatten())
}

type index struct {
	kind     string
	unknown  string
	entities []models.ReferenceEntity
	byName   map[string]models.ReferenceEntity
	names    []string
}

func newIndex(kind, unknown string, entities []models.ReferenceEntity) *index {
	idx := &index{
		kind:     kind,
		unknown:  unknown,
		entities: entities,
		byName:   make(map[string]models.ReferenceEntity, len(entities)),
		names:    make([]string, len(entities)),
	}
	for i, e := range entities {
		key := strings.ToLower(e.Name)
		if _, dup := idx.byName[key]; !dup {
			idx.byName[key] = e
		}
		idx.names[i] = e.Name
	}
	return idx
}

// Resolver matches records against one snapshot of the reference lists.
// It holds no per-call state, so resolving the same record twice gives the same result.
type Resolver struct {
	divisions *index
	districts *index
	columns   Columns
	log       *zap.SugaredLogger
}

// NewResolver creates a resolver over the given reference lists
func NewResolver(divisions, districts []models.ReferenceEntity, log *zap.SugaredLogger) *Resolver {
	log = logging.OrNop(log)
	return &Resolver{
		divisions: newIndex(FieldDivision, UnknownDivision, divisions),
		districts: newIndex(FieldDistrict, UnknownDistrict, districts),
		columns:   DefaultColumns,
		log:       log,
	}
}

// WithColumns returns a copy reading from different source columns
func (r *Resolver) WithColumns(c Columns) *Resolver {
	cp := *r
	cp.columns = c
	return &cp
}

// Resolve reconciles one record. row is used only for mismatch reporting.
func (r *Resolver) Resolve(row int, rec *ingest.Record) *Reconciled {
	out := &Reconciled{
		Record:   rec,
		SchoolID: NormalizeSchoolID(lookup(rec, r.columns.SchoolID)),
		Name:     schoolName(lookup(rec, r.columns.Name)),
	}

	var m *Mismatch
	out.Division, m = r.match(r.divisions, row, lookup(rec, r.columns.Division))
	if m != nil {
		out.Mismatches = append(out.Mismatches, *m)
	}
	out.District, m = r.match(r.districts, row, lookup(rec, r.columns.District))
	if m != nil {
		out.Mismatches = append(out.Mismatches, *m)
	}
	return out
}

// ResolveAll reconciles records in order and collects every mismatch
func (r *Resolver) ResolveAll(records []*ingest.Record) ([]*Reconciled, []Mismatch) {
	out := make([]*Reconciled, len(records))
	var mismatches []Mismatch
	for i, rec := range records {
		out[i] = r.Resolve(i+1, rec)
		mismatches = append(mismatches, out[i].Mismatches...)
	}
	return out, mismatches
}

func (r *Resolver) match(idx *index, row int, raw any) (EntityRef, *Mismatch) {
	key := NormalizeName(idx.kind, raw)
	if e, ok := idx.byName[key]; ok {
		id := e.ID
		return EntityRef{ID: &id, Name: e.Name}, nil
	}

	value := ingest.CellText(raw)
	r.log.Warnf("[reconcile] row %d: no %s matches %q (normalized %q)", row, idx.kind, value, key)
	return EntityRef{Name: idx.unknown}, &Mismatch{
		Row:         row,
		Field:       idx.kind,
		Value:       value,
		Suggestions: suggest(key, idx.names),
	}
}

// NormalizeName builds the comparison key for a division or district value.
// Absent or non-text values become "unknown <kind>".
func NormalizeName(kind string, raw any) string {
	s, ok := raw.(string)
	if !ok {
		return "unknown " + kind
	}
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimSuffix(s, " "+kind)
	return strings.TrimSpace(s)
}

// NormalizeSchoolID maps a missing or placeholder id to 0 and numeric text to
// an integer. Text with a leading zero, such as "012345", stays text so the
// zero is not lost.
func NormalizeSchoolID(raw any) any {
	if raw == nil {
		return int64(0)
	}
	s := strings.TrimSpace(ingest.CellText(raw))
	if s == "" || strings.EqualFold(s, NoSchoolID) {
		return int64(0)
	}
	if len(s) > 1 && s[0] == '0' {
		return s
	}
	if id, err := strconv.ParseInt(s, 10, 64); err == nil {
		return id
	}
	return s
}

func schoolName(raw any) string {
	if s := strings.TrimSpace(ingest.CellText(raw)); s != "" {
		return s
	}
	return UnnamedSchool
}

func lookup(rec *ingest.Record, column string) any {
	if rec == nil {
		return nil
	}
	v, _ := rec.Lookup(column)
	return v
}

// suggest ranks reference names that loosely resemble key. Advisory only.
func suggest(key string, names []string) []string {
	if key == "" || len(names) == 0 {
		return nil
	}

	ranks := fuzzy.RankFindNormalizedFold(key, names)
	// also catch inputs that carry extra words around the reference name
	for i, n := range names {
		if n != "" && fuzzy.MatchNormalizedFold(n, key) {
			ranks = append(ranks, fuzzy.Rank{
				Source:        key,
				Target:        n,
				Distance:      fuzzy.LevenshteinDistance(strings.ToLower(n), key),
				OriginalIndex: i,
			})
		}
	}
	sort.Sort(ranks)

	seen := make(map[int]bool)
	var out []string
	for _, rank := range ranks {
		if seen[rank.OriginalIndex] {
			continue
		}
		seen[rank.OriginalIndex] = true
		out = append(out, names[rank.OriginalIndex])
		if len(out) == maxSuggestions {
			break
		}
	}
	return out
}
