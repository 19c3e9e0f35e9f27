// Package evidence indexes a run's evidence records by evidence id.
package evidence

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/kiranshivaraju/insightgate/pkg/models"
)

// Registry is a read-only index of evidence records. It is never modified
// after Build returns, so concurrent lookups need no locking.
type Registry struct {
	records map[string]models.EvidenceRecord
}

var _ models.EvidenceLookup = (*Registry)(nil)

// Build re-keys records by evidence id. Duplicate ids resolve last-write-wins
// and records without an id are skipped; both are reported as diagnostics.
func Build(records []models.EvidenceRecord) (*Registry, []models.Diagnostic) {
	r := &Registry{records: make(map[string]models.EvidenceRecord, len(records))}
	diags := []models.Diagnostic{}

	for i, rec := range records {
		id := strings.TrimSpace(rec.EvidenceID)
		if id == "" {
			diags = append(diags, models.Diagnostic{
				Code:    models.DiagMissingEvidenceID,
				Field:   fmt.Sprintf("evidence[%d]", i),
				Message: "evidence record has no evidence_id; skipped",
			})
			continue
		}
		if _, dup := r.records[id]; dup {
			diags = append(diags, models.Diagnostic{
				Code:    models.DiagDuplicateEvidenceID,
				Field:   id,
				Message: fmt.Sprintf("evidence id %q appears more than once; keeping record %d", id, i),
			})
		}
		rec.EvidenceID = id
		if rec.ColumnsUsed == nil {
			rec.ColumnsUsed = []string{}
		}
		r.records[id] = rec
	}

	return r, diags
}

// Parse decodes an evidence bundle and builds a registry from it. The bundle
// may be a list of records, an object wrapping that list under "records" or
// "evidence", or an object keyed by evidence id. A bundle that cannot be
// decoded yields an empty registry and a diagnostic.
func Parse(raw json.RawMessage) (*Registry, []models.Diagnostic) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return Build(nil)
	}

	records, err := decodeRecords(raw)
	if err != nil {
		r, diags := Build(nil)
		return r, append(diags, models.Diagnostic{
			Code:    models.DiagBundleMalformed,
			Field:   "evidence",
			Message: fmt.Sprintf("evidence bundle could not be decoded: %v", err),
		})
	}
	return Build(records)
}

func decodeRecords(raw []byte) ([]models.EvidenceRecord, error) {
	if raw[0] == '[' {
		var list []models.EvidenceRecord
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, err
		}
		return list, nil
	}

	var wrapped map[string]json.RawMessage
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, err
	}
	for _, key := range []string{"records", "evidence"} {
		if inner, ok := wrapped[key]; ok {
			inner = bytes.TrimSpace(inner)
			if len(inner) > 0 && inner[0] == '[' {
				return decodeRecords(inner)
			}
		}
	}

	// Keyed by id. Keys are visited in sorted order so duplicate resolution is stable.
	ids := make([]string, 0, len(wrapped))
	for id := range wrapped {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	records := make([]models.EvidenceRecord, 0, len(ids))
	for _, id := range ids {
		var rec models.EvidenceRecord
		if err := json.Unmarshal(wrapped[id], &rec); err != nil {
			return nil, fmt.Errorf("record %q: %w", id, err)
		}
		if rec.EvidenceID == "" {
			rec.EvidenceID = id
		}
		records = append(records, rec)
	}
	return records, nil
}

// Lookup returns the record for id. It never infers a record that was not supplied.
func (r *Registry) Lookup(id string) (models.EvidenceRecord, bool) {
	if r == nil {
		return models.EvidenceRecord{}, false
	}
	rec, ok := r.records[strings.TrimSpace(id)]
	if !ok {
		return models.EvidenceRecord{}, false
	}
	rec.ColumnsUsed = append([]string{}, rec.ColumnsUsed...)
	return rec, true
}

// Len returns the number of distinct evidence ids.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.records)
}

// IDs returns every evidence id in sorted order.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, r.Len())
	if r == nil {
		return ids
	}
	for id := range r.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
