package models

import "encoding/json"

// EvidenceRecord documents how a statistic was computed.
type EvidenceRecord struct {
	EvidenceID        string          `json:"evidence_id"`
	ComputationMethod string          `json:"computation_method"`
	ColumnsUsed       []string        `json:"columns_used"`
	ResultStatistic   json.RawMessage `json:"result_statistic,omitempty"`
}

// EvidenceLookup resolves evidence ids. Implementations never fabricate records.
type EvidenceLookup interface {
	Lookup(id string) (EvidenceRecord, bool)
	Len() int
}
