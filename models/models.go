package models

import (
	"errors"
	"time"
)

// ErrPlanNotFound is returned when a plan id is unknown
var ErrPlanNotFound = errors.New("plan not found")

// ErrConflictNotFound is returned when a conflict id is unknown on a plan
var ErrConflictNotFound = errors.New("conflict not found")

// ErrConflictClosed is returned when a deep dive targets a conflict that
// already reached a terminal status
var ErrConflictClosed = errors.New("conflict already closed")

// ErrVersionConflict is returned when a merge is based on a version older
// than the last write to a section it declares. Callers re-read and retry;
// the store never retries on its own.
var ErrVersionConflict = errors.New("plan version conflict")

// Depth bounds how much evidence a research round pulls
type Depth string

const (
	DepthQuick    Depth = "quick"
	DepthStandard Depth = "standard"
	DepthDeep     Depth = "deep"
)

// ParseDepth normalizes a user-supplied depth, defaulting to standard.
func ParseDepth(s string) Depth {
	switch Depth(s) {
	case DepthQuick, DepthStandard, DepthDeep:
		return Depth(s)
	default:
		return DepthStandard
	}
}

// SourceKind distinguishes evidence origins
type SourceKind string

const (
	SourceInternal SourceKind = "internal"
	SourceWeb      SourceKind = "web"
)

// EvidenceItem is one retrieved snippet. Immutable once created; it lives
// only for the round that produced it, surviving afterwards only as a
// SourceRef on the plan.
type EvidenceItem struct {
	Kind        SourceKind `json:"source_kind"`
	Text        string     `json:"text"`
	OriginRef   string     `json:"origin_ref"`
	RetrievedAt time.Time  `json:"retrieved_at"`
}

// EvidenceBundle is the deduplicated evidence set assembled for one
// research or deep-dive round.
type EvidenceBundle struct {
	Items    []EvidenceItem `json:"items"`
	RAGEmpty bool           `json:"rag_empty"`
	WebEmpty bool           `json:"web_empty"`
	Fallback bool           `json:"fallback"`
}

// SourceRefs lists the origin refs of every item in the bundle.
func (b EvidenceBundle) SourceRefs() []SourceRef {
	refs := make([]SourceRef, 0, len(b.Items))
	for _, it := range b.Items {
		refs = append(refs, SourceRef{Kind: it.Kind, OriginRef: it.OriginRef, RetrievedAt: it.RetrievedAt})
	}
	return refs
}

// SourceRef is the durable provenance record kept on a plan after the
// evidence items themselves are discarded.
type SourceRef struct {
	Kind        SourceKind `json:"kind"`
	OriginRef   string     `json:"origin_ref"`
	RetrievedAt time.Time  `json:"retrieved_at"`
}

// ResearchStep records one pipeline stage for the audit trail.
type ResearchStep struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	Status string `json:"status"` // complete, skipped, error
	Detail string `json:"detail,omitempty"`
}

// ResearchMetadata describes how the most recent research round ran.
type ResearchMetadata struct {
	GeneratedAt       time.Time      `json:"generated_at"`
	Depth             Depth          `json:"depth"`
	SourcesUsed       []string       `json:"sources_used,omitempty"`
	Steps             []ResearchStep `json:"steps,omitempty"`
	ConflictsDetected bool           `json:"conflicts_detected"`
	Confidence        float64        `json:"confidence"`
	RAGEmpty          bool           `json:"rag_empty"`
	WebEmpty          bool           `json:"web_empty"`
	Fallback          bool           `json:"fallback"`
}
