package models

import "time"

// ConflictStatus is the lifecycle state of a tracked conflict. Resolved
// and unresolvable are terminal; a conflict never reopens and never
// silently disappears.
type ConflictStatus string

const (
	ConflictOpen              ConflictStatus = "open"
	ConflictDeepDiveRequested ConflictStatus = "deep_dive_requested"
	ConflictResolved          ConflictStatus = "resolved"
	ConflictUnresolvable      ConflictStatus = "unresolvable"
)

// Terminal reports whether the status is a closure state.
func (s ConflictStatus) Terminal() bool {
	return s == ConflictResolved || s == ConflictUnresolvable
}

// Conflict is a first-class record of a pairwise factual inconsistency
// reported by the model across evidence sources.
type Conflict struct {
	ID                string         `json:"conflict_id"`
	Topic             string         `json:"topic"`
	Detail            string         `json:"detail"`
	Status            ConflictStatus `json:"status"`
	EvidenceRefs      []string       `json:"evidence_refs,omitempty"`
	CreatedInVersion  int            `json:"created_in_version"`
	ResolvedInVersion *int           `json:"resolved_in_version,omitempty"`
	// Attempts counts failed reconciliation rounds; the tracker closes
	// the conflict as unresolvable once the configured cap is reached.
	Attempts  int       `json:"attempts"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RawConflict is the shape the model emits in its conflicts array before
// the tracker matches it against existing conflicts.
type RawConflict struct {
	Topic         string `json:"topic"`
	Details       string `json:"details"`
	NeedsDeepDive bool   `json:"needs_deep_dive"`
}

// ConflictOutcome is the result of one reconciliation round.
type ConflictOutcome string

const (
	OutcomeResolved     ConflictOutcome = "resolved"
	OutcomeRetry        ConflictOutcome = "retry"
	OutcomeUnresolvable ConflictOutcome = "unresolvable"
)
