package research

import (
	"time"

	"github.com/google/uuid"

	"github.com/planscribe/planscribe/models"
)

// Tracker owns the conflict lifecycle: matching model-reported conflicts
// against the plan's tracked set, opening new ones, and driving deep-dive
// reconciliation to a terminal status within the attempt cap.
type Tracker struct {
	MatchThreshold float64
	MaxAttempts    int
}

func NewTracker(matchThreshold float64, maxAttempts int) *Tracker {
	if matchThreshold <= 0 {
		matchThreshold = 0.5
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Tracker{MatchThreshold: matchThreshold, MaxAttempts: maxAttempts}
}

// Ingest matches a round's reported conflicts against the plan's tracked
// conflicts by topic similarity. Reports matching an existing non-terminal
// conflict refresh its detail and evidence; the rest open new conflicts
// created at targetVersion, entering deep_dive_requested directly when
// the model flagged them. Terminal conflicts never reopen; a matching
// report instead opens a fresh conflict on the same topic.
func (t *Tracker) Ingest(plan *models.AccountPlan, raws []models.RawConflict, evidenceRefs []string, targetVersion int) (news, updates []models.Conflict) {
	now := time.Now().UTC()
	for _, raw := range raws {
		if raw.Topic == "" {
			continue
		}
		matched := false
		for _, existing := range plan.Conflicts {
			if existing.Status.Terminal() {
				continue
			}
			if t.topicsMatch(existing.Topic, raw.Topic) {
				upd := existing
				upd.Detail = raw.Details
				upd.EvidenceRefs = mergeRefs(existing.EvidenceRefs, evidenceRefs)
				upd.UpdatedAt = now
				updates = append(updates, upd)
				matched = true
				break
			}
		}
		if matched {
			continue
		}
		status := models.ConflictOpen
		if raw.NeedsDeepDive {
			status = models.ConflictDeepDiveRequested
		}
		news = append(news, models.Conflict{
			ID:               uuid.NewString(),
			Topic:            raw.Topic,
			Detail:           raw.Details,
			Status:           status,
			EvidenceRefs:     append([]string(nil), evidenceRefs...),
			CreatedInVersion: targetVersion,
			UpdatedAt:        now,
		})
	}
	return news, updates
}

// Reconcile judges one deep-dive round against its target conflict. The
// conflict is resolved when the round's conflict reports no longer mention
// its topic; otherwise the attempt counter advances and the conflict
// closes as unresolvable once the cap is reached, or stays in
// deep_dive_requested for another round below it.
func (t *Tracker) Reconcile(conflict models.Conflict, roundReports []models.RawConflict, mergedVersion int) (models.Conflict, models.ConflictOutcome) {
	conflict.Attempts++
	conflict.UpdatedAt = time.Now().UTC()

	stillReported := false
	for _, raw := range roundReports {
		if t.topicsMatch(conflict.Topic, raw.Topic) {
			stillReported = true
			conflict.Detail = raw.Details
			break
		}
	}

	if !stillReported {
		conflict.Status = models.ConflictResolved
		v := mergedVersion
		conflict.ResolvedInVersion = &v
		return conflict, models.OutcomeResolved
	}
	if conflict.Attempts >= t.MaxAttempts {
		conflict.Status = models.ConflictUnresolvable
		return conflict, models.OutcomeUnresolvable
	}
	conflict.Status = models.ConflictDeepDiveRequested
	return conflict, models.OutcomeRetry
}

// MatchTopic finds the open conflict best matching free text, used to
// resolve chat deep-dive requests like "dig into the revenue numbers".
func (t *Tracker) MatchTopic(plan *models.AccountPlan, text string) (models.Conflict, bool) {
	tokens := tokenSet(text)
	best := models.Conflict{}
	bestScore := 0.0
	for _, c := range plan.OpenConflicts() {
		score := jaccard(tokens, tokenSet(c.Topic+" "+c.Detail))
		if score > bestScore {
			best = c
			bestScore = score
		}
	}
	if bestScore <= 0 {
		return models.Conflict{}, false
	}
	return best, true
}

func (t *Tracker) topicsMatch(a, b string) bool {
	return jaccard(tokenSet(a), tokenSet(b)) >= t.MatchThreshold
}

func mergeRefs(existing, incoming []string) []string {
	seen := make(map[string]struct{}, len(existing))
	out := append([]string(nil), existing...)
	for _, ref := range existing {
		seen[ref] = struct{}{}
	}
	for _, ref := range incoming {
		if _, ok := seen[ref]; ok {
			continue
		}
		seen[ref] = struct{}{}
		out = append(out, ref)
	}
	return out
}
