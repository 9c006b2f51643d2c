package models

import (
	"encoding/json"
	"errors"
	"testing"
)

func narrativeDelta(base int, key SectionKey, text string) PlanDelta {
	return PlanDelta{
		BaseVersion: base,
		Narratives:  map[SectionKey]NarrativeSection{key: {Text: text}},
	}
}

func TestApplyDeltaBumpsVersionOnce(t *testing.T) {
	plan := NewAccountPlan("Acme", DepthStandard)
	delta := narrativeDelta(plan.Version, SectionExecutiveOverview, "overview")
	comps := []Competitor{{Name: "Rival", SharePercent: 40}}
	delta.Competitors = &comps

	if err := ApplyDelta(plan, delta); err != nil {
		t.Fatalf("ApplyDelta: %v", err)
	}
	if plan.Version != 2 {
		t.Fatalf("version = %d, want 2 (exactly one bump per merge)", plan.Version)
	}
	if plan.SectionVersions[SectionExecutiveOverview] != 2 {
		t.Errorf("section version = %d, want 2", plan.SectionVersions[SectionExecutiveOverview])
	}
	if plan.SectionVersions[SectionCompetitors] != 2 {
		t.Errorf("competitors section version = %d, want 2", plan.SectionVersions[SectionCompetitors])
	}
}

func TestApplyDeltaLeavesUndeclaredSectionsUntouched(t *testing.T) {
	plan := NewAccountPlan("Acme", DepthStandard)
	if err := ApplyDelta(plan, narrativeDelta(plan.Version, SectionCompanyProfile, "profile v1")); err != nil {
		t.Fatalf("seed merge: %v", err)
	}
	before, _ := json.Marshal(plan.Narratives[SectionCompanyProfile])

	if err := ApplyDelta(plan, narrativeDelta(plan.Version, SectionMarketAnalysis, "market")); err != nil {
		t.Fatalf("second merge: %v", err)
	}
	after, _ := json.Marshal(plan.Narratives[SectionCompanyProfile])
	if string(before) != string(after) {
		t.Errorf("undeclared section changed: %s -> %s", before, after)
	}
}

func TestApplyDeltaRejectsStaleWriteToSameSection(t *testing.T) {
	plan := NewAccountPlan("Acme", DepthStandard)
	base := plan.Version

	if err := ApplyDelta(plan, narrativeDelta(base, SectionGTMPlan, "first writer")); err != nil {
		t.Fatalf("first merge: %v", err)
	}
	err := ApplyDelta(plan, narrativeDelta(base, SectionGTMPlan, "second writer, same base"))
	if !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("err = %v, want ErrVersionConflict", err)
	}
	if plan.Narratives[SectionGTMPlan].Text != "first writer" {
		t.Errorf("rejected merge mutated the plan")
	}
}

func TestApplyDeltaAllowsStaleBaseOnDifferentSections(t *testing.T) {
	plan := NewAccountPlan("Acme", DepthStandard)
	base := plan.Version

	if err := ApplyDelta(plan, narrativeDelta(base, SectionGTMPlan, "gtm")); err != nil {
		t.Fatalf("first merge: %v", err)
	}
	// Same stale base but a disjoint section: accepted.
	if err := ApplyDelta(plan, narrativeDelta(base, SectionMarketAnalysis, "market")); err != nil {
		t.Fatalf("disjoint merge rejected: %v", err)
	}
	if plan.Version != 3 {
		t.Errorf("version = %d, want 3", plan.Version)
	}
}

func TestApplyDeltaClampsConfidence(t *testing.T) {
	plan := NewAccountPlan("Acme", DepthStandard)
	conf := 1.7
	if err := ApplyDelta(plan, PlanDelta{BaseVersion: plan.Version, Confidence: &conf, Narratives: map[SectionKey]NarrativeSection{SectionExecutiveOverview: {Text: "x"}}}); err != nil {
		t.Fatalf("ApplyDelta: %v", err)
	}
	if plan.Confidence != 1 {
		t.Errorf("confidence = %v, want clamped to 1", plan.Confidence)
	}
}

func TestApplyDeltaConflictLifecycleBookkeeping(t *testing.T) {
	plan := NewAccountPlan("Acme", DepthStandard)
	open := Conflict{ID: "c1", Topic: "revenue", Status: ConflictOpen, CreatedInVersion: 2}
	if err := ApplyDelta(plan, PlanDelta{BaseVersion: plan.Version, NewConflicts: []Conflict{open}}); err != nil {
		t.Fatalf("open merge: %v", err)
	}

	v := plan.Version + 1
	resolved := open
	resolved.Status = ConflictResolved
	resolved.ResolvedInVersion = &v
	if err := ApplyDelta(plan, PlanDelta{BaseVersion: plan.Version, ConflictUpdates: []Conflict{resolved}}); err != nil {
		t.Fatalf("resolve merge: %v", err)
	}
	got, ok := plan.Conflict("c1")
	if !ok {
		t.Fatal("conflict disappeared")
	}
	if got.Status != ConflictResolved {
		t.Errorf("status = %s, want resolved", got.Status)
	}
	if len(plan.Conflicts) != 1 {
		t.Errorf("conflicts = %d, want 1 (update must not append)", len(plan.Conflicts))
	}
	if len(plan.OpenConflicts()) != 0 {
		t.Errorf("resolved conflict still listed open")
	}
}

func TestApplyDeltaRefreshesCharts(t *testing.T) {
	plan := NewAccountPlan("Acme", DepthStandard)
	comps := []Competitor{{Name: "A", SharePercent: 60}, {Name: "B", SharePercent: 40}}
	if err := ApplyDelta(plan, PlanDelta{BaseVersion: plan.Version, Competitors: &comps}); err != nil {
		t.Fatalf("ApplyDelta: %v", err)
	}
	if plan.Sources.Charts == nil {
		t.Fatal("charts not derived on merge")
	}
	if plan.Sources.Charts.PlanVersion != plan.Version {
		t.Errorf("charts version = %d, plan version = %d", plan.Sources.Charts.PlanVersion, plan.Version)
	}
	if len(plan.Sources.Charts.Pie) != 2 {
		t.Errorf("pie slices = %d, want 2", len(plan.Sources.Charts.Pie))
	}
}

func TestDeltaForSectionNarrative(t *testing.T) {
	delta, err := DeltaForSection(SectionCompanyProfile, "  hand-written profile  ", 3)
	if err != nil {
		t.Fatalf("DeltaForSection: %v", err)
	}
	if delta.BaseVersion != 3 {
		t.Errorf("base = %d, want 3", delta.BaseVersion)
	}
	if got := delta.Narratives[SectionCompanyProfile].Text; got != "hand-written profile" {
		t.Errorf("text = %q", got)
	}
}

func TestDeltaForSectionParsesItems(t *testing.T) {
	delta, err := DeltaForSection(SectionRisks, "- Churn: enterprise renewals at risk\nPricing pressure", 1)
	if err != nil {
		t.Fatalf("DeltaForSection: %v", err)
	}
	items := *delta.Risks
	if len(items) != 2 {
		t.Fatalf("items = %d, want 2", len(items))
	}
	if items[0].Title != "Churn" || items[0].Detail != "enterprise renewals at risk" {
		t.Errorf("item[0] = %+v", items[0])
	}
	if items[1].Title != "Pricing pressure" || items[1].Detail != "" {
		t.Errorf("item[1] = %+v", items[1])
	}
}

func TestDeltaForSectionParsesCompetitors(t *testing.T) {
	delta, err := DeltaForSection(SectionCompetitors, "Globex: 35.5\nInitech: strong in SMB", 1)
	if err != nil {
		t.Fatalf("DeltaForSection: %v", err)
	}
	comps := *delta.Competitors
	if len(comps) != 2 {
		t.Fatalf("competitors = %d, want 2", len(comps))
	}
	if comps[0].SharePercent != 35.5 {
		t.Errorf("share = %v", comps[0].SharePercent)
	}
	if comps[1].Attributes["note"] != "strong in SMB" {
		t.Errorf("attributes = %+v", comps[1].Attributes)
	}
}

func TestDeltaForSectionRejectsStructuredAndUnknown(t *testing.T) {
	if _, err := DeltaForSection(SectionSWOT, "text", 1); err == nil {
		t.Error("swot accepted as text edit")
	}
	if _, err := DeltaForSection(SectionKey("bogus"), "text", 1); err == nil {
		t.Error("unknown section accepted")
	}
}
