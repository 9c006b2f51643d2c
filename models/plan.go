package models

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SectionKey addresses one replaceable unit of an account plan.
type SectionKey string

const (
	SectionExecutiveOverview   SectionKey = "executive_overview"
	SectionCompanyProfile      SectionKey = "company_profile"
	SectionMarketAnalysis      SectionKey = "market_analysis"
	SectionFinancialHighlights SectionKey = "financial_highlights"
	SectionProductPortfolio    SectionKey = "product_portfolio"
	SectionTechnologyStack     SectionKey = "technology_stack"
	SectionGTMPlan             SectionKey = "gtm_plan"
	SectionKPISummary          SectionKey = "kpi_summary"
	SectionCompetitors         SectionKey = "competitors"
	SectionSWOT                SectionKey = "swot"
	SectionOpportunities       SectionKey = "opportunities"
	SectionRisks               SectionKey = "risks"
	SectionPlanTable           SectionKey = "plan_table"
)

// NarrativeSectionKeys lists the free-text sections in their canonical
// rendering order.
var NarrativeSectionKeys = []SectionKey{
	SectionExecutiveOverview,
	SectionCompanyProfile,
	SectionMarketAnalysis,
	SectionFinancialHighlights,
	SectionProductPortfolio,
	SectionTechnologyStack,
	SectionGTMPlan,
}

// AllSectionKeys lists every addressable section.
var AllSectionKeys = append(append([]SectionKey{}, NarrativeSectionKeys...),
	SectionKPISummary, SectionCompetitors, SectionSWOT,
	SectionOpportunities, SectionRisks, SectionPlanTable,
)

// KnownSection reports whether key addresses a plan section.
func KnownSection(key SectionKey) bool {
	for _, k := range AllSectionKeys {
		if k == key {
			return true
		}
	}
	return false
}

// NarrativeSection is a free-text section with provenance. A non-empty
// section either traces to at least one source ref or carries
// Inferred=true ("model-inferred, unverified").
type NarrativeSection struct {
	Text       string   `json:"text"`
	Inferred   bool     `json:"inferred,omitempty"`
	SourceRefs []string `json:"source_refs,omitempty"`
}

// Competitor is one entry of the ordered competitors section.
type Competitor struct {
	Name         string            `json:"name"`
	SharePercent float64           `json:"share_percent,omitempty"`
	Attributes   map[string]string `json:"attributes,omitempty"`
}

// SWOT holds the four analysis sets plus optional per-axis scores on a
// 0-10 scale used for the radar chart.
type SWOT struct {
	Strengths     []string           `json:"strengths,omitempty"`
	Weaknesses    []string           `json:"weaknesses,omitempty"`
	Opportunities []string           `json:"opportunities,omitempty"`
	Threats       []string           `json:"threats,omitempty"`
	Scores        map[string]float64 `json:"scores,omitempty"`
}

// Empty reports whether every SWOT set is empty.
func (s SWOT) Empty() bool {
	return len(s.Strengths) == 0 && len(s.Weaknesses) == 0 &&
		len(s.Opportunities) == 0 && len(s.Threats) == 0
}

// PlanItem is one structured entry of the opportunities or risks sections.
type PlanItem struct {
	Title  string `json:"title"`
	Detail string `json:"detail,omitempty"`
}

// KPI is one metric of the KPI summary.
type KPI struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	Unit  string  `json:"unit,omitempty"`
}

// GTMRow is one row of the 30-60-90 day plan table.
type GTMRow struct {
	Period string `json:"period"`
	Focus  string `json:"focus"`
	Metric string `json:"metric"`
}

// RadarPoint is one axis of the SWOT radar chart.
type RadarPoint struct {
	Axis  string  `json:"axis"`
	Value float64 `json:"value"`
}

// PieSlice is one normalized slice of the competitor share chart.
type PieSlice struct {
	Name   string  `json:"name"`
	Weight float64 `json:"weight"` // fraction of 1.0
}

// BarSeries is one bar of the KPI chart.
type BarSeries struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
	Unit  string  `json:"unit,omitempty"`
}

// ChartPayloads carries the chart-ready coordinates cached on the plan.
// PlanVersion records which plan state they were derived from.
type ChartPayloads struct {
	PlanVersion int          `json:"plan_version"`
	Radar       []RadarPoint `json:"radar"`
	Pie         []PieSlice   `json:"pie"`
	Bars        []BarSeries  `json:"bars"`
}

// PlanSources is the plan-owned provenance collection: evidence refs,
// round metadata and the cached chart payloads.
type PlanSources struct {
	Evidence []SourceRef       `json:"evidence,omitempty"`
	Metadata *ResearchMetadata `json:"metadata,omitempty"`
	Charts   *ChartPayloads    `json:"charts,omitempty"`
}

// AccountPlan is the canonical mutable aggregate for one company. Writes
// to the same plan are serialized by the store; Version increases exactly
// once per accepted merge.
type AccountPlan struct {
	ID            string                          `json:"id"`
	Company       string                          `json:"company"`
	Depth         Depth                           `json:"depth"`
	Version       int                             `json:"version"`
	Confidence    float64                         `json:"confidence"`
	Narratives    map[SectionKey]NarrativeSection `json:"narratives"`
	Competitors   []Competitor                    `json:"competitors,omitempty"`
	SWOT          SWOT                            `json:"swot"`
	Opportunities []PlanItem                      `json:"opportunities,omitempty"`
	Risks         []PlanItem                      `json:"risks,omitempty"`
	KPIs          []KPI                           `json:"kpis,omitempty"`
	PlanTable     []GTMRow                        `json:"plan_table,omitempty"`
	Conflicts     []Conflict                      `json:"conflicts,omitempty"`
	Sources       PlanSources                     `json:"sources"`
	// SectionVersions records the plan version of the last write to each
	// section, driving section-scoped stale-write detection.
	SectionVersions map[SectionKey]int `json:"section_versions"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

// NewAccountPlan creates an empty plan at version 1.
func NewAccountPlan(company string, depth Depth) *AccountPlan {
	now := time.Now().UTC()
	return &AccountPlan{
		ID:              uuid.NewString(),
		Company:         company,
		Depth:           depth,
		Version:         1,
		Narratives:      map[SectionKey]NarrativeSection{},
		SectionVersions: map[SectionKey]int{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// Conflict returns the conflict with the given id.
func (p *AccountPlan) Conflict(id string) (*Conflict, bool) {
	for i := range p.Conflicts {
		if p.Conflicts[i].ID == id {
			return &p.Conflicts[i], true
		}
	}
	return nil, false
}

// OpenConflicts returns conflicts that have not reached a terminal status.
func (p *AccountPlan) OpenConflicts() []Conflict {
	var out []Conflict
	for _, c := range p.Conflicts {
		if !c.Status.Terminal() {
			out = append(out, c)
		}
	}
	return out
}

// PlanDelta is the declare-what-changed merge unit: it carries only the
// sections one model response (or one edit) produced, and those sections
// replace their plan counterparts wholesale. Sections absent from the
// delta are untouched.
type PlanDelta struct {
	BaseVersion int `json:"base_version"`

	Narratives    map[SectionKey]NarrativeSection `json:"narratives,omitempty"`
	Competitors   *[]Competitor                   `json:"competitors,omitempty"`
	SWOT          *SWOT                           `json:"swot,omitempty"`
	Opportunities *[]PlanItem                     `json:"opportunities,omitempty"`
	Risks         *[]PlanItem                     `json:"risks,omitempty"`
	KPIs          *[]KPI                          `json:"kpis,omitempty"`
	PlanTable     *[]GTMRow                       `json:"plan_table,omitempty"`

	Confidence *float64 `json:"confidence,omitempty"`

	// NewConflicts are appended; ConflictUpdates replace existing
	// conflicts by id (status transitions, evidence refs).
	NewConflicts    []Conflict `json:"new_conflicts,omitempty"`
	ConflictUpdates []Conflict `json:"conflict_updates,omitempty"`

	// Evidence provenance appended to the plan's sources collection.
	Evidence []SourceRef       `json:"evidence,omitempty"`
	Metadata *ResearchMetadata `json:"metadata,omitempty"`
}

// DeclaredSections lists the section keys this delta replaces, in
// canonical order.
func (d PlanDelta) DeclaredSections() []SectionKey {
	var keys []SectionKey
	for k := range d.Narratives {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	if d.KPIs != nil {
		keys = append(keys, SectionKPISummary)
	}
	if d.Competitors != nil {
		keys = append(keys, SectionCompetitors)
	}
	if d.SWOT != nil {
		keys = append(keys, SectionSWOT)
	}
	if d.Opportunities != nil {
		keys = append(keys, SectionOpportunities)
	}
	if d.Risks != nil {
		keys = append(keys, SectionRisks)
	}
	if d.PlanTable != nil {
		keys = append(keys, SectionPlanTable)
	}
	return keys
}

// Empty reports whether the delta declares nothing at all.
func (d PlanDelta) Empty() bool {
	return len(d.DeclaredSections()) == 0 && len(d.NewConflicts) == 0 &&
		len(d.ConflictUpdates) == 0 && d.Confidence == nil &&
		len(d.Evidence) == 0 && d.Metadata == nil
}

// ApplyDelta merges a delta into the plan in place. Stale-write check is
// section-scoped: the merge is rejected if any declared section was
// written after the delta's base version. On acceptance the version is
// bumped exactly once and the cached chart payloads are re-derived.
func ApplyDelta(plan *AccountPlan, delta PlanDelta) error {
	declared := delta.DeclaredSections()
	for _, key := range declared {
		if plan.SectionVersions[key] > delta.BaseVersion {
			return fmt.Errorf("section %s written at v%d, delta based on v%d: %w",
				key, plan.SectionVersions[key], delta.BaseVersion, ErrVersionConflict)
		}
	}

	plan.Version++

	for key, sec := range delta.Narratives {
		plan.Narratives[key] = sec
	}
	if delta.KPIs != nil {
		plan.KPIs = *delta.KPIs
	}
	if delta.Competitors != nil {
		plan.Competitors = *delta.Competitors
	}
	if delta.SWOT != nil {
		plan.SWOT = *delta.SWOT
	}
	if delta.Opportunities != nil {
		plan.Opportunities = *delta.Opportunities
	}
	if delta.Risks != nil {
		plan.Risks = *delta.Risks
	}
	if delta.PlanTable != nil {
		plan.PlanTable = *delta.PlanTable
	}
	for _, key := range declared {
		plan.SectionVersions[key] = plan.Version
	}

	if delta.Confidence != nil {
		plan.Confidence = ClampUnit(*delta.Confidence)
	}

	for _, upd := range delta.ConflictUpdates {
		for i := range plan.Conflicts {
			if plan.Conflicts[i].ID == upd.ID {
				plan.Conflicts[i] = upd
				break
			}
		}
	}
	plan.Conflicts = append(plan.Conflicts, delta.NewConflicts...)

	plan.Sources.Evidence = append(plan.Sources.Evidence, delta.Evidence...)
	if delta.Metadata != nil {
		plan.Sources.Metadata = delta.Metadata
	}

	plan.Sources.Charts = DeriveCharts(plan)
	plan.UpdatedAt = time.Now().UTC()
	return nil
}

// DeltaForSection builds a single-section delta from plain text, the form
// user-driven edits take. Narrative sections take the text verbatim; list
// sections take one item per line ("Title: detail" or bare titles;
// competitors accept an optional trailing share percentage). Structured
// sections (SWOT, KPIs, plan table) are edited through model-produced
// deltas instead.
func DeltaForSection(key SectionKey, content string, baseVersion int) (PlanDelta, error) {
	delta := PlanDelta{BaseVersion: baseVersion}
	switch key {
	case SectionExecutiveOverview, SectionCompanyProfile, SectionMarketAnalysis,
		SectionFinancialHighlights, SectionProductPortfolio, SectionTechnologyStack,
		SectionGTMPlan:
		delta.Narratives = map[SectionKey]NarrativeSection{
			key: {Text: strings.TrimSpace(content)},
		}
	case SectionOpportunities:
		items := parsePlanItems(content)
		delta.Opportunities = &items
	case SectionRisks:
		items := parsePlanItems(content)
		delta.Risks = &items
	case SectionCompetitors:
		comps := parseCompetitors(content)
		delta.Competitors = &comps
	default:
		if !KnownSection(key) {
			return PlanDelta{}, fmt.Errorf("unknown section %q", key)
		}
		return PlanDelta{}, fmt.Errorf("section %q is not text-editable", key)
	}
	return delta, nil
}

func parsePlanItems(content string) []PlanItem {
	var items []PlanItem
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(line, "-*• \t"))
		if line == "" {
			continue
		}
		title, detail, found := strings.Cut(line, ":")
		if found {
			items = append(items, PlanItem{Title: strings.TrimSpace(title), Detail: strings.TrimSpace(detail)})
		} else {
			items = append(items, PlanItem{Title: line})
		}
	}
	return items
}

func parseCompetitors(content string) []Competitor {
	var comps []Competitor
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(line, "-*• \t"))
		if line == "" {
			continue
		}
		name, rest, found := strings.Cut(line, ":")
		c := Competitor{Name: strings.TrimSpace(line)}
		if found {
			c.Name = strings.TrimSpace(name)
			var pct float64
			if _, err := fmt.Sscanf(strings.TrimSpace(rest), "%f", &pct); err == nil {
				c.SharePercent = pct
			} else {
				c.Attributes = map[string]string{"note": strings.TrimSpace(rest)}
			}
		}
		comps = append(comps, c)
	}
	return comps
}

// ClampUnit clamps v to [0,1]. Out-of-range model output is a recoverable
// condition, not an error.
func ClampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Clamp clamps v to [lo,hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
