package research

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/planscribe/planscribe/models"
)

// systemPrompt pins the response contract. The model must answer with one
// JSON object and nothing else; every key is optional so partial answers
// still merge.
const systemPrompt = `You are an account research analyst. You synthesize evidence about a company into a structured account plan.

Respond with a single JSON object and nothing else. No prose, no markdown fences. Schema (all keys optional, omit what you cannot support with evidence):
{
  "sections": {
    "executive_overview": "...", "company_profile": "...", "market_analysis": "...",
    "financial_highlights": "...", "product_portfolio": "...", "technology_stack": "...",
    "gtm_plan": "..."
  },
  "competitors": [{"name": "...", "share_percent": 35.0, "attributes": {"strength": "..."}}],
  "swot": {"strengths": ["..."], "weaknesses": ["..."], "opportunities": ["..."], "threats": ["..."]},
  "swot_radar_scores": {"Strength": 7, "Weakness": 4, "Opportunity": 8, "Threat": 5},
  "opportunities": [{"title": "...", "detail": "..."}],
  "risks": [{"title": "...", "detail": "..."}],
  "kpi_summary": [{"name": "...", "value": 12.5, "unit": "%"}],
  "plan_table": [{"period": "30 days", "focus": "...", "metric": "..."}],
  "conflicts": [{"topic": "...", "details": "...", "needs_deep_dive": true}],
  "confidence": 0.8
}

Rules:
- Ground every claim in the provided evidence. If evidence is thin, keep sections short rather than inventing specifics.
- Report every factual contradiction between evidence items in the conflicts array. Never average or silently pick a side.
- confidence is your overall confidence in the plan, between 0 and 1.`

// PromptInput carries everything one completion needs.
type PromptInput struct {
	Company        string
	Depth          models.Depth
	Bundle         models.EvidenceBundle
	TargetSections []models.SectionKey // empty means full plan
	OpenConflicts  []models.Conflict
	PriorPlan      *models.AccountPlan // nil on the first round
}

// BuildPrompt renders the user prompt for one synthesis round.
func BuildPrompt(in PromptInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Company: %s\nResearch depth: %s\n\n", in.Company, in.Depth)

	if in.Bundle.Fallback {
		b.WriteString("No evidence could be retrieved from any source. Produce a minimal plan from general knowledge only, keep confidence at or below 0.2, and do not fabricate figures.\n\n")
	} else {
		b.WriteString("Evidence:\n")
		for i, item := range in.Bundle.Items {
			fmt.Fprintf(&b, "[%d] (%s, %s) %s\n", i+1, item.Kind, item.OriginRef, item.Text)
		}
		b.WriteString("\n")
	}

	if len(in.TargetSections) > 0 {
		keys := make([]string, 0, len(in.TargetSections))
		for _, k := range in.TargetSections {
			keys = append(keys, string(k))
		}
		fmt.Fprintf(&b, "Update ONLY these sections: %s. Omit every other key from your response.\n", strings.Join(keys, ", "))
	}

	if len(in.OpenConflicts) > 0 {
		b.WriteString("\nPreviously detected conflicts still open:\n")
		for _, c := range in.OpenConflicts {
			fmt.Fprintf(&b, "- %s: %s\n", c.Topic, c.Detail)
		}
		b.WriteString("For each, either report it again with needs_deep_dive if the new evidence still disagrees, or omit it and state the settled value in the relevant section.\n")
	}

	if in.PriorPlan != nil && in.PriorPlan.Version > 1 {
		fmt.Fprintf(&b, "\nAn earlier plan exists (version %d). Prefer refreshing stale facts over restating unchanged ones.\n", in.PriorPlan.Version)
	}

	return b.String()
}

// ParseDiagnostics reports what the tolerant parse had to do.
type ParseDiagnostics struct {
	Repaired bool // succeeded only after extraction or comma repair
	Fallback bool // nothing parseable, caller should use FallbackDelta
}

// llmResponse mirrors the response schema with tolerant numeric types.
type llmResponse struct {
	Sections        map[string]string      `json:"sections"`
	Competitors     []rawCompetitor        `json:"competitors"`
	SWOT            *rawSWOT               `json:"swot"`
	SWOTRadarScores map[string]json.Number `json:"swot_radar_scores"`
	Opportunities   []rawItem              `json:"opportunities"`
	Risks           []rawItem              `json:"risks"`
	KPISummary      []rawKPI               `json:"kpi_summary"`
	PlanTable       []rawGTMRow            `json:"plan_table"`
	Conflicts       []models.RawConflict   `json:"conflicts"`
	Confidence      json.Number            `json:"confidence"`
}

type rawCompetitor struct {
	Name         string            `json:"name"`
	SharePercent json.Number       `json:"share_percent"`
	Attributes   map[string]string `json:"attributes"`
}

type rawSWOT struct {
	Strengths     []string `json:"strengths"`
	Weaknesses    []string `json:"weaknesses"`
	Opportunities []string `json:"opportunities"`
	Threats       []string `json:"threats"`
}

type rawItem struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

type rawKPI struct {
	Name  string      `json:"name"`
	Value json.Number `json:"value"`
	Unit  string      `json:"unit"`
}

type rawGTMRow struct {
	Period string `json:"period"`
	Focus  string `json:"focus"`
	Metric string `json:"metric"`
}

// ParseResponse decodes model output with escalating repair: verbatim
// decode, then code-fence stripping, then largest-balanced-object
// extraction, then trailing-comma removal. A response that survives none
// of these yields Fallback diagnostics and an error.
func ParseResponse(raw string) (*llmResponse, ParseDiagnostics, error) {
	var diag ParseDiagnostics

	candidates := []string{strings.TrimSpace(raw)}
	if stripped := stripCodeFences(raw); stripped != candidates[0] {
		candidates = append(candidates, stripped)
	}
	if obj := extractObject(raw); obj != "" {
		candidates = append(candidates, obj)
	}

	for i, cand := range candidates {
		if cand == "" {
			continue
		}
		if resp, err := decodeResponse(cand); err == nil {
			diag.Repaired = i > 0
			return resp, diag, nil
		}
		repaired := stripTrailingCommas(cand)
		if repaired != cand {
			if resp, err := decodeResponse(repaired); err == nil {
				diag.Repaired = true
				return resp, diag, nil
			}
		}
	}

	diag.Fallback = true
	return nil, diag, fmt.Errorf("no parseable JSON object in model output (%d bytes)", len(raw))
}

func decodeResponse(s string) (*llmResponse, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var resp llmResponse
	if err := dec.Decode(&resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// stripCodeFences removes a surrounding markdown fence if present.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.Index(s, "\n"); idx >= 0 {
		// drop the language tag line ("json" etc)
		if lang := strings.TrimSpace(s[:idx]); len(lang) <= 10 && !strings.Contains(lang, "{") {
			s = s[idx+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// extractObject returns the largest balanced {...} span, ignoring braces
// inside JSON strings.
func extractObject(s string) string {
	best := ""
	depth := 0
	start := -1
	inString := false
	escaped := false
	for i, r := range s {
		if inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			}
			continue
		}
		switch r {
		case '"':
			inString = true
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 && start >= 0 {
					if cand := s[start : i+1]; len(cand) > len(best) {
						best = cand
					}
				}
			}
		}
	}
	return best
}

// stripTrailingCommas removes commas that directly precede a closing
// bracket, the most common malformation in model JSON.
func stripTrailingCommas(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inString := false
	escaped := false
	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if inString {
			b.WriteRune(r)
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			}
			continue
		}
		if r == '"' {
			inString = true
			b.WriteRune(r)
			continue
		}
		if r == ',' {
			j := i + 1
			for j < len(runes) && (runes[j] == ' ' || runes[j] == '\n' || runes[j] == '\t' || runes[j] == '\r') {
				j++
			}
			if j < len(runes) && (runes[j] == '}' || runes[j] == ']') {
				continue // drop the comma
			}
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ToDelta converts a parsed response into a merge-ready delta. Sections
// the response omits stay out of the delta. Evidence source refs are
// attached to every non-empty narrative section; limitTo, when non-empty,
// drops sections the round did not ask for.
func (r *llmResponse) ToDelta(baseVersion int, refs []models.SourceRef, limitTo []models.SectionKey) models.PlanDelta {
	allowed := map[models.SectionKey]bool{}
	for _, k := range limitTo {
		allowed[k] = true
	}
	permit := func(k models.SectionKey) bool { return len(limitTo) == 0 || allowed[k] }

	refStrings := make([]string, 0, len(refs))
	for _, ref := range refs {
		refStrings = append(refStrings, ref.OriginRef)
	}

	delta := models.PlanDelta{BaseVersion: baseVersion, Evidence: refs}

	for key, text := range r.Sections {
		sk := models.SectionKey(key)
		if !models.KnownSection(sk) || !permit(sk) {
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		sec := models.NarrativeSection{Text: text, SourceRefs: refStrings}
		if len(refStrings) == 0 {
			sec.Inferred = true
		}
		if delta.Narratives == nil {
			delta.Narratives = map[models.SectionKey]models.NarrativeSection{}
		}
		delta.Narratives[sk] = sec
	}

	if len(r.Competitors) > 0 && permit(models.SectionCompetitors) {
		comps := make([]models.Competitor, 0, len(r.Competitors))
		for _, c := range r.Competitors {
			if strings.TrimSpace(c.Name) == "" {
				continue
			}
			share := numFloat(c.SharePercent)
			if share < 0 {
				share = 0
			}
			comps = append(comps, models.Competitor{
				Name:         strings.TrimSpace(c.Name),
				SharePercent: share,
				Attributes:   c.Attributes,
			})
		}
		if len(comps) > 0 {
			delta.Competitors = &comps
		}
	}

	if r.SWOT != nil && permit(models.SectionSWOT) {
		swot := models.SWOT{
			Strengths:     r.SWOT.Strengths,
			Weaknesses:    r.SWOT.Weaknesses,
			Opportunities: r.SWOT.Opportunities,
			Threats:       r.SWOT.Threats,
		}
		if len(r.SWOTRadarScores) > 0 {
			swot.Scores = map[string]float64{}
			for axis, n := range r.SWOTRadarScores {
				swot.Scores[axis] = models.Clamp(numFloat(n), 0, 10)
			}
		}
		if !swot.Empty() || len(swot.Scores) > 0 {
			delta.SWOT = &swot
		}
	}

	if len(r.Opportunities) > 0 && permit(models.SectionOpportunities) {
		items := convertItems(r.Opportunities)
		if len(items) > 0 {
			delta.Opportunities = &items
		}
	}
	if len(r.Risks) > 0 && permit(models.SectionRisks) {
		items := convertItems(r.Risks)
		if len(items) > 0 {
			delta.Risks = &items
		}
	}

	if len(r.KPISummary) > 0 && permit(models.SectionKPISummary) {
		kpis := make([]models.KPI, 0, len(r.KPISummary))
		for _, k := range r.KPISummary {
			if strings.TrimSpace(k.Name) == "" {
				continue
			}
			kpis = append(kpis, models.KPI{Name: strings.TrimSpace(k.Name), Value: numFloat(k.Value), Unit: k.Unit})
		}
		if len(kpis) > 0 {
			delta.KPIs = &kpis
		}
	}

	if len(r.PlanTable) > 0 && permit(models.SectionPlanTable) {
		rows := make([]models.GTMRow, 0, len(r.PlanTable))
		for _, row := range r.PlanTable {
			if row.Period == "" && row.Focus == "" {
				continue
			}
			rows = append(rows, models.GTMRow{Period: row.Period, Focus: row.Focus, Metric: row.Metric})
		}
		if len(rows) > 0 {
			delta.PlanTable = &rows
		}
	}

	if r.Confidence != "" {
		conf := models.ClampUnit(numFloat(r.Confidence))
		delta.Confidence = &conf
	}

	return delta
}

func convertItems(raw []rawItem) []models.PlanItem {
	items := make([]models.PlanItem, 0, len(raw))
	for _, it := range raw {
		if strings.TrimSpace(it.Title) == "" {
			continue
		}
		items = append(items, models.PlanItem{Title: strings.TrimSpace(it.Title), Detail: strings.TrimSpace(it.Detail)})
	}
	return items
}

// numFloat tolerates numbers, numeric strings and "35%" style values.
func numFloat(n json.Number) float64 {
	s := strings.TrimSpace(strings.TrimSuffix(string(n), "%"))
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

// FallbackDelta produces the minimal merge applied when model output is
// unusable. The overview is explicit about the failure and marked
// inferred; confidence is pinned low.
func FallbackDelta(company string, depth models.Depth, baseVersion int, bundle models.EvidenceBundle) models.PlanDelta {
	conf := 0.1
	return models.PlanDelta{
		BaseVersion: baseVersion,
		Narratives: map[models.SectionKey]models.NarrativeSection{
			models.SectionExecutiveOverview: {
				Text:     fmt.Sprintf("Research for %s completed but the synthesis step did not produce structured output. The plan below is incomplete; re-run research to populate it.", company),
				Inferred: true,
			},
		},
		Confidence: &conf,
		Evidence:   bundle.SourceRefs(),
		Metadata: &models.ResearchMetadata{
			GeneratedAt: time.Now().UTC(),
			Depth:       depth,
			Confidence:  conf,
			RAGEmpty:    bundle.RAGEmpty,
			WebEmpty:    bundle.WebEmpty,
			Fallback:    true,
		},
	}
}
