package research

import (
	"strings"

	"github.com/planscribe/planscribe/models"
)

// Intent classification is deliberately keyword-based: the chat surface
// needs a fast, deterministic dispatch before any model call, and
// misclassification falls through to the question path which is always
// safe.

var deepDiveMarkers = []string{
	"deep dive", "deep-dive", "dig into", "dig deeper", "investigate",
	"resolve the conflict", "look closer", "drill down", "drill into",
}

var editMarkers = []string{
	"edit", "change", "update", "rewrite", "replace", "revise",
	"set the", "modify",
}

var chartMarkers = []string{
	"chart", "graph", "radar", "pie", "visualize", "visualise", "plot",
}

// Classify maps a user turn to an intent. Edit requests without a
// recognizable section come back as clarification_needed so the engine
// can ask which section to change.
func Classify(text string) models.Intent {
	lower := strings.ToLower(text)
	if containsAny(lower, deepDiveMarkers) {
		return models.IntentDeepDiveRequest
	}
	if containsAny(lower, chartMarkers) {
		return models.IntentChartRequest
	}
	if containsAny(lower, editMarkers) {
		if _, ok := SectionFromText(lower); !ok {
			return models.IntentClarificationNeeded
		}
		return models.IntentEditRequest
	}
	return models.IntentQuestion
}

// sectionAliases maps phrasings users actually type to section keys.
var sectionAliases = []struct {
	key     models.SectionKey
	phrases []string
}{
	{models.SectionExecutiveOverview, []string{"executive overview", "overview", "summary", "exec summary"}},
	{models.SectionCompanyProfile, []string{"company profile", "profile", "about the company", "background"}},
	{models.SectionMarketAnalysis, []string{"market analysis", "market", "industry"}},
	{models.SectionFinancialHighlights, []string{"financial highlights", "financials", "financial", "revenue section"}},
	{models.SectionProductPortfolio, []string{"product portfolio", "products", "product line", "offerings"}},
	{models.SectionTechnologyStack, []string{"technology stack", "tech stack", "technology", "technologies"}},
	{models.SectionGTMPlan, []string{"gtm plan", "go-to-market", "go to market", "gtm"}},
	{models.SectionKPISummary, []string{"kpi summary", "kpis", "kpi", "metrics"}},
	{models.SectionCompetitors, []string{"competitors", "competitor", "competition", "competitive landscape"}},
	{models.SectionSWOT, []string{"swot"}},
	{models.SectionOpportunities, []string{"opportunities", "opportunity"}},
	{models.SectionRisks, []string{"risks", "risk"}},
	{models.SectionPlanTable, []string{"plan table", "30-60-90", "action plan"}},
}

// SectionFromText finds the section a user turn refers to. Longer phrases
// are checked first within each alias list so "market analysis" wins over
// a bare "market" elsewhere in the sentence.
func SectionFromText(text string) (models.SectionKey, bool) {
	lower := strings.ToLower(text)
	for _, alias := range sectionAliases {
		for _, phrase := range alias.phrases {
			if strings.Contains(lower, phrase) {
				return alias.key, true
			}
		}
	}
	return "", false
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
