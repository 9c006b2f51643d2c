package research

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/planscribe/planscribe/internal/store"
	"github.com/planscribe/planscribe/internal/telemetry"
	"github.com/planscribe/planscribe/models"
	"github.com/planscribe/planscribe/provider"
)

// answerSystemPrompt drives the conversational question path. Answers
// come from plan state, not fresh retrieval.
const answerSystemPrompt = `You are an account research assistant. Answer the user's question using only the account plan state provided. Be concise. If the plan does not contain the answer, say so and suggest running a deeper research round.`

// StreamEvent is one progress event of a streaming research round.
type StreamEvent struct {
	Type string `json:"type"` // step, chunk, plan, error
	Data any    `json:"data"`
}

// Engine orchestrates research rounds, conversation turns and deep dives
// over a plan store.
type Engine struct {
	Store    store.Store
	Provider provider.Provider
	Fuser    *Fuser
	Tracker  *Tracker

	HistoryWindow int
	Logger        *log.Logger
}

func NewEngine(st store.Store, prov provider.Provider, fuser *Fuser, tracker *Tracker, historyWindow int, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.New(log.Writer(), "[ENGINE] ", log.LstdFlags)
	}
	if historyWindow <= 0 {
		historyWindow = 12
	}
	return &Engine{
		Store:         st,
		Provider:      prov,
		Fuser:         fuser,
		Tracker:       tracker,
		HistoryWindow: historyWindow,
		Logger:        logger,
	}
}

// StartResearch creates a plan and runs one full research round on it.
func (e *Engine) StartResearch(ctx context.Context, company string, depth models.Depth) (*models.AccountPlan, error) {
	return e.research(ctx, company, depth, nil)
}

// StreamResearch runs the same round while emitting progress and model
// chunks through emit. The returned plan is the merged final state.
func (e *Engine) StreamResearch(ctx context.Context, company string, depth models.Depth, emit func(StreamEvent)) (*models.AccountPlan, error) {
	return e.research(ctx, company, depth, emit)
}

func (e *Engine) research(ctx context.Context, company string, depth models.Depth, emit func(StreamEvent)) (*models.AccountPlan, error) {
	company = strings.TrimSpace(company)
	if company == "" {
		return nil, fmt.Errorf("company is required")
	}

	plan := models.NewAccountPlan(company, depth)
	if err := e.Store.CreatePlan(ctx, plan); err != nil {
		return nil, fmt.Errorf("create plan: %w", err)
	}

	merged, steps, err := e.runRound(ctx, plan, roundSpec{depth: depth}, emit)
	if err != nil {
		return nil, err
	}
	e.seedHistory(ctx, merged, steps)
	telemetry.ResearchRound(string(depth), "complete")
	if emit != nil {
		emit(StreamEvent{Type: "plan", Data: merged})
	}
	return merged, nil
}

// roundSpec narrows one synthesis round.
type roundSpec struct {
	depth          models.Depth
	topicFilter    string
	targetSections []models.SectionKey
	openConflicts  []models.Conflict
}

// runRound executes retrieve, synthesize, parse, track, merge for one
// round against the given plan and returns the merged plan plus the
// pipeline steps it recorded.
func (e *Engine) runRound(ctx context.Context, plan *models.AccountPlan, spec roundSpec, emit func(StreamEvent)) (*models.AccountPlan, []models.ResearchStep, error) {
	var steps []models.ResearchStep
	record := func(step models.ResearchStep) {
		steps = append(steps, step)
		if emit != nil {
			emit(StreamEvent{Type: "step", Data: step})
		}
	}

	bundle := e.Fuser.Fuse(ctx, plan.Company, spec.depth, spec.topicFilter)
	record(retrievalStep(bundle))
	e.countDegraded(bundle)

	refs := bundle.SourceRefs()
	baseVersion := plan.Version

	var delta models.PlanDelta
	var raws []models.RawConflict
	parsed := false

	prompt := BuildPrompt(PromptInput{
		Company:        plan.Company,
		Depth:          spec.depth,
		Bundle:         bundle,
		TargetSections: spec.targetSections,
		OpenConflicts:  spec.openConflicts,
		PriorPlan:      plan,
	})

	started := time.Now()
	raw, err := e.complete(ctx, systemPrompt, prompt, emit)
	telemetry.LLMCompletion(time.Since(started))
	if err != nil {
		e.Logger.Printf("synthesis failed for plan %s: %v", plan.ID, err)
		record(models.ResearchStep{ID: "synthesize", Label: "Synthesize plan", Status: "error", Detail: err.Error()})
		telemetry.ResearchRound(string(spec.depth), "llm_error")
		return nil, steps, fmt.Errorf("model completion: %w", err)
	}

	resp, diag, perr := ParseResponse(raw)
	if perr != nil {
		telemetry.ParseFallback()
		record(models.ResearchStep{ID: "synthesize", Label: "Synthesize plan", Status: "error", Detail: "unparseable model output, fallback plan applied"})
		delta = FallbackDelta(plan.Company, spec.depth, baseVersion, bundle)
	} else {
		if diag.Repaired {
			telemetry.ParseRepaired()
		}
		parsed = true
		delta = resp.ToDelta(baseVersion, refs, spec.targetSections)
		raws = resp.Conflicts
		record(models.ResearchStep{ID: "synthesize", Label: "Synthesize plan", Status: "complete",
			Detail: fmt.Sprintf("%d sections updated", len(delta.DeclaredSections()))})
	}

	if parsed {
		targetVersion := baseVersion + 1
		news, updates := e.Tracker.Ingest(plan, raws, refStrings(refs), targetVersion)
		delta.NewConflicts = news
		delta.ConflictUpdates = append(delta.ConflictUpdates, updates...)
		for _, n := range news {
			telemetry.ConflictTransition(string(n.Status))
		}
		detail := "no conflicts detected"
		if n := len(news) + len(updates); n > 0 {
			detail = fmt.Sprintf("%d conflict(s) reported", n)
		}
		record(models.ResearchStep{ID: "conflicts", Label: "Track conflicts", Status: "complete", Detail: detail})

		conf := plan.Confidence
		if delta.Confidence != nil {
			conf = *delta.Confidence
		}
		delta.Metadata = &models.ResearchMetadata{
			GeneratedAt:       time.Now().UTC(),
			Depth:             spec.depth,
			SourcesUsed:       sourcesUsed(bundle),
			ConflictsDetected: len(raws) > 0,
			Confidence:        conf,
			RAGEmpty:          bundle.RAGEmpty,
			WebEmpty:          bundle.WebEmpty,
			Fallback:          bundle.Fallback,
		}
	}
	delta.Metadata.Steps = append(steps[:len(steps):len(steps)], models.ResearchStep{
		ID: "merge", Label: "Merge into plan", Status: "complete",
	})

	merged, err := e.Store.MergePlan(ctx, plan.ID, delta)
	if err != nil {
		if errors.Is(err, models.ErrVersionConflict) {
			telemetry.MergeRejected()
		}
		record(models.ResearchStep{ID: "merge", Label: "Merge into plan", Status: "error", Detail: err.Error()})
		return nil, steps, fmt.Errorf("merge round: %w", err)
	}
	record(models.ResearchStep{ID: "merge", Label: "Merge into plan", Status: "complete",
		Detail: fmt.Sprintf("plan at version %d", merged.Version)})
	return merged, steps, nil
}

func (e *Engine) complete(ctx context.Context, system, user string, emit func(StreamEvent)) (string, error) {
	if emit == nil {
		return e.Provider.Complete(ctx, system, user)
	}
	return e.Provider.CompleteStream(ctx, system, user, func(chunk string) {
		emit(StreamEvent{Type: "chunk", Data: chunk})
	})
}

// GetPlan fetches current plan state.
func (e *Engine) GetPlan(ctx context.Context, id string) (*models.AccountPlan, error) {
	return e.Store.GetPlan(ctx, id)
}

// GetCharts returns the cached chart payloads for a plan.
func (e *Engine) GetCharts(ctx context.Context, id string) (*models.ChartPayloads, error) {
	plan, err := e.Store.GetPlan(ctx, id)
	if err != nil {
		return nil, err
	}
	if plan.Sources.Charts != nil {
		return plan.Sources.Charts, nil
	}
	return models.DeriveCharts(plan), nil
}

// EditSection replaces one section from user text. Stale base versions
// surface as ErrVersionConflict for the caller to re-read and retry.
func (e *Engine) EditSection(ctx context.Context, planID string, key models.SectionKey, content string, baseVersion int) (*models.AccountPlan, error) {
	plan, err := e.Store.ReplaceSection(ctx, planID, key, content, baseVersion)
	if err != nil {
		if errors.Is(err, models.ErrVersionConflict) {
			telemetry.MergeRejected()
		}
		return nil, err
	}
	return plan, nil
}

// RequestDeepDive runs one targeted reconciliation round for a tracked
// conflict. The conflict must still be open; each request advances its
// attempt counter and the tracker closes it as unresolvable at the cap.
func (e *Engine) RequestDeepDive(ctx context.Context, planID, conflictID string) (*models.AccountPlan, models.ConflictOutcome, error) {
	plan, err := e.Store.GetPlan(ctx, planID)
	if err != nil {
		return nil, "", err
	}
	target, ok := plan.Conflict(conflictID)
	if !ok {
		return nil, "", models.ErrConflictNotFound
	}
	if target.Status.Terminal() {
		return nil, "", models.ErrConflictClosed
	}

	// Mark the request before the (slow) round so concurrent readers see it.
	marked := *target
	marked.Status = models.ConflictDeepDiveRequested
	marked.UpdatedAt = time.Now().UTC()
	plan, err = e.Store.MergePlan(ctx, planID, models.PlanDelta{
		BaseVersion:     plan.Version,
		ConflictUpdates: []models.Conflict{marked},
	})
	if err != nil {
		return nil, "", err
	}
	telemetry.ConflictTransition(string(models.ConflictDeepDiveRequested))

	bundle := e.Fuser.Fuse(ctx, plan.Company, models.DepthDeep, marked.Topic)
	e.countDegraded(bundle)
	refs := bundle.SourceRefs()

	prompt := BuildPrompt(PromptInput{
		Company:        plan.Company,
		Depth:          models.DepthDeep,
		Bundle:         bundle,
		TargetSections: sectionsForTopic(marked.Topic),
		OpenConflicts:  []models.Conflict{marked},
		PriorPlan:      plan,
	})

	started := time.Now()
	raw, err := e.Provider.Complete(ctx, systemPrompt, prompt)
	telemetry.LLMCompletion(time.Since(started))
	if err != nil {
		return nil, "", fmt.Errorf("deep dive completion: %w", err)
	}

	resp, diag, perr := ParseResponse(raw)
	var delta models.PlanDelta
	var raws []models.RawConflict
	if perr != nil {
		telemetry.ParseFallback()
		// Unusable output still consumes an attempt: the round was run and
		// failed to settle the topic.
		delta = models.PlanDelta{BaseVersion: plan.Version, Evidence: refs}
		raws = []models.RawConflict{{Topic: marked.Topic, Details: marked.Detail}}
	} else {
		if diag.Repaired {
			telemetry.ParseRepaired()
		}
		delta = resp.ToDelta(plan.Version, refs, sectionsForTopic(marked.Topic))
		raws = resp.Conflicts
	}

	reconciled, outcome := e.Tracker.Reconcile(marked, raws, plan.Version+1)
	telemetry.ConflictTransition(string(reconciled.Status))
	delta.ConflictUpdates = append(delta.ConflictUpdates, reconciled)

	merged, err := e.Store.MergePlan(ctx, planID, delta)
	if err != nil {
		if errors.Is(err, models.ErrVersionConflict) {
			telemetry.MergeRejected()
		}
		return nil, "", fmt.Errorf("merge deep dive: %w", err)
	}
	return merged, outcome, nil
}

// feedbackSystemPrompt drives the plan-review path.
const feedbackSystemPrompt = `You are reviewing an account research plan. Given the plan state, the conversation so far and the user's feedback notes, produce a short improvement summary: what the plan does well, what is weak or missing, and which concrete follow-up actions (section edits, deep dives, re-research) would address the feedback. Plain text, no JSON.`

// Feedback runs an LLM review of the plan against the user's notes and
// returns the improvement summary. The plan itself is never mutated;
// the exchange is recorded in the conversation.
func (e *Engine) Feedback(ctx context.Context, planID, notes string) (string, error) {
	plan, err := e.Store.GetPlan(ctx, planID)
	if err != nil {
		return "", err
	}
	history, err := e.Store.ListTurns(ctx, planID)
	if err != nil {
		return "", err
	}
	if len(history) > e.HistoryWindow {
		history = history[len(history)-e.HistoryWindow:]
	}

	var b strings.Builder
	b.WriteString("Account plan state:\n")
	b.WriteString(planSummary(plan))
	if len(history) > 0 {
		b.WriteString("\nConversation:\n")
		for _, t := range history {
			fmt.Fprintf(&b, "%s: %s\n", t.Role, t.Text)
		}
	}
	fmt.Fprintf(&b, "\nUser feedback: %s\n", strings.TrimSpace(notes))

	started := time.Now()
	summary, err := e.Provider.Complete(ctx, feedbackSystemPrompt, b.String())
	telemetry.LLMCompletion(time.Since(started))
	if err != nil {
		return "", fmt.Errorf("feedback completion: %w", err)
	}
	summary = strings.TrimSpace(summary)

	now := time.Now().UTC()
	turns := []models.ConversationTurn{
		{TurnID: uuid.NewString(), PlanID: planID, Role: models.RoleUser, Text: "Feedback: " + strings.TrimSpace(notes), Timestamp: now},
		{TurnID: uuid.NewString(), PlanID: planID, Role: models.RoleAgent, Text: summary, Timestamp: now},
	}
	for _, turn := range turns {
		if err := e.Store.AppendTurn(ctx, turn); err != nil {
			return summary, err
		}
	}
	return summary, nil
}

// HandleTurn processes one chat message: the user turn is appended with
// its classified intent, the intent path runs, and exactly one agent turn
// answers. The agent turn is returned along with refreshed plan state.
func (e *Engine) HandleTurn(ctx context.Context, planID, text string) (models.ConversationTurn, *models.AccountPlan, error) {
	plan, err := e.Store.GetPlan(ctx, planID)
	if err != nil {
		return models.ConversationTurn{}, nil, err
	}

	intent := Classify(text)
	userTurn := models.ConversationTurn{
		TurnID:    uuid.NewString(),
		PlanID:    planID,
		Role:      models.RoleUser,
		Text:      text,
		Intent:    intent,
		Timestamp: time.Now().UTC(),
	}
	if err := e.Store.AppendTurn(ctx, userTurn); err != nil {
		return models.ConversationTurn{}, nil, err
	}

	var reply string
	switch intent {
	case models.IntentDeepDiveRequest:
		reply, plan, err = e.chatDeepDive(ctx, plan, text)
	case models.IntentEditRequest:
		reply, plan, err = e.chatEdit(ctx, plan, text)
	case models.IntentChartRequest:
		reply = chartSummary(plan)
	case models.IntentClarificationNeeded:
		reply = "Which section should I change? I can edit the executive overview, company profile, market analysis, financial highlights, product portfolio, technology stack, go-to-market plan, competitors, opportunities or risks."
	default:
		reply, err = e.answerQuestion(ctx, plan, text)
	}
	if err != nil {
		return models.ConversationTurn{}, nil, err
	}

	agentTurn := models.ConversationTurn{
		TurnID:    uuid.NewString(),
		PlanID:    planID,
		Role:      models.RoleAgent,
		Text:      reply,
		Intent:    intent,
		Timestamp: time.Now().UTC(),
	}
	if err := e.Store.AppendTurn(ctx, agentTurn); err != nil {
		return models.ConversationTurn{}, nil, err
	}
	return agentTurn, plan, nil
}

func (e *Engine) chatDeepDive(ctx context.Context, plan *models.AccountPlan, text string) (string, *models.AccountPlan, error) {
	conflict, ok := e.Tracker.MatchTopic(plan, text)
	if !ok {
		open := plan.OpenConflicts()
		if len(open) == 0 {
			return "There are no open conflicts on this plan to dig into.", plan, nil
		}
		conflict = open[0]
	}
	merged, outcome, err := e.RequestDeepDive(ctx, plan.ID, conflict.ID)
	if err != nil {
		return "", nil, err
	}
	switch outcome {
	case models.OutcomeResolved:
		return fmt.Sprintf("Deep dive on %q complete: the conflict is resolved and the plan is updated (now at version %d).", conflict.Topic, merged.Version), merged, nil
	case models.OutcomeUnresolvable:
		return fmt.Sprintf("Deep dive on %q exhausted its retries without agreement between sources. The conflict is marked unresolvable; both readings stay recorded.", conflict.Topic), merged, nil
	default:
		return fmt.Sprintf("Deep dive on %q gathered more evidence but the sources still disagree. You can request another dive.", conflict.Topic), merged, nil
	}
}

func (e *Engine) chatEdit(ctx context.Context, plan *models.AccountPlan, text string) (string, *models.AccountPlan, error) {
	key, ok := SectionFromText(text)
	if !ok {
		return "I couldn't tell which section to edit. Name the section and what should change.", plan, nil
	}

	current := sectionText(plan, key)
	prompt := fmt.Sprintf("Current %q section:\n%s\n\nUser instruction: %s\n\nRewrite only that section per the instruction.", key, current, text)
	raw, err := e.Provider.Complete(ctx, systemPrompt, prompt)
	if err != nil {
		return "", nil, fmt.Errorf("edit completion: %w", err)
	}
	resp, _, perr := ParseResponse(raw)
	if perr != nil {
		return "I couldn't produce a clean rewrite for that section. Try rephrasing the instruction.", plan, nil
	}
	delta := resp.ToDelta(plan.Version, nil, []models.SectionKey{key})
	if delta.Empty() {
		return fmt.Sprintf("The model returned no content for the %s section; nothing was changed.", key), plan, nil
	}
	merged, err := e.Store.MergePlan(ctx, plan.ID, delta)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("Updated the %s section (plan now at version %d).", key, merged.Version), merged, nil
}

func (e *Engine) answerQuestion(ctx context.Context, plan *models.AccountPlan, question string) (string, error) {
	history, err := e.Store.ListTurns(ctx, plan.ID)
	if err != nil {
		return "", err
	}
	if len(history) > e.HistoryWindow {
		history = history[len(history)-e.HistoryWindow:]
	}

	var b strings.Builder
	b.WriteString("Account plan state:\n")
	b.WriteString(planSummary(plan))
	if len(history) > 0 {
		b.WriteString("\nRecent conversation:\n")
		for _, t := range history {
			fmt.Fprintf(&b, "%s: %s\n", t.Role, t.Text)
		}
	}
	fmt.Fprintf(&b, "\nQuestion: %s\n", question)

	started := time.Now()
	answer, err := e.Provider.Complete(ctx, answerSystemPrompt, b.String())
	telemetry.LLMCompletion(time.Since(started))
	if err != nil {
		return "", fmt.Errorf("answer completion: %w", err)
	}
	return strings.TrimSpace(answer), nil
}

// seedHistory appends the pipeline narration turns a fresh research round
// leaves in the conversation, so the chat opens with context on how the
// plan was built.
func (e *Engine) seedHistory(ctx context.Context, plan *models.AccountPlan, steps []models.ResearchStep) {
	now := time.Now().UTC()
	turns := []models.ConversationTurn{{
		TurnID:    uuid.NewString(),
		PlanID:    plan.ID,
		Role:      models.RoleUser,
		Text:      fmt.Sprintf("Research %s (%s depth)", plan.Company, plan.Depth),
		Intent:    models.IntentQuestion,
		Timestamp: now,
	}}
	for _, step := range steps {
		text := step.Label
		if step.Detail != "" {
			text += ": " + step.Detail
		}
		if step.Status == "error" {
			text += " (failed)"
		}
		turns = append(turns, models.ConversationTurn{
			TurnID:    uuid.NewString(),
			PlanID:    plan.ID,
			Role:      models.RoleAgent,
			Text:      text,
			Timestamp: now,
		})
	}
	for _, turn := range turns {
		if err := e.Store.AppendTurn(ctx, turn); err != nil {
			e.Logger.Printf("seeding history for plan %s: %v", plan.ID, err)
			return
		}
	}
}

func (e *Engine) countDegraded(bundle models.EvidenceBundle) {
	switch {
	case bundle.Fallback:
		telemetry.DegradedBundle("fallback")
	case bundle.RAGEmpty:
		telemetry.DegradedBundle("rag_empty")
	case bundle.WebEmpty:
		telemetry.DegradedBundle("web_empty")
	}
}

func retrievalStep(bundle models.EvidenceBundle) models.ResearchStep {
	step := models.ResearchStep{ID: "retrieve", Label: "Gather evidence", Status: "complete",
		Detail: fmt.Sprintf("%d evidence items", len(bundle.Items))}
	switch {
	case bundle.Fallback:
		step.Status = "error"
		step.Detail = "no evidence from any source"
	case bundle.RAGEmpty:
		step.Detail += " (internal corpus empty, web only)"
	case bundle.WebEmpty:
		step.Detail += " (web search unavailable, internal only)"
	}
	return step
}

func sourcesUsed(bundle models.EvidenceBundle) []string {
	var used []string
	if !bundle.RAGEmpty {
		used = append(used, "internal_index")
	}
	if !bundle.WebEmpty {
		used = append(used, "web_search")
	}
	return used
}

// sectionsForTopic limits a deep dive's writes to the sections its topic
// plausibly touches. An unrecognized topic gets the narrative sections
// most likely to carry contested facts.
func sectionsForTopic(topic string) []models.SectionKey {
	if key, ok := SectionFromText(topic); ok {
		return []models.SectionKey{key}
	}
	return []models.SectionKey{
		models.SectionExecutiveOverview,
		models.SectionFinancialHighlights,
		models.SectionMarketAnalysis,
	}
}

func sectionText(plan *models.AccountPlan, key models.SectionKey) string {
	if sec, ok := plan.Narratives[key]; ok {
		return sec.Text
	}
	switch key {
	case models.SectionOpportunities:
		return itemLines(plan.Opportunities)
	case models.SectionRisks:
		return itemLines(plan.Risks)
	case models.SectionCompetitors:
		var lines []string
		for _, c := range plan.Competitors {
			lines = append(lines, fmt.Sprintf("%s: %.1f", c.Name, c.SharePercent))
		}
		return strings.Join(lines, "\n")
	}
	return ""
}

func itemLines(items []models.PlanItem) string {
	var lines []string
	for _, it := range items {
		if it.Detail != "" {
			lines = append(lines, it.Title+": "+it.Detail)
		} else {
			lines = append(lines, it.Title)
		}
	}
	return strings.Join(lines, "\n")
}

// planSummary renders plan state compactly for prompting.
func planSummary(plan *models.AccountPlan) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Company: %s (version %d, confidence %.2f)\n", plan.Company, plan.Version, plan.Confidence)
	for _, key := range models.NarrativeSectionKeys {
		if sec, ok := plan.Narratives[key]; ok && sec.Text != "" {
			fmt.Fprintf(&b, "%s: %s\n", key, sec.Text)
		}
	}
	if len(plan.Competitors) > 0 {
		b.WriteString("competitors: ")
		for i, c := range plan.Competitors {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s (%.1f%%)", c.Name, c.SharePercent)
		}
		b.WriteString("\n")
	}
	if !plan.SWOT.Empty() {
		fmt.Fprintf(&b, "swot: %d strengths, %d weaknesses, %d opportunities, %d threats\n",
			len(plan.SWOT.Strengths), len(plan.SWOT.Weaknesses), len(plan.SWOT.Opportunities), len(plan.SWOT.Threats))
	}
	if len(plan.KPIs) > 0 {
		b.WriteString("kpis: ")
		for i, k := range plan.KPIs {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s=%.2f%s", k.Name, k.Value, k.Unit)
		}
		b.WriteString("\n")
	}
	for _, it := range plan.Opportunities {
		fmt.Fprintf(&b, "opportunity: %s\n", it.Title)
	}
	for _, it := range plan.Risks {
		fmt.Fprintf(&b, "risk: %s\n", it.Title)
	}
	for _, c := range plan.Conflicts {
		fmt.Fprintf(&b, "conflict (%s): %s - %s\n", c.Status, c.Topic, c.Detail)
	}
	return b.String()
}

// chartSummary answers a chart request from cached payloads without a
// model call.
func chartSummary(plan *models.AccountPlan) string {
	charts := plan.Sources.Charts
	if charts == nil {
		charts = models.DeriveCharts(plan)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Charts for %s (plan version %d):\n", plan.Company, charts.PlanVersion)
	if len(charts.Radar) > 0 {
		b.WriteString("SWOT radar:")
		for _, p := range charts.Radar {
			fmt.Fprintf(&b, " %s=%.1f", p.Axis, p.Value)
		}
		b.WriteString("\n")
	}
	if len(charts.Pie) > 0 {
		b.WriteString("Competitor share:")
		for _, s := range charts.Pie {
			fmt.Fprintf(&b, " %s=%.0f%%", s.Name, s.Weight*100)
		}
		b.WriteString("\n")
	}
	if len(charts.Bars) > 0 {
		b.WriteString("KPIs:")
		for _, bar := range charts.Bars {
			fmt.Fprintf(&b, " %s=%.2f%s", bar.Label, bar.Value, bar.Unit)
		}
		b.WriteString("\n")
	}
	if len(charts.Radar) == 0 && len(charts.Pie) == 0 && len(charts.Bars) == 0 {
		b.WriteString("No chartable data yet; run research first.\n")
	}
	b.WriteString("Fetch the chart payloads from the charts endpoint for rendering.")
	return b.String()
}

func refStrings(refs []models.SourceRef) []string {
	out := make([]string, 0, len(refs))
	for _, r := range refs {
		out = append(out, r.OriginRef)
	}
	return out
}
