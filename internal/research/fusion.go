package research

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/planscribe/planscribe/config"
	"github.com/planscribe/planscribe/models"
	"github.com/planscribe/planscribe/tools/ragindex"
	wsmodels "github.com/planscribe/planscribe/tools/websearch/models"
)

// InternalSearcher is the indexed-document retrieval collaborator.
type InternalSearcher interface {
	Search(ctx context.Context, query string, k int) ([]ragindex.Hit, error)
}

// WebSearcher is the live web search collaborator.
type WebSearcher interface {
	Discover(ctx context.Context, q string, k int) ([]wsmodels.Result, error)
}

// PageFetcher expands a search hit into fuller readable text.
type PageFetcher interface {
	FetchReadable(ctx context.Context, url string) (string, error)
}

// Fuser assembles heterogeneous retrieval results into one bounded,
// deduplicated evidence bundle. Collaborator failures degrade the bundle
// instead of failing the round.
type Fuser struct {
	Internal InternalSearcher // nil when no corpus is configured
	Web      WebSearcher      // nil when no search key is configured
	Fetcher  PageFetcher      // optional deep-dive page expansion

	Caps           map[models.Depth]int
	DedupThreshold float64
	RAGTimeout     time.Duration
	WebTimeout     time.Duration
	FetchTop       int

	Logger *log.Logger
}

// NewFuser wires a fuser from configuration.
func NewFuser(internal InternalSearcher, web WebSearcher, fetcher PageFetcher, cfg config.ResearchConfig, searchCfg config.SearchConfig, ragCfg config.RAGConfig, logger *log.Logger) *Fuser {
	if logger == nil {
		logger = log.New(log.Writer(), "[FUSE] ", log.LstdFlags)
	}
	return &Fuser{
		Internal: internal,
		Web:      web,
		Fetcher:  fetcher,
		Caps: map[models.Depth]int{
			models.DepthQuick:    cfg.QuickCap,
			models.DepthStandard: cfg.StandardCap,
			models.DepthDeep:     cfg.DeepCap,
		},
		DedupThreshold: cfg.DedupThreshold,
		RAGTimeout:     ragCfg.Timeout,
		WebTimeout:     searchCfg.Timeout,
		FetchTop:       searchCfg.FetchTop,
		Logger:         logger,
	}
}

// Cap returns the evidence cap for a depth.
func (f *Fuser) Cap(depth models.Depth) int {
	if cap, ok := f.Caps[depth]; ok && cap > 0 {
		return cap
	}
	return 14
}

// Fuse assembles the evidence bundle for one research round. topicFilter
// narrows retrieval to one conflict's topic during deep dives.
func (f *Fuser) Fuse(ctx context.Context, company string, depth models.Depth, topicFilter string) models.EvidenceBundle {
	cap := f.Cap(depth)
	perKind := cap/2 + 1

	internalQuery := fmt.Sprintf("%s company overview products strategy customers competitors", company)
	webQuery := fmt.Sprintf("%s latest news financials market position competitors risks", company)
	if topicFilter != "" {
		internalQuery = fmt.Sprintf("%s %s", company, topicFilter)
		webQuery = fmt.Sprintf("%s %s official report", company, topicFilter)
	}

	var items []models.EvidenceItem

	ragItems := f.searchInternal(ctx, internalQuery, perKind)
	items = append(items, ragItems...)

	webItems := f.searchWeb(ctx, webQuery, perKind)
	if depth == models.DepthDeep && f.Fetcher != nil {
		webItems = f.expand(ctx, webItems)
	}
	items = append(items, webItems...)

	bundle := models.EvidenceBundle{
		Items:    capItems(dedupe(items, f.DedupThreshold), cap),
		RAGEmpty: len(ragItems) == 0,
		WebEmpty: len(webItems) == 0,
	}
	if bundle.RAGEmpty && bundle.WebEmpty {
		bundle.Fallback = true
	}
	return bundle
}

func (f *Fuser) searchInternal(ctx context.Context, query string, k int) []models.EvidenceItem {
	if f.Internal == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, f.timeout(f.RAGTimeout))
	defer cancel()
	hits, err := f.Internal.Search(ctx, query, k)
	if err != nil {
		f.Logger.Printf("internal retrieval failed, continuing web-only: %v", err)
		return nil
	}
	now := time.Now().UTC()
	items := make([]models.EvidenceItem, 0, len(hits))
	for _, h := range hits {
		if strings.TrimSpace(h.Snippet) == "" {
			continue
		}
		items = append(items, models.EvidenceItem{
			Kind:        models.SourceInternal,
			Text:        h.Snippet,
			OriginRef:   "doc:" + h.DocID,
			RetrievedAt: now,
		})
	}
	return items
}

func (f *Fuser) searchWeb(ctx context.Context, query string, k int) []models.EvidenceItem {
	if f.Web == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, f.timeout(f.WebTimeout))
	defer cancel()
	results, err := f.Web.Discover(ctx, query, k)
	if err != nil {
		f.Logger.Printf("web search failed, continuing internal-only: %v", err)
		return nil
	}
	now := time.Now().UTC()
	items := make([]models.EvidenceItem, 0, len(results))
	for _, r := range results {
		text := strings.TrimSpace(r.Snippet)
		if r.Title != "" && text != "" {
			text = r.Title + ": " + text
		} else if text == "" {
			text = r.Title
		}
		if text == "" {
			continue
		}
		ref := r.URL
		if ref == "" {
			ref = "web:" + r.Title
		}
		items = append(items, models.EvidenceItem{
			Kind:        models.SourceWeb,
			Text:        text,
			OriginRef:   ref,
			RetrievedAt: now,
		})
	}
	return items
}

// expand replaces the leading web snippets with readable page text for
// deep dives, keeping the snippet when the fetch fails.
func (f *Fuser) expand(ctx context.Context, items []models.EvidenceItem) []models.EvidenceItem {
	n := f.FetchTop
	if n <= 0 || n > len(items) {
		n = min(2, len(items))
	}
	for i := 0; i < n; i++ {
		if !strings.HasPrefix(items[i].OriginRef, "http") {
			continue
		}
		text, err := f.Fetcher.FetchReadable(ctx, items[i].OriginRef)
		if err != nil {
			f.Logger.Printf("page expansion skipped for %s: %v", items[i].OriginRef, err)
			continue
		}
		if strings.TrimSpace(text) != "" {
			items[i].Text = text
			items[i].RetrievedAt = time.Now().UTC()
		}
	}
	return items
}

func (f *Fuser) timeout(d time.Duration) time.Duration {
	if d <= 0 {
		return 10 * time.Second
	}
	return d
}

// dedupe collapses near-duplicate text from the same source kind,
// keeping the most recently retrieved item.
func dedupe(items []models.EvidenceItem, threshold float64) []models.EvidenceItem {
	var kept []models.EvidenceItem
	for _, item := range items {
		replaced := false
		for i := range kept {
			if kept[i].Kind != item.Kind {
				continue
			}
			if jaccard(tokenSet(kept[i].Text), tokenSet(item.Text)) >= threshold {
				if !item.RetrievedAt.Before(kept[i].RetrievedAt) {
					kept[i] = item
				}
				replaced = true
				break
			}
		}
		if !replaced {
			kept = append(kept, item)
		}
	}
	return kept
}

func capItems(items []models.EvidenceItem, cap int) []models.EvidenceItem {
	if len(items) <= cap {
		return items
	}
	return items[:cap]
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range strings.Fields(strings.ToLower(s)) {
		tok = strings.Trim(tok, ".,;:!?\"'()[]")
		if len(tok) < 2 {
			continue
		}
		set[tok] = struct{}{}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
