package research

import (
	"context"
	"errors"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/planscribe/planscribe/models"
	"github.com/planscribe/planscribe/tools/ragindex"
	wsmodels "github.com/planscribe/planscribe/tools/websearch/models"
)

type stubInternal struct {
	hits []ragindex.Hit
	err  error
	gotQ string
}

func (s *stubInternal) Search(ctx context.Context, query string, k int) ([]ragindex.Hit, error) {
	s.gotQ = query
	if s.err != nil {
		return nil, s.err
	}
	return s.hits, nil
}

type stubWeb struct {
	results []wsmodels.Result
	err     error
	gotQ    string
}

func (s *stubWeb) Discover(ctx context.Context, q string, k int) ([]wsmodels.Result, error) {
	s.gotQ = q
	if s.err != nil {
		return nil, s.err
	}
	return s.results, nil
}

type stubFetcher struct {
	text string
	err  error
}

func (s *stubFetcher) FetchReadable(ctx context.Context, url string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.text, nil
}

func testFuser(internal InternalSearcher, web WebSearcher, fetcher PageFetcher) *Fuser {
	return &Fuser{
		Internal: internal,
		Web:      web,
		Fetcher:  fetcher,
		Caps: map[models.Depth]int{
			models.DepthQuick:    6,
			models.DepthStandard: 14,
			models.DepthDeep:     24,
		},
		DedupThreshold: 0.8,
		RAGTimeout:     time.Second,
		WebTimeout:     time.Second,
		FetchTop:       1,
		Logger:         log.New(log.Writer(), "[FUSE] ", log.LstdFlags),
	}
}

func TestFuseCombinesBothKinds(t *testing.T) {
	internal := &stubInternal{hits: []ragindex.Hit{{DocID: "d1", Snippet: "internal note about acme pricing"}}}
	web := &stubWeb{results: []wsmodels.Result{{Title: "Acme raises", URL: "https://x/y", Snippet: "series C announced"}}}
	f := testFuser(internal, web, nil)

	bundle := f.Fuse(context.Background(), "Acme", models.DepthStandard, "")
	if bundle.Fallback || bundle.RAGEmpty || bundle.WebEmpty {
		t.Fatalf("flags = %+v", bundle)
	}
	if len(bundle.Items) != 2 {
		t.Fatalf("items = %d, want 2", len(bundle.Items))
	}
	if bundle.Items[0].Kind != models.SourceInternal || bundle.Items[0].OriginRef != "doc:d1" {
		t.Errorf("item[0] = %+v, internal must come first", bundle.Items[0])
	}
	if bundle.Items[1].Kind != models.SourceWeb || bundle.Items[1].OriginRef != "https://x/y" {
		t.Errorf("item[1] = %+v", bundle.Items[1])
	}
}

func TestFuseDegradesOnFailure(t *testing.T) {
	internal := &stubInternal{err: errors.New("index offline")}
	web := &stubWeb{results: []wsmodels.Result{{Title: "t", Snippet: "s"}}}
	bundle := testFuser(internal, web, nil).Fuse(context.Background(), "Acme", models.DepthQuick, "")
	if !bundle.RAGEmpty || bundle.WebEmpty || bundle.Fallback {
		t.Errorf("flags = %+v, want rag_empty only", bundle)
	}
	if len(bundle.Items) != 1 {
		t.Errorf("items = %d", len(bundle.Items))
	}
}

func TestFuseFallbackWhenEverythingEmpty(t *testing.T) {
	bundle := testFuser(nil, nil, nil).Fuse(context.Background(), "Acme", models.DepthQuick, "")
	if !bundle.Fallback || !bundle.RAGEmpty || !bundle.WebEmpty {
		t.Errorf("flags = %+v, want full fallback", bundle)
	}
	if len(bundle.Items) != 0 {
		t.Errorf("items = %d", len(bundle.Items))
	}
}

func TestFuseDeduplicatesSameKind(t *testing.T) {
	web := &stubWeb{results: []wsmodels.Result{
		{Title: "Acme", URL: "u1", Snippet: "acme revenue grew to eighty million dollars last year"},
		{Title: "Acme", URL: "u2", Snippet: "acme revenue grew to eighty million dollars last year"},
	}}
	bundle := testFuser(nil, web, nil).Fuse(context.Background(), "Acme", models.DepthStandard, "")
	if len(bundle.Items) != 1 {
		t.Fatalf("items = %d, want duplicates collapsed", len(bundle.Items))
	}
}

func TestFuseCapsByDepth(t *testing.T) {
	var results []wsmodels.Result
	for i := 0; i < 40; i++ {
		results = append(results, wsmodels.Result{
			Title:   "t",
			URL:     strings.Repeat("u", i+1),
			Snippet: strings.Repeat("distinct word", 1) + strings.Repeat("x", i) + " unique token set number " + strings.Repeat("z", i),
		})
	}
	web := &stubWeb{results: results}
	bundle := testFuser(nil, web, nil).Fuse(context.Background(), "Acme", models.DepthQuick, "")
	if len(bundle.Items) > 6 {
		t.Errorf("items = %d, want quick cap 6", len(bundle.Items))
	}
}

func TestFuseTopicFilterShapesQueries(t *testing.T) {
	internal := &stubInternal{}
	web := &stubWeb{}
	testFuser(internal, web, nil).Fuse(context.Background(), "Acme", models.DepthDeep, "annual revenue")
	if !strings.Contains(internal.gotQ, "annual revenue") {
		t.Errorf("internal query = %q", internal.gotQ)
	}
	if !strings.Contains(web.gotQ, "annual revenue") {
		t.Errorf("web query = %q", web.gotQ)
	}
}

func TestFuseDeepExpandsTopHits(t *testing.T) {
	web := &stubWeb{results: []wsmodels.Result{{Title: "Report", URL: "https://x/report", Snippet: "short snippet"}}}
	fetcher := &stubFetcher{text: "full readable article body with the detailed figures"}
	bundle := testFuser(nil, web, fetcher).Fuse(context.Background(), "Acme", models.DepthDeep, "")
	if !strings.Contains(bundle.Items[0].Text, "full readable article") {
		t.Errorf("text = %q, want expanded page text", bundle.Items[0].Text)
	}
}

func TestFuseExpansionFailureKeepsSnippet(t *testing.T) {
	web := &stubWeb{results: []wsmodels.Result{{Title: "Report", URL: "https://x/report", Snippet: "short snippet"}}}
	fetcher := &stubFetcher{err: errors.New("timeout")}
	bundle := testFuser(nil, web, fetcher).Fuse(context.Background(), "Acme", models.DepthDeep, "")
	if !strings.Contains(bundle.Items[0].Text, "short snippet") {
		t.Errorf("text = %q, want original snippet kept", bundle.Items[0].Text)
	}
}

func TestJaccard(t *testing.T) {
	a := tokenSet("annual revenue figures")
	b := tokenSet("annual revenue")
	if got := jaccard(a, b); got < 0.6 || got > 0.7 {
		t.Errorf("jaccard = %v, want 2/3", got)
	}
	if jaccard(a, tokenSet("")) != 0 {
		t.Error("empty set should score 0")
	}
}
