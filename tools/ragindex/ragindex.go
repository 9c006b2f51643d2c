package ragindex

import (
	"context"
	"fmt"
	"os"

	"github.com/blevesearch/bleve"

	"github.com/planscribe/planscribe/utils"
)

// Document is one internal document added to the corpus.
type Document struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Text  string `json:"text"`
}

// Hit is one ranked retrieval result.
type Hit struct {
	DocID   string  `json:"doc_id"`
	Title   string  `json:"title"`
	Snippet string  `json:"snippet"`
	Score   float64 `json:"score"`
}

// Index is the internal-document retrieval collaborator, backed by a
// bleve full-text index (mem-only by default, on-disk when a path is
// configured).
type Index struct {
	idx bleve.Index
}

// Open opens or creates an index. An empty path yields a process-lifetime
// in-memory index.
func Open(path string) (*Index, error) {
	if path == "" {
		idx, err := bleve.NewMemOnly(bleve.NewIndexMapping())
		if err != nil {
			return nil, err
		}
		return &Index{idx: idx}, nil
	}
	if _, err := os.Stat(path); err == nil {
		idx, err := bleve.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open index %s: %w", path, err)
		}
		return &Index{idx: idx}, nil
	}
	idx, err := bleve.New(path, bleve.NewIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("create index %s: %w", path, err)
	}
	return &Index{idx: idx}, nil
}

// AddDocument indexes one document; re-adding an id replaces it.
func (x *Index) AddDocument(doc Document) error {
	if doc.ID == "" {
		return fmt.Errorf("document id required")
	}
	return x.idx.Index(doc.ID, doc)
}

// Search returns the top-k ranked chunks for a query. Fields are loaded
// from the index so hits survive a process restart with an on-disk index.
func (x *Index) Search(ctx context.Context, q string, k int) ([]Hit, error) {
	if k <= 0 || k > 50 {
		k = 10
	}
	query := bleve.NewQueryStringQuery(q)
	searchReq := bleve.NewSearchRequestOptions(query, k, 0, false)
	searchReq.Fields = []string{"title", "text"}
	res, err := x.idx.SearchInContext(ctx, searchReq)
	if err != nil {
		return nil, err
	}
	var out []Hit
	for _, hit := range res.Hits {
		out = append(out, Hit{
			DocID:   hit.ID,
			Title:   utils.Str(hit.Fields["title"]),
			Snippet: utils.Snippet(utils.Str(hit.Fields["text"]), 600),
			Score:   hit.Score,
		})
		if len(out) >= k {
			break
		}
	}
	return out, nil
}

// Count reports how many documents the corpus holds.
func (x *Index) Count() (uint64, error) { return x.idx.DocCount() }

func (x *Index) Close() error { return x.idx.Close() }
