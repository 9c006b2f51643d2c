package ragindex

import (
	"context"
	"testing"
)

func TestMemOnlyIndexRoundTrip(t *testing.T) {
	idx, err := Open("")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer idx.Close()

	docs := []Document{
		{ID: "d1", Title: "Acme overview", Text: "Acme manufactures industrial widgets for the EMEA market."},
		{ID: "d2", Title: "Acme financials", Text: "Annual revenue reached fifty million dollars last fiscal year."},
		{ID: "d3", Title: "Unrelated", Text: "Cooking recipes for the weekend."},
	}
	for _, d := range docs {
		if err := idx.AddDocument(d); err != nil {
			t.Fatalf("AddDocument %s: %v", d.ID, err)
		}
	}

	count, err := idx.Count()
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}

	hits, err := idx.Search(context.Background(), "annual revenue", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) == 0 {
		t.Fatal("no hits")
	}
	if hits[0].DocID != "d2" {
		t.Errorf("top hit = %s, want d2", hits[0].DocID)
	}
	if hits[0].Snippet == "" {
		t.Error("snippet not loaded from stored fields")
	}
}

func TestAddDocumentRequiresID(t *testing.T) {
	idx, err := Open("")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer idx.Close()
	if err := idx.AddDocument(Document{Title: "no id"}); err == nil {
		t.Error("document without id accepted")
	}
}

func TestReindexReplacesDocument(t *testing.T) {
	idx, err := Open("")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer idx.Close()

	if err := idx.AddDocument(Document{ID: "d1", Title: "v1", Text: "original text"}); err != nil {
		t.Fatal(err)
	}
	if err := idx.AddDocument(Document{ID: "d1", Title: "v2", Text: "replacement text"}); err != nil {
		t.Fatal(err)
	}
	count, _ := idx.Count()
	if count != 1 {
		t.Errorf("count = %d, want 1 after replace", count)
	}
}
