package serper

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/planscribe/planscribe/tools/websearch/models"
	"github.com/planscribe/planscribe/utils"
)

type Search struct {
	ApiKey string
}

func (s Search) Discover(ctx context.Context, q string, k int) ([]models.Result, error) {
	// https://serper.dev/ docs
	payload := map[string]any{"q": q, "num": k}
	body, _ := json.Marshal(payload)
	req, _ := http.NewRequestWithContext(ctx, "POST", "https://google.serper.dev/search", strings.NewReader(string(body)))
	req.Header.Set("X-API-KEY", s.ApiKey)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var raw map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, err
	}

	var out []models.Result
	// the knowledge graph blurb, when present, is the strongest snippet
	if kg, ok := raw["knowledgeGraph"].(map[string]any); ok {
		if desc := utils.Str(kg["description"]); desc != "" {
			out = append(out, models.Result{
				Title: utils.Str(kg["title"]), URL: utils.Str(kg["website"]), Snippet: desc,
			})
		}
	}
	if items, ok := raw["organic"].([]any); ok {
		for _, it := range items {
			if len(out) >= k {
				break
			}
			m, ok := it.(map[string]any)
			if !ok {
				continue
			}
			out = append(out, models.Result{
				Title: utils.Str(m["title"]), URL: utils.Str(m["link"]), Snippet: utils.Str(m["snippet"]),
			})
		}
	}
	return out, nil
}
