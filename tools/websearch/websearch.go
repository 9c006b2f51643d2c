package websearch

import (
	"context"
	"errors"

	"github.com/planscribe/planscribe/tools/websearch/brave"
	"github.com/planscribe/planscribe/tools/websearch/models"
	"github.com/planscribe/planscribe/tools/websearch/serper"
)

// Searcher is the web search collaborator contract.
type Searcher interface {
	Discover(ctx context.Context, q string, k int) ([]models.Result, error)
}

type Provider string

const (
	SerperProvider Provider = "serper"
	BraveProvider  Provider = "brave"
)

var ErrUnsupportedProvider = errors.New("unsupported web search provider")

func NewSearcher(provider Provider, apiKey string) (Searcher, error) {
	switch provider {
	case SerperProvider:
		return serper.Search{ApiKey: apiKey}, nil
	case BraveProvider:
		return brave.Search{ApiKey: apiKey}, nil
	default:
		return nil, ErrUnsupportedProvider
	}
}
