package store

import (
	"context"
	"fmt"

	"github.com/planscribe/planscribe/config"
	"github.com/planscribe/planscribe/models"
)

// Store is the canonical plan + conversation storage contract. Backends
// must serialize writes per plan id; cross-plan operations are fully
// independent. Deleting a plan destroys its conversation turns with it.
type Store interface {
	CreatePlan(ctx context.Context, plan *models.AccountPlan) error
	GetPlan(ctx context.Context, id string) (*models.AccountPlan, error)
	// MergePlan applies a declared-section delta under the per-plan
	// serialization point. Stale deltas fail with ErrVersionConflict.
	MergePlan(ctx context.Context, id string, delta models.PlanDelta) (*models.AccountPlan, error)
	// ReplaceSection is the user-edit path: wholesale replacement of one
	// section from plain text.
	ReplaceSection(ctx context.Context, id string, key models.SectionKey, content string, baseVersion int) (*models.AccountPlan, error)
	DeletePlan(ctx context.Context, id string) error

	AppendTurn(ctx context.Context, turn models.ConversationTurn) error
	ListTurns(ctx context.Context, planID string) ([]models.ConversationTurn, error)
}

// New builds a store from configuration: process-lifetime memory by
// default, redis or postgres when persistence is enabled.
func New(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryStore(), nil
	case "redis":
		return NewRedisStore(ctx, cfg.Redis)
	case "postgres":
		dsn, err := cfg.Postgres.DSN()
		if err != nil {
			return nil, err
		}
		return NewPostgresStore(ctx, dsn)
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", cfg.Backend)
	}
}
