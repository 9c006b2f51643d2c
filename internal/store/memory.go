package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/planscribe/planscribe/models"
)

// MemoryStore is the process-lifetime backend: empty on process start,
// cleared on restart. It is the default, with redis/postgres behind the
// same contract when durability is enabled.
type MemoryStore struct {
	mu    sync.RWMutex
	plans map[string]*models.AccountPlan
	turns map[string][]models.ConversationTurn
	locks map[string]*sync.Mutex // per-plan write serialization point
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		plans: make(map[string]*models.AccountPlan),
		turns: make(map[string][]models.ConversationTurn),
		locks: make(map[string]*sync.Mutex),
	}
}

// planLock returns the mutex serializing writes to one plan id.
func (s *MemoryStore) planLock(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

func (s *MemoryStore) CreatePlan(ctx context.Context, plan *models.AccountPlan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.plans[plan.ID]; exists {
		return fmt.Errorf("plan %s already exists", plan.ID)
	}
	s.plans[plan.ID] = clonePlan(plan)
	return nil
}

func (s *MemoryStore) GetPlan(ctx context.Context, id string) (*models.AccountPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	plan, ok := s.plans[id]
	if !ok {
		return nil, models.ErrPlanNotFound
	}
	return clonePlan(plan), nil
}

func (s *MemoryStore) MergePlan(ctx context.Context, id string, delta models.PlanDelta) (*models.AccountPlan, error) {
	lock := s.planLock(id)
	lock.Lock()
	defer lock.Unlock()

	s.mu.RLock()
	plan, ok := s.plans[id]
	s.mu.RUnlock()
	if !ok {
		return nil, models.ErrPlanNotFound
	}

	next := clonePlan(plan)
	if err := models.ApplyDelta(next, delta); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.plans[id] = next
	s.mu.Unlock()
	return clonePlan(next), nil
}

func (s *MemoryStore) ReplaceSection(ctx context.Context, id string, key models.SectionKey, content string, baseVersion int) (*models.AccountPlan, error) {
	delta, err := models.DeltaForSection(key, content, baseVersion)
	if err != nil {
		return nil, err
	}
	return s.MergePlan(ctx, id, delta)
}

func (s *MemoryStore) DeletePlan(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.plans[id]; !ok {
		return models.ErrPlanNotFound
	}
	delete(s.plans, id)
	delete(s.turns, id) // turns do not outlive plan deletion
	delete(s.locks, id)
	return nil
}

func (s *MemoryStore) AppendTurn(ctx context.Context, turn models.ConversationTurn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.plans[turn.PlanID]; !ok {
		return models.ErrPlanNotFound
	}
	s.turns[turn.PlanID] = append(s.turns[turn.PlanID], turn)
	return nil
}

func (s *MemoryStore) ListTurns(ctx context.Context, planID string) ([]models.ConversationTurn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.plans[planID]; !ok {
		return nil, models.ErrPlanNotFound
	}
	out := make([]models.ConversationTurn, len(s.turns[planID]))
	copy(out, s.turns[planID])
	return out, nil
}

// clonePlan deep-copies via JSON so callers never share mutable state
// with the store.
func clonePlan(plan *models.AccountPlan) *models.AccountPlan {
	b, _ := json.Marshal(plan)
	var out models.AccountPlan
	_ = json.Unmarshal(b, &out)
	return &out
}
