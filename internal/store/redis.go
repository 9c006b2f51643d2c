package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/planscribe/planscribe/config"
	"github.com/planscribe/planscribe/models"
)

const (
	planKeyPrefix = "plan:"
	turnKeyPrefix = "turns:"
)

// RedisStore keeps plans as JSON blobs under a key prefix and turns in a
// list per plan. The per-plan serialization point is an in-process mutex;
// the service owns its plans exclusively, so a heavier distributed lock
// is not needed here.
type RedisStore struct {
	client *redis.Client
	mu     sync.Mutex
	locks  map[string]*sync.Mutex
}

func NewRedisStore(ctx context.Context, cfg config.RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.Timeout,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed (%s:%s): %w", cfg.Host, cfg.Port, err)
	}
	return NewRedisStoreWithClient(client), nil
}

// NewRedisStoreWithClient wraps an existing client, used by tests.
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, locks: make(map[string]*sync.Mutex)}
}

func (s *RedisStore) planLock(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

func (s *RedisStore) CreatePlan(ctx context.Context, plan *models.AccountPlan) error {
	data, err := json.Marshal(plan)
	if err != nil {
		return err
	}
	ok, err := s.client.SetNX(ctx, planKeyPrefix+plan.ID, data, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("plan %s already exists", plan.ID)
	}
	return nil
}

func (s *RedisStore) GetPlan(ctx context.Context, id string) (*models.AccountPlan, error) {
	val, err := s.client.Get(ctx, planKeyPrefix+id).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, models.ErrPlanNotFound
		}
		return nil, err
	}
	var plan models.AccountPlan
	if err := json.Unmarshal([]byte(val), &plan); err != nil {
		return nil, err
	}
	return &plan, nil
}

func (s *RedisStore) MergePlan(ctx context.Context, id string, delta models.PlanDelta) (*models.AccountPlan, error) {
	lock := s.planLock(id)
	lock.Lock()
	defer lock.Unlock()

	plan, err := s.GetPlan(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := models.ApplyDelta(plan, delta); err != nil {
		return nil, err
	}
	data, err := json.Marshal(plan)
	if err != nil {
		return nil, err
	}
	if err := s.client.Set(ctx, planKeyPrefix+id, data, 0).Err(); err != nil {
		return nil, err
	}
	return plan, nil
}

func (s *RedisStore) ReplaceSection(ctx context.Context, id string, key models.SectionKey, content string, baseVersion int) (*models.AccountPlan, error) {
	delta, err := models.DeltaForSection(key, content, baseVersion)
	if err != nil {
		return nil, err
	}
	return s.MergePlan(ctx, id, delta)
}

func (s *RedisStore) DeletePlan(ctx context.Context, id string) error {
	n, err := s.client.Del(ctx, planKeyPrefix+id, turnKeyPrefix+id).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return models.ErrPlanNotFound
	}
	s.mu.Lock()
	delete(s.locks, id)
	s.mu.Unlock()
	return nil
}

func (s *RedisStore) AppendTurn(ctx context.Context, turn models.ConversationTurn) error {
	exists, err := s.client.Exists(ctx, planKeyPrefix+turn.PlanID).Result()
	if err != nil {
		return err
	}
	if exists == 0 {
		return models.ErrPlanNotFound
	}
	data, err := json.Marshal(turn)
	if err != nil {
		return err
	}
	return s.client.RPush(ctx, turnKeyPrefix+turn.PlanID, data).Err()
}

func (s *RedisStore) ListTurns(ctx context.Context, planID string) ([]models.ConversationTurn, error) {
	exists, err := s.client.Exists(ctx, planKeyPrefix+planID).Result()
	if err != nil {
		return nil, err
	}
	if exists == 0 {
		return nil, models.ErrPlanNotFound
	}
	vals, err := s.client.LRange(ctx, turnKeyPrefix+planID, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	turns := make([]models.ConversationTurn, 0, len(vals))
	for _, v := range vals {
		var t models.ConversationTurn
		if err := json.Unmarshal([]byte(v), &t); err != nil {
			return nil, err
		}
		turns = append(turns, t)
	}
	return turns, nil
}
