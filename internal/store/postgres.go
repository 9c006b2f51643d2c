package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/planscribe/planscribe/models"
)

// PostgresStore is the durable backend. Plans are stored as one JSONB
// document per row with the version denormalized for cheap conflict
// checks; the row lock is the per-plan serialization point.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctxPing); err != nil {
		return nil, fmt.Errorf("postgres connection failed: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreWithDB wraps an existing handle, used by tests.
func NewPostgresStoreWithDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) CreatePlan(ctx context.Context, plan *models.AccountPlan) error {
	doc, err := json.Marshal(plan)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO account_plans (id, company, version, doc, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		plan.ID, plan.Company, plan.Version, doc, plan.UpdatedAt)
	return err
}

func (s *PostgresStore) GetPlan(ctx context.Context, id string) (*models.AccountPlan, error) {
	var doc []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT doc FROM account_plans WHERE id = $1`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrPlanNotFound
	}
	if err != nil {
		return nil, err
	}
	var plan models.AccountPlan
	if err := json.Unmarshal(doc, &plan); err != nil {
		return nil, err
	}
	return &plan, nil
}

func (s *PostgresStore) MergePlan(ctx context.Context, id string, delta models.PlanDelta) (*models.AccountPlan, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var doc []byte
	err = tx.QueryRowContext(ctx,
		`SELECT doc FROM account_plans WHERE id = $1 FOR UPDATE`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrPlanNotFound
	}
	if err != nil {
		return nil, err
	}
	var plan models.AccountPlan
	if err := json.Unmarshal(doc, &plan); err != nil {
		return nil, err
	}
	if err := models.ApplyDelta(&plan, delta); err != nil {
		return nil, err
	}
	next, err := json.Marshal(&plan)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE account_plans SET version = $2, doc = $3, updated_at = $4 WHERE id = $1`,
		id, plan.Version, next, plan.UpdatedAt); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &plan, nil
}

func (s *PostgresStore) ReplaceSection(ctx context.Context, id string, key models.SectionKey, content string, baseVersion int) (*models.AccountPlan, error) {
	delta, err := models.DeltaForSection(key, content, baseVersion)
	if err != nil {
		return nil, err
	}
	return s.MergePlan(ctx, id, delta)
}

func (s *PostgresStore) DeletePlan(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM account_plans WHERE id = $1`, id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return models.ErrPlanNotFound
	}
	// turns are owned by the plan
	_, err = s.db.ExecContext(ctx, `DELETE FROM conversation_turns WHERE plan_id = $1`, id)
	return err
}

func (s *PostgresStore) AppendTurn(ctx context.Context, turn models.ConversationTurn) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO conversation_turns (turn_id, plan_id, role, text, intent, ts)
		 SELECT $1, $2, $3, $4, $5, $6 WHERE EXISTS (SELECT 1 FROM account_plans WHERE id = $2)`,
		turn.TurnID, turn.PlanID, string(turn.Role), turn.Text, string(turn.Intent), turn.Timestamp)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return models.ErrPlanNotFound
	}
	return nil
}

func (s *PostgresStore) ListTurns(ctx context.Context, planID string) ([]models.ConversationTurn, error) {
	if _, err := s.GetPlan(ctx, planID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT turn_id, plan_id, role, text, intent, ts FROM conversation_turns WHERE plan_id = $1 ORDER BY ts, turn_id`,
		planID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var turns []models.ConversationTurn
	for rows.Next() {
		var t models.ConversationTurn
		var role, intent string
		if err := rows.Scan(&t.TurnID, &t.PlanID, &role, &t.Text, &intent, &t.Timestamp); err != nil {
			return nil, err
		}
		t.Role = models.Role(role)
		t.Intent = models.Intent(intent)
		turns = append(turns, t)
	}
	return turns, rows.Err()
}
