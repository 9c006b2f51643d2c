package store

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/planscribe/planscribe/models"
)

func newPostgresMock(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewPostgresStoreWithDB(db), mock
}

func TestPostgresCreatePlan(t *testing.T) {
	s, mock := newPostgresMock(t)
	plan := models.NewAccountPlan("Acme", models.DepthStandard)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO account_plans`)).
		WithArgs(plan.ID, plan.Company, plan.Version, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.CreatePlan(context.Background(), plan); err != nil {
		t.Fatalf("CreatePlan: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPostgresGetPlanMissing(t *testing.T) {
	s, mock := newPostgresMock(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT doc FROM account_plans WHERE id = $1`)).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"doc"}))

	if _, err := s.GetPlan(context.Background(), "missing"); !errors.Is(err, models.ErrPlanNotFound) {
		t.Errorf("err = %v, want ErrPlanNotFound", err)
	}
}

func TestPostgresMergePlanLocksRow(t *testing.T) {
	s, mock := newPostgresMock(t)
	plan := models.NewAccountPlan("Acme", models.DepthStandard)
	doc, _ := json.Marshal(plan)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT doc FROM account_plans WHERE id = $1 FOR UPDATE`)).
		WithArgs(plan.ID).
		WillReturnRows(sqlmock.NewRows([]string{"doc"}).AddRow(doc))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE account_plans SET version = $2, doc = $3, updated_at = $4 WHERE id = $1`)).
		WithArgs(plan.ID, plan.Version+1, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	delta := models.PlanDelta{
		BaseVersion: plan.Version,
		Narratives:  map[models.SectionKey]models.NarrativeSection{models.SectionExecutiveOverview: {Text: "x"}},
	}
	merged, err := s.MergePlan(context.Background(), plan.ID, delta)
	if err != nil {
		t.Fatalf("MergePlan: %v", err)
	}
	if merged.Version != plan.Version+1 {
		t.Errorf("version = %d", merged.Version)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPostgresMergeStaleRollsBack(t *testing.T) {
	s, mock := newPostgresMock(t)
	plan := models.NewAccountPlan("Acme", models.DepthStandard)
	plan.Version = 3
	plan.SectionVersions[models.SectionGTMPlan] = 3
	doc, _ := json.Marshal(plan)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`FOR UPDATE`)).
		WithArgs(plan.ID).
		WillReturnRows(sqlmock.NewRows([]string{"doc"}).AddRow(doc))
	mock.ExpectRollback()

	delta := models.PlanDelta{
		BaseVersion: 2,
		Narratives:  map[models.SectionKey]models.NarrativeSection{models.SectionGTMPlan: {Text: "stale"}},
	}
	if _, err := s.MergePlan(context.Background(), plan.ID, delta); !errors.Is(err, models.ErrVersionConflict) {
		t.Fatalf("err = %v, want ErrVersionConflict", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPostgresAppendTurnUnknownPlan(t *testing.T) {
	s, mock := newPostgresMock(t)
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO conversation_turns`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.AppendTurn(context.Background(), models.ConversationTurn{TurnID: "t1", PlanID: "missing"})
	if !errors.Is(err, models.ErrPlanNotFound) {
		t.Errorf("err = %v, want ErrPlanNotFound", err)
	}
}

func TestPostgresDeletePlan(t *testing.T) {
	s, mock := newPostgresMock(t)
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM account_plans WHERE id = $1`)).
		WithArgs("p1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM conversation_turns WHERE plan_id = $1`)).
		WithArgs("p1").
		WillReturnResult(sqlmock.NewResult(0, 2))

	if err := s.DeletePlan(context.Background(), "p1"); err != nil {
		t.Fatalf("DeletePlan: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}
