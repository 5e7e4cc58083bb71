package service

import (
	"context"
	"errors"
	"testing"

	"github.com/vexlee/SnapCalAI-sub000/internal/domain/model"
	"github.com/vexlee/SnapCalAI-sub000/internal/identity"
	"github.com/vexlee/SnapCalAI-sub000/internal/store"
)

func newTestAggregateService(t *testing.T) (*AggregateService, *store.LocalRecordStore) {
	t.Helper()
	local := newTestLocalStore(t)
	svc := NewAggregateService(local, newTestCache(t), identity.Static("u1"), DefaultTTLs(), testLogger())
	return svc, local
}

func saveTestMeals(t *testing.T, st store.RecordStore, meals ...*model.Meal) {
	t.Helper()
	for _, m := range meals {
		if m.UserID == "" {
			m.UserID = "u1"
		}
		if err := st.SaveMeal(context.Background(), m); err != nil {
			t.Fatalf("SaveMeal(%s) ошибка: %v", m.ID, err)
		}
	}
}

// TestAggregates_LiveWinsOverRollup — при наличии и записей, и rollup
// за одну дату возвращается сумма текущих записей.
func TestAggregates_LiveWinsOverRollup(t *testing.T) {
	svc, local := newTestAggregateService(t)
	ctx := context.Background()

	if err := local.UpsertAggregate(ctx, &model.DailyAggregate{
		UserID: "u1", Date: "2024-01-02", TotalCalories: 9999, MealCount: 7,
	}); err != nil {
		t.Fatalf("UpsertAggregate() ошибка: %v", err)
	}
	if err := local.UpsertAggregate(ctx, &model.DailyAggregate{
		UserID: "u1", Date: "2023-12-01", TotalCalories: 1800, MealCount: 3,
	}); err != nil {
		t.Fatalf("UpsertAggregate() ошибка: %v", err)
	}
	saveTestMeals(t, local,
		testMeal("a", "2024-01-02", 500),
		testMeal("b", "2024-01-02", 300),
		testMeal("c", "2024-01-03", 200),
	)

	aggs, err := svc.DailyAggregates(ctx)
	if err != nil {
		t.Fatalf("DailyAggregates() ошибка: %v", err)
	}
	if len(aggs) != 3 {
		t.Fatalf("получено %d агрегатов, ожидалось 3", len(aggs))
	}

	want := []struct {
		date     string
		calories float64
		count    int
		archived bool
	}{
		{"2024-01-03", 200, 1, false},
		{"2024-01-02", 800, 2, false},
		{"2023-12-01", 1800, 3, true},
	}
	for i, w := range want {
		a := aggs[i]
		if a.Date != w.date || a.TotalCalories != w.calories || a.MealCount != w.count || a.Archived != w.archived {
			t.Errorf("агрегат %d = {%s %v %d %v}, ожидалось {%s %v %d %v}",
				i, a.Date, a.TotalCalories, a.MealCount, a.Archived,
				w.date, w.calories, w.count, w.archived)
		}
	}
}

// TestAggregates_Range — интервал полуоткрытый и применяется к обоим источникам.
func TestAggregates_Range(t *testing.T) {
	svc, local := newTestAggregateService(t)
	ctx := context.Background()

	if err := local.UpsertAggregate(ctx, &model.DailyAggregate{
		UserID: "u1", Date: "2024-01-01", TotalCalories: 1000, MealCount: 2,
	}); err != nil {
		t.Fatalf("UpsertAggregate() ошибка: %v", err)
	}
	saveTestMeals(t, local,
		testMeal("a", "2024-01-02", 500),
		testMeal("b", "2024-01-05", 300),
	)

	aggs, err := svc.DailyAggregatesForRange(ctx, "2024-01-01", "2024-01-05")
	if err != nil {
		t.Fatalf("DailyAggregatesForRange() ошибка: %v", err)
	}
	if len(aggs) != 2 {
		t.Fatalf("получено %d агрегатов, ожидалось 2", len(aggs))
	}
	if aggs[0].Date != "2024-01-02" || aggs[1].Date != "2024-01-01" {
		t.Errorf("даты = %s, %s; ожидалось 2024-01-02, 2024-01-01", aggs[0].Date, aggs[1].Date)
	}

	if _, err := svc.DailyAggregatesForRange(ctx, "2024-01-05", "2024-01-01"); !errors.Is(err, ErrValidation) {
		t.Errorf("обратный интервал: ожидалась ErrValidation, получено: %v", err)
	}
	if _, err := svc.DailyAggregatesForRange(ctx, "2024-01-01", "завтра"); !errors.Is(err, ErrValidation) {
		t.Errorf("некорректная граница: ожидалась ErrValidation, получено: %v", err)
	}
}

// TestAggregates_InvalidatedByMealWrite — агрегаты кэшируются в пространстве
// meals и пересчитываются после записи через MealService.
func TestAggregates_InvalidatedByMealWrite(t *testing.T) {
	local := newTestLocalStore(t)
	c := newTestCache(t)
	ids := identity.Static("u1")
	aggSvc := NewAggregateService(local, c, ids, DefaultTTLs(), testLogger())
	mealSvc := NewMealService(local, c, ids, MealServiceConfig{TTL: DefaultTTLs()}, testLogger())
	ctx := context.Background()

	if _, err := mealSvc.Save(ctx, testMeal("a", "2024-01-02", 500)); err != nil {
		t.Fatalf("Save() ошибка: %v", err)
	}
	aggs, _ := aggSvc.DailyAggregates(ctx)
	if len(aggs) != 1 || aggs[0].TotalCalories != 500 {
		t.Fatalf("ожидался один агрегат 500, получено: %+v", aggs)
	}

	if _, err := mealSvc.Save(ctx, testMeal("b", "2024-01-02", 250)); err != nil {
		t.Fatalf("Save() ошибка: %v", err)
	}
	aggs, _ = aggSvc.DailyAggregates(ctx)
	if len(aggs) != 1 || aggs[0].TotalCalories != 750 {
		t.Errorf("после записи ожидался агрегат 750, получено: %+v", aggs)
	}
}
