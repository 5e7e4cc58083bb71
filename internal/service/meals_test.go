package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/vexlee/SnapCalAI-sub000/internal/domain/model"
	"github.com/vexlee/SnapCalAI-sub000/internal/identity"
	"github.com/vexlee/SnapCalAI-sub000/internal/store"
)

func newTestMealService(t *testing.T) (*MealService, *hookStore) {
	t.Helper()
	hs := &hookStore{RecordStore: newTestLocalStore(t)}
	svc := NewMealService(hs, newTestCache(t), identity.Static("u1"), MealServiceConfig{
		TTL:           DefaultTTLs(),
		Location:      time.UTC,
		MaxImageBytes: 1024,
	}, testLogger())
	return svc, hs
}

// TestMealService_SaveThenListForDate — сохранённая запись читается за свою дату.
func TestMealService_SaveThenListForDate(t *testing.T) {
	svc, _ := newTestMealService(t)
	ctx := context.Background()

	if _, err := svc.Save(ctx, testMeal("a", "2024-01-01", 500)); err != nil {
		t.Fatalf("Save() ошибка: %v", err)
	}

	meals, err := svc.ListForDate(ctx, "2024-01-01")
	if err != nil {
		t.Fatalf("ListForDate() ошибка: %v", err)
	}
	if len(meals) != 1 {
		t.Fatalf("получено %d записей, ожидалась 1", len(meals))
	}
	if meals[0].Calories != 500 {
		t.Errorf("Calories = %v, ожидалось 500", meals[0].Calories)
	}
	if meals[0].UserID != "u1" {
		t.Errorf("UserID = %q, ожидалось u1", meals[0].UserID)
	}
}

// TestMealService_SaveAssignsIDAndDate — новой записи назначаются ID и дата.
func TestMealService_SaveAssignsIDAndDate(t *testing.T) {
	svc, _ := newTestMealService(t)
	svc.now = func() time.Time { return time.Date(2024, 5, 10, 8, 30, 0, 0, time.UTC) }

	m := testMeal("", "", 300)
	m.Timestamp = time.Time{}
	saved, err := svc.Save(context.Background(), m)
	if err != nil {
		t.Fatalf("Save() ошибка: %v", err)
	}
	if saved.ID == "" {
		t.Error("ID не назначен")
	}
	if saved.Date != "2024-05-10" || saved.Time != "08:30" {
		t.Errorf("Date/Time = %s %s, ожидалось 2024-05-10 08:30", saved.Date, saved.Time)
	}
}

// TestMealService_EditKeepsStoredDate — правка не меняет дату и время
// записи: ни пересчётом из Timestamp, ни явно переданной датой.
func TestMealService_EditKeepsStoredDate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(m *model.Meal)
	}{
		{"дата не передана", func(m *model.Meal) {
			m.Date, m.Time = "", ""
		}},
		{"передана другая дата", func(m *model.Meal) {
			m.Date, m.Time = "2024-02-02", "09:15"
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newTestMealService(t)
			ctx := context.Background()

			m := testMeal("a", "", 500)
			m.Timestamp = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
			m.Time = ""
			saved, err := svc.Save(ctx, m)
			if err != nil {
				t.Fatalf("Save() ошибка: %v", err)
			}
			if saved.Date != "2024-01-01" || saved.Time != "12:00" {
				t.Fatalf("Date/Time = %s %s, ожидалось 2024-01-01 12:00", saved.Date, saved.Time)
			}

			edit := saved.Clone()
			edit.Timestamp = edit.Timestamp.Add(48 * time.Hour)
			edit.Calories = 600
			edit.ManuallyEdited = true
			tt.modify(edit)
			edited, err := svc.Save(ctx, edit)
			if err != nil {
				t.Fatalf("Save() правки ошибка: %v", err)
			}
			if edited.Date != "2024-01-01" || edited.Time != "12:00" {
				t.Errorf("после правки Date/Time = %s %s, ожидалось 2024-01-01 12:00", edited.Date, edited.Time)
			}

			meals, err := svc.ListForDate(ctx, "2024-01-01")
			if err != nil {
				t.Fatalf("ListForDate() ошибка: %v", err)
			}
			if len(meals) != 1 || meals[0].Calories != 600 {
				t.Fatalf("ожидалась одна запись с Calories=600, получено: %+v", meals)
			}
			for _, date := range []string{"2024-01-03", "2024-02-02"} {
				moved, _ := svc.ListForDate(ctx, date)
				if len(moved) != 0 {
					t.Errorf("запись не должна переезжать на %s", date)
				}
			}
		})
	}
}

// TestMealService_EditForeignRecordRejected — сохранение с чужим ID не
// меняет запись другого пользователя.
func TestMealService_EditForeignRecordRejected(t *testing.T) {
	hs := &hookStore{RecordStore: newTestLocalStore(t)}
	c := newTestCache(t)
	cfg := MealServiceConfig{TTL: DefaultTTLs(), Location: time.UTC}
	owner := NewMealService(hs, c, identity.Static("u1"), cfg, testLogger())
	intruder := NewMealService(hs, c, identity.Static("u2"), cfg, testLogger())
	ctx := context.Background()

	if _, err := owner.Save(ctx, testMeal("a", "2024-01-01", 500)); err != nil {
		t.Fatalf("Save() ошибка: %v", err)
	}
	_, err := intruder.Save(ctx, testMeal("a", "2024-03-03", 1))
	if !errors.Is(err, store.ErrForeignOwner) {
		t.Fatalf("ожидалась ErrForeignOwner, получено: %v", err)
	}

	meals, _ := owner.ListForDate(ctx, "2024-01-01")
	if len(meals) != 1 || meals[0].Calories != 500 {
		t.Errorf("запись владельца изменена: %+v", meals)
	}
}

// TestMealService_WriteInvalidatesNamespace — после записи ни одно
// производное представление не отдаёт устаревших данных.
func TestMealService_WriteInvalidatesNamespace(t *testing.T) {
	svc, hs := newTestMealService(t)
	ctx := context.Background()

	if _, err := svc.Save(ctx, testMeal("a", "2024-01-01", 500)); err != nil {
		t.Fatalf("Save() ошибка: %v", err)
	}

	// Прогрев кэша
	if _, err := svc.List(ctx); err != nil {
		t.Fatalf("List() ошибка: %v", err)
	}
	if _, err := svc.ListLite(ctx); err != nil {
		t.Fatalf("ListLite() ошибка: %v", err)
	}
	n, err := svc.CountForDate(ctx, "2024-01-01")
	if err != nil || n != 1 {
		t.Fatalf("CountForDate() = %d, %v; ожидалось 1", n, err)
	}

	calls := hs.listCalls.Load()
	if _, err := svc.List(ctx); err != nil {
		t.Fatalf("List() ошибка: %v", err)
	}
	if hs.listCalls.Load() != calls {
		t.Error("повторный List() должен обслуживаться из кэша")
	}

	if _, err := svc.Save(ctx, testMeal("b", "2024-01-01", 250)); err != nil {
		t.Fatalf("Save() ошибка: %v", err)
	}

	all, _ := svc.List(ctx)
	lite, _ := svc.ListLite(ctx)
	n, _ = svc.CountForDate(ctx, "2024-01-01")
	if len(all) != 2 || len(lite) != 2 || n != 2 {
		t.Errorf("после записи: list=%d lite=%d count=%d, ожидалось 2/2/2", len(all), len(lite), n)
	}

	if err := svc.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete() ошибка: %v", err)
	}
	all, _ = svc.List(ctx)
	if len(all) != 1 || all[0].ID != "b" {
		t.Errorf("после удаления ожидалась только запись b, получено %d", len(all))
	}
}

// TestMealService_ImageLifecycle — изображение кэшируется и очищается.
func TestMealService_ImageLifecycle(t *testing.T) {
	svc, _ := newTestMealService(t)
	ctx := context.Background()

	m := testMeal("a", "2024-01-01", 500)
	m.Image = "data:image/png;base64,AAAA"
	if _, err := svc.Save(ctx, m); err != nil {
		t.Fatalf("Save() ошибка: %v", err)
	}

	img, err := svc.GetImage(ctx, "a")
	if err != nil || img != m.Image {
		t.Fatalf("GetImage() = %q, %v", img, err)
	}

	lite, _ := svc.ListLite(ctx)
	if len(lite) != 1 || lite[0].Image != "" {
		t.Error("ListLite() не должен содержать изображение")
	}

	if err := svc.ClearImage(ctx, "a"); err != nil {
		t.Fatalf("ClearImage() ошибка: %v", err)
	}
	img, err = svc.GetImage(ctx, "a")
	if err != nil || img != "" {
		t.Errorf("после ClearImage() GetImage() = %q, %v; ожидалась пустая строка", img, err)
	}
}

func TestMealService_Validation(t *testing.T) {
	svc, _ := newTestMealService(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		modify func(m *model.Meal)
	}{
		{"отрицательные калории", func(m *model.Meal) { m.Calories = -1 }},
		{"отрицательный жир", func(m *model.Meal) { m.Fat = -0.5 }},
		{"confidence больше 1", func(m *model.Meal) { m.Confidence = 1.5 }},
		{"некорректная дата", func(m *model.Meal) { m.Date = "01.01.2024" }},
		{"слишком большое изображение", func(m *model.Meal) { m.Image = strings.Repeat("x", 2048) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := testMeal("v", "2024-01-01", 100)
			tt.modify(m)
			_, err := svc.Save(ctx, m)
			if !errors.Is(err, ErrValidation) {
				t.Errorf("ожидалась ErrValidation, получено: %v", err)
			}
		})
	}

	if _, err := svc.ListForDate(ctx, "вчера"); !errors.Is(err, ErrValidation) {
		t.Errorf("ListForDate(): ожидалась ErrValidation, получено: %v", err)
	}
}

// TestMealService_NoIdentity — без пользователя ни одна операция не выполняется.
func TestMealService_NoIdentity(t *testing.T) {
	hs := &hookStore{RecordStore: newTestLocalStore(t)}
	svc := NewMealService(hs, newTestCache(t), identity.Static(""), MealServiceConfig{TTL: DefaultTTLs()}, testLogger())

	if _, err := svc.Save(context.Background(), testMeal("a", "2024-01-01", 1)); !errors.Is(err, identity.ErrNoIdentity) {
		t.Errorf("Save(): ожидалась ErrNoIdentity, получено: %v", err)
	}
	if _, err := svc.List(context.Background()); !errors.Is(err, identity.ErrNoIdentity) {
		t.Errorf("List(): ожидалась ErrNoIdentity, получено: %v", err)
	}
	if hs.listCalls.Load() != 0 {
		t.Error("бэкенд не должен вызываться без идентификатора")
	}
}

// TestMealService_QuotaPropagates — переполнение локального хранилища
// возвращается как KindLocalStorageExhausted.
func TestMealService_QuotaPropagates(t *testing.T) {
	svc, _ := newTestMealService(t)
	svc.cfg.MaxImageBytes = 0

	m := testMeal("big", "2024-01-01", 100)
	m.Image = strings.Repeat("A", 6*1024*1024)
	_, err := svc.Save(context.Background(), m)
	if store.KindOf(err) != store.KindLocalStorageExhausted {
		t.Fatalf("ожидалась KindLocalStorageExhausted, получено: %v", err)
	}
}
