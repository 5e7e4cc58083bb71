package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/vexlee/SnapCalAI-sub000/internal/domain/model"
	"github.com/vexlee/SnapCalAI-sub000/internal/localstore"
)

// Ключи пространств имён локального хранилища.
// Каждое пространство хранится отдельным значением, очистка одного не затрагивает другие.
const (
	keyMeals      = "snapcal.meals"
	keyAggregates = "snapcal.aggregates"
	keySettings   = "snapcal.settings"
	keyProfiles   = "snapcal.profiles"
)

var _ RecordStore = (*LocalRecordStore)(nil)

// LocalRecordStore — RecordStore поверх локального key-value хранилища устройства.
// Записи всех пользователей хранятся одним массивом, фильтрация по владельцу
// выполняется в памяти. Запись — read-modify-write всего значения под мьютексом.
type LocalRecordStore struct {
	kv  *localstore.Store
	now func() time.Time
	mu  sync.Mutex
}

// NewLocalRecordStore создаёт локальный RecordStore.
func NewLocalRecordStore(kv *localstore.Store) *LocalRecordStore {
	return &LocalRecordStore{kv: kv, now: time.Now}
}

// SaveMeal вставляет запись или заменяет существующую с тем же ID.
func (s *LocalRecordStore) SaveMeal(ctx context.Context, meal *model.Meal) error {
	return s.SaveMeals(ctx, []*model.Meal{meal})
}

// SaveMeals сохраняет пачку записей одной записью значения.
func (s *LocalRecordStore) SaveMeals(ctx context.Context, meals []*model.Meal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.loadMeals(ctx)
	if err != nil {
		return err
	}
	for _, m := range meals {
		if all, err = upsertMeal(all, m.Clone()); err != nil {
			return fmt.Errorf("meals.save: %w", err)
		}
	}
	return ClassifyLocal("meals.save", s.putJSON(ctx, keyMeals, all))
}

// ListMeals возвращает записи пользователя, новые первыми.
func (s *LocalRecordStore) ListMeals(ctx context.Context, userID string, q MealQuery) ([]*model.Meal, error) {
	s.mu.Lock()
	all, err := s.loadMeals(ctx)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	result := make([]*model.Meal, 0)
	for _, m := range all {
		if m.UserID != userID || !q.matches(m) {
			continue
		}
		result = append(result, project(m, q.Columns))
	}
	sortNewestFirst(result)
	if q.Limit > 0 && len(result) > q.Limit {
		result = result[:q.Limit]
	}
	return result, nil
}

// CountMeals возвращает количество записей пользователя за дату.
func (s *LocalRecordStore) CountMeals(ctx context.Context, userID, date string) (int, error) {
	meals, err := s.ListMeals(ctx, userID, MealQuery{Columns: ColumnsTotals, Date: date})
	if err != nil {
		return 0, err
	}
	return len(meals), nil
}

// GetMeal возвращает запись пользователя без изображения и снимка AI.
func (s *LocalRecordStore) GetMeal(ctx context.Context, userID, mealID string) (*model.Meal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.loadMeals(ctx)
	if err != nil {
		return nil, err
	}
	for _, m := range all {
		if m.ID == mealID && m.UserID == userID {
			return m.Lite(), nil
		}
	}
	return nil, nil
}

// GetMealImage возвращает изображение записи.
func (s *LocalRecordStore) GetMealImage(ctx context.Context, userID, mealID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.loadMeals(ctx)
	if err != nil {
		return "", err
	}
	for _, m := range all {
		if m.ID == mealID && m.UserID == userID {
			return m.Image, nil
		}
	}
	return "", nil
}

// DeleteMeal удаляет запись пользователя.
func (s *LocalRecordStore) DeleteMeal(ctx context.Context, userID, mealID string) error {
	_, err := s.removeMeals(ctx, "meals.delete", func(m *model.Meal) bool {
		return m.ID == mealID && m.UserID == userID
	})
	return err
}

// ClearMealImage удаляет изображение записи.
func (s *LocalRecordStore) ClearMealImage(ctx context.Context, userID, mealID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.loadMeals(ctx)
	if err != nil {
		return err
	}
	changed := false
	for _, m := range all {
		if m.ID == mealID && m.UserID == userID && m.Image != "" {
			m.Image = ""
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return ClassifyLocal("meals.clear_image", s.putJSON(ctx, keyMeals, all))
}

// DeleteMealsForDate удаляет все записи пользователя за дату.
func (s *LocalRecordStore) DeleteMealsForDate(ctx context.Context, userID, date string) (int, error) {
	return s.removeMeals(ctx, "meals.delete_date", func(m *model.Meal) bool {
		return m.UserID == userID && m.Date == date
	})
}

// ListAggregates возвращает сохранённые rollup пользователя в интервале.
func (s *LocalRecordStore) ListAggregates(ctx context.Context, userID string, r DateRange) ([]*model.DailyAggregate, error) {
	s.mu.Lock()
	all, err := s.loadAggregates(ctx)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	result := make([]*model.DailyAggregate, 0)
	for _, a := range all {
		if a.UserID == userID && r.Contains(a.Date) {
			c := *a
			result = append(result, &c)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Date > result[j].Date })
	return result, nil
}

// UpsertAggregate вставляет или заменяет rollup по (user, date).
func (s *LocalRecordStore) UpsertAggregate(ctx context.Context, agg *model.DailyAggregate) error {
	return s.UpsertAggregates(ctx, []*model.DailyAggregate{agg})
}

// UpsertAggregates сохраняет пачку rollup одной записью значения.
func (s *LocalRecordStore) UpsertAggregates(ctx context.Context, aggs []*model.DailyAggregate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.loadAggregates(ctx)
	if err != nil {
		return err
	}
	now := s.now().UTC()
	for _, agg := range aggs {
		c := *agg
		c.Archived = true
		c.UpdatedAt = now
		replaced := false
		for i, a := range all {
			if a.UserID == c.UserID && a.Date == c.Date {
				all[i] = &c
				replaced = true
				break
			}
		}
		if !replaced {
			all = append(all, &c)
		}
	}
	return ClassifyLocal("aggregates.upsert", s.putJSON(ctx, keyAggregates, all))
}

// GetSettings возвращает настройки пользователя.
func (s *LocalRecordStore) GetSettings(ctx context.Context, userID string) (*model.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var byUser map[string]*model.Settings
	if err := s.getJSON(ctx, keySettings, &byUser); err != nil {
		return nil, err
	}
	return byUser[userID], nil
}

// UpsertSettings сохраняет настройки пользователя.
func (s *LocalRecordStore) UpsertSettings(ctx context.Context, st *model.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var byUser map[string]*model.Settings
	if err := s.getJSON(ctx, keySettings, &byUser); err != nil {
		return err
	}
	if byUser == nil {
		byUser = make(map[string]*model.Settings)
	}
	c := *st
	c.UpdatedAt = s.now().UTC()
	byUser[st.UserID] = &c
	return ClassifyLocal("settings.upsert", s.putJSON(ctx, keySettings, byUser))
}

// GetProfile возвращает профиль пользователя.
func (s *LocalRecordStore) GetProfile(ctx context.Context, userID string) (*model.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var byUser map[string]*model.Profile
	if err := s.getJSON(ctx, keyProfiles, &byUser); err != nil {
		return nil, err
	}
	return byUser[userID], nil
}

// UpsertProfile сохраняет профиль пользователя.
func (s *LocalRecordStore) UpsertProfile(ctx context.Context, p *model.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var byUser map[string]*model.Profile
	if err := s.getJSON(ctx, keyProfiles, &byUser); err != nil {
		return err
	}
	if byUser == nil {
		byUser = make(map[string]*model.Profile)
	}
	c := *p
	c.UpdatedAt = s.now().UTC()
	byUser[p.UserID] = &c
	return ClassifyLocal("profile.upsert", s.putJSON(ctx, keyProfiles, byUser))
}

// HasData сообщает, есть ли в локальном хранилище записи или rollup любого пользователя.
func (s *LocalRecordStore) HasData(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	meals, err := s.loadMeals(ctx)
	if err != nil {
		return false, err
	}
	if len(meals) > 0 {
		return true, nil
	}
	aggs, err := s.loadAggregates(ctx)
	if err != nil {
		return false, err
	}
	return len(aggs) > 0, nil
}

// AllMeals возвращает все локальные записи независимо от владельца и даты.
func (s *LocalRecordStore) AllMeals(ctx context.Context) ([]*model.Meal, error) {
	s.mu.Lock()
	all, err := s.loadMeals(ctx)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	sortNewestFirst(all)
	return all, nil
}

// AllAggregates возвращает все локальные rollup.
func (s *LocalRecordStore) AllAggregates(ctx context.Context) ([]*model.DailyAggregate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadAggregates(ctx)
}

// Clear удаляет всё локальное состояние: записи, rollup, настройки и профили.
func (s *LocalRecordStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range []string{keyMeals, keyAggregates, keySettings, keyProfiles} {
		if err := s.kv.Delete(ctx, key); err != nil {
			return ClassifyLocal("local.clear", err)
		}
	}
	return nil
}

// removeMeals удаляет записи, удовлетворяющие предикату, и возвращает их количество.
func (s *LocalRecordStore) removeMeals(ctx context.Context, op string, match func(*model.Meal) bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.loadMeals(ctx)
	if err != nil {
		return 0, err
	}
	kept := all[:0]
	for _, m := range all {
		if !match(m) {
			kept = append(kept, m)
		}
	}
	removed := len(all) - len(kept)
	if removed == 0 {
		return 0, nil
	}
	if err := ClassifyLocal(op, s.putJSON(ctx, keyMeals, kept)); err != nil {
		return 0, err
	}
	return removed, nil
}

func (s *LocalRecordStore) loadMeals(ctx context.Context) ([]*model.Meal, error) {
	var meals []*model.Meal
	if err := s.getJSON(ctx, keyMeals, &meals); err != nil {
		return nil, err
	}
	return meals, nil
}

func (s *LocalRecordStore) loadAggregates(ctx context.Context) ([]*model.DailyAggregate, error) {
	var aggs []*model.DailyAggregate
	if err := s.getJSON(ctx, keyAggregates, &aggs); err != nil {
		return nil, err
	}
	return aggs, nil
}

// getJSON читает значение и декодирует его в dst. Отсутствие ключа — пустое значение.
// Ошибки чтения и разбора возвращаются как *Error вида KindLocalFailure.
func (s *LocalRecordStore) getJSON(ctx context.Context, key string, dst any) error {
	raw, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		return ClassifyLocal("local.read", err)
	}
	if !ok {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return ClassifyLocal("local.read", fmt.Errorf("разбор значения %q: %w", key, err))
	}
	return nil
}

func (s *LocalRecordStore) putJSON(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("сериализация значения %q: %w", key, err)
	}
	return s.kv.Put(ctx, key, raw)
}

// upsertMeal заменяет запись с тем же ID и владельцем или добавляет новую.
// Запись с тем же ID другого пользователя не заменяется.
func upsertMeal(all []*model.Meal, m *model.Meal) ([]*model.Meal, error) {
	for i, existing := range all {
		if existing.ID != m.ID {
			continue
		}
		if existing.UserID != m.UserID {
			return all, fmt.Errorf("%w: %s", ErrForeignOwner, m.ID)
		}
		all[i] = m
		return all, nil
	}
	return append(all, m), nil
}

func sortNewestFirst(meals []*model.Meal) {
	sort.SliceStable(meals, func(i, j int) bool {
		return meals[i].Timestamp.After(meals[j].Timestamp)
	})
}
