package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vexlee/SnapCalAI-sub000/internal/domain/model"
	"github.com/vexlee/SnapCalAI-sub000/internal/repository"
)

// DefaultRemoteListLimit — ограничение выборки записей из удалённого бэкенда.
const DefaultRemoteListLimit = 200

var _ RecordStore = (*RemoteRecordStore)(nil)

// RemoteRecordStore — RecordStore поверх PostgreSQL.
// Каждая ошибка драйвера классифицируется в *Error.
type RemoteRecordStore struct {
	tx         *repository.TxRunner
	meals      repository.MealRepository
	aggregates repository.AggregateRepository
	settings   repository.SettingsRepository
	profiles   repository.ProfileRepository
	listLimit  int
}

// NewRemoteRecordStore создаёт удалённый RecordStore.
// listLimit <= 0 означает DefaultRemoteListLimit.
func NewRemoteRecordStore(pool *pgxpool.Pool, listLimit int) *RemoteRecordStore {
	if listLimit <= 0 {
		listLimit = DefaultRemoteListLimit
	}
	return &RemoteRecordStore{
		tx:         repository.NewTxRunner(pool),
		meals:      repository.NewMealRepository(pool),
		aggregates: repository.NewAggregateRepository(pool),
		settings:   repository.NewSettingsRepository(pool),
		profiles:   repository.NewProfileRepository(pool),
		listLimit:  listLimit,
	}
}

func (s *RemoteRecordStore) SaveMeal(ctx context.Context, meal *model.Meal) error {
	return Classify("meals.save", s.meals.Upsert(ctx, meal))
}

// SaveMeals сохраняет пачку в одной транзакции.
func (s *RemoteRecordStore) SaveMeals(ctx context.Context, meals []*model.Meal) error {
	err := s.tx.RunInTx(ctx, func(tx pgx.Tx) error {
		repo := repository.NewMealRepository(tx)
		for _, m := range meals {
			if err := repo.Upsert(ctx, m); err != nil {
				return err
			}
		}
		return nil
	})
	return Classify("meals.save_batch", err)
}

// ListMeals применяет ограничение выборки: явный Limit не может его превысить.
func (s *RemoteRecordStore) ListMeals(ctx context.Context, userID string, q MealQuery) ([]*model.Meal, error) {
	limit := s.listLimit
	if q.Limit > 0 && q.Limit < limit {
		limit = q.Limit
	}
	// Агрегации нужны все записи диапазона, без ограничения
	if q.Columns == ColumnsTotals && q.Limit == 0 {
		limit = 0
	}

	meals, err := s.meals.List(ctx, userID, mealColumns(q.Columns), repository.MealFilters{
		Date:   q.Date,
		From:   q.From,
		Before: q.Before,
	}, limit)
	if err != nil {
		return nil, Classify("meals.list", err)
	}
	return meals, nil
}

func (s *RemoteRecordStore) GetMeal(ctx context.Context, userID, mealID string) (*model.Meal, error) {
	m, err := s.meals.Get(ctx, userID, mealID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, Classify("meals.get", err)
	}
	return m, nil
}

func (s *RemoteRecordStore) CountMeals(ctx context.Context, userID, date string) (int, error) {
	n, err := s.meals.Count(ctx, userID, date)
	if err != nil {
		return 0, Classify("meals.count", err)
	}
	return n, nil
}

func (s *RemoteRecordStore) GetMealImage(ctx context.Context, userID, mealID string) (string, error) {
	image, err := s.meals.GetImage(ctx, userID, mealID)
	if errors.Is(err, repository.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", Classify("meals.get_image", err)
	}
	return image, nil
}

func (s *RemoteRecordStore) DeleteMeal(ctx context.Context, userID, mealID string) error {
	return Classify("meals.delete", s.meals.Delete(ctx, userID, mealID))
}

func (s *RemoteRecordStore) ClearMealImage(ctx context.Context, userID, mealID string) error {
	return Classify("meals.clear_image", s.meals.ClearImage(ctx, userID, mealID))
}

func (s *RemoteRecordStore) DeleteMealsForDate(ctx context.Context, userID, date string) (int, error) {
	n, err := s.meals.DeleteForDate(ctx, userID, date)
	if err != nil {
		return 0, Classify("meals.delete_date", err)
	}
	return n, nil
}

func (s *RemoteRecordStore) ListAggregates(ctx context.Context, userID string, r DateRange) ([]*model.DailyAggregate, error) {
	aggs, err := s.aggregates.List(ctx, userID, r.Start, r.End)
	if err != nil {
		return nil, Classify("aggregates.list", err)
	}
	return aggs, nil
}

func (s *RemoteRecordStore) UpsertAggregate(ctx context.Context, agg *model.DailyAggregate) error {
	return Classify("aggregates.upsert", s.aggregates.Upsert(ctx, agg))
}

func (s *RemoteRecordStore) UpsertAggregates(ctx context.Context, aggs []*model.DailyAggregate) error {
	err := s.tx.RunInTx(ctx, func(tx pgx.Tx) error {
		repo := repository.NewAggregateRepository(tx)
		for _, a := range aggs {
			if err := repo.Upsert(ctx, a); err != nil {
				return err
			}
		}
		return nil
	})
	return Classify("aggregates.upsert_batch", err)
}

func (s *RemoteRecordStore) GetSettings(ctx context.Context, userID string) (*model.Settings, error) {
	st, err := s.settings.Get(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, Classify("settings.get", err)
	}
	return st, nil
}

func (s *RemoteRecordStore) UpsertSettings(ctx context.Context, st *model.Settings) error {
	return Classify("settings.upsert", s.settings.Upsert(ctx, st))
}

func (s *RemoteRecordStore) GetProfile(ctx context.Context, userID string) (*model.Profile, error) {
	p, err := s.profiles.Get(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, Classify("profile.get", err)
	}
	return p, nil
}

func (s *RemoteRecordStore) UpsertProfile(ctx context.Context, p *model.Profile) error {
	return Classify("profile.upsert", s.profiles.Upsert(ctx, p))
}

func mealColumns(c ColumnSet) repository.MealColumns {
	switch c {
	case ColumnsLite:
		return repository.MealColumnsLite
	case ColumnsTotals:
		return repository.MealColumnsTotals
	default:
		return repository.MealColumnsFull
	}
}
