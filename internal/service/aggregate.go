// aggregate.go — дневные агрегаты пищевой ценности.
//
// Для каждой даты результат строится либо живым расчётом по текущим записям,
// либо из сохранённого rollup. Если есть и то и другое, побеждает живой расчёт:
// rollup — только замена для дат, сырые записи которых уже архивированы.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/vexlee/SnapCalAI-sub000/internal/cache"
	"github.com/vexlee/SnapCalAI-sub000/internal/domain/model"
	"github.com/vexlee/SnapCalAI-sub000/internal/identity"
	"github.com/vexlee/SnapCalAI-sub000/internal/store"
)

// AggregateService — дневные агрегаты текущего пользователя.
type AggregateService struct {
	store  store.RecordStore
	cache  *cache.Cache
	ids    identity.Provider
	ttl    TTLs
	logger *slog.Logger
}

// NewAggregateService создаёт сервис агрегатов.
func NewAggregateService(st store.RecordStore, c *cache.Cache, ids identity.Provider, ttl TTLs, logger *slog.Logger) *AggregateService {
	return &AggregateService{
		store:  st,
		cache:  c,
		ids:    ids,
		ttl:    ttl,
		logger: logger.With(slog.String("component", "aggregate_service")),
	}
}

// DailyAggregates возвращает агрегаты по всем датам пользователя, новые первыми.
func (s *AggregateService) DailyAggregates(ctx context.Context) ([]*model.DailyAggregate, error) {
	return s.aggregates(ctx, store.DateRange{})
}

// DailyAggregatesForRange возвращает агрегаты в полуинтервале [start, end).
func (s *AggregateService) DailyAggregatesForRange(ctx context.Context, start, end string) ([]*model.DailyAggregate, error) {
	if !validDate(start) || !validDate(end) {
		return nil, fmt.Errorf("%w: границы интервала должны быть в формате YYYY-MM-DD", ErrValidation)
	}
	if start >= end {
		return nil, fmt.Errorf("%w: пустой интервал [%s, %s)", ErrValidation, start, end)
	}
	return s.aggregates(ctx, store.DateRange{Start: start, End: end})
}

func (s *AggregateService) aggregates(ctx context.Context, r store.DateRange) ([]*model.DailyAggregate, error) {
	userID, err := s.ids.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	key := cache.Key{Namespace: nsMeals, UserID: userID, Qualifier: "agg:" + r.Start + ".." + r.End}
	return cached(s.cache, key, s.ttl.Default, func() ([]*model.DailyAggregate, error) {
		return s.compute(ctx, userID, r)
	})
}

// compute объединяет живой расчёт и сохранённые rollup.
func (s *AggregateService) compute(ctx context.Context, userID string, r store.DateRange) ([]*model.DailyAggregate, error) {
	meals, err := s.store.ListMeals(ctx, userID, store.MealQuery{
		Columns: store.ColumnsTotals,
		From:    r.Start,
		Before:  r.End,
	})
	if err != nil {
		return nil, err
	}
	rollups, err := s.store.ListAggregates(ctx, userID, r)
	if err != nil {
		return nil, err
	}

	byDate := make(map[string]*model.DailyAggregate, len(rollups))
	for _, a := range rollups {
		byDate[a.Date] = a
	}
	live := model.SumByDate(userID, meals)
	for date, a := range live {
		if _, shadowed := byDate[date]; shadowed {
			s.logger.Debug("Живой расчёт заменяет rollup",
				slog.String("user_id", userID),
				slog.String("date", date),
			)
		}
		byDate[date] = a
	}

	result := make([]*model.DailyAggregate, 0, len(byDate))
	for _, a := range byDate {
		result = append(result, a)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Date > result[j].Date })
	return result, nil
}
