package repository

import (
	"context"
	"fmt"

	"github.com/vexlee/SnapCalAI-sub000/internal/domain/model"
)

// AggregateRepository — интерфейс для таблицы daily_aggregates.
type AggregateRepository interface {
	// Upsert вставляет или заменяет rollup по (user_id, date).
	Upsert(ctx context.Context, a *model.DailyAggregate) error
	// List возвращает rollup пользователя в полуинтервале [start, end).
	// Пустая граница не ограничивает.
	List(ctx context.Context, userID, start, end string) ([]*model.DailyAggregate, error)
}

type aggregateRepo struct {
	db DBTX
}

// NewAggregateRepository создаёт репозиторий дневных rollup.
func NewAggregateRepository(db DBTX) AggregateRepository {
	return &aggregateRepo{db: db}
}

func (r *aggregateRepo) Upsert(ctx context.Context, a *model.DailyAggregate) error {
	query := `
		INSERT INTO daily_aggregates (user_id, date, total_calories, total_protein,
			total_carbs, total_fat, meal_count)
		VALUES ($1, $2::text::date, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, date) DO UPDATE SET
			total_calories = EXCLUDED.total_calories,
			total_protein = EXCLUDED.total_protein,
			total_carbs = EXCLUDED.total_carbs,
			total_fat = EXCLUDED.total_fat,
			meal_count = EXCLUDED.meal_count,
			updated_at = NOW()
		RETURNING updated_at`

	err := r.db.QueryRow(ctx, query,
		a.UserID, a.Date, a.TotalCalories, a.TotalProtein, a.TotalCarbs, a.TotalFat, a.MealCount,
	).Scan(&a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("ошибка сохранения агрегата: %w", err)
	}
	a.Archived = true
	return nil
}

func (r *aggregateRepo) List(ctx context.Context, userID, start, end string) ([]*model.DailyAggregate, error) {
	query := `
		SELECT user_id, date::text, total_calories, total_protein, total_carbs,
			total_fat, meal_count, updated_at
		FROM daily_aggregates
		WHERE user_id = $1
			AND ($2 = '' OR date >= NULLIF($2, '')::date)
			AND ($3 = '' OR date < NULLIF($3, '')::date)
		ORDER BY date DESC`

	rows, err := r.db.Query(ctx, query, userID, start, end)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения агрегатов: %w", err)
	}
	defer rows.Close()

	result := make([]*model.DailyAggregate, 0)
	for rows.Next() {
		a := &model.DailyAggregate{Archived: true}
		if err := rows.Scan(&a.UserID, &a.Date, &a.TotalCalories, &a.TotalProtein,
			&a.TotalCarbs, &a.TotalFat, &a.MealCount, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования агрегата: %w", err)
		}
		result = append(result, a)
	}
	return result, rows.Err()
}
