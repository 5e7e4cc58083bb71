// Пакет store — Record Store: операции чтения/записи записей о питании,
// дневных агрегатов, настроек и профиля поверх одного из двух бэкендов.
//
// Два варианта реализации выбираются один раз при старте:
//   - LocalRecordStore — локальное key-value хранилище устройства с квотой
//   - RemoteRecordStore — удалённая реляционная БД (PostgreSQL)
//
// Все сбои бэкенда возвращаются как *Error (см. errors.go).
package store

import (
	"context"

	"github.com/vexlee/SnapCalAI-sub000/internal/domain/model"
)

// ColumnSet — набор полей, запрашиваемых у бэкенда.
type ColumnSet int

const (
	// ColumnsFull — все поля (детальный просмотр).
	ColumnsFull ColumnSet = iota
	// ColumnsLite — без изображения и снимка AI (списки).
	ColumnsLite
	// ColumnsTotals — только идентификация, дата и четыре числовых поля
	// (агрегация и архивация).
	ColumnsTotals
)

// MealQuery — параметры выборки записей. Пустые поля не фильтруют.
// Результат всегда отсортирован по Timestamp по убыванию.
type MealQuery struct {
	// Columns — набор полей
	Columns ColumnSet
	// Date — точная календарная дата
	Date string
	// From — нижняя граница даты (включительно)
	From string
	// Before — верхняя граница даты (исключительно)
	Before string
	// Limit — максимальное количество записей (0 — без ограничения)
	Limit int
}

// DateRange — полуинтервал дат [Start, End). Пустая граница не ограничивает.
type DateRange struct {
	Start string
	End   string
}

// Contains проверяет попадание даты в интервал.
func (r DateRange) Contains(date string) bool {
	if r.Start != "" && date < r.Start {
		return false
	}
	if r.End != "" && date >= r.End {
		return false
	}
	return true
}

// RecordStore — операции слоя хранения, общие для обоих бэкендов.
// Все методы, кроме SaveMeal/SaveMeals/Upsert*, работают в границах userID.
type RecordStore interface {
	// SaveMeal вставляет или заменяет запись по ID. Запись с тем же ID,
	// принадлежащая другому пользователю, не заменяется (ErrForeignOwner).
	SaveMeal(ctx context.Context, meal *model.Meal) error
	// SaveMeals сохраняет пачку записей атомарно: либо все, либо ни одной.
	SaveMeals(ctx context.Context, meals []*model.Meal) error
	// ListMeals возвращает записи пользователя, новые первыми.
	ListMeals(ctx context.Context, userID string, q MealQuery) ([]*model.Meal, error)
	// GetMeal возвращает запись пользователя без изображения и снимка AI
	// (nil, если записи нет).
	GetMeal(ctx context.Context, userID, mealID string) (*model.Meal, error)
	// CountMeals возвращает количество записей пользователя за дату.
	CountMeals(ctx context.Context, userID, date string) (int, error)
	// GetMealImage возвращает изображение записи ("" если записи или изображения нет).
	GetMealImage(ctx context.Context, userID, mealID string) (string, error)
	// DeleteMeal удаляет запись. Отсутствие записи ошибкой не является.
	DeleteMeal(ctx context.Context, userID, mealID string) error
	// ClearMealImage удаляет изображение записи, оставляя саму запись.
	ClearMealImage(ctx context.Context, userID, mealID string) error
	// DeleteMealsForDate удаляет все записи пользователя за дату.
	DeleteMealsForDate(ctx context.Context, userID, date string) (int, error)

	// ListAggregates возвращает сохранённые rollup пользователя в интервале.
	ListAggregates(ctx context.Context, userID string, r DateRange) ([]*model.DailyAggregate, error)
	// UpsertAggregate вставляет или заменяет rollup по (user, date).
	UpsertAggregate(ctx context.Context, agg *model.DailyAggregate) error
	// UpsertAggregates сохраняет пачку rollup атомарно.
	UpsertAggregates(ctx context.Context, aggs []*model.DailyAggregate) error

	// GetSettings возвращает настройки пользователя (nil, если их нет).
	GetSettings(ctx context.Context, userID string) (*model.Settings, error)
	// UpsertSettings сохраняет настройки пользователя.
	UpsertSettings(ctx context.Context, s *model.Settings) error
	// GetProfile возвращает профиль пользователя (nil, если его нет).
	GetProfile(ctx context.Context, userID string) (*model.Profile, error)
	// UpsertProfile сохраняет профиль пользователя.
	UpsertProfile(ctx context.Context, p *model.Profile) error
}

// project применяет набор полей к записи.
func project(m *model.Meal, cols ColumnSet) *model.Meal {
	switch cols {
	case ColumnsLite:
		return m.Lite()
	case ColumnsTotals:
		return &model.Meal{
			ID:        m.ID,
			UserID:    m.UserID,
			Timestamp: m.Timestamp,
			Date:      m.Date,
			Time:      m.Time,
			Calories:  m.Calories,
			Protein:   m.Protein,
			Carbs:     m.Carbs,
			Fat:       m.Fat,
		}
	default:
		return m.Clone()
	}
}

// matches проверяет соответствие записи фильтрам запроса.
func (q MealQuery) matches(m *model.Meal) bool {
	if q.Date != "" && m.Date != q.Date {
		return false
	}
	if q.From != "" && m.Date < q.From {
		return false
	}
	if q.Before != "" && m.Date >= q.Before {
		return false
	}
	return true
}
