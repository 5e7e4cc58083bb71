package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/vexlee/SnapCalAI-sub000/internal/domain/model"
)

// MealColumns — набор столбцов выборки.
type MealColumns int

const (
	// MealColumnsFull — все столбцы.
	MealColumnsFull MealColumns = iota
	// MealColumnsLite — без image и ai_estimate.
	MealColumnsLite
	// MealColumnsTotals — идентификация, дата и пищевая ценность.
	MealColumnsTotals
)

const (
	mealSelectFull = `id, user_id, timestamp, date::text, time, food_name,
		calories, protein, carbs, fat, confidence, COALESCE(image, ''),
		manually_edited, sub_items, ai_estimate`
	mealSelectLite = `id, user_id, timestamp, date::text, time, food_name,
		calories, protein, carbs, fat, confidence, manually_edited, sub_items`
	mealSelectTotals = `id, user_id, timestamp, date::text, time,
		calories, protein, carbs, fat`
)

// MealFilters — фильтры выборки записей. Пустые поля не фильтруют.
type MealFilters struct {
	Date   string
	From   string
	Before string
}

// MealRepository — интерфейс CRUD для таблицы meals.
type MealRepository interface {
	// Upsert вставляет запись или обновляет существующую с тем же id.
	// Запись другого пользователя не изменяется: возвращается ErrForeignOwner.
	Upsert(ctx context.Context, m *model.Meal) error
	// Get возвращает запись пользователя без изображения и снимка AI.
	Get(ctx context.Context, userID, mealID string) (*model.Meal, error)
	// List возвращает записи пользователя, новые первыми.
	List(ctx context.Context, userID string, cols MealColumns, filters MealFilters, limit int) ([]*model.Meal, error)
	// Count возвращает количество записей пользователя за дату.
	Count(ctx context.Context, userID, date string) (int, error)
	// GetImage возвращает изображение записи.
	GetImage(ctx context.Context, userID, mealID string) (string, error)
	// ClearImage удаляет изображение записи.
	ClearImage(ctx context.Context, userID, mealID string) error
	// Delete удаляет запись.
	Delete(ctx context.Context, userID, mealID string) error
	// DeleteForDate удаляет записи пользователя за дату.
	DeleteForDate(ctx context.Context, userID, date string) (int, error)
}

type mealRepo struct {
	db DBTX
}

// NewMealRepository создаёт репозиторий записей о питании.
func NewMealRepository(db DBTX) MealRepository {
	return &mealRepo{db: db}
}

func (r *mealRepo) Upsert(ctx context.Context, m *model.Meal) error {
	subItems, err := marshalJSONB(m.SubItems, len(m.SubItems) > 0)
	if err != nil {
		return fmt.Errorf("ошибка сериализации sub_items: %w", err)
	}
	aiEstimate, err := marshalJSONB(m.AIEstimate, m.AIEstimate != nil)
	if err != nil {
		return fmt.Errorf("ошибка сериализации ai_estimate: %w", err)
	}
	var image any
	if m.Image != "" {
		image = m.Image
	}

	query := `
		INSERT INTO meals (id, user_id, timestamp, date, time, food_name,
			calories, protein, carbs, fat, confidence, image, manually_edited,
			sub_items, ai_estimate)
		VALUES ($1, $2, $3, $4::text::date, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO UPDATE SET
			timestamp = EXCLUDED.timestamp,
			date = EXCLUDED.date,
			time = EXCLUDED.time,
			food_name = EXCLUDED.food_name,
			calories = EXCLUDED.calories,
			protein = EXCLUDED.protein,
			carbs = EXCLUDED.carbs,
			fat = EXCLUDED.fat,
			confidence = EXCLUDED.confidence,
			image = EXCLUDED.image,
			manually_edited = EXCLUDED.manually_edited,
			sub_items = EXCLUDED.sub_items,
			ai_estimate = EXCLUDED.ai_estimate,
			updated_at = NOW()
		WHERE meals.user_id = EXCLUDED.user_id`

	tag, err := r.db.Exec(ctx, query,
		m.ID, m.UserID, m.Timestamp, m.Date, m.Time, m.FoodName,
		m.Calories, m.Protein, m.Carbs, m.Fat, m.Confidence, image, m.ManuallyEdited,
		subItems, aiEstimate,
	)
	if err != nil {
		return fmt.Errorf("ошибка сохранения записи: %w", err)
	}
	// Конфликт по id с чужой записью: DO UPDATE отфильтрован условием WHERE
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrForeignOwner, m.ID)
	}
	return nil
}

func (r *mealRepo) Get(ctx context.Context, userID, mealID string) (*model.Meal, error) {
	rows, err := r.db.Query(ctx,
		fmt.Sprintf(`SELECT %s FROM meals WHERE id = $1 AND user_id = $2`, mealSelectLite),
		mealID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения записи: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("ошибка получения записи: %w", err)
		}
		return nil, ErrNotFound
	}
	m, err := scanMeal(rows, MealColumnsLite)
	if err != nil {
		return nil, fmt.Errorf("ошибка сканирования записи: %w", err)
	}
	return m, nil
}

// buildMealWhere строит WHERE-условие и аргументы для фильтрации записей.
func buildMealWhere(userID string, filters MealFilters) (string, []any) {
	conditions := []string{"user_id = $1"}
	args := []any{userID}
	argNum := 2

	if filters.Date != "" {
		conditions = append(conditions, fmt.Sprintf("date = $%d::text::date", argNum))
		args = append(args, filters.Date)
		argNum++
	}
	if filters.From != "" {
		conditions = append(conditions, fmt.Sprintf("date >= $%d::text::date", argNum))
		args = append(args, filters.From)
		argNum++
	}
	if filters.Before != "" {
		conditions = append(conditions, fmt.Sprintf("date < $%d::text::date", argNum))
		args = append(args, filters.Before)
	}

	return "WHERE " + strings.Join(conditions, " AND "), args
}

func (r *mealRepo) List(ctx context.Context, userID string, cols MealColumns, filters MealFilters, limit int) ([]*model.Meal, error) {
	where, args := buildMealWhere(userID, filters)

	selectList := mealSelectFull
	switch cols {
	case MealColumnsLite:
		selectList = mealSelectLite
	case MealColumnsTotals:
		selectList = mealSelectTotals
	}

	query := fmt.Sprintf(`SELECT %s FROM meals %s ORDER BY timestamp DESC`, selectList, where)
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", len(args)+1)
		args = append(args, limit)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка записей: %w", err)
	}
	defer rows.Close()

	result := make([]*model.Meal, 0)
	for rows.Next() {
		m, err := scanMeal(rows, cols)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования записи: %w", err)
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

// scanMeal читает строку в соответствии с набором столбцов.
func scanMeal(rows pgx.Rows, cols MealColumns) (*model.Meal, error) {
	m := &model.Meal{}
	var subItems, aiEstimate []byte

	var err error
	switch cols {
	case MealColumnsTotals:
		err = rows.Scan(&m.ID, &m.UserID, &m.Timestamp, &m.Date, &m.Time,
			&m.Calories, &m.Protein, &m.Carbs, &m.Fat)
	case MealColumnsLite:
		err = rows.Scan(&m.ID, &m.UserID, &m.Timestamp, &m.Date, &m.Time, &m.FoodName,
			&m.Calories, &m.Protein, &m.Carbs, &m.Fat, &m.Confidence, &m.ManuallyEdited, &subItems)
	default:
		err = rows.Scan(&m.ID, &m.UserID, &m.Timestamp, &m.Date, &m.Time, &m.FoodName,
			&m.Calories, &m.Protein, &m.Carbs, &m.Fat, &m.Confidence, &m.Image,
			&m.ManuallyEdited, &subItems, &aiEstimate)
	}
	if err != nil {
		return nil, err
	}

	// Повреждённые JSON-поля не ломают чтение записи
	if len(subItems) > 0 {
		if err := json.Unmarshal(subItems, &m.SubItems); err != nil {
			m.SubItems = nil
		}
	}
	m.AIEstimate = model.ParseAIEstimate(aiEstimate)
	return m, nil
}

func (r *mealRepo) Count(ctx context.Context, userID, date string) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM meals WHERE user_id = $1 AND date = $2::text::date`,
		userID, date,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта записей: %w", err)
	}
	return n, nil
}

func (r *mealRepo) GetImage(ctx context.Context, userID, mealID string) (string, error) {
	var image string
	err := r.db.QueryRow(ctx,
		`SELECT COALESCE(image, '') FROM meals WHERE id = $1 AND user_id = $2`,
		mealID, userID,
	).Scan(&image)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("ошибка получения изображения: %w", err)
	}
	return image, nil
}

func (r *mealRepo) ClearImage(ctx context.Context, userID, mealID string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE meals SET image = NULL, updated_at = NOW()
		WHERE id = $1 AND user_id = $2 AND image IS NOT NULL`,
		mealID, userID,
	)
	if err != nil {
		return fmt.Errorf("ошибка удаления изображения: %w", err)
	}
	return nil
}

func (r *mealRepo) Delete(ctx context.Context, userID, mealID string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM meals WHERE id = $1 AND user_id = $2`, mealID, userID)
	if err != nil {
		return fmt.Errorf("ошибка удаления записи: %w", err)
	}
	return nil
}

func (r *mealRepo) DeleteForDate(ctx context.Context, userID, date string) (int, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM meals WHERE user_id = $1 AND date = $2::text::date`, userID, date)
	if err != nil {
		return 0, fmt.Errorf("ошибка удаления записей за дату: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// marshalJSONB сериализует значение для столбца JSONB; present = false даёт NULL.
func marshalJSONB(v any, present bool) (any, error) {
	if !present {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}
