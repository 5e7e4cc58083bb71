package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/vexlee/SnapCalAI-sub000/internal/domain/model"
)

// SettingsRepository — интерфейс для таблицы user_settings.
type SettingsRepository interface {
	// Get возвращает настройки пользователя или ErrNotFound.
	Get(ctx context.Context, userID string) (*model.Settings, error)
	// Upsert вставляет или обновляет настройки пользователя.
	Upsert(ctx context.Context, s *model.Settings) error
}

type settingsRepo struct {
	db DBTX
}

// NewSettingsRepository создаёт репозиторий настроек.
func NewSettingsRepository(db DBTX) SettingsRepository {
	return &settingsRepo{db: db}
}

func (r *settingsRepo) Get(ctx context.Context, userID string) (*model.Settings, error) {
	s := &model.Settings{}
	err := r.db.QueryRow(ctx,
		`SELECT user_id, daily_calorie_goal, updated_at FROM user_settings WHERE user_id = $1`,
		userID,
	).Scan(&s.UserID, &s.DailyCalorieGoal, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения настроек: %w", err)
	}
	return s, nil
}

func (r *settingsRepo) Upsert(ctx context.Context, s *model.Settings) error {
	query := `
		INSERT INTO user_settings (user_id, daily_calorie_goal)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET
			daily_calorie_goal = EXCLUDED.daily_calorie_goal,
			updated_at = NOW()
		RETURNING updated_at`

	if err := r.db.QueryRow(ctx, query, s.UserID, s.DailyCalorieGoal).Scan(&s.UpdatedAt); err != nil {
		return fmt.Errorf("ошибка сохранения настроек: %w", err)
	}
	return nil
}
