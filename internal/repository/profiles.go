package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/vexlee/SnapCalAI-sub000/internal/domain/model"
)

// ProfileRepository — интерфейс для таблицы user_profiles.
type ProfileRepository interface {
	// Get возвращает профиль пользователя или ErrNotFound.
	Get(ctx context.Context, userID string) (*model.Profile, error)
	// Upsert вставляет или обновляет профиль пользователя.
	Upsert(ctx context.Context, p *model.Profile) error
}

type profileRepo struct {
	db DBTX
}

// NewProfileRepository создаёт репозиторий профилей.
func NewProfileRepository(db DBTX) ProfileRepository {
	return &profileRepo{db: db}
}

func (r *profileRepo) Get(ctx context.Context, userID string) (*model.Profile, error) {
	query := `
		SELECT user_id, name, age, gender, height_cm, weight_kg,
			activity_level, goal, updated_at
		FROM user_profiles
		WHERE user_id = $1`

	p := &model.Profile{}
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&p.UserID, &p.Name, &p.Age, &p.Gender, &p.HeightCm, &p.WeightKg,
		&p.ActivityLevel, &p.Goal, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения профиля: %w", err)
	}
	return p, nil
}

func (r *profileRepo) Upsert(ctx context.Context, p *model.Profile) error {
	query := `
		INSERT INTO user_profiles (user_id, name, age, gender, height_cm, weight_kg,
			activity_level, goal)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id) DO UPDATE SET
			name = EXCLUDED.name,
			age = EXCLUDED.age,
			gender = EXCLUDED.gender,
			height_cm = EXCLUDED.height_cm,
			weight_kg = EXCLUDED.weight_kg,
			activity_level = EXCLUDED.activity_level,
			goal = EXCLUDED.goal,
			updated_at = NOW()
		RETURNING updated_at`

	err := r.db.QueryRow(ctx, query,
		p.UserID, p.Name, p.Age, string(p.Gender), p.HeightCm, p.WeightKg,
		string(p.ActivityLevel), string(p.Goal),
	).Scan(&p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("ошибка сохранения профиля: %w", err)
	}
	return nil
}
