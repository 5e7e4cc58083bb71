// profile.go — настройки и профиль пользователя (только upsert).
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vexlee/SnapCalAI-sub000/internal/cache"
	"github.com/vexlee/SnapCalAI-sub000/internal/domain/model"
	"github.com/vexlee/SnapCalAI-sub000/internal/identity"
	"github.com/vexlee/SnapCalAI-sub000/internal/store"
)

// DefaultDailyCalorieGoal — дневная цель, если пользователь её не задал.
const DefaultDailyCalorieGoal = 2000

// ProfileService — настройки и профиль текущего пользователя.
type ProfileService struct {
	store  store.RecordStore
	cache  *cache.Cache
	ids    identity.Provider
	ttl    TTLs
	logger *slog.Logger
}

// NewProfileService создаёт сервис настроек и профиля.
func NewProfileService(st store.RecordStore, c *cache.Cache, ids identity.Provider, ttl TTLs, logger *slog.Logger) *ProfileService {
	return &ProfileService{
		store:  st,
		cache:  c,
		ids:    ids,
		ttl:    ttl,
		logger: logger.With(slog.String("component", "profile_service")),
	}
}

// GetSettings возвращает настройки пользователя (nil, если не заданы).
func (s *ProfileService) GetSettings(ctx context.Context) (*model.Settings, error) {
	userID, err := s.ids.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	key := cache.Key{Namespace: nsSettings, UserID: userID, Qualifier: "row"}
	return cached(s.cache, key, s.ttl.Profile, func() (*model.Settings, error) {
		return s.store.GetSettings(ctx, userID)
	})
}

// DailyGoal возвращает дневную цель по калориям.
func (s *ProfileService) DailyGoal(ctx context.Context) (float64, error) {
	userID, err := s.ids.CurrentUser(ctx)
	if err != nil {
		return 0, err
	}
	key := cache.Key{Namespace: nsSettings, UserID: userID, Qualifier: "goal"}
	return cached(s.cache, key, s.ttl.Profile, func() (float64, error) {
		st, err := s.store.GetSettings(ctx, userID)
		if err != nil {
			return 0, err
		}
		if st == nil || st.DailyCalorieGoal <= 0 {
			return DefaultDailyCalorieGoal, nil
		}
		return st.DailyCalorieGoal, nil
	})
}

// SaveSettings сохраняет настройки пользователя.
func (s *ProfileService) SaveSettings(ctx context.Context, st *model.Settings) (*model.Settings, error) {
	userID, err := s.ids.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	if st.DailyCalorieGoal <= 0 {
		return nil, fmt.Errorf("%w: дневная цель должна быть положительной", ErrValidation)
	}

	row := *st
	row.UserID = userID
	if err := s.store.UpsertSettings(ctx, &row); err != nil {
		return nil, err
	}
	s.cache.InvalidateNamespace(nsSettings, userID)
	return &row, nil
}

// GetProfile возвращает профиль пользователя (nil, если не задан).
func (s *ProfileService) GetProfile(ctx context.Context) (*model.Profile, error) {
	userID, err := s.ids.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	key := cache.Key{Namespace: nsProfile, UserID: userID, Qualifier: "row"}
	return cached(s.cache, key, s.ttl.Profile, func() (*model.Profile, error) {
		return s.store.GetProfile(ctx, userID)
	})
}

// SaveProfile сохраняет профиль пользователя.
func (s *ProfileService) SaveProfile(ctx context.Context, p *model.Profile) (*model.Profile, error) {
	userID, err := s.ids.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	if err := validateProfile(p); err != nil {
		return nil, err
	}

	row := *p
	row.UserID = userID
	if err := s.store.UpsertProfile(ctx, &row); err != nil {
		return nil, err
	}
	s.cache.InvalidateNamespace(nsProfile, userID)
	return &row, nil
}

func validateProfile(p *model.Profile) error {
	if p.Age < 0 || p.Age > 150 {
		return fmt.Errorf("%w: возраст вне диапазона 0-150", ErrValidation)
	}
	if p.HeightCm < 0 || p.WeightKg < 0 {
		return fmt.Errorf("%w: рост и вес не могут быть отрицательными", ErrValidation)
	}
	if p.ActivityLevel != "" && !model.ValidActivityLevel(p.ActivityLevel) {
		return fmt.Errorf("%w: недопустимый уровень активности %q", ErrValidation, p.ActivityLevel)
	}
	if p.Goal != "" && !model.ValidGoal(p.Goal) {
		return fmt.Errorf("%w: недопустимая цель %q", ErrValidation, p.Goal)
	}
	return nil
}
