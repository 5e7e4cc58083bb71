// meals.go — сервис записей о питании.
// Чтение: кэш → при промахе RecordStore → кэш.
// Запись: RecordStore → инвалидация всего пространства meals пользователя.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vexlee/SnapCalAI-sub000/internal/cache"
	"github.com/vexlee/SnapCalAI-sub000/internal/domain/model"
	"github.com/vexlee/SnapCalAI-sub000/internal/identity"
	"github.com/vexlee/SnapCalAI-sub000/internal/store"
)

// MealServiceConfig — параметры MealService.
type MealServiceConfig struct {
	// TTL — классы времени жизни кэша
	TTL TTLs
	// Location — часовой пояс для вычисления календарной даты
	Location *time.Location
	// MaxImageBytes — ограничение размера изображения (0 — без ограничения)
	MaxImageBytes int
}

// MealService — операции над записями о питании текущего пользователя.
type MealService struct {
	store  store.RecordStore
	cache  *cache.Cache
	ids    identity.Provider
	cfg    MealServiceConfig
	now    func() time.Time
	logger *slog.Logger
}

// NewMealService создаёт сервис записей.
func NewMealService(
	st store.RecordStore,
	c *cache.Cache,
	ids identity.Provider,
	cfg MealServiceConfig,
	logger *slog.Logger,
) *MealService {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &MealService{
		store:  st,
		cache:  c,
		ids:    ids,
		cfg:    cfg,
		now:    time.Now,
		logger: logger.With(slog.String("component", "meal_service")),
	}
}

// Save сохраняет запись текущего пользователя (вставка или замена по ID).
// Новой записи назначается ID; её дата и время вычисляются из Timestamp,
// если дата не задана. При правке существующей записи дата и время
// берутся из хранилища: календарная дата записи неизменна.
func (s *MealService) Save(ctx context.Context, m *model.Meal) (*model.Meal, error) {
	userID, err := s.ids.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}

	meal := m.Clone()
	meal.UserID = userID
	if meal.ID == "" {
		meal.ID = uuid.NewString()
	} else {
		stored, err := s.store.GetMeal(ctx, userID, meal.ID)
		if err != nil {
			return nil, err
		}
		if stored != nil {
			meal.Date = stored.Date
			meal.Time = stored.Time
			if meal.Timestamp.IsZero() {
				meal.Timestamp = stored.Timestamp
			}
		}
	}
	if meal.Timestamp.IsZero() {
		meal.Timestamp = s.now()
	}
	meal.StampDate(s.cfg.Location)

	if err := s.validate(meal); err != nil {
		return nil, err
	}

	if err := s.store.SaveMeal(ctx, meal); err != nil {
		return nil, err
	}
	s.invalidate(userID)

	s.logger.Debug("Запись сохранена",
		slog.String("meal_id", meal.ID),
		slog.String("date", meal.Date),
	)
	return meal, nil
}

// List возвращает полные записи пользователя, новые первыми.
func (s *MealService) List(ctx context.Context) ([]*model.Meal, error) {
	return s.list(ctx, "list", s.cfg.TTL.Default, store.MealQuery{Columns: store.ColumnsFull})
}

// ListLite возвращает записи без изображения и снимка AI.
func (s *MealService) ListLite(ctx context.Context) ([]*model.Meal, error) {
	return s.list(ctx, "lite", s.cfg.TTL.Default, store.MealQuery{Columns: store.ColumnsLite})
}

// ListForDate возвращает записи пользователя за календарную дату.
func (s *MealService) ListForDate(ctx context.Context, date string) ([]*model.Meal, error) {
	if !validDate(date) {
		return nil, fmt.Errorf("%w: дата %q не в формате YYYY-MM-DD", ErrValidation, date)
	}
	return s.list(ctx, "date:"+date, s.cfg.TTL.Date, store.MealQuery{Columns: store.ColumnsLite, Date: date})
}

func (s *MealService) list(ctx context.Context, qualifier string, ttl time.Duration, q store.MealQuery) ([]*model.Meal, error) {
	userID, err := s.ids.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	key := cache.Key{Namespace: nsMeals, UserID: userID, Qualifier: qualifier}
	return cached(s.cache, key, ttl, func() ([]*model.Meal, error) {
		return s.store.ListMeals(ctx, userID, q)
	})
}

// CountForDate возвращает количество записей пользователя за дату.
func (s *MealService) CountForDate(ctx context.Context, date string) (int, error) {
	if !validDate(date) {
		return 0, fmt.Errorf("%w: дата %q не в формате YYYY-MM-DD", ErrValidation, date)
	}
	userID, err := s.ids.CurrentUser(ctx)
	if err != nil {
		return 0, err
	}
	key := cache.Key{Namespace: nsMeals, UserID: userID, Qualifier: "count:" + date}
	return cached(s.cache, key, s.cfg.TTL.Date, func() (int, error) {
		return s.store.CountMeals(ctx, userID, date)
	})
}

// GetImage возвращает изображение записи ("" если его нет).
func (s *MealService) GetImage(ctx context.Context, mealID string) (string, error) {
	userID, err := s.ids.CurrentUser(ctx)
	if err != nil {
		return "", err
	}
	key := cache.Key{Namespace: nsMeals, UserID: userID, Qualifier: "image:" + mealID}
	return cached(s.cache, key, s.cfg.TTL.Image, func() (string, error) {
		return s.store.GetMealImage(ctx, userID, mealID)
	})
}

// Delete удаляет запись пользователя.
func (s *MealService) Delete(ctx context.Context, mealID string) error {
	userID, err := s.ids.CurrentUser(ctx)
	if err != nil {
		return err
	}
	if err := s.store.DeleteMeal(ctx, userID, mealID); err != nil {
		return err
	}
	s.invalidate(userID)
	return nil
}

// ClearImage удаляет изображение записи, оставляя саму запись.
func (s *MealService) ClearImage(ctx context.Context, mealID string) error {
	userID, err := s.ids.CurrentUser(ctx)
	if err != nil {
		return err
	}
	if err := s.store.ClearMealImage(ctx, userID, mealID); err != nil {
		return err
	}
	s.invalidate(userID)
	return nil
}

// invalidate удаляет все производные представления записей пользователя:
// списки, выборки за даты, счётчики, изображения и агрегаты.
func (s *MealService) invalidate(userID string) {
	n := s.cache.InvalidateNamespace(nsMeals, userID)
	s.logger.Debug("Кэш записей инвалидирован",
		slog.String("user_id", userID),
		slog.Int("entries", n),
	)
}

func (s *MealService) validate(m *model.Meal) error {
	for name, v := range map[string]float64{
		"calories": m.Calories, "protein": m.Protein, "carbs": m.Carbs, "fat": m.Fat,
	} {
		if v < 0 {
			return fmt.Errorf("%w: %s не может быть отрицательным", ErrValidation, name)
		}
	}
	if m.Confidence < 0 || m.Confidence > 1 {
		return fmt.Errorf("%w: confidence вне диапазона [0,1]", ErrValidation)
	}
	if !validDate(m.Date) {
		return fmt.Errorf("%w: дата %q не в формате YYYY-MM-DD", ErrValidation, m.Date)
	}
	if s.cfg.MaxImageBytes > 0 && len(m.Image) > s.cfg.MaxImageBytes {
		return fmt.Errorf("%w: изображение %d байт превышает ограничение %d",
			ErrValidation, len(m.Image), s.cfg.MaxImageBytes)
	}
	for _, item := range m.SubItems {
		if item.Grams < 0 || item.Calories < 0 {
			return fmt.Errorf("%w: компонент %q с отрицательными значениями", ErrValidation, item.Name)
		}
	}
	return nil
}
