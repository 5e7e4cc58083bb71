// Пакет service — бизнес-логика слоя хранения SnapCal.
// Сервисы координируют RecordStore, TTL-кэш, провайдер идентификации
// и Prometheus-метрики. Каждая функция чтения сначала обращается к кэшу,
// каждая запись после успешной записи в бэкенд инвалидирует пространство имён.
package service

import (
	"errors"
	"time"

	"github.com/vexlee/SnapCalAI-sub000/internal/cache"
	"github.com/vexlee/SnapCalAI-sub000/internal/domain/model"
)

// Ошибки сервисного слоя.
var (
	// ErrValidation — входные данные не прошли проверку.
	ErrValidation = errors.New("некорректные данные")
	// ErrMigrationConfig — миграция невозможна в текущей конфигурации.
	ErrMigrationConfig = errors.New("миграция недоступна")
	// ErrMigrationRunning — миграция уже выполняется.
	ErrMigrationRunning = errors.New("миграция уже выполняется")
	// ErrMigrationForbidden — пользователь не владеет локальными данными устройства.
	ErrMigrationForbidden = errors.New("миграция локальных данных запрещена для этого пользователя")
)

// Пространства имён кэша.
// Агрегаты кэшируются в пространстве meals: любая запись меняет и их.
const (
	nsMeals    = "meals"
	nsSettings = "settings"
	nsProfile  = "profile"
)

// TTLs — классы времени жизни записей кэша.
type TTLs struct {
	// Default — списки и агрегаты
	Default time.Duration
	// Image — изображения (неизменны после записи)
	Image time.Duration
	// Profile — профиль, настройки и дневная цель
	Profile time.Duration
	// Date — выборки за дату и счётчики
	Date time.Duration
}

// DefaultTTLs возвращает классы TTL по умолчанию.
func DefaultTTLs() TTLs {
	return TTLs{
		Default: cache.DefaultTTL,
		Image:   30 * time.Minute,
		Profile: 30 * time.Minute,
		Date:    2 * time.Minute,
	}
}

// cached возвращает значение из кэша или загружает его и кэширует.
// Ошибка загрузки не кэшируется. Если за время загрузки пространство имён
// было инвалидировано, результат возвращается вызывающему, но в кэш не
// попадает: он мог быть прочитан до записи, вызвавшей инвалидацию.
func cached[T any](c *cache.Cache, key cache.Key, ttl time.Duration, load func() (T, error)) (T, error) {
	if v, ok := cache.GetAs[T](c, key); ok {
		return v, nil
	}
	gen := c.Generation(key.Namespace, key.UserID)
	v, err := load()
	if err != nil {
		var zero T
		return zero, err
	}
	c.SetIfGeneration(key, v, ttl, gen)
	return v, nil
}

// validDate проверяет формат календарной даты.
func validDate(date string) bool {
	if len(date) != len(model.DateLayout) {
		return false
	}
	_, err := time.Parse(model.DateLayout, date)
	return err == nil
}
