// Пакет identity — источник идентификатора текущего пользователя.
// В локальном режиме владелец фиксирован конфигурацией, в удалённом —
// берётся из sub JWT, помещённого в контекст запроса middleware аутентификации.
package identity

import (
	"context"
	"errors"
	"sync/atomic"
)

// ErrNoIdentity — идентификатор пользователя недоступен.
var ErrNoIdentity = errors.New("пользователь не аутентифицирован")

// Provider возвращает идентификатор текущего пользователя.
type Provider interface {
	CurrentUser(ctx context.Context) (string, error)
}

// contextKey — тип для ключей контекста (избегаем коллизий).
type contextKey string

const (
	subjectKey contextKey = "identity_subject"
	slotKey    contextKey = "identity_slot"
)

// WithSubject помещает идентификатор пользователя в контекст.
// Если выше по цепочке создан слот (WithSubjectSlot), идентификатор
// записывается и в него.
func WithSubject(ctx context.Context, subject string) context.Context {
	if slot, ok := ctx.Value(slotKey).(*atomic.Pointer[string]); ok {
		slot.Store(&subject)
	}
	return context.WithValue(ctx, subjectKey, subject)
}

// WithSubjectSlot создаёт в контексте пустой слот идентификатора.
// Возвращённая функция отдаёт идентификатор, установленный WithSubject
// во вложенных обработчиках ("" — если он так и не был установлен).
// Нужен middleware, которые оборачивают аутентификацию снаружи.
func WithSubjectSlot(ctx context.Context) (context.Context, func() string) {
	slot := new(atomic.Pointer[string])
	return context.WithValue(ctx, slotKey, slot), func() string {
		if p := slot.Load(); p != nil {
			return *p
		}
		return ""
	}
}

// SubjectFromContext извлекает идентификатор пользователя из контекста.
// Возвращает пустую строку, если он не найден.
func SubjectFromContext(ctx context.Context) string {
	subject, _ := ctx.Value(subjectKey).(string)
	return subject
}

// Static — провайдер с фиксированным пользователем (локальный режим).
type Static string

// CurrentUser возвращает фиксированный идентификатор.
func (s Static) CurrentUser(_ context.Context) (string, error) {
	if s == "" {
		return "", ErrNoIdentity
	}
	return string(s), nil
}

// FromContext — провайдер, читающий sub из контекста запроса (удалённый режим).
type FromContext struct{}

// CurrentUser возвращает sub из контекста или ErrNoIdentity.
func (FromContext) CurrentUser(ctx context.Context) (string, error) {
	if subject := SubjectFromContext(ctx); subject != "" {
		return subject, nil
	}
	return "", ErrNoIdentity
}
