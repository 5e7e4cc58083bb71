// errors.go — таксономия ошибок слоя хранения.
// Любой сбой бэкенда пробрасывается вызывающему как *Error одного из шести видов.
// Попытка заменить чужую запись — отдельная ошибка ErrForeignOwner.
package store

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vexlee/SnapCalAI-sub000/internal/localstore"
	"github.com/vexlee/SnapCalAI-sub000/internal/repository"
)

// ErrForeignOwner — запись с таким ID принадлежит другому пользователю.
// Общая для обоих бэкендов; удалённый бэкенд дополнительно оборачивает её
// в *Error вида KindRemoteAccessDenied.
var ErrForeignOwner = repository.ErrForeignOwner

// Kind — вид ошибки, видимый пользователю.
type Kind int

const (
	// KindLocalStorageExhausted — локальное хранилище переполнено.
	// Автоматический повтор невозможен: пользователь должен освободить место.
	KindLocalStorageExhausted Kind = iota + 1
	// KindRemoteQuotaExhausted — исчерпан лимит тарифа удалённого бэкенда.
	KindRemoteQuotaExhausted
	// KindRemoteSchemaMissing — отсутствует таблица или столбец.
	KindRemoteSchemaMissing
	// KindRemoteAccessDenied — запись отклонена правилами доступа.
	KindRemoteAccessDenied
	// KindRemoteUnclassified — прочие сбои удалённого бэкенда.
	KindRemoteUnclassified
	// KindLocalFailure — прочие сбои локального хранилища
	// (чтение, разбор сохранённого значения, запись не из-за квоты).
	KindLocalFailure
)

// String возвращает машиночитаемый код вида ошибки.
func (k Kind) String() string {
	switch k {
	case KindLocalStorageExhausted:
		return "LOCAL_STORAGE_EXHAUSTED"
	case KindRemoteQuotaExhausted:
		return "REMOTE_QUOTA_EXHAUSTED"
	case KindRemoteSchemaMissing:
		return "REMOTE_SCHEMA_MISSING"
	case KindRemoteAccessDenied:
		return "REMOTE_ACCESS_DENIED"
	case KindRemoteUnclassified:
		return "REMOTE_FAILURE"
	case KindLocalFailure:
		return "LOCAL_FAILURE"
	default:
		return "UNKNOWN"
	}
}

// Error — ошибка слоя хранения.
type Error struct {
	// Kind — вид ошибки
	Kind Kind
	// Op — операция, в которой произошёл сбой (например, "meals.save")
	Op string
	// Message — человекочитаемое сообщение для пользователя
	Message string
	// Err — исходная ошибка бэкенда
	Err error
}

// Error реализует интерфейс error.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

// Unwrap возвращает исходную ошибку.
func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable сообщает, имеет ли смысл повтор операции.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindRemoteQuotaExhausted, KindRemoteUnclassified:
		return true
	default:
		return false
	}
}

// KindOf возвращает вид ошибки слоя хранения (0, если err не *Error).
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return 0
}

// SQLSTATE-коды PostgreSQL, используемые при классификации.
const (
	codeDiskFull              = "53100"
	codeOutOfMemory           = "53200"
	codeTooManyConnections    = "53300"
	codeProgramLimitExceeded  = "54000"
	codeUndefinedTable        = "42P01"
	codeUndefinedColumn       = "42703"
	codeUndefinedFunction     = "42883"
	codeInvalidSchemaName     = "3F000"
	codeInsufficientPrivilege = "42501"
)

// Classify превращает ошибку удалённого бэкенда в *Error.
// Сначала проверяется SQLSTATE, затем текст сообщения.
// Уже классифицированная ошибка и nil возвращаются как есть.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	if errors.Is(err, ErrForeignOwner) {
		return newError(op, KindRemoteAccessDenied, "", err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if kind, ok := kindFromCode(pgErr.Code); ok {
			return newError(op, kind, pgErr.Message, err)
		}
	}

	msg := err.Error()
	return newError(op, kindFromMessage(msg), msg, err)
}

// ClassifyLocal превращает ошибку локального хранилища в *Error.
// Сигнал переполнения квоты → KindLocalStorageExhausted,
// прочие ошибки устройства → KindLocalFailure.
// ErrForeignOwner и уже классифицированные ошибки возвращаются как есть.
func ClassifyLocal(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) || errors.Is(err, ErrForeignOwner) {
		return err
	}
	if errors.Is(err, localstore.ErrQuotaExceeded) {
		return newError(op, KindLocalStorageExhausted, "", err)
	}
	return newError(op, KindLocalFailure, err.Error(), err)
}

func kindFromCode(code string) (Kind, bool) {
	switch code {
	case codeDiskFull, codeOutOfMemory, codeTooManyConnections, codeProgramLimitExceeded:
		return KindRemoteQuotaExhausted, true
	case codeUndefinedTable, codeUndefinedColumn, codeUndefinedFunction, codeInvalidSchemaName:
		return KindRemoteSchemaMissing, true
	case codeInsufficientPrivilege:
		return KindRemoteAccessDenied, true
	}
	return 0, false
}

func kindFromMessage(msg string) Kind {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "quota"),
		strings.Contains(lower, "limit exceeded"),
		strings.Contains(lower, "exceeded") && strings.Contains(lower, "limit"):
		return KindRemoteQuotaExhausted
	case strings.Contains(lower, "does not exist") &&
		(strings.Contains(lower, "relation") || strings.Contains(lower, "column") || strings.Contains(lower, "table")),
		strings.Contains(lower, "schema cache"):
		return KindRemoteSchemaMissing
	case strings.Contains(lower, "row-level security"),
		strings.Contains(lower, "permission denied"):
		return KindRemoteAccessDenied
	}
	return KindRemoteUnclassified
}

// newError формирует сообщение для пользователя по виду ошибки.
func newError(op string, kind Kind, raw string, cause error) *Error {
	var msg string
	switch kind {
	case KindLocalStorageExhausted:
		msg = "локальное хранилище заполнено: удалите старые записи или изображения"
	case KindRemoteQuotaExhausted:
		msg = "исчерпан лимит облачного хранилища: освободите место или обновите тариф"
	case KindRemoteSchemaMissing:
		msg = "облачная база данных не настроена: отсутствуют необходимые таблицы"
	case KindRemoteAccessDenied:
		msg = "доступ к облачной базе данных запрещён: проверьте политики доступа"
	case KindLocalFailure:
		msg = "ошибка локального хранилища: " + raw
	default:
		msg = "ошибка облачной базы данных: " + raw
	}
	return &Error{Kind: kind, Op: op, Message: msg, Err: cause}
}
