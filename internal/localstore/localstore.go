// Пакет localstore — локальное key-value хранилище устройства с жёстким
// лимитом ёмкости. Аналог браузерного localStorage: значения хранятся целиком
// по ключу, суммарный размер (ключи + значения) не может превысить квоту.
// Реализация — файл SQLite (modernc.org/sqlite, без CGO).
package localstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// DefaultQuotaBytes — наблюдаемый потолок localStorage (~5 МБ).
const DefaultQuotaBytes = 5 * 1024 * 1024

// Ошибки локального хранилища.
var (
	// ErrQuotaExceeded — запись превысила бы ёмкость хранилища.
	// Данные до записи остаются неизменными.
	ErrQuotaExceeded = errors.New("превышена квота локального хранилища")
)

// Store — key-value хранилище с квотой.
type Store struct {
	db    *sql.DB
	quota int64
}

// Open открывает (или создаёт) хранилище по пути path.
// quota <= 0 означает DefaultQuotaBytes.
func Open(path string, quota int64) (*Store, error) {
	if quota <= 0 {
		quota = DefaultQuotaBytes
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("создание каталога хранилища: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("открытие хранилища: %w", err)
	}
	// Один писатель: проверка квоты и запись должны быть атомарны.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS kv (
		key   TEXT PRIMARY KEY,
		value BLOB NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("инициализация схемы хранилища: %w", err)
	}

	return &Store{db: db, quota: quota}, nil
}

// Close закрывает хранилище.
func (s *Store) Close() error {
	return s.db.Close()
}

// Quota возвращает ёмкость хранилища в байтах.
func (s *Store) Quota() int64 {
	return s.quota
}

// Get возвращает значение по ключу. ok = false, если ключ отсутствует.
func (s *Store) Get(ctx context.Context, key string) (value []byte, ok bool, err error) {
	err = s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("чтение ключа %q: %w", key, err)
	}
	return value, true, nil
}

// Put записывает значение по ключу (перезаписывая старое).
// Если после записи суммарный объём превысит квоту — возвращает
// ErrQuotaExceeded и не изменяет хранилище.
func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("начало транзакции: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // откат после коммита — no-op

	var others int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(LENGTH(key) + LENGTH(value)), 0) FROM kv WHERE key != ?`, key,
	).Scan(&others)
	if err != nil {
		return fmt.Errorf("подсчёт занятого объёма: %w", err)
	}

	if others+int64(len(key))+int64(len(value)) > s.quota {
		return fmt.Errorf("%w: ключ %q, требуется %d из %d байт",
			ErrQuotaExceeded, key, others+int64(len(key))+int64(len(value)), s.quota)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO kv (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value`, key, value,
	); err != nil {
		return fmt.Errorf("запись ключа %q: %w", key, err)
	}

	return tx.Commit()
}

// Delete удаляет ключ. Отсутствие ключа ошибкой не является.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("удаление ключа %q: %w", key, err)
	}
	return nil
}

// Usage возвращает занятый объём в байтах.
func (s *Store) Usage(ctx context.Context) (int64, error) {
	var used int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(LENGTH(key) + LENGTH(value)), 0) FROM kv`,
	).Scan(&used)
	if err != nil {
		return 0, fmt.Errorf("подсчёт занятого объёма: %w", err)
	}
	return used, nil
}
