// Пакет database — подключение к PostgreSQL через pgxpool,
// применение миграций (golang-migrate) и проверка готовности.
package database

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vexlee/SnapCalAI-sub000/internal/config"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// RequiredTables — таблицы, без которых удалённый бэкенд неработоспособен.
var RequiredTables = []string{"meals", "daily_aggregates", "user_settings", "user_profiles"}

// Connect создаёт пул подключений к PostgreSQL.
// Выполняет ping для проверки доступности.
func Connect(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseDSN())
	if err != nil {
		return nil, fmt.Errorf("ошибка парсинга DSN: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания пула подключений: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ошибка подключения к PostgreSQL: %w", err)
	}

	logger.Info("Подключение к PostgreSQL установлено",
		slog.String("host", cfg.DBHost),
		slog.Int("port", cfg.DBPort),
		slog.String("database", cfg.DBName),
		slog.Int("max_conns", int(poolCfg.MaxConns)),
	)

	return pool, nil
}

// Migrate применяет SQL-миграции из embedded FS к базе данных.
func Migrate(cfg *config.Config, logger *slog.Logger) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("ошибка создания источника миграций: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, cfg.MigrationURL())
	if err != nil {
		return fmt.Errorf("ошибка инициализации миграций: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("ошибка применения миграций: %w", err)
	}

	version, dirty, _ := m.Version()
	logger.Info("Миграции применены",
		slog.Uint64("version", uint64(version)),
		slog.Bool("dirty", dirty),
	)

	return nil
}

// SchemaStatus — результат проверки наличия таблиц удалённого бэкенда.
type SchemaStatus struct {
	// Ready — все обязательные таблицы существуют
	Ready bool `json:"ready"`
	// Missing — отсутствующие таблицы
	Missing []string `json:"missing"`
}

// CheckSchema проверяет наличие обязательных таблиц через to_regclass.
func CheckSchema(ctx context.Context, pool *pgxpool.Pool) (*SchemaStatus, error) {
	status := &SchemaStatus{Missing: make([]string, 0)}
	for _, table := range RequiredTables {
		var exists bool
		if err := pool.QueryRow(ctx,
			`SELECT to_regclass('public.' || $1) IS NOT NULL`, table,
		).Scan(&exists); err != nil {
			return nil, fmt.Errorf("ошибка проверки таблицы %s: %w", table, err)
		}
		if !exists {
			status.Missing = append(status.Missing, table)
		}
	}
	status.Ready = len(status.Missing) == 0
	return status, nil
}

// ReadinessChecker — проверка готовности PostgreSQL для health endpoint.
// Реализует интерфейс handlers.ReadinessChecker.
type ReadinessChecker struct {
	pool *pgxpool.Pool
}

// NewReadinessChecker создаёт проверку готовности PostgreSQL.
func NewReadinessChecker(pool *pgxpool.Pool) *ReadinessChecker {
	return &ReadinessChecker{pool: pool}
}

// CheckReady проверяет подключение к PostgreSQL и наличие схемы.
// Возвращает статус ("ok", "fail") и сообщение.
func (c *ReadinessChecker) CheckReady() (status string, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := c.pool.Ping(ctx); err != nil {
		return "fail", fmt.Sprintf("PostgreSQL недоступен: %v", err)
	}
	schema, err := CheckSchema(ctx, c.pool)
	if err != nil {
		return "fail", err.Error()
	}
	if !schema.Ready {
		return "fail", "отсутствуют таблицы: " + strings.Join(schema.Missing, ", ")
	}
	return "ok", "подключение активно"
}

// CheckSchema проверяет наличие таблиц в базе, к которой подключена проверка.
func (c *ReadinessChecker) CheckSchema(ctx context.Context) (*SchemaStatus, error) {
	return CheckSchema(ctx, c.pool)
}
