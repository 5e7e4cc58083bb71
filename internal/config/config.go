// Пакет config — загрузка и валидация конфигурации SnapCal Store
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Backend — выбранный бэкенд хранения (читается один раз при старте).
type Backend string

const (
	// BackendLocal — только локальное хранилище устройства.
	BackendLocal Backend = "local"
	// BackendRemote — удалённая реляционная БД.
	BackendRemote Backend = "remote"
)

// Config содержит все параметры конфигурации SnapCal Store.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
	// Таймауты HTTP-сервера
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration

	// --- Бэкенд ---

	// Backend — local или remote
	Backend Backend
	// Путь к файлу локального хранилища
	LocalDBPath string
	// Ёмкость локального хранилища в байтах
	LocalQuotaBytes int64
	// Идентификатор пользователя в локальном режиме
	LocalUserID string

	// --- PostgreSQL (remote) ---

	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string
	// Максимальное число соединений пула (0 — по умолчанию pgxpool)
	DBMaxConns int

	// --- JWT (remote) ---

	// URL JWKS endpoint провайдера идентификации
	JWKSUrl string
	// Таймаут HTTP-клиента для JWKS
	JWKSClientTimeout time.Duration
	// Интервал обновления JWKS
	JWKSRefreshInterval time.Duration
	// Допуск по времени при проверке exp/nbf
	JWTLeeway time.Duration
	// MigrationOwner — sub пользователя, которому разрешено перенести
	// локальное хранилище устройства (пусто — миграция недоступна)
	MigrationOwner string

	// --- Кэш ---

	// Максимальное число записей кэша
	CacheMaxEntries int
	// TTL по умолчанию
	CacheTTL time.Duration
	// TTL изображений
	CacheImageTTL time.Duration
	// TTL профиля, настроек и дневной цели
	CacheProfileTTL time.Duration
	// TTL выборок за дату и счётчиков
	CacheDateTTL time.Duration

	// --- Политики ---

	// Горизонт хранения сырых записей в днях
	RetentionDays int
	// Интервал фоновой архивации в локальном режиме
	ArchiveInterval time.Duration
	// Размер пачки при миграции
	MigrationBatchSize int
	// Ограничение выборки записей из удалённого бэкенда
	RemoteListLimit int
	// Максимальный размер изображения в байтах
	MaxImageBytes int
	// Часовой пояс для вычисления календарной даты записи
	Location *time.Location

	// --- Мониторинг зависимостей ---

	// Интервал проверки зависимостей topologymetrics
	DephealthCheckInterval time.Duration
	// Имя группы в метриках topologymetrics
	DephealthGroup string
	// Имя зависимости PostgreSQL в метриках topologymetrics
	DephealthDepName string
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// SC_PORT — порт HTTP-сервера (по умолчанию 8040)
	cfg.Port, err = getEnvInt("SC_PORT", 8040)
	if err != nil {
		return nil, fmt.Errorf("SC_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("SC_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	// SC_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("SC_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("SC_LOG_LEVEL: %w", err)
	}

	// SC_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("SC_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("SC_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	if cfg.HTTPReadTimeout, err = getEnvDuration("SC_HTTP_READ_TIMEOUT", 30*time.Second); err != nil {
		return nil, fmt.Errorf("SC_HTTP_READ_TIMEOUT: %w", err)
	}
	if cfg.HTTPWriteTimeout, err = getEnvDuration("SC_HTTP_WRITE_TIMEOUT", 60*time.Second); err != nil {
		return nil, fmt.Errorf("SC_HTTP_WRITE_TIMEOUT: %w", err)
	}
	if cfg.HTTPIdleTimeout, err = getEnvDuration("SC_HTTP_IDLE_TIMEOUT", 120*time.Second); err != nil {
		return nil, fmt.Errorf("SC_HTTP_IDLE_TIMEOUT: %w", err)
	}
	if cfg.ShutdownTimeout, err = getEnvDuration("SC_SHUTDOWN_TIMEOUT", 5*time.Second); err != nil {
		return nil, fmt.Errorf("SC_SHUTDOWN_TIMEOUT: %w", err)
	}

	// --- Бэкенд ---

	// SC_BACKEND — local или remote (по умолчанию local)
	cfg.Backend = Backend(strings.ToLower(getEnvDefault("SC_BACKEND", string(BackendLocal))))
	if cfg.Backend != BackendLocal && cfg.Backend != BackendRemote {
		return nil, fmt.Errorf("SC_BACKEND: недопустимое значение %q, допустимые: local, remote", cfg.Backend)
	}

	// SC_LOCAL_DB_PATH — файл локального хранилища
	cfg.LocalDBPath = getEnvDefault("SC_LOCAL_DB_PATH", "./data/snapcal-local.db")

	// SC_LOCAL_QUOTA_BYTES — ёмкость локального хранилища (по умолчанию 5 МБ)
	quota, err := getEnvInt("SC_LOCAL_QUOTA_BYTES", 5*1024*1024)
	if err != nil {
		return nil, fmt.Errorf("SC_LOCAL_QUOTA_BYTES: %w", err)
	}
	if quota < 1024 {
		return nil, fmt.Errorf("SC_LOCAL_QUOTA_BYTES: значение %d меньше минимального 1024", quota)
	}
	cfg.LocalQuotaBytes = int64(quota)

	// SC_LOCAL_USER_ID — владелец данных в локальном режиме
	cfg.LocalUserID = getEnvDefault("SC_LOCAL_USER_ID", "local-user")

	// --- PostgreSQL и JWT обязательны только в remote ---

	if cfg.Backend == BackendRemote {
		if err := loadRemote(cfg); err != nil {
			return nil, err
		}
	}

	// --- Кэш ---

	if cfg.CacheMaxEntries, err = getEnvInt("SC_CACHE_MAX_ENTRIES", 10000); err != nil {
		return nil, fmt.Errorf("SC_CACHE_MAX_ENTRIES: %w", err)
	}
	if cfg.CacheMaxEntries < 1 {
		return nil, fmt.Errorf("SC_CACHE_MAX_ENTRIES: значение %d должно быть положительным", cfg.CacheMaxEntries)
	}
	if cfg.CacheTTL, err = getEnvDuration("SC_CACHE_TTL", 5*time.Minute); err != nil {
		return nil, fmt.Errorf("SC_CACHE_TTL: %w", err)
	}
	if cfg.CacheImageTTL, err = getEnvDuration("SC_CACHE_IMAGE_TTL", 30*time.Minute); err != nil {
		return nil, fmt.Errorf("SC_CACHE_IMAGE_TTL: %w", err)
	}
	if cfg.CacheProfileTTL, err = getEnvDuration("SC_CACHE_PROFILE_TTL", 30*time.Minute); err != nil {
		return nil, fmt.Errorf("SC_CACHE_PROFILE_TTL: %w", err)
	}
	if cfg.CacheDateTTL, err = getEnvDuration("SC_CACHE_DATE_TTL", 2*time.Minute); err != nil {
		return nil, fmt.Errorf("SC_CACHE_DATE_TTL: %w", err)
	}

	// --- Политики ---

	// SC_RETENTION_DAYS — горизонт архивации (по умолчанию 30)
	if cfg.RetentionDays, err = getEnvInt("SC_RETENTION_DAYS", 30); err != nil {
		return nil, fmt.Errorf("SC_RETENTION_DAYS: %w", err)
	}
	if cfg.RetentionDays < 1 {
		return nil, fmt.Errorf("SC_RETENTION_DAYS: значение %d должно быть положительным", cfg.RetentionDays)
	}

	// SC_ARCHIVE_INTERVAL — период фоновой архивации (по умолчанию 1h)
	if cfg.ArchiveInterval, err = getEnvDuration("SC_ARCHIVE_INTERVAL", time.Hour); err != nil {
		return nil, fmt.Errorf("SC_ARCHIVE_INTERVAL: %w", err)
	}

	// SC_MIGRATION_BATCH_SIZE — размер пачки миграции (по умолчанию 5)
	if cfg.MigrationBatchSize, err = getEnvInt("SC_MIGRATION_BATCH_SIZE", 5); err != nil {
		return nil, fmt.Errorf("SC_MIGRATION_BATCH_SIZE: %w", err)
	}
	if cfg.MigrationBatchSize < 1 || cfg.MigrationBatchSize > 100 {
		return nil, fmt.Errorf("SC_MIGRATION_BATCH_SIZE: значение %d вне допустимого диапазона 1-100", cfg.MigrationBatchSize)
	}

	// SC_REMOTE_LIST_LIMIT — ограничение выборки (по умолчанию 200)
	if cfg.RemoteListLimit, err = getEnvInt("SC_REMOTE_LIST_LIMIT", 200); err != nil {
		return nil, fmt.Errorf("SC_REMOTE_LIST_LIMIT: %w", err)
	}
	if cfg.RemoteListLimit < 1 {
		return nil, fmt.Errorf("SC_REMOTE_LIST_LIMIT: значение %d должно быть положительным", cfg.RemoteListLimit)
	}

	// SC_MAX_IMAGE_BYTES — ограничение размера изображения (по умолчанию 1 МБ)
	if cfg.MaxImageBytes, err = getEnvInt("SC_MAX_IMAGE_BYTES", 1024*1024); err != nil {
		return nil, fmt.Errorf("SC_MAX_IMAGE_BYTES: %w", err)
	}

	// SC_TIMEZONE — часовой пояс пишущей стороны (по умолчанию Local)
	tz := getEnvDefault("SC_TIMEZONE", "Local")
	cfg.Location, err = time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("SC_TIMEZONE: неизвестный часовой пояс %q", tz)
	}

	// --- Мониторинг зависимостей ---

	if cfg.DephealthCheckInterval, err = getEnvDuration("SC_DEPHEALTH_CHECK_INTERVAL", 15*time.Second); err != nil {
		return nil, fmt.Errorf("SC_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}
	cfg.DephealthGroup = getEnvDefault("SC_DEPHEALTH_GROUP", "snapcal")
	cfg.DephealthDepName = getEnvDefault("SC_DEPHEALTH_DEP_NAME", "postgres")

	return cfg, nil
}

// loadRemote загружает параметры PostgreSQL и JWT.
func loadRemote(cfg *Config) error {
	var err error

	// SC_DB_HOST — обязательный
	if cfg.DBHost, err = getEnvRequired("SC_DB_HOST"); err != nil {
		return err
	}
	if cfg.DBPort, err = getEnvInt("SC_DB_PORT", 5432); err != nil {
		return fmt.Errorf("SC_DB_PORT: %w", err)
	}
	if cfg.DBName, err = getEnvRequired("SC_DB_NAME"); err != nil {
		return err
	}
	if cfg.DBUser, err = getEnvRequired("SC_DB_USER"); err != nil {
		return err
	}
	if cfg.DBPassword, err = getEnvRequired("SC_DB_PASSWORD"); err != nil {
		return err
	}

	// SC_DB_SSL_MODE — режим SSL (по умолчанию disable)
	cfg.DBSSLMode = getEnvDefault("SC_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return fmt.Errorf("SC_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	if cfg.DBMaxConns, err = getEnvInt("SC_DB_MAX_CONNS", 0); err != nil {
		return fmt.Errorf("SC_DB_MAX_CONNS: %w", err)
	}

	// SC_JWKS_URL — обязательный
	if cfg.JWKSUrl, err = getEnvRequired("SC_JWKS_URL"); err != nil {
		return err
	}
	if cfg.JWKSClientTimeout, err = getEnvDuration("SC_JWKS_CLIENT_TIMEOUT", 10*time.Second); err != nil {
		return fmt.Errorf("SC_JWKS_CLIENT_TIMEOUT: %w", err)
	}
	if cfg.JWKSRefreshInterval, err = getEnvDuration("SC_JWKS_REFRESH_INTERVAL", 15*time.Second); err != nil {
		return fmt.Errorf("SC_JWKS_REFRESH_INTERVAL: %w", err)
	}
	if cfg.JWTLeeway, err = getEnvDuration("SC_JWT_LEEWAY", 5*time.Second); err != nil {
		return fmt.Errorf("SC_JWT_LEEWAY: %w", err)
	}

	// SC_MIGRATION_OWNER — владелец локальных данных устройства
	cfg.MigrationOwner = getEnvDefault("SC_MIGRATION_OWNER", "")
	return nil
}

// IsRemote сообщает, выбран ли удалённый бэкенд.
func (c *Config) IsRemote() bool {
	return c.Backend == BackendRemote
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	dsn := fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
	if c.DBMaxConns > 0 {
		dsn += fmt.Sprintf(" pool_max_conns=%d", c.DBMaxConns)
	}
	return dsn
}

// DatabaseURL возвращает URL PostgreSQL без учётных данных
// (для лейблов topologymetrics).
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%d/%s", c.DBHost, c.DBPort, c.DBName)
}

// MigrationURL возвращает URL для golang-migrate (схема pgx5).
func (c *Config) MigrationURL() string {
	return fmt.Sprintf(
		"pgx5://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
