// Точка входа SnapCal Store — слой хранения и кэширования трекера питания.
// Загружает конфигурацию, выбирает бэкенд (локальное хранилище устройства
// или PostgreSQL), собирает кэш и сервисный слой, запускает фоновую
// архивацию (локальный режим) или topologymetrics (удалённый режим),
// HTTP-сервер и graceful shutdown.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/vexlee/SnapCalAI-sub000/internal/api/handlers"
	"github.com/vexlee/SnapCalAI-sub000/internal/api/middleware"
	"github.com/vexlee/SnapCalAI-sub000/internal/cache"
	"github.com/vexlee/SnapCalAI-sub000/internal/config"
	"github.com/vexlee/SnapCalAI-sub000/internal/database"
	"github.com/vexlee/SnapCalAI-sub000/internal/identity"
	"github.com/vexlee/SnapCalAI-sub000/internal/localstore"
	"github.com/vexlee/SnapCalAI-sub000/internal/server"
	"github.com/vexlee/SnapCalAI-sub000/internal/service"
	"github.com/vexlee/SnapCalAI-sub000/internal/store"
)

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("SnapCal Store запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("backend", string(cfg.Backend)),
	)

	// 3. Кэш чтения
	c, err := cache.New(cfg.CacheMaxEntries, cache.WithDefaultTTL(cfg.CacheTTL))
	if err != nil {
		logger.Error("Ошибка создания кэша", slog.String("error", err.Error()))
		os.Exit(1)
	}
	ttl := service.TTLs{
		Default: cfg.CacheTTL,
		Image:   cfg.CacheImageTTL,
		Profile: cfg.CacheProfileTTL,
		Date:    cfg.CacheDateTTL,
	}

	ctx := context.Background()
	var (
		active  store.RecordStore
		local   *store.LocalRecordStore
		remote  store.RecordStore
		checker handlers.ReadinessChecker
		schema  handlers.SchemaChecker
		auth    func(http.Handler) http.Handler
	)

	// 4. Локальное хранилище. В удалённом режиме открывается только если
	// на устройстве остались данные для миграции.
	if !cfg.IsRemote() || fileExists(cfg.LocalDBPath) {
		kv, err := localstore.Open(cfg.LocalDBPath, cfg.LocalQuotaBytes)
		if err != nil {
			logger.Error("Ошибка открытия локального хранилища",
				slog.String("path", cfg.LocalDBPath),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
		defer kv.Close()
		local = store.NewLocalRecordStore(kv)
		if !cfg.IsRemote() {
			checker = kv
		}
		logger.Info("Локальное хранилище открыто",
			slog.String("path", cfg.LocalDBPath),
			slog.Int64("quota_bytes", kv.Quota()),
		)
	}

	var dephealthSvc *service.DephealthService
	if cfg.IsRemote() {
		// 5. Миграции схемы и подключение к PostgreSQL
		logger.Info("Применение миграций БД...")
		if err := database.Migrate(cfg, logger); err != nil {
			logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
			os.Exit(1)
		}
		pool, err := database.Connect(ctx, cfg, logger)
		if err != nil {
			logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer pool.Close()

		pgChecker := database.NewReadinessChecker(pool)
		checker, schema = pgChecker, pgChecker
		remote = store.NewRemoteRecordStore(pool, cfg.RemoteListLimit)
		active = remote

		// 5.1 JWT middleware: sub токена — владелец записей
		jwtAuth, err := middleware.NewJWTAuth(middleware.JWTAuthConfig{
			JWKSURL:         cfg.JWKSUrl,
			ClientTimeout:   cfg.JWKSClientTimeout,
			RefreshInterval: cfg.JWKSRefreshInterval,
			JWTLeeway:       cfg.JWTLeeway,
		}, logger)
		if err != nil {
			logger.Error("Ошибка создания JWT middleware", slog.String("error", err.Error()))
			os.Exit(1)
		}
		auth = jwtAuth.Middleware()
		logger.Info("JWT middleware инициализирован", slog.String("jwks_url", cfg.JWKSUrl))

		// 5.2 topologymetrics — мониторинг PostgreSQL через существующий пул
		pgDB := stdlib.OpenDBFromPool(pool)
		defer pgDB.Close()

		dephealthSvc, err = service.NewDephealthService(service.DephealthParams{
			ServiceID:     "snapcal-store",
			Group:         cfg.DephealthGroup,
			DepName:       cfg.DephealthDepName,
			DB:            pgDB,
			ConnURL:       cfg.DatabaseURL(),
			CheckInterval: cfg.DephealthCheckInterval,
		}, logger, nil)
		if err != nil {
			logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
				slog.String("error", err.Error()),
			)
		} else if startErr := dephealthSvc.Start(ctx); startErr != nil {
			logger.Warn("Ошибка запуска topologymetrics", slog.String("error", startErr.Error()))
			dephealthSvc = nil
		} else {
			logger.Info("topologymetrics запущен",
				slog.String("group", cfg.DephealthGroup),
				slog.String("check_interval", cfg.DephealthCheckInterval.String()),
			)
		}
	} else {
		active = local
		auth = middleware.StaticSubject(cfg.LocalUserID)
	}

	// 6. Сервисный слой. Владелец записей всегда берётся из контекста
	// запроса: его кладёт JWT middleware или StaticSubject.
	ids := identity.FromContext{}
	archiveSvc := service.NewArchiveService(active, c, ids, cfg.RetentionDays, cfg.Location, logger)

	var migrationLocal service.LocalSource
	if local != nil {
		migrationLocal = local
	}
	svc := handlers.Services{
		Meals: service.NewMealService(active, c, ids, service.MealServiceConfig{
			TTL:           ttl,
			Location:      cfg.Location,
			MaxImageBytes: cfg.MaxImageBytes,
		}, logger),
		Aggregates: service.NewAggregateService(active, c, ids, ttl, logger),
		Profile:    service.NewProfileService(active, c, ids, ttl, logger),
		Archive:    archiveSvc,
		Migration: service.NewMigrationService(
			migrationLocal, remote, c, ids,
			cfg.MigrationBatchSize, cfg.LocalUserID, cfg.MigrationOwner,
			logger,
		),
		Schema: schema,
	}

	// 7. Фоновая архивация: в локальном режиме владелец один и известен заранее.
	// В удалённом режиме проход запускается хуком начала сессии.
	if !cfg.IsRemote() {
		archiveSvc.Start(ctx, cfg.LocalUserID, cfg.ArchiveInterval)
		defer archiveSvc.Stop()
	}

	// 8. HTTP-сервер
	backend := string(cfg.Backend)
	apiHandler := handlers.NewAPIHandler(handlers.NewHealthHandler(backend, checker), svc, logger)
	srv := server.New(cfg, logger, apiHandler, auth,
		middleware.RequestLogger(logger),
		middleware.MetricsMiddleware(),
	)

	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		if dephealthSvc != nil {
			dephealthSvc.Stop()
		}
		os.Exit(1)
	}

	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}
	logger.Info("SnapCal Store остановлен")
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return !errors.Is(err, os.ErrNotExist)
}
