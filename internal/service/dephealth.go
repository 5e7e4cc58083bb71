// dephealth.go — интеграция с topologymetrics SDK для мониторинга зависимостей.
//
// В удалённом режиме мониторится единственная зависимость:
//   - PostgreSQL — SQL checker через существующий pgxpool (connection pool mode, critical)
//
// Метрики доступны на /metrics вместе с остальными Prometheus-метриками:
//   - app_dependency_health — состояние зависимости (1 = ok, 0 = fail)
//   - app_dependency_latency_seconds — задержка проверки
package service

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/BigKAA/topologymetrics/sdk-go/dephealth"
	"github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/pgcheck"
	"github.com/prometheus/client_golang/prometheus"
)

// DephealthService — сервис мониторинга зависимостей через topologymetrics.
type DephealthService struct {
	dh     *dephealth.DepHealth
	logger *slog.Logger
}

// DephealthParams — параметры мониторинга PostgreSQL.
type DephealthParams struct {
	// ServiceID — имя вершины графа текущего приложения
	ServiceID string
	// Group — имя группы в метриках
	Group string
	// DepName — имя зависимости PostgreSQL
	DepName string
	// DB — *sql.DB, полученный из pgxpool через stdlib.OpenDBFromPool()
	DB *sql.DB
	// ConnURL — URL подключения (для лейблов, не для подключения)
	ConnURL string
	// CheckInterval — интервал проверки
	CheckInterval time.Duration
}

// NewDephealthService создаёт сервис мониторинга зависимостей.
// registerer == nil означает глобальный Prometheus registry.
func NewDephealthService(p DephealthParams, logger *slog.Logger, registerer prometheus.Registerer) (*DephealthService, error) {
	opts := []dephealth.Option{
		dephealth.WithLogger(logger),
		dephealth.AddDependency(p.DepName, dephealth.TypePostgres,
			pgcheck.New(pgcheck.WithDB(p.DB)),
			dephealth.FromURL(p.ConnURL),
			dephealth.CheckInterval(p.CheckInterval),
			dephealth.Critical(true),
		),
	}
	if registerer != nil {
		opts = append(opts, dephealth.WithRegisterer(registerer))
	}

	dh, err := dephealth.New(p.ServiceID, p.Group, opts...)
	if err != nil {
		return nil, err
	}

	return &DephealthService{
		dh:     dh,
		logger: logger.With(slog.String("component", "dephealth")),
	}, nil
}

// Start запускает периодическую проверку зависимостей.
func (ds *DephealthService) Start(ctx context.Context) error {
	ds.logger.Info("Мониторинг зависимостей запущен (PostgreSQL)")
	return ds.dh.Start(ctx)
}

// Stop останавливает мониторинг зависимостей.
func (ds *DephealthService) Stop() {
	ds.dh.Stop()
	ds.logger.Info("Мониторинг зависимостей остановлен")
}

// Health возвращает текущее состояние зависимостей.
func (ds *DephealthService) Health() map[string]bool {
	return ds.dh.Health()
}
