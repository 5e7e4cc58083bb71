// migration.go — перенос локальных данных в удалённый бэкенд.
//
// Запускается только явным действием пользователя после переключения на
// удалённый бэкенд. Порядок:
//
//	Idle → Uploading (пачка i из N) → UploadingAggregates → UploadingSettings
//	     → UploadingProfile → ClearingLocal → Done
//
// Пачки записей отправляются строго последовательно. Любой сбой до
// ClearingLocal переводит миграцию в Failed и оставляет локальные данные
// нетронутыми, поэтому повторный запуск безопасен.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vexlee/SnapCalAI-sub000/internal/cache"
	"github.com/vexlee/SnapCalAI-sub000/internal/domain/model"
	"github.com/vexlee/SnapCalAI-sub000/internal/identity"
	"github.com/vexlee/SnapCalAI-sub000/internal/store"
)

// DefaultMigrationBatchSize — количество записей в одной пачке.
const DefaultMigrationBatchSize = 5

// Prometheus метрики миграции
var (
	migrationRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sc_migration_runs_total",
		Help: "Общее количество запусков миграции по результату",
	}, []string{"result"})

	migrationRecordsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sc_migration_records_uploaded_total",
		Help: "Общее количество записей, загруженных в удалённый бэкенд",
	})
)

// MigrationState — состояние миграции.
type MigrationState string

const (
	MigrationIdle                MigrationState = "idle"
	MigrationUploading           MigrationState = "uploading"
	MigrationUploadingAggregates MigrationState = "uploading_aggregates"
	MigrationUploadingSettings   MigrationState = "uploading_settings"
	MigrationUploadingProfile    MigrationState = "uploading_profile"
	MigrationClearingLocal       MigrationState = "clearing_local"
	MigrationDone                MigrationState = "done"
	MigrationFailed              MigrationState = "failed"
)

// active сообщает, выполняется ли миграция в этом состоянии.
func (s MigrationState) active() bool {
	switch s {
	case MigrationUploading, MigrationUploadingAggregates, MigrationUploadingSettings,
		MigrationUploadingProfile, MigrationClearingLocal:
		return true
	}
	return false
}

// MigrationStatus — наблюдаемое состояние миграции.
type MigrationStatus struct {
	State MigrationState `json:"state"`
	// Batch — номер текущей пачки (с 1), Batches — общее число пачек
	Batch   int `json:"batch"`
	Batches int `json:"batches"`
	// Uploaded — загружено записей, Total — всего локальных записей
	Uploaded int `json:"uploaded"`
	Total    int `json:"total"`
	// FailedAt — номер (с 1) первой записи пачки, на которой произошёл сбой
	FailedAt int `json:"failedAt,omitempty"`
	// Error — текст ошибки для состояния Failed
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"startedAt,omitzero"`
	FinishedAt time.Time `json:"finishedAt,omitzero"`
}

// MigrationError — сбой миграции с указанием этапа и места.
type MigrationError struct {
	Stage MigrationState
	// Batch — номер пачки (с 1), только для этапа Uploading
	Batch int
	// RecordIndex — номер (с 1) первой записи сбойной пачки
	RecordIndex int
	Err         error
}

func (e *MigrationError) Error() string {
	if e.Stage == MigrationUploading {
		return fmt.Sprintf("миграция: сбой пачки %d (с записи %d): %v", e.Batch, e.RecordIndex, e.Err)
	}
	return fmt.Sprintf("миграция: сбой на этапе %s: %v", e.Stage, e.Err)
}

func (e *MigrationError) Unwrap() error {
	return e.Err
}

// LocalSource — локальное хранилище, из которого переносятся данные.
type LocalSource interface {
	HasData(ctx context.Context) (bool, error)
	AllMeals(ctx context.Context) ([]*model.Meal, error)
	AllAggregates(ctx context.Context) ([]*model.DailyAggregate, error)
	GetSettings(ctx context.Context, userID string) (*model.Settings, error)
	GetProfile(ctx context.Context, userID string) (*model.Profile, error)
	Clear(ctx context.Context) error
}

var _ LocalSource = (*store.LocalRecordStore)(nil)

// MigrationService — перенос локальных данных в удалённый бэкенд.
type MigrationService struct {
	local       LocalSource
	remote      store.RecordStore
	cache       *cache.Cache
	ids         identity.Provider
	batchSize   int
	localUserID string
	owner       string
	logger      *slog.Logger

	mu     sync.Mutex
	status MigrationStatus
}

// NewMigrationService создаёт сервис миграции.
// remote == nil означает, что выбран локальный бэкенд и миграция недоступна.
// local == nil означает, что локального хранилища нет.
// owner — единственный удалённый пользователь, которому разрешено забрать
// локальные данные устройства; пустой owner запрещает миграцию всем.
func NewMigrationService(
	local LocalSource,
	remote store.RecordStore,
	c *cache.Cache,
	ids identity.Provider,
	batchSize int,
	localUserID string,
	owner string,
	logger *slog.Logger,
) *MigrationService {
	if batchSize <= 0 {
		batchSize = DefaultMigrationBatchSize
	}
	return &MigrationService{
		local:       local,
		remote:      remote,
		cache:       c,
		ids:         ids,
		batchSize:   batchSize,
		localUserID: localUserID,
		owner:       owner,
		logger:      logger.With(slog.String("component", "migration")),
		status:      MigrationStatus{State: MigrationIdle},
	}
}

// HasLocalData сообщает, есть ли локальные данные для переноса.
func (m *MigrationService) HasLocalData(ctx context.Context) (bool, error) {
	if m.local == nil {
		return false, nil
	}
	return m.local.HasData(ctx)
}

// Status возвращает копию текущего состояния миграции.
func (m *MigrationService) Status() MigrationStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Migrate переносит все локальные данные в удалённый бэкенд текущего
// пользователя и очищает локальное хранилище после полного успеха.
func (m *MigrationService) Migrate(ctx context.Context) (MigrationStatus, error) {
	if m.remote == nil || m.local == nil {
		return m.Status(), fmt.Errorf("%w: удалённый бэкенд не выбран", ErrMigrationConfig)
	}
	if m.owner == "" {
		return m.Status(), fmt.Errorf("%w: владелец локальных данных не задан", ErrMigrationConfig)
	}
	userID, err := m.ids.CurrentUser(ctx)
	if err != nil {
		return m.Status(), fmt.Errorf("%w: %w", ErrMigrationConfig, err)
	}
	if userID != m.owner {
		m.logger.Warn("Отказ в миграции: пользователь не владеет локальными данными",
			slog.String("user_id", userID),
		)
		return m.Status(), ErrMigrationForbidden
	}

	m.mu.Lock()
	if m.status.State.active() {
		m.mu.Unlock()
		return m.Status(), ErrMigrationRunning
	}
	m.status = MigrationStatus{State: MigrationUploading, StartedAt: time.Now().UTC()}
	m.mu.Unlock()

	m.logger.Info("Миграция начата", slog.String("user_id", userID))

	if err := m.run(ctx, userID); err != nil {
		var me *MigrationError
		if !errors.As(err, &me) {
			me = &MigrationError{Stage: m.Status().State, Err: err}
		}
		m.update(func(s *MigrationStatus) {
			s.State = MigrationFailed
			s.FailedAt = me.RecordIndex
			s.Error = me.Error()
			s.FinishedAt = time.Now().UTC()
		})
		migrationRunsTotal.WithLabelValues("failed").Inc()
		m.logger.Error("Миграция прервана, локальные данные сохранены",
			slog.String("user_id", userID),
			slog.String("stage", string(me.Stage)),
			slog.Int("failed_at", me.RecordIndex),
			slog.String("error", me.Err.Error()),
		)
		return m.Status(), me
	}

	m.update(func(s *MigrationStatus) {
		s.State = MigrationDone
		s.FinishedAt = time.Now().UTC()
	})
	for _, ns := range []string{nsMeals, nsSettings, nsProfile} {
		m.cache.InvalidateNamespace(ns, userID)
	}
	migrationRunsTotal.WithLabelValues("done").Inc()

	st := m.Status()
	m.logger.Info("Миграция завершена",
		slog.String("user_id", userID),
		slog.Int("records", st.Uploaded),
		slog.Int("batches", st.Batches),
	)
	return st, nil
}

func (m *MigrationService) run(ctx context.Context, userID string) error {
	meals, err := m.local.AllMeals(ctx)
	if err != nil {
		return &MigrationError{Stage: MigrationUploading, Err: err}
	}
	batches := (len(meals) + m.batchSize - 1) / m.batchSize
	m.update(func(s *MigrationStatus) {
		s.State = MigrationUploading
		s.Total = len(meals)
		s.Batches = batches
	})

	for i := 0; i < batches; i++ {
		lo := i * m.batchSize
		hi := min(lo+m.batchSize, len(meals))
		batch := make([]*model.Meal, 0, hi-lo)
		for _, meal := range meals[lo:hi] {
			c := meal.Clone()
			c.UserID = userID
			batch = append(batch, c)
		}

		m.update(func(s *MigrationStatus) { s.Batch = i + 1 })
		if err := m.remote.SaveMeals(ctx, batch); err != nil {
			return &MigrationError{Stage: MigrationUploading, Batch: i + 1, RecordIndex: lo + 1, Err: err}
		}
		m.update(func(s *MigrationStatus) { s.Uploaded = hi })
		migrationRecordsTotal.Add(float64(len(batch)))

		m.logger.Debug("Миграция: пачка загружена",
			slog.Int("batch", i+1),
			slog.Int("of", batches),
			slog.Int("records", len(batch)),
		)
	}

	m.update(func(s *MigrationStatus) { s.State = MigrationUploadingAggregates })
	aggs, err := m.local.AllAggregates(ctx)
	if err != nil {
		return &MigrationError{Stage: MigrationUploadingAggregates, Err: err}
	}
	if len(aggs) > 0 {
		restamped := make([]*model.DailyAggregate, 0, len(aggs))
		for _, a := range aggs {
			c := *a
			c.UserID = userID
			restamped = append(restamped, &c)
		}
		if err := m.remote.UpsertAggregates(ctx, restamped); err != nil {
			return &MigrationError{Stage: MigrationUploadingAggregates, Err: err}
		}
	}

	m.update(func(s *MigrationStatus) { s.State = MigrationUploadingSettings })
	settings, err := m.local.GetSettings(ctx, m.localUserID)
	if err != nil {
		return &MigrationError{Stage: MigrationUploadingSettings, Err: err}
	}
	if settings != nil {
		settings.UserID = userID
		if err := m.remote.UpsertSettings(ctx, settings); err != nil {
			return &MigrationError{Stage: MigrationUploadingSettings, Err: err}
		}
	}

	m.update(func(s *MigrationStatus) { s.State = MigrationUploadingProfile })
	profile, err := m.local.GetProfile(ctx, m.localUserID)
	if err != nil {
		return &MigrationError{Stage: MigrationUploadingProfile, Err: err}
	}
	if profile != nil {
		profile.UserID = userID
		if err := m.remote.UpsertProfile(ctx, profile); err != nil {
			return &MigrationError{Stage: MigrationUploadingProfile, Err: err}
		}
	}

	m.update(func(s *MigrationStatus) { s.State = MigrationClearingLocal })
	if err := m.local.Clear(ctx); err != nil {
		return &MigrationError{Stage: MigrationClearingLocal, Err: err}
	}
	return nil
}

func (m *MigrationService) update(fn func(*MigrationStatus)) {
	m.mu.Lock()
	fn(&m.status)
	m.mu.Unlock()
}
