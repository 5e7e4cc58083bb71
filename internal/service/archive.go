// archive.go — политика архивации записей о питании.
//
// Записи, календарная дата которых строго старше горизонта хранения
// (RetentionDays до «сегодня»), сворачиваются в дневной rollup:
//  1. Upsert DailyAggregate (user, date) с суммами по оставшимся записям
//  2. Удаление сырых записей за (user, date)
//
// Порядок всегда upsert → delete. Ошибка по одной дате логируется и не
// прерывает обработку остальных. Вызывающему ошибки не возвращаются.
//
// Запускается хуком начала сессии (не чаще раза в сутки на пользователя)
// и, в локальном режиме, фоновым тикером.
package service

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vexlee/SnapCalAI-sub000/internal/cache"
	"github.com/vexlee/SnapCalAI-sub000/internal/domain/model"
	"github.com/vexlee/SnapCalAI-sub000/internal/identity"
	"github.com/vexlee/SnapCalAI-sub000/internal/store"
)

// DefaultRetentionDays — горизонт хранения сырых записей.
const DefaultRetentionDays = 30

// Prometheus метрики архивации
var (
	archiveRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sc_archive_runs_total",
		Help: "Общее количество запусков архивации",
	})

	archiveDatesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sc_archive_dates_archived_total",
		Help: "Общее количество дат, свёрнутых в rollup",
	})

	archiveMealsDeletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sc_archive_meals_deleted_total",
		Help: "Общее количество сырых записей, удалённых архивацией",
	})

	archiveErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sc_archive_errors_total",
		Help: "Общее количество ошибок архивации (по датам)",
	})

	archiveDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sc_archive_duration_seconds",
		Help:    "Длительность архивации в секундах",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
	})
)

// ArchiveResult — результат одного прохода архивации.
type ArchiveResult struct {
	// Cutoff — первая дата, не подлежащая архивации
	Cutoff string `json:"cutoff"`
	// ArchivedDates — даты, для которых сохранён rollup
	ArchivedDates []string `json:"archivedDates"`
	// DeletedMeals — количество удалённых сырых записей
	DeletedMeals int `json:"deletedMeals"`
	// Errors — количество ошибок
	Errors int `json:"errors"`
	// Duration — длительность выполнения
	Duration time.Duration `json:"duration"`
}

// ArchiveService — сервис архивации старых записей.
type ArchiveService struct {
	store         store.RecordStore
	cache         *cache.Cache
	ids           identity.Provider
	retentionDays int
	loc           *time.Location
	now           func() time.Time
	logger        *slog.Logger

	mu      sync.Mutex // защита от параллельного запуска RunOnce
	lastRun map[string]string
	cancel  context.CancelFunc
}

// NewArchiveService создаёт сервис архивации.
// retentionDays <= 0 означает DefaultRetentionDays.
func NewArchiveService(
	st store.RecordStore,
	c *cache.Cache,
	ids identity.Provider,
	retentionDays int,
	loc *time.Location,
	logger *slog.Logger,
) *ArchiveService {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	if loc == nil {
		loc = time.Local
	}
	return &ArchiveService{
		store:         st,
		cache:         c,
		ids:           ids,
		retentionDays: retentionDays,
		loc:           loc,
		now:           time.Now,
		logger:        logger.With(slog.String("component", "archive")),
		lastRun:       make(map[string]string),
	}
}

// OnSessionStart — хук начала сессии текущего пользователя.
// Проход выполняется не чаще раза в календарные сутки; если сегодня он уже
// прошёл без ошибок, возвращается nil-результат.
func (a *ArchiveService) OnSessionStart(ctx context.Context) (*ArchiveResult, error) {
	userID, err := a.ids.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}

	today := a.now().In(a.loc).Format(model.DateLayout)
	a.mu.Lock()
	done := a.lastRun[userID] == today
	a.mu.Unlock()
	if done {
		a.logger.Debug("Архивация уже выполнялась сегодня",
			slog.String("user_id", userID),
		)
		return nil, nil
	}

	result := a.RunOnce(ctx, userID)
	if result.Errors == 0 {
		a.mu.Lock()
		a.lastRun[userID] = today
		a.mu.Unlock()
	}
	return result, nil
}

// Start запускает фоновую архивацию для фиксированного пользователя
// (локальный режим). Первый проход — сразу после старта.
func (a *ArchiveService) Start(ctx context.Context, userID string, interval time.Duration) {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	go func() {
		a.RunOnce(runCtx, userID)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				a.RunOnce(runCtx, userID)
			}
		}
	}()

	a.logger.Info("Фоновая архивация запущена",
		slog.String("user_id", userID),
		slog.String("interval", interval.String()),
	)
}

// Stop останавливает фоновую архивацию.
func (a *ArchiveService) Stop() {
	if a.cancel != nil {
		a.cancel()
		a.logger.Info("Фоновая архивация остановлена")
	}
}

// RunOnce выполняет один проход архивации для пользователя.
// «Сегодня» вычисляется один раз в начале прохода.
func (a *ArchiveService) RunOnce(ctx context.Context, userID string) *ArchiveResult {
	a.mu.Lock()
	defer a.mu.Unlock()

	start := time.Now()
	cutoff := a.now().In(a.loc).AddDate(0, 0, -a.retentionDays).Format(model.DateLayout)
	result := &ArchiveResult{Cutoff: cutoff, ArchivedDates: []string{}}

	defer func() {
		result.Duration = time.Since(start)
		archiveRunsTotal.Inc()
		archiveDatesTotal.Add(float64(len(result.ArchivedDates)))
		archiveMealsDeletedTotal.Add(float64(result.DeletedMeals))
		archiveErrorsTotal.Add(float64(result.Errors))
		archiveDurationSeconds.Observe(result.Duration.Seconds())
	}()

	meals, err := a.store.ListMeals(ctx, userID, store.MealQuery{
		Columns: store.ColumnsTotals,
		Before:  cutoff,
	})
	if err != nil {
		a.logger.Error("Архивация: ошибка выборки записей",
			slog.String("user_id", userID),
			slog.String("cutoff", cutoff),
			slog.String("error", err.Error()),
		)
		result.Errors++
		return result
	}
	if len(meals) == 0 {
		a.logger.Debug("Архивация: нет записей старше горизонта",
			slog.String("user_id", userID),
			slog.String("cutoff", cutoff),
		)
		return result
	}

	byDate := model.SumByDate(userID, meals)
	dates := make([]string, 0, len(byDate))
	for date := range byDate {
		dates = append(dates, date)
	}
	sort.Strings(dates)

	for _, date := range dates {
		deleted, err := a.archiveDate(ctx, byDate[date])
		if err != nil {
			a.logger.Error("Архивация: ошибка обработки даты",
				slog.String("user_id", userID),
				slog.String("date", date),
				slog.String("error", err.Error()),
			)
			result.Errors++
		}
		if deleted >= 0 {
			result.ArchivedDates = append(result.ArchivedDates, date)
			result.DeletedMeals += deleted
		}
	}

	a.cache.InvalidateNamespace(nsMeals, userID)

	a.logger.Info("Архивация завершена",
		slog.String("user_id", userID),
		slog.String("cutoff", cutoff),
		slog.Int("dates", len(result.ArchivedDates)),
		slog.Int("deleted", result.DeletedMeals),
		slog.Int("errors", result.Errors),
	)
	return result
}

// archiveDate сохраняет rollup и удаляет сырые записи за дату.
// Возвращает -1, если rollup не сохранён.
func (a *ArchiveService) archiveDate(ctx context.Context, agg *model.DailyAggregate) (int, error) {
	if err := a.store.UpsertAggregate(ctx, agg); err != nil {
		return -1, err
	}
	deleted, err := a.store.DeleteMealsForDate(ctx, agg.UserID, agg.Date)
	if err != nil {
		return 0, err
	}
	a.logger.Debug("Архивация: дата свёрнута",
		slog.String("user_id", agg.UserID),
		slog.String("date", agg.Date),
		slog.Float64("calories", agg.TotalCalories),
		slog.Int("deleted", deleted),
	)
	return deleted, nil
}
