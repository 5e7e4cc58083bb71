// Пакет server — HTTP-сервер SnapCal Store с graceful shutdown.
// Без TLS — TLS termination на API Gateway.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"

	"github.com/vexlee/SnapCalAI-sub000/internal/api/handlers"
	"github.com/vexlee/SnapCalAI-sub000/internal/config"
)

// Server — HTTP-сервер SnapCal Store.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт HTTP-сервер с настроенными routes и middleware.
// auth помещает идентификатор пользователя в контекст: JWT в удалённом
// режиме, фиксированный владелец устройства в локальном. Применяется
// только к /api/v1; health и metrics остаются публичными.
// middlewares (логирование, метрики) применяются ко всем запросам в порядке среза.
func New(
	cfg *config.Config,
	logger *slog.Logger,
	handler *handlers.APIHandler,
	auth func(http.Handler) http.Handler,
	middlewares ...func(http.Handler) http.Handler,
) *Server {
	router := chi.NewRouter()
	for _, mw := range middlewares {
		router.Use(mw)
	}

	handler.RegisterPublic(router)
	router.Route("/api/v1", func(r chi.Router) {
		r.Use(auth)
		handler.RegisterAPI(r)
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// Handler возвращает корневой обработчик сервера.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM).
// При получении сигнала выполняется graceful shutdown.
func (s *Server) Run() error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)

		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
