package app

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

// startOpsServer запускает служебный HTTP-сервер процесса: /metrics для
// Prometheus, /healthz с проверками компонентов и /livez.
func startOpsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler http.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/livez", addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("ops server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// awaitShutdown блокируется до отмены ctx или завершения API-сервера.
// Ошибка сервера сначала отменяет контекст фоновых воркеров и только потом
// ждёт wg: воркеры выходят исключительно по ctx.Done().
func awaitShutdown(ctx context.Context, cancel context.CancelFunc, logger *log.Entry, apiSrv, opsSrv *http.Server, wg *sync.WaitGroup, errCh <-chan error) error {
	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, завершаем работу")
		shutdownHTTP(apiSrv, logger)
		wg.Wait()
		shutdownHTTP(opsSrv, logger)
		return ctx.Err()
	case err := <-errCh:
		cancel()
		wg.Wait()
		shutdownHTTP(opsSrv, logger)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}
