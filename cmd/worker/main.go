package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zonia3000/regifair/internal/config"
	"github.com/zonia3000/regifair/internal/db"
	"github.com/zonia3000/regifair/internal/notifications"
	"github.com/zonia3000/regifair/internal/observability"
	"github.com/zonia3000/regifair/internal/queue"
	"github.com/zonia3000/regifair/internal/queue/redisclient"
	"github.com/zonia3000/regifair/internal/repo/postgres"
	"github.com/zonia3000/regifair/internal/worker"
)

func main() {
	cfg := config.Load()

	log := observability.NewLogger(cfg.Env)

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)

	defer stop()

	registry := prometheus.NewRegistry()
	prom := observability.NewProm(registry)

	pool, err := db.NewPool(cfg.DBURL)

	if err != nil {
		log.Error("db connect failed", "err", err)
		os.Exit(1)
	}

	defer pool.Close()

	redisCfg := redisclient.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}

	// separate clients: BRPOP holds its connection for the pop timeout
	redis := redisclient.NewBlocking(redisCfg, cfg.QueuePopTimeout)
	pingClient := redisclient.New(redisCfg)

	defer redis.Close()
	defer pingClient.Close()

	registrationsRepo := postgres.NewRegistrationsRepo(pool, prom)

	notifier := notifications.NewProtectedNotifier(
		notifications.NewLogNotifier(log),
		notifications.ProtectedNotifierConfig{},
	)

	w := queue.NewWorker(queue.WorkerConfig{
		PopTimeout: cfg.QueuePopTimeout,
	}, redis, notifier, prom, log)

	// health + metrics endpoint
	var shuttingDown atomic.Bool

	mux := http.NewServeMux()
	mux.Handle("/", worker.HealthMux(
		[]worker.ReadinessDeps{pool, pingClient},
		shuttingDown.Load,
	))
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	healthSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", getWorkerPort()),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := healthSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("health server failed", "err", err)
		}
	}()

	// expired registration sweeper
	go func() {
		ticker := time.NewTicker(cfg.AutoremoveInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed, err := registrationsRepo.PurgeExpired(ctx)

				if err != nil {
					log.Error("autoremove sweep failed", "err", err)
					continue
				}

				if removed > 0 {
					log.Info("autoremove sweep", "removed", removed)
				}
			}
		}
	}()

	log.Info("worker started")

	if err := w.Run(ctx); err != nil {
		log.Error("worker stopped with error", "err", err)
	}

	shuttingDown.Store(true)

	sctx, cancel := config.WithTimeout(5 * time.Second)
	defer cancel()

	_ = healthSrv.Shutdown(sctx)

	log.Info("worker shutdown complete")
}

func getWorkerPort() int {
	if v := os.Getenv("WORKER_PORT"); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil && port > 0 {
			return port
		}
	}
	return 8081
}
