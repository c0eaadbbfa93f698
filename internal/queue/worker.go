package queue

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/zonia3000/regifair/internal/notifications"
	"github.com/zonia3000/regifair/internal/observability"
	"github.com/zonia3000/regifair/internal/queue/redisclient"
)

type WorkerConfig struct {
	PopTimeout    time.Duration // how long each BRPOP blocks
	DepthInterval time.Duration // how often to sample queue depth
}

// Worker drains the notification list and hands each payload to the
// notifier. Payloads that fail to deliver go to the dead list instead of
// being retried forever.
type Worker struct {
	cfg      WorkerConfig
	rdb      *redis.Client
	notifier notifications.Notifier
	prom     *observability.Prom
	log      *slog.Logger
}

func NewWorker(cfg WorkerConfig, c *redisclient.Client, notifier notifications.Notifier, prom *observability.Prom, log *slog.Logger) *Worker {
	if cfg.PopTimeout <= 0 {
		cfg.PopTimeout = 5 * time.Second
	}

	if cfg.DepthInterval <= 0 {
		cfg.DepthInterval = 15 * time.Second
	}

	return &Worker{
		cfg:      cfg,
		rdb:      c.Raw(),
		notifier: notifier,
		prom:     prom,
		log:      log,
	}
}

func (w *Worker) Run(ctx context.Context) error {
	depthTicker := time.NewTicker(w.cfg.DepthInterval)
	defer depthTicker.Stop()

	popFailures := 0

	for {
		select {
		case <-ctx.Done():
			w.log.Info("queue worker received shutdown signal")
			return nil

		case <-depthTicker.C:
			w.sampleDepth(ctx)

		default:
			res, err := w.rdb.BRPop(ctx, w.cfg.PopTimeout, notificationsList).Result()

			if errors.Is(err, redis.Nil) {
				popFailures = 0
				continue
			}

			if err != nil {
				if ctx.Err() != nil {
					return nil
				}

				w.log.Error("queue pop failed", "error", err)
				popFailures++

				select {
				case <-time.After(backoff(popFailures)):
				case <-ctx.Done():
					return nil
				}
				continue
			}

			popFailures = 0
			w.processOne(ctx, res[1])
		}
	}
}

// processOne delivers a single payload. res comes from BRPOP as
// [key, value].
func (w *Worker) processOne(ctx context.Context, raw string) {
	var n notifications.Notification

	if err := json.Unmarshal([]byte(raw), &n); err != nil {
		w.log.Error("undecodable notification payload", "error", err)
		w.deadLetter(ctx, raw)
		return
	}

	start := time.Now()
	err := w.notifier.Send(ctx, n)
	w.prom.ObserveNotify(string(n.Kind), start, err)

	if err != nil {
		w.log.Warn("notification delivery failed",
			"kind", n.Kind,
			"event", n.EventID,
			"registration", n.RegistrationID,
			"error", err,
		)
		w.deadLetter(ctx, raw)
		return
	}

	w.log.Debug("notification delivered", "kind", n.Kind, "event", n.EventID)
}

func (w *Worker) deadLetter(ctx context.Context, raw string) {
	if err := w.rdb.LPush(ctx, deadList, raw).Err(); err != nil {
		w.log.Error("dead-letter push failed", "error", err)
	}
}

func (w *Worker) sampleDepth(ctx context.Context) {
	depth, err := w.rdb.LLen(ctx, notificationsList).Result()

	if err != nil {
		return
	}

	w.prom.QueueDepthLastKnown.Set(float64(depth))
}

func backoff(attempt int) time.Duration {
	base := 500 * time.Millisecond
	capDelay := 30 * time.Second

	delay := time.Duration(float64(base) * math.Pow(2, float64(attempt-1)))

	if delay > capDelay {
		delay = capDelay
	}

	// small jitter (0-250ms) to avoid thundering herd
	delay += time.Duration(rand.Intn(250)) * time.Millisecond
	return delay
}
