// Command dwelltrack runs the dwell-time tracking engine: the ingress
// HTTP surface, the per-partition Dwell Engine consumer, the Timeout
// Sweeper, and the read-only Query API, all wired against a shared
// Redis-backed State Store and Kafka-backed Ingress Queue.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"dwelltrack/internal/auditsink"
	"dwelltrack/internal/config"
	"dwelltrack/internal/engine"
	"dwelltrack/internal/feedback"
	"dwelltrack/internal/httpapi"
	"dwelltrack/internal/metrics"
	"dwelltrack/internal/normalizer"
	"dwelltrack/internal/queue"
	"dwelltrack/internal/store"
	"dwelltrack/internal/sweeper"
)

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Timestamp().Logger()

	if err := run(log); err != nil {
		log.Fatal().Err(err).Msg("dwelltrack exited")
	}
}

func run(log zerolog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	roster, err := config.LoadRoster(cfg.RosterPath)
	if err != nil {
		return err
	}

	st, err := store.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.StateTTL)
	if err != nil {
		return err
	}
	defer st.Close()

	var sink *auditsink.Sink
	if cfg.PostgresDSN != "" {
		sink, err = auditsink.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			log.Warn().Err(err).Msg("postgres audit mirror unavailable; continuing without it")
		} else {
			defer sink.Close()
		}
	}

	producer := queue.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaDetectionsTopic)
	defer producer.Close()
	consumer := queue.NewKafkaConsumer(cfg.KafkaBrokers, cfg.KafkaConsumerGroup, cfg.KafkaDetectionsTopic)
	defer consumer.Close()

	eng := engine.New(st, engine.Config{
		DwellTimeout:         cfg.DwellTimeout,
		TimelineCap:          cfg.TimelineCap,
		RecentEventsCapacity: cfg.RecentEventsCapacity,
		DedupeWindowSize:     cfg.DedupeWindowSize,
	}, log.With().Str("component", "engine").Logger())

	nowMs := func() int64 { return time.Now().UnixMilli() }
	fb := feedback.New(st, feedback.Config{
		SubtractDeletedSpans: cfg.SubtractDeletedSpans,
		TimelineCap:          cfg.TimelineCap,
	}, log.With().Str("component", "feedback").Logger(), nowMs)
	if sink != nil {
		fb.SetMirror(sink.Append)
	}

	sw := sweeper.New(st, eng, cfg.SweepInterval, cfg.DwellTimeout, log.With().Str("component", "sweeper").Logger(), nowMs)

	norm := normalizer.New(cfg.GridWidth, cfg.GridHeight)
	metricsReg := metrics.New()

	supervisor := engine.NewSupervisor(eng, consumer, log.With().Str("component", "supervisor").Logger())

	apiServer := httpapi.NewServer(httpapi.Config{
		Store:      st,
		Engine:     eng,
		Supervisor: supervisor,
		Feedback:   fb,
		Normalizer: norm,
		Producer:   producer,
		Metrics:    metricsReg,
		Roster:     roster,
		Log:        log.With().Str("component", "httpapi").Logger(),
		Deadline:   cfg.OperationDeadline,
	})
	httpServer := &http.Server{Addr: cfg.HTTPListenAddr, Handler: apiServer}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", cfg.HTTPListenAddr).Msg("http api listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return supervisor.Run(ctx)
	})

	g.Go(func() error {
		sw.Run(ctx)
		return nil
	})

	g.Go(func() error {
		runMetricsSync(ctx, metricsReg, eng, st, cfg.SweepInterval, log.With().Str("component", "metrics").Logger())
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// runMetricsSync periodically pushes the engine's cumulative counters and
// the current active-object count into the Prometheus registry. It ticks
// on the same cadence as the Timeout Sweeper since both are cheap,
// best-effort background refreshes against the same State Store.
func runMetricsSync(ctx context.Context, reg *metrics.Registry, eng *engine.Engine, st store.Store, interval time.Duration, log zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var prev engine.Stats
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cur := eng.Stats()
			reg.Sync(prev, cur)
			prev = cur

			states, err := st.ListAllObjectStates(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("metrics sync: listing object states failed")
				continue
			}
			active := 0
			for _, s := range states {
				if s.IsActive() {
					active++
				}
			}
			reg.SetActiveObjects(active)
		}
	}
}
