package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	_ "github.com/jackc/pgx/v5/stdlib"

	"ndaflow/internal/audit"
	"ndaflow/internal/ledger"
	"ndaflow/internal/mail"
	"ndaflow/internal/platform/config"
	"ndaflow/internal/platform/httpserver"
	"ndaflow/internal/platform/logger"
	"ndaflow/internal/platform/metrics"
	"ndaflow/internal/policy"
	httptransport "ndaflow/internal/transport/http"
	"ndaflow/internal/workflow"
)

// main wires dependencies and keeps the process lifecycle small. Workflow
// logic lives in internal packages; this file only decides between watch and
// one-shot mode and assembles the ledger, transports, and audit trail.
func main() {
	watch := flag.Bool("watch", false, "enter polling mode and watch the inbox")
	processFile := flag.String("process-file", "", "review a single document and exit")
	notifyAddr := flag.String("notify", "", "send the one-shot outcome to this address")
	configPath := flag.String("config", "", "review policy file, overriding the environment")
	flag.Parse()

	cfg := config.FromEnv()
	log := logger.New()

	if *configPath != "" {
		cfg.PolicyPath = *configPath
	}
	if !*watch && *processFile == "" {
		fmt.Fprintln(os.Stderr, "nothing to do: pass --watch or --process-file <path>")
		os.Exit(1)
	}

	pol, err := policy.Load(cfg.PolicyPath, cfg.DefaultPolicyPath)
	if err != nil {
		// A policy that fails structural validation is startup-fatal; the
		// workflow must not score documents against it.
		log.Error("policy load failed", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openLedger(ctx, cfg)
	if err != nil {
		log.Error("ledger init failed", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	m := metrics.New()

	publisher := audit.NewPublisher(256, m.IncAuditDropped)
	sink, closeSink, err := openAuditSink(cfg)
	if err != nil {
		log.Error("audit sink init failed", "error", err)
		os.Exit(1)
	}
	defer closeSink()

	service := workflow.New(pol, store, mail.NewSMTPSender(cfg.SMTP), log, m,
		workflow.WithAuditor(publisher),
	)

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		err := audit.NewWorker(sink, publisher.Events(), log).Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if *processFile != "" {
		verdict, err := service.ProcessFile(ctx, *processFile, *notifyAddr)
		stop()
		if groupErr := group.Wait(); groupErr != nil {
			log.Warn("audit worker exited uncleanly", "error", groupErr)
		}
		if err != nil {
			log.Error("one-shot review failed", "path", *processFile, "error", err)
			os.Exit(1)
		}
		fmt.Printf("reviewed %s: is_nda=%t risk_tier=%s flags=%d\n",
			*processFile, verdict.IsNDA, verdict.RiskTier, verdict.FlagCount)
		return
	}

	folder := pol.Polling.Folder
	if folder != "" {
		cfg.IMAP.Folder = folder
	}
	interval := pol.Polling.Interval()
	if cfg.PollInterval > 0 {
		interval = cfg.PollInterval
	}

	fetcher := mail.NewIMAPFetcher(cfg.IMAP)
	defer fetcher.Close()
	poller := workflow.NewPoller(service, fetcher, interval, log)

	srv := httpserver.New(cfg.HTTPAddr, httptransport.NewRouter(httptransport.NewHandler(store, pol, log)))
	group.Go(func() error {
		log.Info("http listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	group.Go(func() error {
		err := poller.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	log.Info("ndaflow started", "mode", "watch", "folder", cfg.IMAP.Folder, "interval", interval.String())
	if err := group.Wait(); err != nil {
		log.Error("shutdown with error", "error", err)
		os.Exit(1)
	}
	log.Info("shutdown complete")
}

// openLedger picks the durable backend: Postgres when a DSN is configured,
// otherwise the JSONL file ledger; Redis, when configured, fronts either as
// a seen-cache.
func openLedger(ctx context.Context, cfg config.Config) (ledger.Store, func(), error) {
	var (
		store   ledger.Store
		cleanup func()
	)
	if cfg.PostgresDSN != "" {
		db, err := sql.Open("pgx", cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		pg := ledger.NewPostgresStore(db)
		if err := pg.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		store, cleanup = pg, func() { db.Close() }
	} else {
		fs, err := ledger.OpenFileStore(cfg.LedgerPath)
		if err != nil {
			return nil, nil, err
		}
		store, cleanup = fs, func() { fs.Close() }
	}

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("parse redis URL: %w", err)
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("redis ping failed: %w", err)
		}
		inner := cleanup
		store = ledger.NewSeenCache(store, client, 0)
		cleanup = func() { client.Close(); inner() }
	}
	return store, cleanup, nil
}

// openAuditSink returns Kafka when brokers are configured, else the
// in-memory sink so the worker wiring stays identical in dev.
func openAuditSink(cfg config.Config) (audit.Sink, func(), error) {
	if len(cfg.KafkaBrokers) == 0 {
		return audit.NewMemorySink(), func() {}, nil
	}
	sink, err := audit.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic)
	if err != nil {
		return nil, nil, err
	}
	return sink, sink.Close, nil
}
