package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"docsign/internal/audit"
	"docsign/internal/document"
	dochandler "docsign/internal/document/handler"
	"docsign/internal/extract"
	"docsign/internal/identity"
	idhandler "docsign/internal/identity/handler"
	jwttoken "docsign/internal/jwt_token"
	"docsign/internal/ledger"
	"docsign/internal/platform/config"
	"docsign/internal/platform/httpserver"
	"docsign/internal/platform/kafka"
	"docsign/internal/platform/logger"
	"docsign/internal/platform/metrics"
	redisplatform "docsign/internal/platform/redis"
	"docsign/internal/signature"
	sighandler "docsign/internal/signature/handler"
	httptransport "docsign/internal/transport/http"
	"docsign/internal/validation"
)

// main wires dependencies and owns the process lifecycle. Every backend is
// optional: without Postgres, Redis or Kafka the server runs on in-memory
// implementations, which keeps local development a single command.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel)

	if err := run(context.Background(), cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	var (
		docStore   document.Store
		auditStore audit.Store
		idStore    identity.Store
	)
	if cfg.PostgresURL != "" {
		db, err := sql.Open("postgres", cfg.PostgresURL)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			return err
		}
		docStore = document.NewPostgresStore(db)
		auditStore = audit.NewPostgresStore(db)
		idStore = identity.NewPostgresStore(db)
		log.Info("using postgres stores")
	} else {
		docStore = document.NewMemoryStore()
		auditStore = audit.NewMemoryStore()
		idStore = identity.NewMemoryStore()
		log.Warn("no postgres configured, state is process-local")
	}

	var attestations ledger.Ledger
	rdb, err := redisplatform.New(cfg.Redis)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
		attestations = ledger.NewRedisLedger(rdb.Client, cfg.LedgerTimeout)
		log.Info("using redis attestation ledger")
	} else {
		attestations = ledger.NewMemoryLedger()
		log.Warn("no redis configured, attestations are process-local")
	}

	kafkaClient, err := kafka.New(ctx, cfg.KafkaBrokers, cfg.KafkaTopic)
	if err != nil {
		return err
	}
	var sink audit.Sink
	if kafkaClient != nil {
		defer kafkaClient.Close()
		sink = audit.NewKafkaSink(kafkaClient)
		log.Info("forwarding audit events to kafka", "topic", cfg.KafkaTopic)
	}

	auditor := audit.NewPublisher(256, m, log)
	worker := audit.NewWorker(auditStore, sink, auditor.Inbox(), log)

	documentContent, err := document.NewLocalContentStore(filepath.Join(cfg.Uploads.Dir, "documents"))
	if err != nil {
		return err
	}
	identityUploads, err := document.NewLocalContentStore(filepath.Join(cfg.Uploads.Dir, "identity"))
	if err != nil {
		return err
	}

	extractor := extract.New(cfg.OCR, extract.NewExecRunner(log), log)
	validator := validation.New(extractor, cfg.ValidationThreshold, log)

	documents := document.NewService(docStore, documentContent, auditor, m, log)
	identities := identity.NewService(idStore, validator, attestations, auditor, m, log)
	keys := signature.NewStaticKeyDirectory()
	signatures := signature.NewService(docStore, attestations, signature.NewEd25519Verifier(),
		keys, identities, auditor, m, log)

	jwtService := jwttoken.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer)
	jwtValidator := jwttoken.NewJWTServiceAdapter(jwtService)

	router := httptransport.NewRouter(log, m,
		dochandler.New(documents, log, jwtValidator, cfg.Uploads.MaxSizeByte),
		sighandler.New(signatures, keys, log, jwtValidator),
		idhandler.New(identities, identityUploads, log, jwtValidator, cfg.Uploads.MaxSizeByte),
	)
	srv := httpserver.New(cfg.Addr, router)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := worker.Run(ctx); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		log.Info("starting docsign server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
