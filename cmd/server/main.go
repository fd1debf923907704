package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"time"

	"golang.org/x/sync/errgroup"

	"attestor/internal/access"
	"attestor/internal/audit"
	"attestor/internal/crypto"
	idservice "attestor/internal/identity/service"
	idstore "attestor/internal/identity/store"
	"attestor/internal/identity/workers/cleanup"
	"attestor/internal/platform/config"
	"attestor/internal/platform/httpserver"
	"attestor/internal/platform/logger"
	"attestor/internal/platform/metrics"
	"attestor/internal/platform/tracer"
	"attestor/internal/token"
	httptransport "attestor/internal/transport/http"
	"attestor/internal/verification/engine"
	"attestor/internal/verification/store"
	"attestor/pkg/domain"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// process lifecycle small. Business logic lives in internal services packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	owner, err := domain.ParseAddress(cfg.OwnerAddress)
	if err != nil {
		log.Error("invalid owner address", "error", err)
		os.Exit(1)
	}

	log.Info("initializing attestor",
		"addr", cfg.Addr,
		"owner", owner,
	)

	vault, err := crypto.NewVault()
	if err != nil {
		log.Error("vault initialization failed", "error", err)
		os.Exit(1)
	}
	oracle := crypto.NewOracle(vault, cfg.OracleBuffer, crypto.WithOracleLogger(log))

	m := metrics.New()
	auditor := audit.NewPublisher(audit.NewInMemoryStore(),
		audit.WithAsyncBuffer(256),
		audit.WithPublisherLogger(log),
	)

	registry, err := access.NewRegistry(owner,
		access.WithAuditor(auditor),
		access.WithLogger(log),
	)
	if err != nil {
		log.Error("access registry initialization failed", "error", err)
		os.Exit(1)
	}

	identities := idstore.New()
	ledger := store.NewInMemoryLedger()
	idsvc := idservice.NewService(identities, vault, registry, ledger, auditor, log,
		idservice.WithMetrics(m),
	)
	eng := engine.NewEngine(ledger, idsvc, vault, oracle, registry, auditor, log,
		engine.WithMetrics(m),
		engine.WithTracer(tracer.NewNoop()),
	)

	sweep, err := cleanup.New(identities, idsvc,
		cleanup.WithInterval(cfg.CleanupInterval),
		cleanup.WithLogger(log),
	)
	if err != nil {
		log.Error("sweep worker initialization failed", "error", err)
		os.Exit(1)
	}

	tokens := token.NewService(cfg.JWTSigningKey, cfg.TokenTTL)
	handler := httptransport.NewHandler(idsvc, eng, registry, tokens, log)
	router := httptransport.NewRouter(handler, tokens, m, log)
	srv := httpserver.New(cfg.Addr, router)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting http server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return oracle.Start(gctx)
	})
	g.Go(func() error {
		return sweep.Start(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		log.Error("server error", "error", err)
		auditor.Close()
		os.Exit(1)
	}

	auditor.Close()
	log.Info("server stopped")
}
