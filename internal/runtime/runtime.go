package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wisprlabs/voiceid/internal/api"
	"github.com/wisprlabs/voiceid/internal/audit"
	"github.com/wisprlabs/voiceid/internal/bus"
	"github.com/wisprlabs/voiceid/internal/config"
	"github.com/wisprlabs/voiceid/internal/embedder"
	"github.com/wisprlabs/voiceid/internal/identity"
	"github.com/wisprlabs/voiceid/internal/ingest"
	"github.com/wisprlabs/voiceid/internal/matcher"
	"github.com/wisprlabs/voiceid/internal/natsserver"
	"github.com/wisprlabs/voiceid/internal/voicedb"
)

// Runtime owns the daemon lifecycle: telemetry, stores, bus, services, and
// the HTTP server.
type Runtime struct {
	cfg         config.Config
	logger      *slog.Logger
	httpServer  *http.Server
	tracerClose func(context.Context) error
	ready       atomic.Bool
	wg          sync.WaitGroup
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricsHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	auditStore, err := audit.Open(ctx, r.cfg.Audit, r.logger)
	if err != nil {
		return fmt.Errorf("failed to open audit store: %w", err)
	}
	defer auditStore.Close()

	voiceStore, err := voicedb.Open(r.cfg.Store, r.cfg.Embedder.Dimension, r.logger)
	if err != nil {
		return fmt.Errorf("failed to open voice database: %w", err)
	}

	emb, err := embedder.New(r.cfg.Embedder)
	if err != nil {
		return fmt.Errorf("failed to create embedder: %w", err)
	}
	r.logger.Info("embedder ready",
		slog.String("mode", r.cfg.Embedder.Mode),
		slog.Int("dimension", emb.Dimension()))

	var busClient *bus.Client
	var embeddedNATS *natsserver.EmbeddedServer
	if r.cfg.Bus.Enabled {
		embeddedNATS, err = natsserver.Start(r.cfg.Bus, r.logger)
		if err != nil {
			return fmt.Errorf("failed to start embedded NATS: %w", err)
		}
		defer embeddedNATS.Shutdown()

		busCfg := r.cfg.Bus
		if busCfg.Embedded {
			busCfg.Servers = []string{fmt.Sprintf("nats://localhost:%d", busCfg.Port)}
		}
		busClient, err = bus.Connect(ctx, busCfg, r.logger)
		if err != nil {
			return fmt.Errorf("failed to connect to bus: %w", err)
		}
		defer busClient.Close()
	}

	identitySvc := identity.NewService(emb, voiceStore, matcher.New(r.cfg.Matcher), auditStore, busClient, r.logger)

	ingestSvc := ingest.NewService(ctx, r.cfg.Ingest, busClient, identitySvc, r.logger)
	if err := ingestSvc.Start(); err != nil {
		return fmt.Errorf("failed to start ingest: %w", err)
	}
	defer ingestSvc.Close()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	if metricsHandler != nil {
		mux.Handle("/metrics", metricsHandler)
	}
	api.NewServer(identitySvc, r.cfg.HTTP, r.logger).Register(mux)

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()

	r.ready.Store(true)
	r.logger.Info("runtime started", slog.String("addr", addr))

	<-ctx.Done()
	r.logger.Info("runtime stopping")
	r.ready.Store(false)

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(),
		time.Duration(r.cfg.HTTP.ShutdownTimeout)*time.Millisecond)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	r.wg.Wait()

	if r.tracerClose != nil {
		if err := r.tracerClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}

	return nil
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}
