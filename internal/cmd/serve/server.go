package serve

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chirino/agent-memory-service/internal/config"
	"github.com/chirino/agent-memory-service/internal/longtermmemory"
	"github.com/chirino/agent-memory-service/internal/mcpsurface"
	"github.com/chirino/agent-memory-service/internal/metrics"
	"github.com/chirino/agent-memory-service/internal/pipeline"
	"github.com/chirino/agent-memory-service/internal/query"
	registryembed "github.com/chirino/agent-memory-service/internal/registry/embed"
	registryllm "github.com/chirino/agent-memory-service/internal/registry/llm"
	"github.com/chirino/agent-memory-service/internal/registry/migrate"
	registrytaskstore "github.com/chirino/agent-memory-service/internal/registry/taskstore"
	registryvector "github.com/chirino/agent-memory-service/internal/registry/vectorstore"
	registrywmstore "github.com/chirino/agent-memory-service/internal/registry/wmstore"
	"github.com/chirino/agent-memory-service/internal/security"
	"github.com/chirino/agent-memory-service/internal/taskruntime"
	"github.com/chirino/agent-memory-service/internal/workingmemory"
)

// Server holds everything StartServer brought up, so Shutdown can drain
// it: management listener first, then MCP transport; the task runtime
// stops when the context passed to StartServer is cancelled.
type Server struct {
	mcp        *mcpsurface.Server
	tasks      *taskruntime.Runtime
	management *http.Server
	ready      *atomic.Bool
}

// StartServer brings up every component behind the MCP tool surface:
// plugin selection, the C5 pipeline, the C6 task runtime, and the
// management listener, grounded on the teacher's
// internal/cmd/serve/server.go StartServer sequence (migrate, then
// stores, then services, then background goroutines, then listeners)
// but re-expressed without gin/gRPC, which this module's dependency
// surface never carries.
func StartServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	log.Info("Starting agent-memory-service", "mode", cfg.Mode)

	labels, err := metrics.ParseLabels(cfg.MetricsLabels)
	if err != nil {
		return nil, err
	}
	metrics.ApplyConstantLabels(labels)
	taskruntime.InitMetrics()

	if err := migrate.RunAll(ctx); err != nil {
		return nil, err
	}

	wmLoader, err := registrywmstore.Select(cfg.WMStoreBackend)
	if err != nil {
		return nil, err
	}
	wmBackend, err := wmLoader(ctx)
	if err != nil {
		return nil, err
	}

	taskLoader, err := registrytaskstore.Select(cfg.TaskStoreBackend)
	if err != nil {
		return nil, err
	}
	taskStore, err := taskLoader(ctx)
	if err != nil {
		return nil, err
	}

	rt := taskruntime.New(taskStore, cfg.TaskPollInterval, cfg.TaskRetryDelay, cfg.TaskBatchSize, cfg.TaskMaxAttempts)
	wm := workingmemory.New(wmBackend, taskStore, cfg)

	vectorLoader, err := registryvector.Select(cfg.VectorStoreBackend)
	if err != nil {
		return nil, err
	}
	vectors, err := vectorLoader(ctx)
	if err != nil {
		return nil, err
	}
	ltm := longtermmemory.New(vectors)

	var embedder registryembed.Embedder
	if cfg.EmbedType != "" && cfg.EmbedType != "none" {
		embedLoader, err := registryembed.Select(cfg.EmbedType)
		if err != nil {
			return nil, err
		}
		embedder, err = embedLoader(ctx)
		if err != nil {
			return nil, err
		}
	}

	var gen registryllm.Generator
	if cfg.OpenAIAPIKey != "" {
		genLoader, err := registryllm.Select("openai")
		if err != nil {
			return nil, err
		}
		gen, err = genLoader(ctx)
		if err != nil {
			return nil, err
		}
	}

	validator, err := security.NewValidator(ctx, cfg.ExtractionPolicyDir)
	if err != nil {
		return nil, err
	}

	pl := pipeline.New(wm, ltm, vectors, embedder, gen, validator, cfg)
	qs := query.New(ltm, wm, vectors, rt, embedder, gen, cfg)

	pl.RegisterTaskHandlers(rt)
	qs.RegisterTaskHandlers(rt)

	go rt.Start(ctx)

	mcpSrv := mcpsurface.New(ltm, wm, qs, rt)
	mcpDone := make(chan error, 1)
	switch cfg.MCPTransport {
	case "stdio":
		go func() { mcpDone <- mcpSrv.ServeStdio(ctx, cfg.MCPServerName, cfg.MCPServerVersion) }()
	default:
		go func() {
			mcpDone <- mcpSrv.ServeHTTP(ctx, cfg.MCPServerName, cfg.MCPServerVersion, cfg.MCPListenAddress)
		}()
	}
	go func() {
		if err := <-mcpDone; err != nil {
			log.Error("mcp transport stopped", "err", err)
		}
	}()

	ready := &atomic.Bool{}
	ready.Store(true)
	management := startManagementServer(cfg.ManagementListenAddress, ready)

	log.Info("agent-memory-service is ready")
	return &Server{mcp: mcpSrv, tasks: rt, management: management, ready: ready}, nil
}

func startManagementServer(addr string, ready *atomic.Bool) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if !ready.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not ready"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Info("Serving management endpoints", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("management listener error", "err", err)
		}
	}()
	return srv
}

// Shutdown drains the management listener and the MCP transport. The
// task runtime stops on its own once the caller cancels the context
// passed to StartServer, since rt.Start(ctx) blocks on that context.
func (s *Server) Shutdown(ctx context.Context) error {
	s.ready.Store(false)
	var firstErr error
	if err := s.management.Shutdown(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.mcp.Shutdown(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
