// Package main provides the Omnibox server implementation.
package main

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/omniboxhq/omnibox/api/handlers"
	"github.com/omniboxhq/omnibox/catalog"
	"github.com/omniboxhq/omnibox/config"
	"github.com/omniboxhq/omnibox/extractor"
	"github.com/omniboxhq/omnibox/fetch"
	"github.com/omniboxhq/omnibox/intent"
	"github.com/omniboxhq/omnibox/internal/cache"
	"github.com/omniboxhq/omnibox/internal/metrics"
	"github.com/omniboxhq/omnibox/internal/server"
	"github.com/omniboxhq/omnibox/internal/telemetry"
	"github.com/omniboxhq/omnibox/llm/providers"
	"github.com/omniboxhq/omnibox/llm/providers/openai"
	"github.com/omniboxhq/omnibox/omnicache"
	"github.com/omniboxhq/omnibox/orchestrator"
	"github.com/omniboxhq/omnibox/rag"
	"github.com/omniboxhq/omnibox/research"
	"github.com/omniboxhq/omnibox/resolver"
	"github.com/omniboxhq/omnibox/retriever"
	"github.com/omniboxhq/omnibox/streamhub"
	"github.com/omniboxhq/omnibox/subscription"
)

// Server is the Omnibox gateway's process: it owns every pipeline stage,
// the streaming hub, and the two listeners (API, metrics).
type Server struct {
	cfg        *config.Config
	configPath string
	logger     *zap.Logger

	httpManager    *server.Manager
	metricsManager *server.Manager

	healthHandler       *handlers.HealthHandler
	omniboxHandler      *handlers.OmniboxHandler
	subscriptionHandler *handlers.SubscriptionHandler
	hub                 *streamhub.Hub

	metricsCollector *metrics.Collector
	telemetry        *telemetry.Providers

	hotReloadManager *config.HotReloadManager
	configAPIHandler *config.ConfigAPIHandler

	wg sync.WaitGroup
}

// NewServer constructs an Omnibox server from its loaded configuration.
// The database connection (nil if unavailable at boot) is passed
// separately to Start, since subscriptions/resolver state is optional.
func NewServer(cfg *config.Config, configPath string, logger *zap.Logger) *Server {
	return &Server{cfg: cfg, configPath: configPath, logger: logger}
}

// Start wires every pipeline stage and brings both listeners up.
func (s *Server) Start(db *gorm.DB) error {
	telemetryProviders, err := telemetry.Init(s.cfg.Telemetry, s.logger)
	if err != nil {
		return fmt.Errorf("failed to init telemetry: %w", err)
	}
	s.telemetry = telemetryProviders

	s.metricsCollector = metrics.NewCollector("omnibox", s.logger)

	if err := s.initHandlers(db); err != nil {
		return fmt.Errorf("failed to init handlers: %w", err)
	}
	if err := s.initHotReloadManager(); err != nil {
		return fmt.Errorf("failed to init hot reload manager: %w", err)
	}
	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.logger.Info("omnibox started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.Bool("research_enabled", s.cfg.Omnibox.ResearchEnabled),
	)
	return nil
}

// initHandlers builds the full Retrieve -> Extract -> Resolve -> Fetch
// pipeline, the intent router, the streaming hub, and the research
// orchestrator (when enabled), and wraps them in the HTTP handlers.
func (s *Server) initHandlers(db *gorm.DB) error {
	obCfg := s.cfg.Omnibox

	cat := catalog.New(obCfg.CatalogPath, s.logger)

	llmProvider := openai.NewOpenAIProvider(providers.OpenAIConfig{
		BaseProviderConfig: providers.BaseProviderConfig{
			APIKey:  s.cfg.LLM.APIKey,
			BaseURL: s.cfg.LLM.BaseURL,
			Model:   obCfg.ChatModel,
			Timeout: s.cfg.LLM.Timeout,
		},
	}, s.logger)

	embedder, err := rag.NewEmbeddingProviderFromConfig(s.cfg, rag.EmbeddingProviderType(s.cfg.LLM.DefaultProvider), obCfg.EmbeddingModel)
	if err != nil {
		return fmt.Errorf("create embedding provider: %w", err)
	}

	var cacheLayer *omnicache.Layer
	if redisManager, err := cache.NewManager(cache.Config{
		Addr:         s.cfg.Redis.Addr,
		Password:     s.cfg.Redis.Password,
		DB:           s.cfg.Redis.DB,
		PoolSize:     s.cfg.Redis.PoolSize,
		MinIdleConns: s.cfg.Redis.MinIdleConns,
	}, s.logger); err != nil {
		s.logger.Warn("redis unavailable, cache layer disabled", zap.Error(err))
		cacheLayer = omnicache.New(nil, omnicache.Config{EmbeddingLRUSize: obCfg.EmbeddingCacheSize}, s.logger)
	} else {
		cacheLayer = omnicache.New(redisManager, omnicache.Config{
			CompletionTTL:    obCfg.CompletionCacheTTL,
			ResolutionTTL:    obCfg.ResolutionCacheTTL,
			PayloadTTL:       obCfg.PayloadCacheTTL,
			EmbeddingLRUSize: obCfg.EmbeddingCacheSize,
		}, s.logger)
	}

	routeStore, err := rag.NewVectorStoreFromConfig(s.cfg, rag.VectorStoreType(obCfg.VectorStoreBackend), s.logger)
	if err != nil {
		return fmt.Errorf("create route vector store: %w", err)
	}
	ret := retriever.New(embedder, routeStore, cacheLayer.Embeddings, s.logger)
	if err := ret.IndexCatalog(context.Background(), cat.Snapshot()); err != nil {
		s.logger.Warn("initial catalog indexing failed", zap.Error(err))
	}

	ext := extractor.New(llmProvider, obCfg.ChatModel, cacheLayer.Completions, s.logger)

	var subStore *subscription.Store
	if db != nil {
		if err := subscription.Migrate(db); err != nil {
			s.logger.Error("subscription schema migration failed", zap.Error(err))
		}
		subStore = subscription.New(db)
	}
	entityIndex, err := rag.NewVectorStoreFromConfig(entityIndexConfig(s.cfg), rag.VectorStoreType(obCfg.VectorStoreBackend), s.logger)
	if err != nil {
		return fmt.Errorf("create entity vector store: %w", err)
	}
	res := resolver.New(subStore, embedder, entityIndex, cacheLayer.Resolutions, s.logger)
	if subStore != nil {
		subStore.OnWrite = func(ctx context.Context, op subscription.WriteOp, sub subscription.Subscription) {
			cacheLayer.Resolutions.InvalidatePlatform(ctx, sub.Platform)
			switch op {
			case subscription.WriteOpDelete:
				if err := res.RemoveSubscription(ctx, sub); err != nil {
					s.logger.Warn("removing subscription from entity index failed", zap.Error(err))
				}
			default:
				if err := res.IndexSubscription(ctx, sub); err != nil {
					s.logger.Warn("re-embedding subscription failed", zap.Error(err))
				}
			}
		}
	}

	executor := fetch.New(fetch.Config{
		PrimaryBase:  obCfg.FeedServicePrimaryURL,
		FallbackBase: obCfg.FeedServiceFallbackURL,
		MaxRetries:   obCfg.FetchMaxRetries,
		Timeout:      obCfg.FetchTimeout,
		ProbeTimeout: obCfg.ProbeTimeout,
	}, cacheLayer.Payloads, s.logger)

	simple := orchestrator.New(cat, ret, ext, res, executor, s.logger)

	var researchOrch *research.Orchestrator
	var hub *streamhub.Hub
	if obCfg.ResearchEnabled {
		researchOrch = research.New(simple, llmProvider, obCfg.ChatModel, s.logger)
		hub = streamhub.New(s.logger)
	}

	router := intent.New(llmProvider, obCfg.ChatModel, obCfg.ResearchEnabled, s.logger)

	s.hub = hub
	s.omniboxHandler = handlers.NewOmniboxHandler(router, simple, researchOrch, hub, cat, ret, subStore, s.logger)
	if subStore != nil {
		s.subscriptionHandler = handlers.NewSubscriptionHandler(subStore, s.logger)
	}
	s.healthHandler = handlers.NewHealthHandler(s.logger)

	s.logger.Info("handlers initialized")
	return nil
}

// entityIndexConfig clones cfg with the vector-store backend's
// collection/class/index name suffixed for "_entities", so the entity
// resolution index (subscriptions) doesn't land in the same remote
// collection as the route catalog index when both share a backend.
func entityIndexConfig(cfg *config.Config) *config.Config {
	clone := *cfg
	clone.Qdrant.Collection += "_entities"
	clone.Weaviate.ClassName += "Entities"
	clone.Milvus.Collection += "_entities"
	clone.Pinecone.Namespace += "_entities"
	return &clone
}

func (s *Server) initHotReloadManager() error {
	opts := []config.HotReloadOption{config.WithHotReloadLogger(s.logger)}
	if s.configPath != "" {
		opts = append(opts, config.WithConfigPath(s.configPath))
	}
	s.hotReloadManager = config.NewHotReloadManager(s.cfg, opts...)
	s.hotReloadManager.OnReload(func(oldConfig, newConfig *config.Config) {
		s.logger.Info("configuration reloaded")
		s.cfg = newConfig
	})
	if err := s.hotReloadManager.Start(context.Background()); err != nil {
		return fmt.Errorf("failed to start hot reload manager: %w", err)
	}
	s.configAPIHandler = config.NewConfigAPIHandler(s.hotReloadManager)
	return nil
}

func (s *Server) startHTTPServer() error {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.healthHandler.HandleHealth)
	mux.HandleFunc("/healthz", s.healthHandler.HandleHealthz)
	mux.HandleFunc("/ready", s.healthHandler.HandleReady)
	mux.HandleFunc("/readyz", s.healthHandler.HandleReady)
	mux.HandleFunc("/version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	mux.HandleFunc("POST /chat", s.omniboxHandler.HandleChat)
	mux.HandleFunc("POST /refresh", s.omniboxHandler.HandleRefresh)
	mux.HandleFunc("POST /catalog/reindex", s.omniboxHandler.HandleReindex)

	if s.hub != nil {
		mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
			s.hub.ServeTask(w, r, r.URL.Query().Get("task_id"))
		})
	}

	if s.subscriptionHandler != nil {
		mux.HandleFunc("POST /subscriptions", s.subscriptionHandler.HandleCreate)
		mux.HandleFunc("GET /subscriptions", s.subscriptionHandler.HandleList)
		mux.HandleFunc("GET /subscriptions/{id}", withUintID(s.subscriptionHandler.HandleGet, s.logger))
		mux.HandleFunc("PUT /subscriptions/{id}", withUintID(s.subscriptionHandler.HandleUpdate, s.logger))
		mux.HandleFunc("DELETE /subscriptions/{id}", withUintID(s.subscriptionHandler.HandleDelete, s.logger))
	}

	if s.configAPIHandler != nil {
		s.configAPIHandler.RegisterRoutes(mux)
		s.logger.Info("configuration API registered")
	}

	skipAuthPaths := []string{"/health", "/healthz", "/ready", "/readyz", "/version", "/metrics", "/ws"}
	rlCtx := context.Background()
	handler := Chain(mux,
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.metricsCollector),
		OTelTracing(),
		CORS(s.cfg.Server.CORSAllowedOrigins),
		RateLimiter(rlCtx, float64(s.cfg.Server.RateLimitRPS), s.cfg.Server.RateLimitBurst, s.logger),
		APIKeyAuth(s.cfg.Server.APIKeys, skipAuthPaths, s.cfg.Server.AllowQueryAPIKey, s.logger),
	)

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     120 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}
	s.httpManager = server.NewManager(handler, serverConfig, s.logger)
	if err := s.httpManager.Start(); err != nil {
		return err
	}
	s.logger.Info("HTTP server started", zap.Int("port", s.cfg.Server.HTTPPort))
	return nil
}

// withUintID parses the {id} path value and delegates to a handler that
// takes it explicitly, keeping the handler package itself agnostic of
// how the router extracts path parameters.
func withUintID(h func(http.ResponseWriter, *http.Request, uint), logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
		if err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error":"invalid_request","message":"id must be a positive integer"}`)
			return
		}
		h(w, r, uint(id))
	}
}

func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}
	s.metricsManager = server.NewManager(mux, serverConfig, s.logger)
	if err := s.metricsManager.Start(); err != nil {
		return err
	}
	s.logger.Info("metrics server started", zap.Int("port", s.cfg.Server.MetricsPort))
	return nil
}

// WaitForShutdown blocks until a shutdown signal arrives, then cleans up.
func (s *Server) WaitForShutdown() {
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown()
	}
	s.Shutdown()
}

// Shutdown tears down every subsystem in reverse startup order.
func (s *Server) Shutdown() {
	s.logger.Info("starting graceful shutdown")

	ctx := context.Background()

	if s.hotReloadManager != nil {
		if err := s.hotReloadManager.Stop(); err != nil {
			s.logger.Error("hot reload manager shutdown error", zap.Error(err))
		}
	}
	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("metrics server shutdown error", zap.Error(err))
		}
	}
	if s.telemetry != nil {
		if err := s.telemetry.Shutdown(ctx); err != nil {
			s.logger.Error("telemetry shutdown error", zap.Error(err))
		}
	}

	s.wg.Wait()
	s.logger.Info("graceful shutdown completed")
}
