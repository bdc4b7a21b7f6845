package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/qdrant/go-client/qdrant"

	"github.com/ragbox/core-rag/internal/api"
	"github.com/ragbox/core-rag/internal/checkpoint"
	"github.com/ragbox/core-rag/internal/config"
	"github.com/ragbox/core-rag/internal/embedclient"
	"github.com/ragbox/core-rag/internal/generator"
	"github.com/ragbox/core-rag/internal/grader"
	"github.com/ragbox/core-rag/internal/healthcheck"
	"github.com/ragbox/core-rag/internal/llm"
	"github.com/ragbox/core-rag/internal/metrics"
	"github.com/ragbox/core-rag/internal/middleware"
	"github.com/ragbox/core-rag/internal/pipeline"
	"github.com/ragbox/core-rag/internal/querycache"
	"github.com/ragbox/core-rag/internal/rerank"
	"github.com/ragbox/core-rag/internal/rerankclient"
	"github.com/ragbox/core-rag/internal/retrieval"
	"github.com/ragbox/core-rag/internal/rewriter"
	"github.com/ragbox/core-rag/internal/session"
	"github.com/ragbox/core-rag/internal/telemetry"
	"github.com/ragbox/core-rag/internal/tokenizer"
)

// splitHostPort parses a "host:port" address, falling back to
// fallbackPort when the port segment is missing or unparseable.
func splitHostPort(addr string, fallbackPort int) (string, int) {
	idx := strings.LastIndex(addr, ":")
	if idx < 0 {
		return addr, fallbackPort
	}
	host, portStr := addr[:idx], addr[idx+1:]
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return host, fallbackPort
	}
	return host, port
}

func run() error {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	qdrantHost, qdrantPort := splitHostPort(cfg.QdrantAddr, 6334)
	qdrantClient, err := qdrant.NewClient(&qdrant.Config{
		Host:   qdrantHost,
		Port:   qdrantPort,
		APIKey: cfg.QdrantAPIKey,
	})
	if err != nil {
		return fmt.Errorf("qdrant: %w", err)
	}

	checkpointBackend, err := checkpoint.New(checkpoint.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		TTL:      time.Duration(cfg.SessionTTL) * time.Second,
	})
	if err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	defer checkpointBackend.Close()

	llmProvider, err := llm.New(llm.Kind(cfg.LLMProvider), cfg.LLMAPIKey, cfg.LLMBaseURL)
	if err != nil {
		return fmt.Errorf("llm: %w", err)
	}

	// One client for the embedding and reranker services, with the
	// per-host connection pool bounded at 32.
	sharedTransport := http.DefaultTransport.(*http.Transport).Clone()
	sharedTransport.MaxConnsPerHost = 32
	sharedTransport.MaxIdleConnsPerHost = 32
	sharedHTTPClient := &http.Client{Transport: sharedTransport}

	embedClient := embedclient.New(cfg.EmbeddingServiceURL, cfg.EmbeddingDim, sharedHTTPClient)
	cachingEmbedClient := embedclient.NewCachingClient(embedClient, embedclient.DefaultCacheTTL)
	defer cachingEmbedClient.Stop()
	rerankHTTPClient := rerankclient.New(cfg.RerankServiceURL, sharedHTTPClient)

	retriever := retrieval.New(qdrantClient, cfg.QdrantCollectionName)
	reranker := rerank.New(rerankHTTPClient, cfg.RerankTopK)
	est := tokenizer.NewEstimator()

	promReg := prometheus.NewRegistry()
	pipelineMetrics := metrics.New(promReg)

	runtime := pipeline.New(pipeline.Deps{
		Embedder:  cachingEmbedClient,
		Retriever: retriever,
		Reranker:  reranker,
		Grader:    grader.New(llmProvider, cfg.LLMModel),
		Generator: generator.New(llmProvider, cfg.LLMModel, est),
		Rewriter:  rewriter.New(llmProvider, cfg.LLMModel),
		Sessions:  session.New(checkpointBackend),
		Telemetry: telemetry.New(slog.Default()),
		Metrics:   pipelineMetrics,
		ModelName: cfg.LLMModel,

		MaxRetries:    cfg.MaxRetries,
		TopK:          cfg.RetrievalTopK,
		PrefetchLimit: cfg.RetrievalPrefetchLimit,
	})

	cache := querycache.New(querycache.DefaultTTL)
	defer cache.Stop()

	handler := api.New(runtime, cache)

	healthDeps := map[string]healthcheck.Pinger{
		"qdrant":    retriever,
		"redis":     checkpointBackend,
		"embedding": cachingEmbedClient,
		"reranker":  rerankHTTPClient,
	}

	var queryLimiter, generalLimiter *middleware.RateLimiter
	if cfg.QueryRateLimitPerMinute > 0 {
		queryLimiter = middleware.NewRateLimiter(middleware.RateLimiterConfig{
			MaxRequests: cfg.QueryRateLimitPerMinute,
			Window:      time.Minute,
		})
		defer queryLimiter.Stop()
	}
	if cfg.GeneralRateLimitPerMinute > 0 {
		generalLimiter = middleware.NewRateLimiter(middleware.RateLimiterConfig{
			MaxRequests: cfg.GeneralRateLimitPerMinute,
			Window:      time.Minute,
		})
		defer generalLimiter.Stop()
	}

	router := api.NewRouter(api.RouterDeps{
		Handler:            handler,
		FrontendURL:        cfg.FrontendURL,
		Version:            cfg.Version,
		Metrics:            pipelineMetrics,
		MetricsReg:         promReg,
		HealthDeps:         healthDeps,
		QueryRateLimiter:   queryLimiter,
		GeneralRateLimiter: generalLimiter,
	})

	srv := &http.Server{
		Addr:        ":" + strconv.Itoa(cfg.Port),
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
		// No blanket WriteTimeout: the SSE route needs to hold the
		// connection open for the full generation; the non-streaming
		// route gets its own timeout via middleware in internal/api.
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("core-rag v%s starting on port %d", cfg.Version, cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Printf("received signal %s, shutting down gracefully", sig)
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	log.Println("server stopped")
	return nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
