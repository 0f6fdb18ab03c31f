// Copyright 2026 BrightClass
// SPDX-License-Identifier: Apache-2.0

// BrightClass LLM orchestrator daemon. Exposes the routing layer over HTTP
// for the assessment, tutoring and IEP drafting services.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"brightclass/platform/config"
	"brightclass/platform/llm"
	_ "brightclass/platform/llm/anthropic"
	_ "brightclass/platform/llm/bedrock"
	_ "brightclass/platform/llm/openai"
	"brightclass/platform/shared/logger"
)

var slog = logger.New("orchestratord")

func main() {
	configPath := flag.String("config", getEnv("CONFIG_PATH", "orchestrator.yaml"), "path to configuration file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loader, err := config.NewLoader(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	backendConfigs := loader.Backends()
	if len(backendConfigs) == 0 {
		log.Fatal("No enabled backends in configuration")
	}

	// Secret ARNs resolve through AWS; inline keys from env expansion win.
	if needsSecrets(backendConfigs) {
		resolver, err := config.NewAWSSecretsResolver(ctx, config.AWSSecretsResolverOptions{
			Region: os.Getenv("AWS_REGION"),
		})
		if err != nil {
			log.Fatalf("Failed to create secrets resolver: %v", err)
		}
		if err := config.ResolveAPIKeys(ctx, resolver, backendConfigs); err != nil {
			log.Fatalf("Failed to resolve API keys: %v", err)
		}
	}

	orch, err := buildOrchestrator(ctx, loader.Routing(), backendConfigs)
	if err != nil {
		log.Fatalf("Failed to build orchestrator: %v", err)
	}
	defer func() {
		_ = orch.Close()
	}()

	orch.StartHealthProbes(ctx)

	srv := &http.Server{
		Addr:         ":" + getEnv("PORT", "8083"),
		Handler:      buildHandler(orch),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // streaming responses manage their own deadlines
	}

	go func() {
		slog.Info("", "", fmt.Sprintf("Orchestrator listening on %s", srv.Addr), nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-ctx.Done()
	slog.Info("", "", "Shutting down", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("", "", "Shutdown error", map[string]interface{}{"error": err.Error()})
	}
}

// needsSecrets reports whether any backend references a secret ARN without
// an inline API key, the same rule config.ResolveAPIKeys applies per entry.
func needsSecrets(configs []llm.BackendConfig) bool {
	for _, cfg := range configs {
		if cfg.APIKey == "" && cfg.APIKeySecretARN != "" {
			return true
		}
	}
	return false
}

// buildOrchestrator assembles the routing layer from configuration: the
// strategy, failover chain, Prometheus metrics, optional Postgres usage
// recording and optional Redis-shared rate limiting.
func buildOrchestrator(ctx context.Context, routing config.Routing, configs []llm.BackendConfig) (*llm.Orchestrator, error) {
	metrics := llm.NewMetrics(prometheus.DefaultRegisterer)
	observers := []llm.Observer{metrics.Observe}

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		db, err := sql.Open("postgres", dbURL)
		if err != nil {
			return nil, fmt.Errorf("opening database: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			return nil, fmt.Errorf("pinging database: %w", err)
		}
		store := llm.NewPostgresStorage(db)
		observers = append(observers, llm.StorageObserver(context.Background(), store))
		slog.Info("", "", "Usage recording enabled", nil)
	}

	var strategy llm.Strategy
	if routing.Strategy == string(llm.StrategyWeighted) && len(routing.WeightOverrides) > 0 {
		strategy = llm.NewWeightedStrategy(routing.WeightOverrides)
	} else {
		strategy = llm.NewStrategy(llm.StrategyName(routing.Strategy))
	}

	opts := []llm.Option{
		llm.WithStrategy(strategy),
		llm.WithFailoverChain(routing.FailoverChain),
		llm.WithObserver(llm.MultiObserver(observers...)),
	}

	// A shared Redis window keeps replicas inside one vendor quota.
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		redisOpts, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parsing Redis URL: %w", err)
		}
		client := redis.NewClient(redisOpts)
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("connecting to Redis: %w", err)
		}
		opts = append(opts, llm.WithLimiterFactory(func(cfg *llm.BackendConfig) llm.MinuteLimiter {
			if cfg.RequestsPerMinute <= 0 {
				return nil
			}
			return llm.NewRedisMinuteLimiter(client, cfg.Name, cfg.RequestsPerMinute)
		}))
		slog.Info("", "", "Redis-shared rate limiting enabled", nil)
	}

	orch := llm.NewOrchestrator(opts...)

	for _, cfg := range configs {
		backend, err := llm.CreateBackend(cfg)
		if err != nil {
			return nil, err
		}
		if err := orch.Register(ctx, backend, cfg); err != nil {
			return nil, err
		}
	}

	return orch, nil
}

func buildHandler(orch *llm.Orchestrator) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", healthHandler).Methods("GET")
	r.Handle("/prometheus", promhttp.Handler()).Methods("GET")

	r.HandleFunc("/api/v1/completions", completionHandler(orch)).Methods("POST")
	r.HandleFunc("/api/v1/completions/stream", streamHandler(orch)).Methods("POST")
	r.HandleFunc("/api/v1/backends", backendsHandler(orch)).Methods("GET")

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"}, // Configure for production
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})
	return c.Handler(r)
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// completionRequest is the wire shape for completion calls.
type completionRequest struct {
	Task     string              `json:"task"`
	Prompt   string              `json:"prompt"`
	Context  map[string]string   `json:"context,omitempty"`
	Options  *llm.RequestOptions `json:"options,omitempty"`
	Metadata llm.RequestMetadata `json:"metadata,omitempty"`
}

func (cr *completionRequest) toRequest() (llm.Request, error) {
	if cr.Prompt == "" {
		return llm.Request{}, fmt.Errorf("prompt is required")
	}
	req := llm.NewRequest(llm.TaskCategory(cr.Task), cr.Prompt)
	req.Context = cr.Context
	req.Metadata = cr.Metadata
	if cr.Options != nil {
		req.Options = *cr.Options
	}
	return req, nil
}

func completionHandler(orch *llm.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var cr completionRequest
		if err := json.NewDecoder(r.Body).Decode(&cr); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
			return
		}
		req, err := cr.toRequest()
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		start := time.Now()
		resp, err := orch.GenerateCompletion(r.Context(), req)
		if err != nil {
			slog.ErrorWithCode(req.Metadata.CallerID, req.ID, "Completion failed",
				statusForError(err), err, map[string]interface{}{"task": cr.Task})
			writeError(w, statusForError(err), err.Error())
			return
		}

		slog.InfoWithDuration(req.Metadata.CallerID, req.ID, "Completion served",
			float64(time.Since(start).Milliseconds()), map[string]interface{}{
				"backend": resp.Backend,
				"model":   resp.Model,
				"tokens":  resp.Usage.TotalTokens,
			})
		writeJSON(w, http.StatusOK, resp)
	}
}

// streamHandler serves completions over SSE: one "partial" event per chunk,
// then a single "done" event carrying the terminal response.
func streamHandler(orch *llm.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var cr completionRequest
		if err := json.NewDecoder(r.Body).Decode(&cr); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
			return
		}
		req, err := cr.toRequest()
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		req.Options.Stream = true

		flusher, ok := w.(http.Flusher)
		if !ok {
			writeError(w, http.StatusInternalServerError, "streaming not supported")
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		started := false
		terminal, err := orch.GenerateStream(r.Context(), req, func(partial *llm.Response) error {
			if !started {
				w.WriteHeader(http.StatusOK)
				started = true
			}
			return writeSSE(w, flusher, "partial", partial)
		})
		if err != nil {
			if !started {
				writeError(w, statusForError(err), err.Error())
				return
			}
			// Headers are gone; the error travels as a final SSE event.
			_ = writeSSE(w, flusher, "error", map[string]string{"error": err.Error()})
			return
		}
		_ = writeSSE(w, flusher, "done", terminal)
	}
}

func backendsHandler(orch *llm.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, orch.Snapshot())
	}
}

func writeSSE(w http.ResponseWriter, flusher http.Flusher, event string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

func statusForError(err error) int {
	switch llm.ErrorKindOf(err) {
	case llm.ErrKindInvalidRequest, llm.ErrKindModelNotFound:
		return http.StatusBadRequest
	case llm.ErrKindAuthFailed:
		return http.StatusUnauthorized
	case llm.ErrKindContentFiltered:
		return http.StatusUnprocessableEntity
	case llm.ErrKindRateLimited:
		return http.StatusTooManyRequests
	case llm.ErrKindTimeout:
		return http.StatusGatewayTimeout
	case llm.ErrKindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
