package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/uplift-eval/ratekit/internal/api"
	"github.com/uplift-eval/ratekit/internal/cache"
	"github.com/uplift-eval/ratekit/internal/metrics"
	ratecore "github.com/uplift-eval/ratekit/internal/rate"
	"github.com/uplift-eval/ratekit/internal/results"
	"github.com/uplift-eval/ratekit/internal/wal"
	pkgotel "github.com/uplift-eval/ratekit/pkg/otel"
)

type Server struct {
	engine      *ratecore.Engine
	store       results.Store
	cache       *cache.ResultCache
	inboxWAL    *wal.InboxWAL
	metrics     *metrics.Metrics
	limiter     *rate.Limiter
	resultTTL   time.Duration
	metricsAuth struct {
		enabled  bool
		user     string
		password string
	}
}

func main() {
	params := api.DefaultEstimateParams()
	engine := ratecore.NewEngine(params)

	// Results store backend
	storeBackend := getEnv("RESULTS_BACKEND", "memory")
	var store results.Store
	var err error

	switch storeBackend {
	case "memory":
		snapshotPath := getEnv("RESULTS_SNAPSHOT", "data/results.json")
		store = results.NewMemoryStore(snapshotPath)
	case "redis":
		redisAddr := getEnv("REDIS_ADDR", "localhost:6379")
		store, err = results.NewRedisStore(redisAddr)
		if err != nil {
			log.Fatalf("Failed to create Redis store: %v", err)
		}
	case "postgres":
		connStr := getEnv("POSTGRES_CONN", "")
		store, err = results.NewPostgresStore(context.Background(), connStr)
		if err != nil {
			log.Fatalf("Failed to create Postgres store: %v", err)
		}
	default:
		log.Fatalf("Unknown RESULTS_BACKEND: %s", storeBackend)
	}

	// Inbox WAL
	walDir := getEnv("WAL_DIR", "data/wal")
	inboxWAL, err := wal.NewInboxWAL(walDir)
	if err != nil {
		log.Fatalf("Failed to create inbox WAL: %v", err)
	}

	// In-process result cache
	cacheSize := getEnvInt("CACHE_SIZE", 1024)
	resultCache, err := cache.NewResultCache(cacheSize, time.Hour)
	if err != nil {
		log.Fatalf("Failed to create result cache: %v", err)
	}

	// Tracing (optional)
	var tracerShutdown func()
	if getEnv("OTEL_ENABLED", "") == "true" {
		cfg := pkgotel.DefaultConfig("ratekit-server")
		cfg.CollectorEndpoint = getEnv("OTEL_COLLECTOR", cfg.CollectorEndpoint)
		tp, err := pkgotel.InitTracer(context.Background(), cfg)
		if err != nil {
			log.Fatalf("Failed to init tracing: %v", err)
		}
		tracerShutdown = func() {
			if err := pkgotel.Shutdown(context.Background(), tp); err != nil {
				log.Printf("Tracer shutdown error: %v", err)
			}
		}
	}

	m := metrics.New()

	tokenRate := getEnvInt("TOKEN_RATE", 100)
	limiter := rate.NewLimiter(rate.Limit(tokenRate), tokenRate*2)

	srv := &Server{
		engine:    engine,
		store:     store,
		cache:     resultCache,
		inboxWAL:  inboxWAL,
		metrics:   m,
		limiter:   limiter,
		resultTTL: params.ResultTTL,
	}

	srv.metricsAuth.enabled = getEnv("METRICS_USER", "") != ""
	srv.metricsAuth.user = getEnv("METRICS_USER", "")
	srv.metricsAuth.password = getEnv("METRICS_PASS", "")

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/rate/estimate", srv.handleEstimate)
	mux.HandleFunc("/v1/rate/compare", srv.handleCompare)
	mux.Handle("/metrics", srv.metricsHandler())
	mux.HandleFunc("/health", handleHealth)

	port := getEnv("PORT", "8080")
	httpServer := &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Printf("Starting server on port %s", port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-shutdown
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	if err := inboxWAL.Close(); err != nil {
		log.Printf("Error closing WAL: %v", err)
	}
	if err := store.Close(); err != nil {
		log.Printf("Error closing results store: %v", err)
	}
	if tracerShutdown != nil {
		tracerShutdown()
	}

	log.Println("Server stopped")
}

func (s *Server) handleEstimate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if !s.limiter.Allow() {
		w.Header().Set("Retry-After", "10")
		http.Error(w, "Too many requests", http.StatusTooManyRequests)
		return
	}

	s.metrics.EstimatesTotal.Inc()
	start := time.Now()

	body, err := io.ReadAll(io.LimitReader(r.Body, 64<<20))
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}

	// WAL append before parsing, for fault tolerance
	if err := s.inboxWAL.Append(body); err != nil {
		log.Printf("WAL append error: %v", err)
		s.metrics.WALErrors.Inc()
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	var req api.EstimateRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.metrics.EstimateErrors.Inc()
		http.Error(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}

	requestID := api.ComputeRequestID(&req)

	// In-process cache, then durable store
	if resp, ok := s.cache.Get(requestID); ok {
		s.metrics.CacheHits.Inc()
		writeJSON(w, http.StatusOK, resp)
		return
	}
	if resp, err := s.store.Get(r.Context(), requestID); err != nil {
		log.Printf("Results store read error: %v", err)
	} else if resp != nil {
		s.metrics.DedupHits.Inc()
		s.cache.Set(requestID, resp)
		writeJSON(w, http.StatusOK, resp)
		return
	}

	resp, err := s.engine.Estimate(r.Context(), &req)
	if err != nil {
		s.metrics.EstimateErrors.Inc()
		writeError(w, err)
		return
	}

	s.metrics.EstimatesByWeighting.WithLabelValues(resp.Result.Weighting).Inc()
	s.metrics.UnitsPerEstimate.Observe(float64(resp.Result.NumUnits))
	s.metrics.EstimateDuration.WithLabelValues(resp.Result.Weighting).Observe(time.Since(start).Seconds())

	s.cache.Set(requestID, resp)
	if err := s.store.Set(r.Context(), requestID, resp, s.resultTTL); err != nil {
		log.Printf("Results store write error: %v", err)
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if !s.limiter.Allow() {
		w.Header().Set("Retry-After", "10")
		http.Error(w, "Too many requests", http.StatusTooManyRequests)
		return
	}

	s.metrics.ComparesTotal.Inc()

	body, err := io.ReadAll(io.LimitReader(r.Body, 64<<20))
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}

	if err := s.inboxWAL.Append(body); err != nil {
		log.Printf("WAL append error: %v", err)
		s.metrics.WALErrors.Inc()
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	var req api.CompareRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}

	resp, err := s.engine.Compare(r.Context(), &req)
	if err != nil {
		s.metrics.EstimateErrors.Inc()
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// writeError maps the error taxonomy to HTTP status codes: shape and
// configuration errors are the caller's fault, degenerate statistics are
// unprocessable input.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, api.ErrInputShape), errors.Is(err, api.ErrConfig):
		status = http.StatusBadRequest
	case errors.Is(err, api.ErrDegenerateStats):
		status = http.StatusUnprocessableEntity
	}
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Response encode error: %v", err)
	}
}

func (s *Server) metricsHandler() http.Handler {
	promHandler := promhttp.Handler()
	if !s.metricsAuth.enabled {
		return promHandler
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != s.metricsAuth.user || pass != s.metricsAuth.password {
			w.Header().Set("WWW-Authenticate", `Basic realm="metrics"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		promHandler.ServeHTTP(w, r)
	})
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
