// Package main implements the CareWell retrieval API server.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"

	"github.com/CareWellAI/carewell-mvp/engine/domain"
	"github.com/CareWellAI/carewell-mvp/engine/metadata"
	"github.com/CareWellAI/carewell-mvp/engine/rag"
	"github.com/CareWellAI/carewell-mvp/engine/rewrite"
	"github.com/CareWellAI/carewell-mvp/engine/semantic"
	"github.com/CareWellAI/carewell-mvp/pkg/embed"
	"github.com/CareWellAI/carewell-mvp/pkg/fn"
	"github.com/CareWellAI/carewell-mvp/pkg/metrics"
	"github.com/CareWellAI/carewell-mvp/pkg/mid"
	"github.com/CareWellAI/carewell-mvp/pkg/natsutil"
	"github.com/CareWellAI/carewell-mvp/pkg/resilience"
)

// Config holds all environment-based configuration.
type Config struct {
	Port         string
	IndexPath    string
	MetadataPath string
	EmbedBackend string // "ollama" or "openai"
	OllamaURL    string
	EmbedModel   string
	OpenAIKey    string
	NATSURL      string // empty disables decision events
	CORSOrigin   string
	RateRPS      float64
	RateBurst    int
}

func loadConfig() Config {
	return Config{
		Port:         envOr("PORT", "8080"),
		IndexPath:    envOr("INDEX_PATH", "data/chunks.index"),
		MetadataPath: envOr("METADATA_PATH", "data/chunks.db"),
		EmbedBackend: envOr("EMBED_BACKEND", "ollama"),
		OllamaURL:    envOr("OLLAMA_URL", "http://localhost:11434"),
		EmbedModel:   envOr("EMBED_MODEL", "nomic-embed-text"),
		OpenAIKey:    os.Getenv("OPENAI_API_KEY"),
		NATSURL:      os.Getenv("NATS_URL"),
		CORSOrigin:   envOr("CORS_ORIGIN", "*"),
		RateRPS:      envFloatOr("RATE_LIMIT_RPS", 10),
		RateBurst:    envIntOr("RATE_LIMIT_BURST", 20),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := loadConfig()

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Load index and metadata artifacts ---
	index, err := semantic.LoadFile(cfg.IndexPath)
	if err != nil {
		return fmt.Errorf("load index: %w", err)
	}
	meta, err := metadata.Open(cfg.MetadataPath)
	if err != nil {
		return fmt.Errorf("open metadata: %w", err)
	}
	logger.Info("artifacts loaded", "vectors", index.Len(), "chunks", meta.Len())

	// --- Build encoder ---
	var enc rag.Encoder
	switch cfg.EmbedBackend {
	case "openai":
		enc, err = embed.NewOpenAIEncoder(cfg.OpenAIKey, cfg.EmbedModel)
		if err != nil {
			return fmt.Errorf("openai encoder: %w", err)
		}
	case "ollama":
		enc = embed.NewOllamaEncoder(cfg.OllamaURL, cfg.EmbedModel)
	default:
		return fmt.Errorf("unknown EMBED_BACKEND %q", cfg.EmbedBackend)
	}
	enc = &breakerEncoder{
		inner:   enc,
		breaker: resilience.NewBreaker(resilience.DefaultBreakerOpts),
	}

	// Warm up the embedding backend before accepting queries. An encoder
	// that cannot embed at startup must not serve.
	if err := warmup(ctx, enc, fn.DefaultRetry); err != nil {
		return fmt.Errorf("encoder warmup: %w", err)
	}

	// --- Connect to NATS (optional) ---
	var nc *nats.Conn
	if cfg.NATSURL != "" {
		nc, err = nats.Connect(cfg.NATSURL)
		if err != nil {
			return fmt.Errorf("nats connect: %w", err)
		}
		defer nc.Close()
	}

	// --- Build router ---
	router := rag.New(enc, index, meta, rag.DefaultOptions(), logger)

	// --- Metrics ---
	reg := metrics.New()
	reg.Gauge("carewell_index_size", "Vectors in the loaded index.").Set(int64(index.Len()))
	srvMetrics := serverMetrics{
		reg:      reg,
		duration: reg.Histogram("carewell_search_duration_seconds", "End-to-end search latency.", nil),
	}

	// --- Build HTTP server ---
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", handleHealth)
	mux.Handle("GET /metrics", reg.Handler())
	mux.HandleFunc("POST /api/search", handleSearch(router, nc, srvMetrics, logger))

	handler := mid.Chain(mux,
		mid.Recover(logger),
		mid.RequestID(),
		mid.Logger(logger),
		mid.CORS(cfg.CORSOrigin),
		mid.OTel("carewell-api"),
		mid.RateLimit(cfg.RateRPS, cfg.RateBurst),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// --- Graceful shutdown ---
	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

// --- Handlers ---

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// searcher is the slice of rag.Router the handler needs.
type searcher interface {
	Search(ctx context.Context, query string, k int) (*rag.Decision, error)
}

type serverMetrics struct {
	reg      *metrics.Registry
	duration *metrics.Histogram
}

// SearchRequest is the JSON body for POST /api/search.
type SearchRequest struct {
	Query string `json:"query"`
	K     int    `json:"k,omitempty"`
}

// SearchResponse is the JSON response for POST /api/search.
type SearchResponse struct {
	QueryID        string             `json:"query_id"`
	Method         string             `json:"method"`
	Confidence     string             `json:"confidence"`
	Recommendation rag.Recommendation `json:"recommendation"`
	Results        []rag.Result       `json:"results"`
}

// DecisionEvent is published to NATS for each routed query.
type DecisionEvent struct {
	EventID        string             `json:"event_id"`
	QueryID        string             `json:"query_id"`
	Method         string             `json:"method"`
	Confidence     string             `json:"confidence"`
	Recommendation rag.Recommendation `json:"recommendation"`
	ResultCount    int                `json:"result_count"`
	DecidedAt      time.Time          `json:"decided_at"`
}

const decisionSubject = "carewell.decisions"

func handleSearch(svc searcher, nc *nats.Conn, m serverMetrics, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		var req SearchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
			return
		}
		if req.K == 0 {
			req.K = domain.DefaultTopK
		}
		if err := domain.ValidateQuery(domain.Query{Text: req.Query, K: req.K}); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		query := req.Query
		if rewritten, ok := rewrite.Rewrite(query); ok {
			logger.Info("query rewritten", "original", query, "rewritten", rewritten)
			query = rewritten
		}

		decision, err := svc.Search(r.Context(), query, req.K)
		if err != nil {
			logger.Error("search failed", "err", err, "request_id", mid.RequestIDFrom(r.Context()))
			if errors.Is(err, rag.ErrUnavailable) {
				writeError(w, http.StatusServiceUnavailable, "retrieval backend unavailable")
				return
			}
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}

		m.reg.Counter(metrics.WithLabels("carewell_queries_total", "method", decision.Method), "Total routed queries.").Inc()
		m.duration.Since(start)

		queryID := mid.RequestIDFrom(r.Context())
		if queryID == "" {
			queryID = uuid.NewString()
		}

		if nc != nil {
			evt := DecisionEvent{
				EventID:        uuid.NewString(),
				QueryID:        queryID,
				Method:         decision.Method,
				Confidence:     string(decision.Confidence),
				Recommendation: decision.Recommendation,
				ResultCount:    len(decision.Results),
				DecidedAt:      time.Now().UTC(),
			}
			if err := natsutil.Publish(r.Context(), nc, decisionSubject, evt); err != nil {
				logger.Warn("decision event publish failed", "err", err)
			}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(SearchResponse{
			QueryID:        queryID,
			Method:         decision.Method,
			Confidence:     string(decision.Confidence),
			Recommendation: decision.Recommendation,
			Results:        decision.Results,
		})
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// warmup proves the embedding backend can serve, retrying with backoff.
// It also pre-loads the model so the first query does not pay that penalty.
func warmup(ctx context.Context, enc rag.Encoder, opts fn.RetryOpts) error {
	result := fn.Retry(ctx, opts, func(ctx context.Context) fn.Result[[]float32] {
		return fn.FromPair(enc.Encode(ctx, "hello"))
	})
	_, err := result.Unwrap()
	return err
}

// --- Adapters ---

// breakerEncoder guards the embedding backend with a circuit breaker so a
// dead model server fails fast instead of queueing requests.
type breakerEncoder struct {
	inner   rag.Encoder
	breaker *resilience.Breaker
}

func (e *breakerEncoder) Encode(ctx context.Context, text string) ([]float32, error) {
	return resilience.CallResult(e.breaker, ctx, func(ctx context.Context) fn.Result[[]float32] {
		return fn.FromPair(e.inner.Encode(ctx, text))
	}).Unwrap()
}
