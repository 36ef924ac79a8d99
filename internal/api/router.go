package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/vericloud/vericloud-fusion/internal/models"
)

// FusionAPI is the service surface the HTTP handlers need.
type FusionAPI interface {
	Fuse(ctx context.Context, req models.FusionRequest) (models.FusionResult, error)
	Score(ctx context.Context, raw map[string]models.RawPrediction) (models.FusionResult, error)
	Health() models.Health
}

// RouterOptions tunes the HTTP surface.
type RouterOptions struct {
	Logger         *slog.Logger
	AllowedOrigins []string
	MaxUploadBytes int64
}

// NewRouter builds the chi router serving the fusion HTTP API.
func NewRouter(svc FusionAPI, opts RouterOptions) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	maxUpload := opts.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = 50 << 20
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog(logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	h := &handlers{svc: svc, logger: logger, maxUpload: maxUpload}
	r.Get("/health", h.health)
	r.Post("/predict_fusion", h.predictFusion)
	r.Route("/api/v1/fusion", func(r chi.Router) {
		r.Post("/predict", h.predictFusion)
		r.Post("/score", h.score)
	})
	return r
}

// accessLog writes one structured line per request.
func accessLog(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Info("http request",
				slog.String("request_id", middleware.GetReqID(r.Context())),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Int("bytes", ww.BytesWritten()),
				slog.Duration("elapsed", time.Since(start)),
			)
		})
	}
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// errorBody mirrors FastAPI's {"detail": ...} error shape.
type errorBody struct {
	Detail string `json:"detail"`
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorBody{Detail: message})
}
