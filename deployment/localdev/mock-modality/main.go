// Command mock-modality stands in for the text, voice and face inference
// services during local development. Verdicts are derived from a hash of the
// payload so repeated uploads get repeated answers.
package main

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"flag"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/vericloud/vericloud-fusion/internal/utils"
)

func main() {
	var addr string
	var delay time.Duration
	flag.StringVar(&addr, "addr", ":8001", "Listen address")
	flag.DurationVar(&delay, "delay", 0, "Artificial latency added to every prediction")
	flag.Parse()

	logger := utils.NewLogger("info", "text").With("component", "mock-modality")

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Post("/predict_text", func(w http.ResponseWriter, r *http.Request) {
		text := r.FormValue("text")
		if text == "" {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"detail": "field 'text' is required"})
			return
		}
		sleep(r, delay)
		label, conf := verdict([]byte(text))
		writeJSON(w, http.StatusOK, map[string]any{"prediction": textLabel(label), "confidence": conf})
	})
	r.Post("/predict", func(w http.ResponseWriter, r *http.Request) {
		file, _, err := r.FormFile("file")
		if err != nil {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"detail": "field 'file' is required"})
			return
		}
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"detail": err.Error()})
			return
		}
		sleep(r, delay)
		label, conf := verdict(data)
		// the voice model reports percentages
		writeJSON(w, http.StatusOK, map[string]any{"prediction": label, "confidence": conf * 100})
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           logRequests(logger, r),
		ReadHeaderTimeout: 5 * time.Second,
	}
	logger.Info("listening", slog.String("address", addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", slog.Any("error", err))
		os.Exit(1)
	}
}

// verdict maps payload bytes onto a stable label and a confidence in [0.5, 1).
func verdict(data []byte) (string, float64) {
	sum := sha256.Sum256(data)
	n := binary.BigEndian.Uint64(sum[:8])
	conf := 0.5 + float64(n%500)/1000
	if n%2 == 0 {
		return "Deceptive", conf
	}
	return "Truthful", conf
}

func textLabel(label string) string {
	if label == "Deceptive" {
		return "Lie"
	}
	return "Truth"
}

func sleep(r *http.Request, d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-time.After(d):
	case <-r.Context().Done():
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func logRequests(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logger.Info("request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("elapsed", time.Since(start)),
		)
	})
}
