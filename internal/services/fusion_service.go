package services

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vericloud/vericloud-fusion/internal/engine"
	"github.com/vericloud/vericloud-fusion/internal/fusion"
	"github.com/vericloud/vericloud-fusion/internal/grpc/fusionv1"
	"github.com/vericloud/vericloud-fusion/internal/metrics"
	"github.com/vericloud/vericloud-fusion/internal/models"
	"github.com/vericloud/vericloud-fusion/internal/utils"
)

// Upstreams names the modality endpoints reported by Health.
type Upstreams struct {
	Text  string
	Voice string
	Face  string
}

// FusionService is the transport-neutral facade over the fusion engine.
type FusionService struct {
	logger    *slog.Logger
	engine    *engine.Engine
	upstreams Upstreams
	latencies *utils.LatencyTracker
}

// NewFusionService constructs the facade.
func NewFusionService(logger *slog.Logger, eng *engine.Engine, upstreams Upstreams) *FusionService {
	if logger == nil {
		logger = slog.Default()
	}
	return &FusionService{
		logger:    logger,
		engine:    eng,
		upstreams: upstreams,
		latencies: utils.NewLatencyTracker(1024),
	}
}

// Fuse runs a full fusion. Errors are *utils.AppError carrying the HTTP
// status they map to.
func (s *FusionService) Fuse(ctx context.Context, req models.FusionRequest) (models.FusionResult, error) {
	if s.engine == nil {
		return models.FusionResult{}, utils.NewAppError("fusion.Fuse", http.StatusServiceUnavailable, "engine not configured", nil)
	}

	start := time.Now()
	result, err := s.engine.Fuse(ctx, req)
	s.observe("fuse", time.Since(start), result, err)
	if err != nil {
		return models.FusionResult{}, classify("fusion.Fuse", err)
	}

	s.logger.Info("fusion complete",
		slog.String("analysis_id", result.AnalysisID),
		slog.String("prediction", string(result.FinalPrediction)),
		slog.Float64("score", result.FinalScore),
		slog.Int("modalities", len(result.Breakdown)),
		slog.Int("failed", len(result.Errors)),
	)
	return result, nil
}

// Score fuses caller-supplied modality outputs without any downstream call.
func (s *FusionService) Score(_ context.Context, raw map[string]models.RawPrediction) (models.FusionResult, error) {
	if s.engine == nil {
		return models.FusionResult{}, utils.NewAppError("fusion.Score", http.StatusServiceUnavailable, "engine not configured", nil)
	}

	start := time.Now()
	result, err := s.engine.Score(raw)
	s.observe("score", time.Since(start), result, err)
	if err != nil {
		return models.FusionResult{}, classify("fusion.Score", err)
	}
	return result, nil
}

// Health reports configured upstreams and policy.
func (s *FusionService) Health() models.Health {
	h := models.Health{
		Status:   "healthy",
		TextAPI:  s.upstreams.Text,
		VoiceAPI: s.upstreams.Voice,
		FaceAPI:  s.upstreams.Face,
	}
	if s.engine == nil {
		h.Status = "degraded"
		return h
	}
	h.Policy = string(s.engine.Policy())
	return h
}

// LatencyP95 returns the current p95 fusion latency.
func (s *FusionService) LatencyP95() time.Duration {
	return s.latencies.Percentile(95)
}

// GRPC returns the gRPC binding of the service.
func (s *FusionService) GRPC() fusionv1.FusionServer {
	return grpcBinding{svc: s}
}

func (s *FusionService) observe(op string, d time.Duration, result models.FusionResult, err error) {
	metrics.ObserveFusion(op, d, outcomeOf(err), result.FinalPrediction)
	if err != nil {
		s.logger.Warn("fusion failed", slog.String("operation", op), slog.Any("error", err))
		return
	}
	if total := s.latencies.Observe(d); total%20 == 0 {
		s.logger.Info("fusion latency",
			slog.String("operation", op),
			slog.Duration("p95", s.latencies.Percentile(95)),
			slog.Uint64("samples", total),
		)
	}
}

func classify(op string, err error) *utils.AppError {
	switch {
	case errors.Is(err, engine.ErrValidation),
		errors.Is(err, models.ErrUnknownLabel),
		errors.Is(err, models.ErrInvalidConfidence):
		return utils.NewAppError(op, http.StatusBadRequest, "invalid request", err)
	case errors.Is(err, engine.ErrMandatoryUnavailable):
		return utils.NewAppError(op, http.StatusBadGateway, "required modality unavailable", err)
	case errors.Is(err, fusion.ErrNoData):
		return utils.NewAppError(op, http.StatusServiceUnavailable, "no modality data available", err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return utils.NewAppError(op, http.StatusGatewayTimeout, "request cancelled", err)
	default:
		return utils.NewAppError(op, http.StatusInternalServerError, "fusion failed", err)
	}
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case errors.Is(err, engine.ErrValidation), errors.Is(err, models.ErrUnknownLabel), errors.Is(err, models.ErrInvalidConfidence):
		return metrics.OutcomeInvalid
	case errors.Is(err, engine.ErrMandatoryUnavailable), errors.Is(err, fusion.ErrNoData):
		return metrics.OutcomeUnavailable
	default:
		return metrics.OutcomeError
	}
}

// grpcStatus converts a classified error into a gRPC status.
func grpcStatus(err error) error {
	code := codes.Internal
	switch utils.StatusOf(err) {
	case http.StatusBadRequest:
		code = codes.InvalidArgument
	case http.StatusBadGateway:
		code = codes.Unavailable
	case http.StatusServiceUnavailable:
		code = codes.FailedPrecondition
	case http.StatusGatewayTimeout:
		code = codes.DeadlineExceeded
	}
	return status.Error(code, utils.MessageOf(err))
}

type grpcBinding struct {
	svc *FusionService
}

func (b grpcBinding) Fuse(ctx context.Context, in *fusionv1.FuseRequest) (*models.FusionResult, error) {
	if in == nil {
		return nil, status.Error(codes.InvalidArgument, "request cannot be nil")
	}
	result, err := b.svc.Fuse(ctx, models.FusionRequest{
		Text:  in.Text,
		Audio: in.Audio.ToArtifact(),
		Video: in.Video.ToArtifact(),
	})
	if err != nil {
		return nil, grpcStatus(err)
	}
	return &result, nil
}

func (b grpcBinding) Score(ctx context.Context, in *fusionv1.ScoreRequest) (*models.FusionResult, error) {
	if in == nil {
		return nil, status.Error(codes.InvalidArgument, "request cannot be nil")
	}
	result, err := b.svc.Score(ctx, in.Results)
	if err != nil {
		return nil, grpcStatus(err)
	}
	return &result, nil
}
