package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/vericloud/vericloud-fusion/internal/fusion"
	"github.com/vericloud/vericloud-fusion/internal/media"
	"github.com/vericloud/vericloud-fusion/internal/modality"
	"github.com/vericloud/vericloud-fusion/internal/models"
)

// Policy decides what happens when a mandatory modality is unavailable.
type Policy string

const (
	// PolicyDegrade fuses whatever succeeded.
	PolicyDegrade Policy = "degrade"
	// PolicyStrict requires both text and voice.
	PolicyStrict Policy = "strict"
)

var (
	// ErrValidation marks a request rejected before any downstream call.
	ErrValidation = errors.New("invalid fusion request")
	// ErrMandatoryUnavailable is returned under PolicyStrict when text or voice failed.
	ErrMandatoryUnavailable = errors.New("mandatory modality unavailable")
)

// ModalityObserver is notified once per downstream call.
type ModalityObserver func(m models.Modality, elapsed time.Duration, err error)

// Options configures an Engine.
type Options struct {
	Logger     *slog.Logger
	Calculator *fusion.Calculator
	Policy     Policy
	Predictors []modality.Predictor
	// Timeouts bounds each modality call independently. Zero leaves only the
	// predictor's own client timeout in force.
	Timeouts map[models.Modality]time.Duration
	Observer ModalityObserver
}

// Engine fans a request out to the modality services and fuses the answers.
type Engine struct {
	logger     *slog.Logger
	calculator *fusion.Calculator
	policy     Policy
	predictors map[models.Modality]modality.Predictor
	timeouts   map[models.Modality]time.Duration
	observer   ModalityObserver
	now        func() time.Time
	newID      func() string
}

// New constructs an Engine. A nil calculator uses the default weight table.
func New(opts Options) (*Engine, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	calc := opts.Calculator
	if calc == nil {
		calc = fusion.NewDefaultCalculator()
	}
	policy := opts.Policy
	if policy == "" {
		policy = PolicyDegrade
	}
	if policy != PolicyDegrade && policy != PolicyStrict {
		return nil, fmt.Errorf("unknown fusion policy %q", policy)
	}

	predictors := make(map[models.Modality]modality.Predictor, len(opts.Predictors))
	for _, p := range opts.Predictors {
		if p == nil {
			continue
		}
		if _, dup := predictors[p.Modality()]; dup {
			return nil, fmt.Errorf("duplicate predictor for %s", p.Modality())
		}
		predictors[p.Modality()] = p
	}

	timeouts := make(map[models.Modality]time.Duration, len(opts.Timeouts))
	for m, d := range opts.Timeouts {
		timeouts[m] = d
	}

	return &Engine{
		logger:     logger,
		calculator: calc,
		policy:     policy,
		predictors: predictors,
		timeouts:   timeouts,
		observer:   opts.Observer,
		now:        time.Now,
		newID:      func() string { return uuid.NewString() },
	}, nil
}

// Policy reports the configured policy.
func (e *Engine) Policy() Policy { return e.policy }

type call struct {
	modality models.Modality
	input    modality.Input
}

type outcome struct {
	result models.ModalityResult
	err    error
}

// Fuse validates req, queries every modality with an artifact present, and
// fuses the successful answers.
func (e *Engine) Fuse(ctx context.Context, req models.FusionRequest) (models.FusionResult, error) {
	calls, missing, err := e.plan(req)
	if err != nil {
		return models.FusionResult{}, err
	}

	outcomes := make([]outcome, len(calls))
	var g errgroup.Group
	for i, c := range calls {
		g.Go(func() error {
			result, err := e.invoke(ctx, c)
			outcomes[i] = outcome{result: result, err: err}
			return nil
		})
	}
	_ = g.Wait()

	results := make(map[models.Modality]models.ModalityResult, len(calls))
	failures := make(map[models.Modality]string, len(models.Modalities))
	for m, reason := range missing {
		failures[m] = reason
	}
	for i, c := range calls {
		o := outcomes[i]
		if o.err != nil {
			failures[c.modality] = o.err.Error()
			e.logger.Warn("modality prediction failed", "modality", c.modality, "error", o.err)
			continue
		}
		results[c.modality] = o.result
	}

	if e.policy == PolicyStrict {
		for _, m := range []models.Modality{models.ModalityText, models.ModalityVoice} {
			if _, ok := results[m]; !ok {
				return models.FusionResult{}, fmt.Errorf("%w: %s: %s", ErrMandatoryUnavailable, m, failures[m])
			}
		}
	}

	fused, err := e.calculator.Calculate(results)
	if err != nil {
		if errors.Is(err, fusion.ErrNoData) {
			return models.FusionResult{}, fmt.Errorf("%w: %s", fusion.ErrNoData, summarize(failures))
		}
		return models.FusionResult{}, err
	}
	e.stamp(&fused)
	if len(failures) > 0 {
		fused.Errors = failures
	}
	return fused, nil
}

// Score fuses pre-computed modality outputs, normalising raw labels first.
func (e *Engine) Score(raw map[string]models.RawPrediction) (models.FusionResult, error) {
	if len(raw) == 0 {
		return models.FusionResult{}, fmt.Errorf("%w: no modality results supplied", ErrValidation)
	}
	results := make(map[models.Modality]models.ModalityResult, len(raw))
	for name, prediction := range raw {
		m, err := models.ParseModality(name)
		if err != nil {
			return models.FusionResult{}, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		if _, dup := results[m]; dup {
			return models.FusionResult{}, fmt.Errorf("%w: duplicate modality %s", ErrValidation, m)
		}
		normalized, err := prediction.Normalize()
		if err != nil {
			return models.FusionResult{}, fmt.Errorf("%w: %s: %v", ErrValidation, m, err)
		}
		results[m] = normalized
	}

	fused, err := e.calculator.Calculate(results)
	if err != nil {
		return models.FusionResult{}, err
	}
	e.stamp(&fused)
	return fused, nil
}

// plan validates the request and builds the downstream calls. Missing text
// or audio is reported back so it can appear in the result's errors map.
func (e *Engine) plan(req models.FusionRequest) ([]call, map[models.Modality]string, error) {
	text := strings.TrimSpace(req.Text)
	hasText := text != ""
	hasAudio := !req.Audio.Empty()
	hasVideo := !req.Video.Empty()

	if !hasText && !hasAudio {
		return nil, nil, fmt.Errorf("%w: text or audio_file is required", ErrValidation)
	}
	if e.policy == PolicyStrict && !(hasText && hasAudio) {
		return nil, nil, fmt.Errorf("%w: strict policy requires both text and audio_file", ErrValidation)
	}
	if hasAudio {
		if err := media.ValidateFor(models.ModalityVoice, req.Audio); err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
	}
	if hasVideo {
		if err := media.ValidateFor(models.ModalityFace, req.Video); err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
	}

	missing := make(map[models.Modality]string)
	calls := make([]call, 0, len(models.Modalities))
	if hasText {
		calls = append(calls, call{modality: models.ModalityText, input: modality.Input{Text: text}})
	} else {
		missing[models.ModalityText] = "no text provided"
	}
	if hasAudio {
		calls = append(calls, call{modality: models.ModalityVoice, input: modality.Input{Artifact: req.Audio}})
	} else {
		missing[models.ModalityVoice] = "no audio file provided"
	}
	if hasVideo {
		calls = append(calls, call{modality: models.ModalityFace, input: modality.Input{Artifact: req.Video}})
	}
	return calls, missing, nil
}

func (e *Engine) invoke(ctx context.Context, c call) (models.ModalityResult, error) {
	predictor, ok := e.predictors[c.modality]
	if !ok {
		return models.ModalityResult{}, fmt.Errorf("%s service not configured", c.modality)
	}

	callCtx := ctx
	if d := e.timeouts[c.modality]; d > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	start := time.Now()
	result, err := predictor.Predict(callCtx, c.input)
	if err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("%s service timed out after %s: %w", c.modality, e.timeouts[c.modality], err)
	}
	if e.observer != nil {
		e.observer(c.modality, time.Since(start), err)
	}
	return result, err
}

func (e *Engine) stamp(r *models.FusionResult) {
	r.AnalysisID = e.newID()
	r.CreatedAt = e.now().UTC()
}

func summarize(failures map[models.Modality]string) string {
	parts := make([]string, 0, len(failures))
	for _, m := range models.Modalities {
		if reason, ok := failures[m]; ok {
			parts = append(parts, fmt.Sprintf("%s: %s", m, reason))
		}
	}
	if len(parts) == 0 {
		return "no modality answered"
	}
	return strings.Join(parts, "; ")
}
