package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

const (
	// PolicyDegrade fuses whichever modalities answered.
	PolicyDegrade = "degrade"
	// PolicyStrict requires both text and voice to answer.
	PolicyStrict = "strict"
)

// Config captures everything needed to boot the fusion service.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Modalities ModalitiesConfig `yaml:"modalities"`
	Fusion     FusionConfig     `yaml:"fusion"`
	Logging    LoggingConfig    `yaml:"logging"`
	Cache      CacheConfig      `yaml:"cache"`
}

// ServerConfig controls the HTTP, gRPC and metrics listeners.
type ServerConfig struct {
	HTTPAddress     string        `yaml:"httpAddress"`
	GRPCAddress     string        `yaml:"grpcAddress"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
	MaxUploadBytes  int64         `yaml:"maxUploadBytes"`
	AllowedOrigins  []string      `yaml:"allowedOrigins"`
}

// ModalitiesConfig groups the upstream modality services.
type ModalitiesConfig struct {
	Text  EndpointConfig `yaml:"text"`
	Voice EndpointConfig `yaml:"voice"`
	Face  EndpointConfig `yaml:"face"`
}

// EndpointConfig addresses one modality service. URL is the full predict URL.
type EndpointConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// WeightsConfig is one row of the weight table.
type WeightsConfig struct {
	Text  float64 `yaml:"text"`
	Voice float64 `yaml:"voice"`
	Face  float64 `yaml:"face"`
}

// FusionConfig controls the scoring rule and the missing-modality policy.
type FusionConfig struct {
	Policy         string        `yaml:"policy"`
	Threshold      float64       `yaml:"threshold"`
	HighConfidence float64       `yaml:"highConfidence"`
	Weights        WeightsConfig `yaml:"weights"`
	WeightsNoFace  WeightsConfig `yaml:"weightsWithoutFace"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// CacheConfig controls caching of per-artifact modality predictions.
// Backend is "memory" or "valkey". MaxRetries counts retries after the
// first attempt.
type CacheConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Backend       string        `yaml:"backend"`
	Addr          string        `yaml:"addr"`
	Username      string        `yaml:"username"`
	Password      string        `yaml:"password"`
	DB            int           `yaml:"db"`
	DialTimeout   time.Duration `yaml:"dialTimeout"`
	ReadTimeout   time.Duration `yaml:"readTimeout"`
	WriteTimeout  time.Duration `yaml:"writeTimeout"`
	MaxRetries    int           `yaml:"maxRetries"`
	TLS           bool          `yaml:"tls"`
	PredictionTTL time.Duration `yaml:"predictionTTL"`
}

// Load initialises Config from a YAML or TOML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("VERICLOUD_FUSION_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := decode(path, data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// decode reads YAML directly. TOML is first parsed into a generic tree and
// re-encoded as YAML so both formats share one set of struct tags and the
// "5s"-style duration parsing of yaml.v3.
func decode(path string, data []byte, cfg *Config) error {
	if strings.ToLower(filepath.Ext(path)) != ".toml" {
		return yaml.Unmarshal(data, cfg)
	}
	var tree map[string]any
	if err := toml.Unmarshal(data, &tree); err != nil {
		return err
	}
	converted, err := yaml.Marshal(tree)
	if err != nil {
		return fmt.Errorf("convert toml: %w", err)
	}
	return yaml.Unmarshal(converted, cfg)
}

// Validate reports configuration that would make the service misbehave.
func (c *Config) Validate() error {
	var errs []error

	switch c.Fusion.Policy {
	case PolicyDegrade, PolicyStrict:
	default:
		errs = append(errs, fmt.Errorf("fusion.policy must be %q or %q, got %q", PolicyDegrade, PolicyStrict, c.Fusion.Policy))
	}
	if c.Fusion.Threshold <= 0 || c.Fusion.Threshold >= 1 {
		errs = append(errs, fmt.Errorf("fusion.threshold must be within (0,1), got %v", c.Fusion.Threshold))
	}
	if math.IsNaN(c.Fusion.HighConfidence) || c.Fusion.HighConfidence < 0 || c.Fusion.HighConfidence > 1 {
		errs = append(errs, fmt.Errorf("fusion.highConfidence must be within [0,1], got %v", c.Fusion.HighConfidence))
	}
	if err := checkWeights("fusion.weights", c.Fusion.Weights, true); err != nil {
		errs = append(errs, err)
	}
	if err := checkWeights("fusion.weightsWithoutFace", c.Fusion.WeightsNoFace, false); err != nil {
		errs = append(errs, err)
	}

	endpoints := map[string]EndpointConfig{
		"text":  c.Modalities.Text,
		"voice": c.Modalities.Voice,
		"face":  c.Modalities.Face,
	}
	for name, ep := range endpoints {
		if ep.URL == "" {
			continue
		}
		if u, err := url.Parse(ep.URL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("modalities.%s.url %q is not an absolute URL", name, ep.URL))
		}
		if ep.Timeout <= 0 {
			errs = append(errs, fmt.Errorf("modalities.%s.timeout must be positive", name))
		}
	}

	if c.Cache.Enabled {
		switch c.Cache.Backend {
		case "memory":
		case "valkey":
			if c.Cache.Addr == "" {
				errs = append(errs, errors.New("cache.addr is required for the valkey backend"))
			}
		default:
			errs = append(errs, fmt.Errorf("cache.backend must be memory or valkey, got %q", c.Cache.Backend))
		}
	}

	return errors.Join(errs...)
}

func checkWeights(name string, w WeightsConfig, withFace bool) error {
	values := []float64{w.Text, w.Voice}
	if withFace {
		values = append(values, w.Face)
	} else if w.Face != 0 {
		return fmt.Errorf("%s.face must be zero", name)
	}
	sum := 0.0
	for _, v := range values {
		if v < 0 || math.IsNaN(v) {
			return fmt.Errorf("%s contains a negative weight", name)
		}
		sum += v
	}
	if math.Abs(sum-1) > 1e-6 {
		return fmt.Errorf("%s must sum to 1, got %.4f", name, sum)
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			HTTPAddress:     ":8000",
			GRPCAddress:     ":50051",
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
			MaxUploadBytes:  50 << 20,
			AllowedOrigins:  []string{"*"},
		},
		Modalities: ModalitiesConfig{
			Text:  EndpointConfig{URL: "http://localhost:8001/predict_text", Timeout: 30 * time.Second},
			Voice: EndpointConfig{URL: "http://localhost:8002/predict", Timeout: 60 * time.Second},
			Face:  EndpointConfig{URL: "http://localhost:8003/predict", Timeout: 90 * time.Second},
		},
		Fusion: FusionConfig{
			Policy:         PolicyDegrade,
			Threshold:      0.5,
			HighConfidence: 0.7,
			Weights:        WeightsConfig{Text: 0.40, Voice: 0.40, Face: 0.20},
			WeightsNoFace:  WeightsConfig{Text: 0.50, Voice: 0.50},
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Cache: CacheConfig{
			Enabled:       false,
			Backend:       "memory",
			DialTimeout:   2 * time.Second,
			ReadTimeout:   500 * time.Millisecond,
			WriteTimeout:  500 * time.Millisecond,
			MaxRetries:    2,
			PredictionTTL: 10 * time.Minute,
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("VERICLOUD_HTTP_ADDRESS"); v != "" {
		cfg.Server.HTTPAddress = v
	}
	if v := os.Getenv("PORT"); v != "" && os.Getenv("VERICLOUD_HTTP_ADDRESS") == "" {
		cfg.Server.HTTPAddress = ":" + v
	}
	if v := os.Getenv("VERICLOUD_GRPC_ADDRESS"); v != "" {
		cfg.Server.GRPCAddress = v
	}
	if v := os.Getenv("VERICLOUD_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("VERICLOUD_MAX_UPLOAD_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Server.MaxUploadBytes = n
		}
	}
	if v := os.Getenv("VERICLOUD_ALLOWED_ORIGINS"); v != "" {
		cfg.Server.AllowedOrigins = splitList(v)
	}

	// TEXT_API / VOICE_API / FACE_API match the names the modality
	// deployments already publish.
	if v := firstEnv("VERICLOUD_TEXT_URL", "TEXT_API"); v != "" {
		cfg.Modalities.Text.URL = v
	}
	if v := firstEnv("VERICLOUD_VOICE_URL", "VOICE_API"); v != "" {
		cfg.Modalities.Voice.URL = v
	}
	if v := firstEnv("VERICLOUD_FACE_URL", "FACE_API"); v != "" {
		cfg.Modalities.Face.URL = v
	}
	if d, ok := envDuration("VERICLOUD_TEXT_TIMEOUT"); ok {
		cfg.Modalities.Text.Timeout = d
	}
	if d, ok := envDuration("VERICLOUD_VOICE_TIMEOUT"); ok {
		cfg.Modalities.Voice.Timeout = d
	}
	if d, ok := envDuration("VERICLOUD_FACE_TIMEOUT"); ok {
		cfg.Modalities.Face.Timeout = d
	}

	if v := os.Getenv("VERICLOUD_FUSION_POLICY"); v != "" {
		cfg.Fusion.Policy = strings.ToLower(v)
	}
	if v := os.Getenv("VERICLOUD_FUSION_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Fusion.Threshold = f
		}
	}

	if v := os.Getenv("VERICLOUD_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("VERICLOUD_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = strings.ToLower(v)
	}

	if v := os.Getenv("VERICLOUD_CACHE_ENABLED"); v != "" {
		cfg.Cache.Enabled = isTrue(v)
	}
	if v := os.Getenv("VERICLOUD_CACHE_BACKEND"); v != "" {
		cfg.Cache.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("VERICLOUD_CACHE_ADDR"); v != "" {
		cfg.Cache.Addr = v
	}
	if v := os.Getenv("VERICLOUD_CACHE_USERNAME"); v != "" {
		cfg.Cache.Username = v
	}
	if v := os.Getenv("VERICLOUD_CACHE_PASSWORD"); v != "" {
		cfg.Cache.Password = v
	}
	if v := os.Getenv("VERICLOUD_CACHE_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Cache.DB = db
		}
	}
	if v := os.Getenv("VERICLOUD_CACHE_TLS"); isTrue(v) {
		cfg.Cache.TLS = true
	}
	if d, ok := envDuration("VERICLOUD_CACHE_PREDICTION_TTL"); ok {
		cfg.Cache.PredictionTTL = d
	}
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return ""
}

func envDuration(key string) (time.Duration, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, false
	}
	return d, true
}

func isTrue(v string) bool {
	return strings.EqualFold(v, "true") || v == "1"
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
