// Package modality talks to the per-channel inference services (text, voice,
// face) and normalises their answers into models.ModalityResult.
package modality

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/vericloud/vericloud-fusion/internal/media"
	"github.com/vericloud/vericloud-fusion/internal/models"
)

const maxErrorBody = 4 << 10

// Input is what a predictor forwards upstream. Text clients read Text; file
// clients read Artifact.
type Input struct {
	Text     string
	Artifact *models.Artifact
}

// Predictor returns one modality's verdict for an input.
type Predictor interface {
	Modality() models.Modality
	Predict(ctx context.Context, in Input) (models.ModalityResult, error)
}

// UpstreamError is returned when a modality service answers with a non-2xx status.
type UpstreamError struct {
	Modality   models.Modality
	StatusCode int
	Detail     string
}

func (e *UpstreamError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s service returned %d", e.Modality, e.StatusCode)
	}
	return fmt.Sprintf("%s service returned %d: %s", e.Modality, e.StatusCode, e.Detail)
}

// TextClient posts transcripts to the text classifier as a urlencoded form.
type TextClient struct {
	endpoint   string
	httpClient *http.Client
}

// NewTextClient constructs a text client with its own request timeout.
func NewTextClient(endpoint string, timeout time.Duration) *TextClient {
	return &TextClient{
		endpoint:   strings.TrimSpace(endpoint),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Modality implements Predictor.
func (c *TextClient) Modality() models.Modality { return models.ModalityText }

// Endpoint returns the configured URL.
func (c *TextClient) Endpoint() string { return c.endpoint }

// Predict sends in.Text to the text service.
func (c *TextClient) Predict(ctx context.Context, in Input) (models.ModalityResult, error) {
	if c == nil {
		return models.ModalityResult{}, fmt.Errorf("text client not initialised")
	}
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return models.ModalityResult{}, fmt.Errorf("no text provided")
	}

	form := url.Values{"text": {text}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return models.ModalityResult{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return do(c.httpClient, req, models.ModalityText)
}

// FileClient uploads an artifact as the multipart field "file". Voice and face
// services share this contract.
type FileClient struct {
	modality   models.Modality
	endpoint   string
	httpClient *http.Client
}

// NewFileClient constructs a file-upload client for modality m.
func NewFileClient(m models.Modality, endpoint string, timeout time.Duration) *FileClient {
	return &FileClient{
		modality:   m,
		endpoint:   strings.TrimSpace(endpoint),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Modality implements Predictor.
func (c *FileClient) Modality() models.Modality { return c.modality }

// Endpoint returns the configured URL.
func (c *FileClient) Endpoint() string { return c.endpoint }

// Predict uploads in.Artifact to the service.
func (c *FileClient) Predict(ctx context.Context, in Input) (models.ModalityResult, error) {
	if c == nil {
		return models.ModalityResult{}, fmt.Errorf("file client not initialised")
	}
	if in.Artifact.Empty() {
		return models.ModalityResult{}, fmt.Errorf("no %s file provided", c.modality)
	}

	body, contentType, err := multipartBody(in.Artifact)
	if err != nil {
		return models.ModalityResult{}, fmt.Errorf("encode upload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return models.ModalityResult{}, err
	}
	req.Header.Set("Content-Type", contentType)
	return do(c.httpClient, req, c.modality)
}

func multipartBody(a *models.Artifact) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	filename := a.Filename
	if filename == "" {
		filename = "upload"
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	header.Set("Content-Type", media.ContentType(a))

	part, err := w.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(a.Data); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

func do(client *http.Client, req *http.Request, m models.Modality) (models.ModalityResult, error) {
	if req.URL == nil || req.URL.Host == "" {
		return models.ModalityResult{}, fmt.Errorf("%s endpoint not configured", m)
	}
	resp, err := client.Do(req)
	if err != nil {
		return models.ModalityResult{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return models.ModalityResult{}, &UpstreamError{
			Modality:   m,
			StatusCode: resp.StatusCode,
			Detail:     errorDetail(resp.Body),
		}
	}

	var raw models.RawPrediction
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return models.ModalityResult{}, fmt.Errorf("decode %s response: %w", m, err)
	}
	result, err := raw.Normalize()
	if err != nil {
		return models.ModalityResult{}, fmt.Errorf("undefined %s output: %w", m, err)
	}
	return result, nil
}

// errorDetail pulls FastAPI's {"detail": ...} out of an error body, falling
// back to the raw text.
func errorDetail(body io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(body, maxErrorBody))
	var payload struct {
		Detail any `json:"detail"`
	}
	if err := json.Unmarshal(data, &payload); err == nil && payload.Detail != nil {
		if s, ok := payload.Detail.(string); ok {
			return s
		}
		if encoded, err := json.Marshal(payload.Detail); err == nil {
			return string(encoded)
		}
	}
	return strings.TrimSpace(string(data))
}
