package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/vericloud/vericloud-fusion/internal/models"
)

// Client calls a running fusion service over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient targets baseURL (e.g. http://localhost:8000).
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Fuse posts a multipart request to /predict_fusion.
func (c *Client) Fuse(ctx context.Context, req models.FusionRequest) (models.FusionResult, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if req.Text != "" {
		if err := w.WriteField("text", req.Text); err != nil {
			return models.FusionResult{}, err
		}
	}
	if err := writeFile(w, "audio_file", req.Audio); err != nil {
		return models.FusionResult{}, err
	}
	if err := writeFile(w, "video_file", req.Video); err != nil {
		return models.FusionResult{}, err
	}
	if err := w.Close(); err != nil {
		return models.FusionResult{}, err
	}

	var out models.FusionResult
	err := c.do(ctx, http.MethodPost, "/predict_fusion", w.FormDataContentType(), &buf, &out)
	return out, err
}

// Score posts pre-computed modality outputs to /api/v1/fusion/score.
func (c *Client) Score(ctx context.Context, raw map[string]models.RawPrediction) (models.FusionResult, error) {
	body, err := json.Marshal(ScoreRequest{Results: raw})
	if err != nil {
		return models.FusionResult{}, err
	}
	var out models.FusionResult
	err = c.do(ctx, http.MethodPost, "/api/v1/fusion/score", "application/json", bytes.NewReader(body), &out)
	return out, err
}

// Health fetches /health.
func (c *Client) Health(ctx context.Context) (models.Health, error) {
	var out models.Health
	err := c.do(ctx, http.MethodGet, "/health", "", nil, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var e errorBody
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		if json.Unmarshal(data, &e) == nil && e.Detail != "" {
			return fmt.Errorf("fusion service returned %s: %s", resp.Status, e.Detail)
		}
		return fmt.Errorf("fusion service returned %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func writeFile(w *multipart.Writer, field string, a *models.Artifact) error {
	if a.Empty() {
		return nil
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, a.Filename))
	if a.ContentType != "" {
		header.Set("Content-Type", a.ContentType)
	} else {
		header.Set("Content-Type", "application/octet-stream")
	}
	part, err := w.CreatePart(header)
	if err != nil {
		return err
	}
	_, err = part.Write(a.Data)
	return err
}
