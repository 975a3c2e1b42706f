package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/aivideotool/api/internal/config"
)

// maxPromptLength is the longest prompt sent to the image API
const maxPromptLength = 900

// ErrImagesNotConfigured is returned when no API key is set
var ErrImagesNotConfigured = errors.New("image generation API key not configured")

// ImageGenerator produces one image for a prompt and writes it to outputPath
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt, outputPath string) error
	IsConfigured() bool
}

// ImagesClient talks to an OpenAI-compatible /images/generations endpoint
type ImagesClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	size       string
}

var _ ImageGenerator = (*ImagesClient)(nil)

// ImageGenerationRequest is the request body for /images/generations
type ImageGenerationRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	N              int    `json:"n"`
	Size           string `json:"size,omitempty"`
	ResponseFormat string `json:"response_format"`
}

// ImageGenerationResponse is the response body for /images/generations
type ImageGenerationResponse struct {
	Created int64 `json:"created"`
	Data    []struct {
		B64JSON       string `json:"b64_json"`
		URL           string `json:"url"`
		RevisedPrompt string `json:"revised_prompt"`
	} `json:"data"`
}

func NewImagesClient(cfg *config.ImagesConfig) *ImagesClient {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &ImagesClient{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		size:    cfg.Size,
	}
}

// GenerateImage requests a single base64 image and writes the decoded bytes to outputPath
func (c *ImagesClient) GenerateImage(ctx context.Context, prompt, outputPath string) error {
	if !c.IsConfigured() {
		return ErrImagesNotConfigured
	}
	if len(prompt) > maxPromptLength {
		prompt = prompt[:maxPromptLength]
	}

	bodyBytes, err := json.Marshal(ImageGenerationRequest{
		Model:          c.model,
		Prompt:         prompt,
		N:              1,
		Size:           c.size,
		ResponseFormat: "b64_json",
	})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/images/generations", bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("images API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var imgResp ImageGenerationResponse
	if err := json.Unmarshal(respBody, &imgResp); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if len(imgResp.Data) == 0 || imgResp.Data[0].B64JSON == "" {
		return fmt.Errorf("no image in response")
	}

	data, err := base64.StdEncoding.DecodeString(imgResp.Data[0].B64JSON)
	if err != nil {
		return fmt.Errorf("failed to decode image: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}
	if err := os.WriteFile(outputPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write image: %w", err)
	}
	return nil
}

// IsConfigured returns true if the client has valid configuration
func (c *ImagesClient) IsConfigured() bool {
	return c.apiKey != ""
}
