package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"ai-portrait-studio/internal/dataurl"
)

const (
	DefaultModel       = "gemini-2.5-flash-image"
	DefaultAspectRatio = "3:4"

	outputMimeType = "image/png"
)

var ErrNoImageReturned = errors.New("gemini: no image data found in response")

// UpstreamError reports a transport or service failure; Message is the
// upstream's own explanation when one was available.
type UpstreamError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("gemini API %d: %s", e.StatusCode, e.Message)
	}
	return "gemini: " + e.Message
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

type Options struct {
	APIKey      string
	BaseURL     string
	APIVersion  string
	Model       string
	AspectRatio string
	HTTPClient  *http.Client
	Logger      *slog.Logger
}

type Client struct {
	apiKey      string
	baseURL     string
	apiVersion  string
	model       string
	aspectRatio string
	httpClient  *http.Client
	logger      *slog.Logger
}

func New(opts Options) *Client {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com"
	}

	apiVersion := strings.TrimSpace(opts.APIVersion)
	if apiVersion == "" {
		apiVersion = "v1beta"
	}

	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = DefaultModel
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Client{
		apiKey:      opts.APIKey,
		baseURL:     baseURL,
		apiVersion:  apiVersion,
		model:       model,
		aspectRatio: strings.TrimSpace(opts.AspectRatio),
		httpClient:  httpClient,
		logger:      logger,
	}
}

// Generate sends the source image and the style instruction in a single
// request and returns the first image of the reply as a PNG data URL.
func (c *Client) Generate(ctx context.Context, sourceImage, stylePrompt string) (string, error) {
	mimeType, payload, err := dataurl.Parse(sourceImage)
	if err != nil {
		return "", fmt.Errorf("gemini: source image: %w", err)
	}

	req := generateContentRequest{
		Contents: []content{{
			Role: "user",
			Parts: []part{
				{InlineData: &blob{Data: payload, MimeType: mimeType}},
				{Text: stylePrompt},
			},
		}},
		GenerationConfig: generationConfig{
			ResponseModalities: []string{"IMAGE", "TEXT"},
		},
	}
	if c.aspectRatio != "" {
		req.GenerationConfig.ImageConfig = &imageConfig{AspectRatio: c.aspectRatio}
	}

	start := time.Now()
	resp, err := c.generateContent(ctx, req)
	if err != nil {
		c.logger.Warn("generate failed", "model", c.model, "dur_ms", time.Since(start).Milliseconds(), "err", err)
		return "", err
	}

	image, ok := firstImage(resp)
	if !ok {
		c.logger.Warn("generate returned no image", "model", c.model, "text", truncate(responseText(resp), 200))
		return "", ErrNoImageReturned
	}

	c.logger.Debug("generate done", "model", c.model, "dur_ms", time.Since(start).Milliseconds())
	return dataurl.FromBase64(outputMimeType, image), nil
}

func (c *Client) generateContent(ctx context.Context, payload generateContentRequest) (generateContentResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return generateContentResponse{}, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/%s/models/%s:generateContent", c.baseURL, c.apiVersion, c.model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return generateContentResponse{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("content-type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return generateContentResponse{}, &UpstreamError{Message: err.Error(), Err: err}
	}
	defer httpResp.Body.Close()

	rawBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return generateContentResponse{}, &UpstreamError{Message: "read response: " + err.Error(), Err: err}
	}

	if httpResp.StatusCode >= 400 {
		return generateContentResponse{}, &UpstreamError{
			StatusCode: httpResp.StatusCode,
			Message:    errorMessage(rawBody, httpResp.Status),
		}
	}

	var decoded generateContentResponse
	if err := json.Unmarshal(rawBody, &decoded); err != nil {
		return generateContentResponse{}, &UpstreamError{Message: "decode response: " + err.Error(), Err: err}
	}
	return decoded, nil
}

func firstImage(resp generateContentResponse) (string, bool) {
	if len(resp.Candidates) == 0 {
		return "", false
	}
	for _, p := range resp.Candidates[0].Content.Parts {
		if p.InlineData != nil && p.InlineData.Data != "" {
			return p.InlineData.Data, true
		}
	}
	return "", false
}

func responseText(resp generateContentResponse) string {
	if len(resp.Candidates) == 0 {
		return ""
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	return b.String()
}

func errorMessage(body []byte, status string) string {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && strings.TrimSpace(envelope.Error.Message) != "" {
		return strings.TrimSpace(envelope.Error.Message)
	}
	if text := strings.TrimSpace(string(body)); text != "" {
		return truncate(text, 500)
	}
	return status
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

type generateContentRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig,omitempty"`
}

type generationConfig struct {
	ResponseModalities []string     `json:"responseModalities,omitempty"`
	ImageConfig        *imageConfig `json:"imageConfig,omitempty"`
}

type imageConfig struct {
	AspectRatio string `json:"aspectRatio,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text       string `json:"text,omitempty"`
	InlineData *blob  `json:"inlineData,omitempty"`
}

type blob struct {
	Data     string `json:"data"`
	MimeType string `json:"mimeType"`
}

type generateContentResponse struct {
	Candidates []candidate `json:"candidates"`
}

type candidate struct {
	Content content `json:"content"`
}
