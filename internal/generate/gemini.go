package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"policyforge/api/internal/block"
)

const DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com"

const promptPrefix = `Return JSON array of blocks with {id,type,title?,content}; keep lists as arrays; professional corporate ESG tone.`

type GeminiConfig struct {
	APIKey          string
	Model           string
	BaseURL         string
	Temperature     float64
	MaxOutputTokens int
	Timeout         time.Duration
}

// Gemini generates blocks with the Gemini generateContent REST endpoint.
type Gemini struct {
	cfg        GeminiConfig
	httpClient *http.Client
	logger     *zap.Logger
	// validate, when set, checks the extracted array before it is used.
	validate func(any) error
}

type GeminiOption func(*Gemini)

// WithValidator checks every extracted block array; a failure is treated
// like unparseable output.
func WithValidator(v func(any) error) GeminiOption {
	return func(g *Gemini) { g.validate = v }
}

func WithHTTPClient(c *http.Client) GeminiOption {
	return func(g *Gemini) { g.httpClient = c }
}

func NewGemini(cfg GeminiConfig, logger *zap.Logger, opts ...GeminiOption) *Gemini {
	if cfg.Model == "" {
		cfg.Model = "gemini-1.5-flash"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultGeminiBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.MaxOutputTokens <= 0 {
		cfg.MaxOutputTokens = 8192
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Gemini{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents         []geminiContent `json:"contents"`
	GenerationConfig struct {
		Temperature      float64 `json:"temperature"`
		MaxOutputTokens  int     `json:"maxOutputTokens"`
		ResponseMimeType string  `json:"responseMimeType"`
	} `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

// Prompt is the instruction sent for topic.
func Prompt(topic string) string {
	return strings.Join([]string{
		promptPrefix,
		"",
		"Topic: " + topic,
		"",
		`Each block: { id: short string, type: "heading"|"paragraph"|"list", title?: string, content: string | string[] }`,
		"Only output valid JSON array; do not add explanations.",
	}, "\n")
}

func (g *Gemini) Generate(ctx context.Context, topic string) (Result, error) {
	text, err := g.call(ctx, Prompt(topic))
	if err != nil {
		g.logger.Error("gemini request failed", zap.String("model", g.cfg.Model), zap.Error(err))
		return Result{}, providerError("request", err)
	}

	raws, err := ExtractJSON(text)
	if err != nil {
		g.logger.Error("gemini response unparseable", zap.String("model", g.cfg.Model), zap.Error(err), zap.Int("response_bytes", len(text)))
		return Result{}, providerError("parse", err)
	}
	if g.validate != nil {
		if err := g.validate(rawsToAny(raws)); err != nil {
			g.logger.Error("gemini blocks failed validation", zap.String("model", g.cfg.Model), zap.Error(err))
			return Result{}, providerError("validate", err)
		}
	}
	return Result{Blocks: Finalize(raws), GeneratedBy: g.cfg.Model}, nil
}

func (g *Gemini) call(ctx context.Context, prompt string) (string, error) {
	var reqBody geminiRequest
	reqBody.Contents = []geminiContent{{Role: "user", Parts: []geminiPart{{Text: prompt}}}}
	reqBody.GenerationConfig.Temperature = g.cfg.Temperature
	reqBody.GenerationConfig.MaxOutputTokens = g.cfg.MaxOutputTokens
	reqBody.GenerationConfig.ResponseMimeType = "application/json"

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}
	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", g.cfg.BaseURL, url.PathEscape(g.cfg.Model))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", g.cfg.APIKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("gemini status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed geminiResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(parsed.Candidates) == 0 {
		return "", errors.New("no candidates in response")
	}
	var sb strings.Builder
	for _, part := range parsed.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	return sb.String(), nil
}

func rawsToAny(raws []block.Raw) []any {
	out := make([]any, len(raws))
	for i, r := range raws {
		out[i] = map[string]any(r)
	}
	return out
}
