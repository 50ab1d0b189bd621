package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"finbot/internal/domain"
	"finbot/internal/metrics"
)

const maxCitations = 3

// Perplexity talks to the Perplexity API. It serves two roles: the search
// connector for intents that need fresh web context, and the text generator
// the formatter uses to phrase replies. Generation goes through the
// OpenAI-compatible chat endpoint; search uses a raw request because the
// citations array is a Perplexity extension the compatible surface omits.
type Perplexity struct {
	apiKey      string
	apiBase     string
	model       string
	temperature float64
	maxTokens   int
	client      *http.Client
	chat        *openai.Client
	throttle    *Throttle
	logger      *slog.Logger
}

type PerplexityConfig struct {
	APIKey      string
	APIBase     string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	Throttle    *Throttle
	Logger      *slog.Logger
}

func NewPerplexity(cfg PerplexityConfig) *Perplexity {
	if cfg.APIBase == "" {
		cfg.APIBase = "https://api.perplexity.ai"
	}
	if cfg.Model == "" {
		cfg.Model = "sonar"
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.3
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 400
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Throttle == nil {
		cfg.Throttle = NewThrottle(5)
	}

	chatCfg := openai.DefaultConfig(cfg.APIKey)
	chatCfg.BaseURL = cfg.APIBase

	return &Perplexity{
		apiKey:      cfg.APIKey,
		apiBase:     cfg.APIBase,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		client:      SharedHTTPClient(cfg.Timeout),
		chat:        openai.NewClientWithConfig(chatCfg),
		throttle:    cfg.Throttle,
		logger:      cfg.Logger,
	}
}

func (p *Perplexity) Name() string { return "Perplexity" }

// searchSystemPrompt keeps answers short enough to survive the SMS budget
// downstream and forces sourced, numeric answers.
const searchSystemPrompt = "Tu es un analyste financier. Réponds en français, " +
	"en 3 phrases maximum, avec les chiffres clés. Ne réponds que sur la base " +
	"de sources vérifiables."

type pplxRequest struct {
	Model       string        `json:"model"`
	Messages    []pplxMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

type pplxMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type pplxResponse struct {
	Choices []struct {
		Message pplxMessage `json:"message"`
	} `json:"choices"`
	Citations []string `json:"citations"`
}

// Search runs one search-and-summarize call and returns the summary with its
// citations already deduplicated, normalized and capped.
func (p *Perplexity) Search(ctx context.Context, query string, opts domain.SearchOptions) (*domain.SearchResult, error) {
	metrics.SearchRequests.Inc()
	maxTokens := opts.MaxTokens
	if maxTokens == 0 {
		maxTokens = p.maxTokens
	}
	temperature := opts.Temperature
	if temperature == 0 {
		temperature = p.temperature
	}

	body, err := json.Marshal(pplxRequest{
		Model: p.model,
		Messages: []pplxMessage{
			{Role: "system", Content: searchSystemPrompt},
			{Role: "user", Content: query},
		},
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return nil, err
	}

	endpoint := p.apiBase + "/chat/completions"
	if u, err := url.Parse(endpoint); err == nil {
		if err := p.throttle.Wait(ctx, u.Host); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("perplexity not reachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized {
		return nil, fmt.Errorf("perplexity: invalid API key")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("perplexity returned %d", resp.StatusCode)
	}

	var payload pplxResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("perplexity: decode: %w", err)
	}
	if len(payload.Choices) == 0 || strings.TrimSpace(payload.Choices[0].Message.Content) == "" {
		return nil, fmt.Errorf("perplexity: empty answer")
	}

	return &domain.SearchResult{
		Summary:   strings.TrimSpace(payload.Choices[0].Message.Content),
		Citations: NormalizeCitations(payload.Citations),
	}, nil
}

// Generate runs a plain chat completion for the formatter. The prompt is
// self-contained; no web search context is requested here.
func (p *Perplexity) Generate(ctx context.Context, prompt string, opts domain.GenerateOptions) (string, error) {
	maxTokens := opts.MaxTokens
	if maxTokens == 0 {
		maxTokens = p.maxTokens
	}
	temperature := opts.Temperature
	if temperature == 0 {
		temperature = p.temperature
	}

	if u, err := url.Parse(p.apiBase); err == nil {
		if err := p.throttle.Wait(ctx, u.Host); err != nil {
			return "", err
		}
	}

	resp, err := p.chat.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   maxTokens,
		Temperature: float32(temperature),
	})
	if err != nil {
		return "", fmt.Errorf("perplexity generate: %w", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", fmt.Errorf("perplexity generate: empty answer")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// NormalizeCitations rewrites citation URLs to host+path, drops duplicates
// while preserving first-seen order, and caps the list. Query strings and
// fragments are stripped because they are noise at SMS length.
func NormalizeCitations(raw []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, c := range raw {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		u, err := url.Parse(c)
		if err != nil || u.Host == "" {
			continue
		}
		normalized := strings.TrimPrefix(u.Host, "www.") + strings.TrimSuffix(u.Path, "/")
		if seen[normalized] {
			continue
		}
		seen[normalized] = true
		out = append(out, normalized)
		if len(out) == maxCitations {
			break
		}
	}
	return out
}
