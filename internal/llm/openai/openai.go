package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"llm-paper-trader/internal/api"
	"llm-paper-trader/internal/interfaces"
	"llm-paper-trader/internal/llm"
	"llm-paper-trader/internal/store"
	"llm-paper-trader/internal/trace"
	"llm-paper-trader/internal/types"
)

const (
	Source          = "openai"
	defaultEndpoint = "https://api.openai.com/v1/chat/completions"
	defaultModel    = "gpt-4o-mini"
)

type OpenAIDecider struct {
	cfg      *store.Config
	client   *api.Client
	endpoint string
	apiKey   string
	retry    *api.RetryConfig
}

var _ interfaces.Decider = (*OpenAIDecider)(nil)

// NewOpenAIDecider reads OPENAI_API_KEY from the environment. The endpoint
// comes from llm.endpoint or OPENAI_API_ENDPOINT.
func NewOpenAIDecider(cfg *store.Config) *OpenAIDecider {
	endpoint := defaultEndpoint
	if cfg.LLM.Endpoint != "" {
		endpoint = cfg.LLM.Endpoint
	}
	if ep := os.Getenv("OPENAI_API_ENDPOINT"); ep != "" {
		endpoint = ep
	}
	client := api.NewClient(
		api.WithTimeout(cfg.DecisionTimeout()),
		api.WithRateLimit(cfg.LLM.RatePerMinute),
		api.WithLogging(true),
	)
	return &OpenAIDecider{
		cfg:      cfg,
		client:   client,
		endpoint: endpoint,
		apiKey:   os.Getenv("OPENAI_API_KEY"),
		retry:    api.DefaultRetryConfig(),
	}
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (d *OpenAIDecider) Decide(ctx context.Context, req types.DecisionRequest) (types.Decision, error) {
	ctx, span := trace.StartSpan(ctx, "openai-api-call")
	defer span.End()

	if d.apiKey == "" {
		return types.Decision{}, errors.New("OPENAI_API_KEY missing")
	}

	prompt, err := llm.BuildPrompt(d.cfg.LLM.Schema, req)
	if err != nil {
		return types.Decision{}, err
	}
	system := d.cfg.LLM.System
	if system == "" {
		system = llm.DefaultSystemPrompt
	}
	model := d.cfg.LLM.Model
	if model == "" {
		model = defaultModel
	}

	body := map[string]any{
		"model": model,
		"messages": []map[string]string{
			{"role": "system", "content": system},
			{"role": "user", "content": prompt},
		},
		"temperature":     d.cfg.LLM.Temperature,
		"max_tokens":      d.cfg.LLM.MaxTokens,
		"response_format": map[string]string{"type": "json_object"},
	}

	// Retries stop when ctx ends, so the decision deadline bounds them.
	httpReq := api.NewRequest(http.MethodPost, d.endpoint).
		WithContext(ctx).
		WithBody(body).
		WithHeader("Authorization", "Bearer "+d.apiKey)
	resp, err := d.client.DoWithRetry(httpReq, d.retry)
	if err != nil {
		return types.Decision{}, fmt.Errorf("openai: %w", err)
	}

	var r chatResponse
	if err := resp.ParseJSON(&r); err != nil {
		return types.Decision{}, fmt.Errorf("%w: %v", llm.ErrMalformedDecision, err)
	}
	if len(r.Choices) == 0 {
		return types.Decision{}, fmt.Errorf("%w: no choices", llm.ErrMalformedDecision)
	}

	dec, err := llm.ParseDecision(strings.TrimSpace(r.Choices[0].Message.Content))
	if err != nil {
		return types.Decision{}, err
	}
	dec.Source = Source
	return dec, nil
}
