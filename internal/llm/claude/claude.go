package claude

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
	Source           = "claude"
	defaultEndpoint  = "https://api.anthropic.com/v1/messages"
	anthropicVersion = "2023-06-01"
)

// ClaudeDecider implements the Decider interface using Anthropic Claude API
type ClaudeDecider struct {
	cfg      *store.Config
	client   *api.Client
	endpoint string
	apiKey   string
	retry    *api.RetryConfig
}

var _ interfaces.Decider = (*ClaudeDecider)(nil)

// NewClaudeDecider reads CLAUDE_API_KEY. A proxy endpoint can be set via
// llm.endpoint or CLAUDE_API_ENDPOINT.
func NewClaudeDecider(cfg *store.Config) *ClaudeDecider {
	endpoint := defaultEndpoint
	if cfg.LLM.Endpoint != "" {
		endpoint = cfg.LLM.Endpoint
	}
	if ep := os.Getenv("CLAUDE_API_ENDPOINT"); ep != "" {
		endpoint = ep
	}
	client := api.NewClient(
		api.WithTimeout(cfg.DecisionTimeout()),
		api.WithRateLimit(cfg.LLM.RatePerMinute),
		api.WithHeader("anthropic-version", anthropicVersion),
		api.WithLogging(true),
	)
	return &ClaudeDecider{
		cfg:      cfg,
		client:   client,
		endpoint: endpoint,
		apiKey:   os.Getenv("CLAUDE_API_KEY"),
		retry:    api.DefaultRetryConfig(),
	}
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

func (d *ClaudeDecider) Decide(ctx context.Context, req types.DecisionRequest) (types.Decision, error) {
	ctx, span := trace.StartSpan(ctx, "claude-api-call")
	defer span.End()

	if d.apiKey == "" {
		return types.Decision{}, errors.New("CLAUDE_API_KEY missing")
	}

	prompt, err := llm.BuildPrompt(d.cfg.LLM.Schema, req)
	if err != nil {
		return types.Decision{}, err
	}
	system := d.cfg.LLM.System
	if system == "" {
		system = llm.DefaultSystemPrompt
	}

	body := map[string]any{
		"model":       d.cfg.LLM.Model,
		"system":      system,
		"messages":    []map[string]string{{"role": "user", "content": prompt}},
		"max_tokens":  d.cfg.LLM.MaxTokens,
		"temperature": d.cfg.LLM.Temperature,
	}

	// Retries stop when ctx ends, so the decision deadline bounds them.
	httpReq := api.NewRequest(http.MethodPost, d.endpoint).
		WithContext(ctx).
		WithBody(body).
		WithHeader("x-api-key", d.apiKey)
	resp, err := d.client.DoWithRetry(httpReq, d.retry)
	if err != nil {
		return types.Decision{}, fmt.Errorf("claude: %w", err)
	}

	var r messagesResponse
	if err := resp.ParseJSON(&r); err != nil {
		return types.Decision{}, fmt.Errorf("%w: %v", llm.ErrMalformedDecision, err)
	}

	var text strings.Builder
	for _, c := range r.Content {
		if c.Type == "text" {
			text.WriteString(c.Text)
		}
	}
	if text.Len() == 0 {
		return types.Decision{}, fmt.Errorf("%w: empty content (stop_reason=%s)", llm.ErrMalformedDecision, r.StopReason)
	}

	dec, err := llm.ParseDecision(text.String())
	if err != nil {
		return types.Decision{}, err
	}
	dec.Source = Source
	return dec, nil
}
