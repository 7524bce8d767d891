package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"llm-paper-trader/internal/types"
)

// ErrMalformedDecision is returned when a reasoning service answers with
// something that is not a usable decision.
var ErrMalformedDecision = errors.New("malformed decision")

const DefaultSystemPrompt = `You are an aggressive but disciplined intraday trading agent on one instrument.
You see the current bar's open and volume; its close is unknown until the bar ends.
All fills happen at the open. Long-only, integer shares, never short.
Use up to 90% of capital, at most 50% of cash in a single buy. Cut losses near -2%,
take partial profits above +3%, and size more aggressively when your recent win rate is high.`

const DefaultSchema = `{"action":"BUY|SELL|HOLD","qty":<int >= 0>,"reason":"<short rationale>","confidence":<0..1>}`

// BuildPrompt renders the user message sent alongside the system prompt.
func BuildPrompt(schema string, req types.DecisionRequest) (string, error) {
	if schema == "" {
		schema = DefaultSchema
	}
	state, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal decision request: %w", err)
	}
	return fmt.Sprintf("You will receive state as JSON. Respond ONLY with compact JSON matching the schema.\nSchema:%s\nState:%s", schema, state), nil
}

// ParseDecision extracts the first JSON object from text and validates it.
// Unknown actions, negative quantities and missing objects are all
// ErrMalformedDecision.
func ParseDecision(text string) (types.Decision, error) {
	t := strings.TrimSpace(text)
	t = strings.TrimPrefix(t, "```json")
	t = strings.TrimPrefix(t, "```")
	t = strings.TrimSuffix(t, "```")

	start := strings.Index(t, "{")
	end := strings.LastIndex(t, "}")
	if start < 0 || end <= start {
		return types.Decision{}, fmt.Errorf("%w: no JSON object in %q", ErrMalformedDecision, truncate(text, 120))
	}

	var raw struct {
		Action     string   `json:"action"`
		Qty        *float64 `json:"qty"`
		Quantity   *float64 `json:"quantity"`
		Reason     string   `json:"reason"`
		Rationale  string   `json:"rationale"`
		Confidence float64  `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(t[start:end+1]), &raw); err != nil {
		return types.Decision{}, fmt.Errorf("%w: %v", ErrMalformedDecision, err)
	}

	d := types.Decision{
		Action:     strings.ToUpper(strings.TrimSpace(raw.Action)),
		Reason:     raw.Reason,
		Confidence: raw.Confidence,
	}
	if d.Reason == "" {
		d.Reason = raw.Rationale
	}
	switch d.Action {
	case types.ActionBuy, types.ActionSell, types.ActionHold:
	default:
		return types.Decision{}, fmt.Errorf("%w: unknown action %q", ErrMalformedDecision, raw.Action)
	}

	qty := raw.Qty
	if qty == nil {
		qty = raw.Quantity
	}
	if qty != nil {
		if *qty < 0 || *qty != math.Trunc(*qty) {
			return types.Decision{}, fmt.Errorf("%w: qty %v is not a non-negative integer", ErrMalformedDecision, *qty)
		}
		d.Qty = int(*qty)
	}
	if d.Action != types.ActionHold && d.Qty == 0 {
		return types.Decision{}, fmt.Errorf("%w: %s without quantity", ErrMalformedDecision, d.Action)
	}
	if d.Confidence < 0 || d.Confidence > 1 {
		d.Confidence = 0
	}
	return d, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
