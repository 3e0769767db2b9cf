package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/cmclachlan/confab/llm"
)

const (
	// followUpExchanges is how many recent text-only turns feed the prompt.
	followUpExchanges = 4
	// followUpTurnLimit caps the text taken from each turn.
	followUpTurnLimit = 500
	// followUpAttempts bounds retries on rate-limit errors.
	followUpAttempts = 3
	// followUpRetryStep is the linear backoff increment (5s, then 10s).
	followUpRetryStep = 5 * time.Second
)

// linearBackOff yields step, 2*step, ... up to a fixed attempt count, then
// stops. cenkalti/backoff only ships exponential and constant policies.
type linearBackOff struct {
	step    time.Duration
	max     int
	attempt int
}

var _ backoff.BackOff = (*linearBackOff)(nil)

func (b *linearBackOff) NextBackOff() time.Duration {
	b.attempt++
	if b.attempt >= b.max {
		return backoff.Stop
	}
	return b.step * time.Duration(b.attempt)
}

func (b *linearBackOff) Reset() { b.attempt = 0 }

// HasCapacityForFollowUps reports whether enough of the request window is
// free to spend a request on optional follow-up generation. The gate is
// soft: usage must sit below 60% of the configured rate.
func (e *Engine) HasCapacityForFollowUps() bool {
	return float64(e.ledger.Usage()) < 0.6*float64(e.ledger.RPM())
}

// GenerateFollowUps asks the provider for three short follow-up questions
// based on the recent conversation. Every failure mode degrades to an empty
// list: rate limits are retried with linear backoff, anything else aborts
// immediately, and unparseable replies are discarded.
func (e *Engine) GenerateFollowUps(ctx context.Context) []string {
	prompt := e.buildFollowUpPrompt()
	if prompt == "" {
		return []string{}
	}

	policy := &linearBackOff{step: followUpRetryStep, max: followUpAttempts}
	for {
		e.ledger.Record()
		reply, err := e.provider.GenerateOnce(ctx, prompt)
		if err == nil {
			return parseFollowUps(reply)
		}
		if !llm.IsRateLimitError(err) {
			e.logger.Debug().Err(err).Msg("Follow-up generation failed")
			return []string{}
		}

		delay := policy.NextBackOff()
		if delay == backoff.Stop {
			e.logger.Debug().Err(err).Msg("Follow-up generation gave up after rate-limit retries")
			return []string{}
		}
		e.logger.Debug().Dur("delay", delay).Msg("Follow-up generation rate limited, retrying")
		if sleepErr := e.sleep(ctx, delay); sleepErr != nil {
			return []string{}
		}
	}
}

// buildFollowUpPrompt summarizes the last few text-only exchanges into a
// single-turn prompt. Returns "" when the conversation has no usable text.
func (e *Engine) buildFollowUpPrompt() string {
	var turns []string
	for i := len(e.history) - 1; i >= 0 && len(turns) < followUpExchanges; i-- {
		msg := e.history[i]
		if !msg.IsTextOnly() {
			continue
		}
		text := msg.TextContent()
		if text == "" {
			continue
		}
		if len(text) > followUpTurnLimit {
			text = text[:followUpTurnLimit]
		}
		speaker := "User"
		if msg.Role == llm.RoleModel {
			speaker = "Assistant"
		}
		turns = append(turns, fmt.Sprintf("%s: %s", speaker, text))
	}
	if len(turns) == 0 {
		return ""
	}
	// Restore chronological order.
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}

	var sb strings.Builder
	sb.WriteString("Here is the end of a conversation:\n\n")
	sb.WriteString(strings.Join(turns, "\n"))
	sb.WriteString("\n\nSuggest exactly 3 short follow-up questions the user might ask next. ")
	sb.WriteString(`Reply with only a JSON array of 3 strings, e.g. ["...", "...", "..."].`)
	return sb.String()
}

// parseFollowUps extracts the first JSON array found in the reply. Any parse
// failure yields an empty list.
func parseFollowUps(reply string) []string {
	raw := firstJSONArray(reply)
	if raw == "" {
		return []string{}
	}

	var questions []string
	if err := json.Unmarshal([]byte(raw), &questions); err != nil {
		return []string{}
	}
	out := make([]string, 0, len(questions))
	for _, q := range questions {
		if trimmed := strings.TrimSpace(q); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// firstJSONArray returns the first balanced bracket-delimited slice of reply,
// skipping brackets inside JSON string literals. Prose after the array, even
// prose containing brackets, is left behind.
func firstJSONArray(reply string) string {
	start := strings.Index(reply, "[")
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(reply); i++ {
		c := reply[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return reply[start : i+1]
			}
		}
	}
	return ""
}
