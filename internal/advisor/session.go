package advisor

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
)

// maxToolRounds bounds how many tool round-trips one user turn may take
// before the session gives up, so a confused model cannot loop forever.
const maxToolRounds = 8

const systemPrompt = `You are a trading assistant specialized in bull call debit spreads on US equity options.
You have tools for live quotes, spread recommendations and position assessment; call them instead of guessing at prices or numbers.
Quote the tool numbers exactly. Be direct about risk: these are defined-risk positions, and the cost basis is the maximum loss.
Keep answers short and concrete. You give analysis, not financial advice, and you never place orders.`

// Session is one conversation with the model: the accumulated history, the
// system prompt and the tool registry. It is not safe for concurrent use;
// drive it from a single REPL loop.
type Session struct {
	client   *Client
	registry *Registry
	system   string
	history  []Message
	logger   *log.Logger
}

// NewSession starts an empty conversation.
func NewSession(client *Client, registry *Registry, logger *log.Logger) *Session {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Session{
		client:   client,
		registry: registry,
		system:   systemPrompt,
		logger:   logger,
	}
}

// Turn sends one user message, resolves any tool calls the model makes and
// returns its final text. Tool failures are reported back to the model as
// error results, so a dead provider degrades the answer instead of killing
// the conversation. If the API call itself fails, the history rolls back so
// the turn can be retried.
func (s *Session) Turn(ctx context.Context, userText string) (string, error) {
	start := len(s.history)
	s.history = append(s.history, TextMessage("user", userText))

	for round := 0; round < maxToolRounds; round++ {
		resp, err := s.client.CreateMessage(ctx, s.system, s.history, s.registry.Definitions())
		if err != nil {
			s.history = s.history[:start]
			return "", err
		}
		s.history = append(s.history, Message{Role: "assistant", Content: resp.Content})

		if resp.StopReason != "tool_use" {
			return collectText(resp.Content), nil
		}

		results := s.runTools(ctx, resp.Content)
		if len(results) == 0 {
			// stop_reason claimed tool_use but no tool_use blocks came back
			return collectText(resp.Content), nil
		}
		s.history = append(s.history, Message{Role: "user", Content: results})
	}
	return "", fmt.Errorf("model did not finish within %d tool rounds", maxToolRounds)
}

// History returns the conversation so far, mostly for tests and debugging.
func (s *Session) History() []Message {
	return s.history
}

func (s *Session) runTools(ctx context.Context, blocks []ContentBlock) []ContentBlock {
	var results []ContentBlock
	for _, block := range blocks {
		if block.Type != "tool_use" {
			continue
		}
		result := ContentBlock{Type: "tool_result", ToolUseID: block.ID}
		content, err := s.registry.Execute(ctx, block.Name, block.Input)
		if err != nil {
			s.logger.Printf("Tool %s failed: %v", block.Name, err)
			result.Content = err.Error()
			result.IsError = true
		} else {
			result.Content = content
		}
		results = append(results, result)
	}
	return results
}

func collectText(blocks []ContentBlock) string {
	var parts []string
	for _, block := range blocks {
		if block.Type == "text" && block.Text != "" {
			parts = append(parts, block.Text)
		}
	}
	return strings.Join(parts, "\n")
}
