package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/eddiefleurent/schrute_spreads/internal/advisor"
)

// runChat is the advisor REPL: each line becomes a conversation turn, with
// the model calling back into the engine through its tools.
func (a *App) runChat(ctx context.Context, in io.Reader) error {
	if a.config.Advisor.APIKey == "" {
		return fmt.Errorf("advisor.api_key is required for chat mode")
	}

	client := advisor.NewClient(a.config.Advisor.APIKey, a.config.Advisor.Model,
		a.config.Advisor.MaxTokens, a.logger)
	registry := advisor.NewRegistry(a.provider, a.engine, a.builder, a.store,
		a.config.Technical.HistoryDays, defaultTargetDTE)
	session := advisor.NewSession(client, registry, a.logger)

	fmt.Fprintf(a.out, "Chatting with %s. Ask about spreads or open positions; 'exit' quits.\n",
		a.config.Advisor.Model)

	scanner := bufio.NewScanner(in)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		fmt.Fprint(a.out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(a.out)
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return nil
		}

		reply, err := session.Turn(ctx, line)
		if err != nil {
			fmt.Fprintf(a.out, "error: %v\n", err)
			continue
		}
		fmt.Fprintf(a.out, "%s\n\n", reply)
	}
}
