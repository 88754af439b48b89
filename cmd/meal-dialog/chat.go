package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"mcp-meal-dialog/internal/dialog"
	"mcp-meal-dialog/internal/models"
)

var (
	chatCatalog string
	chatLang    string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Log a meal interactively in the terminal",
	Long: `Starts a terminal conversation with the dialog engine. Nothing is
stored; resolved foods are printed as they are logged.

Commands:
  /state   print the conversation state as JSON
  /reset   start a new meal
  /quit    exit`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		engine, err := buildEngine(ctx, cfg, chatCatalog, logger)
		if err != nil {
			return err
		}
		lang := chatLang
		if lang == "" {
			lang = cfg.Engine.Language
		}
		return chat(ctx, engine, lang, os.Stdin, os.Stdout)
	},
}

// chat runs the REPL. The state goes through JSON between turns, the same
// way a stateless caller would hold it.
func chat(ctx context.Context, engine *dialog.Engine, lang string, in io.Reader, out io.Writer) error {
	newState := func() []byte {
		b, _ := json.Marshal(models.NewConversationState(uuid.NewString(), uuid.NewString(), lang))
		return b
	}
	saved := newState()

	scanner := bufio.NewScanner(in)
	fmt.Fprint(out, "> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
		case "/quit", "/exit":
			return nil
		case "/reset":
			saved = newState()
			fmt.Fprintln(out, "(new meal)")
		case "/state":
			fmt.Fprintln(out, string(saved))
		default:
			var st models.ConversationState
			if err := json.Unmarshal(saved, &st); err != nil {
				return fmt.Errorf("failed to decode state: %w", err)
			}
			res := engine.ProcessMessage(ctx, st, line)
			b, err := json.Marshal(res.State)
			if err != nil {
				return fmt.Errorf("failed to encode state: %w", err)
			}
			saved = b
			printTurn(out, res)
		}
		fmt.Fprint(out, "> ")
	}
	return scanner.Err()
}

func printTurn(out io.Writer, res dialog.TurnResult) {
	for _, it := range res.ResolvedItems {
		fmt.Fprintf(out, "  + %s %.0f g\n", it.Name, it.PortionGrams)
	}
	for _, id := range res.RemovedItemIDs {
		fmt.Fprintf(out, "  - %s\n", id)
	}
	fmt.Fprintln(out, res.Message)
	if res.Question != nil {
		for _, o := range res.Question.Options {
			fmt.Fprintf(out, "  [%s] %s\n", o.Key, o.Label)
		}
	}
}
