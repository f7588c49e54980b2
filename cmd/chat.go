package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cabinwatch/cabinwatch/internal/orchestrator"
)

func newChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Interactive chat against the configured provider",
		Long: "Opens a local REPL on the same session pipeline the HTTP API uses:\n" +
			"history, context windowing, rate limits and retries included.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat()
		},
	}
}

func runChat() error {
	cfg := initConfig()

	orch, err := buildOrchestrator(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sess := orch.Sessions().Create()
	defer orch.CloseSession(sess.ID)

	fmt.Printf("cabinwatch chat (provider %s, model %s)\n", orch.Provider().Name(), orch.Provider().Model())
	fmt.Println("Type a message and press enter. /quit or Ctrl+D exits.")

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			break
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if text == "/quit" || text == "/exit" {
			break
		}

		updates, err := orch.Handle(ctx, sess.ID, text)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}
		for u := range updates {
			switch u.Type {
			case orchestrator.UpdateChunk:
				fmt.Print(u.Chunk)
			case orchestrator.UpdateDone:
				fmt.Printf("\n[%d in / %d out tokens]\n", u.Usage.InputTokens, u.Usage.OutputTokens)
			case orchestrator.UpdateError:
				fmt.Fprintf(os.Stderr, "\nerror: %v\n", u.Err)
			}
		}
		if ctx.Err() != nil {
			break
		}
	}

	fmt.Println(orch.Usage().Summary())
	return scanner.Err()
}
