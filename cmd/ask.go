package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newAskCmd() *cobra.Command {
	var prompt string

	cmd := &cobra.Command{
		Use:   "ask",
		Short: "Send a single prompt non-interactively",
		Example: `  cabinwatch ask -P "summarize: drowsiness alert at 14:02, driver alone"
  cabinwatch ask --prompt "is two occupants in a parked cabin unusual?"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if prompt == "" {
				return fmt.Errorf("--prompt / -P is required")
			}
			return askOnce(prompt)
		},
	}

	cmd.Flags().StringVarP(&prompt, "prompt", "P", "", "the prompt to send")
	cmd.MarkFlagRequired("prompt")

	return cmd
}

// askOnce runs one prompt through a throwaway session and exits.
func askOnce(prompt string) error {
	cfg := initConfig()

	orch, err := buildOrchestrator(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sess := orch.Sessions().Create()
	defer orch.CloseSession(sess.ID)

	reply, err := orch.HandleBuffered(ctx, sess.ID, prompt)
	if err != nil {
		return err
	}

	fmt.Println(reply.Text)
	return nil
}
