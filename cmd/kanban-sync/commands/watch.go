package commands

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func watchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <boardId>",
		Short: "Print the board every time it changes, until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			s, done, err := a.openSession(ctx, args[0])
			if err != nil {
				return err
			}
			defer done()

			out := cmd.OutOrStdout()
			if user := s.UserID(); user != "" {
				fmt.Fprintf(out, "Watching board %s as %s\n", args[0], user)
			}
			if !s.Live() {
				fmt.Fprintln(out, "Realtime relay unreachable; showing the board as loaded.")
			}
			changes, unsubscribe := s.Store().Watch()
			defer unsubscribe()
			for {
				if b, ok := s.Store().Board(); ok {
					renderBoard(out, b)
					fmt.Fprintln(out)
				}
				select {
				case <-ctx.Done():
					return nil
				case <-changes:
				}
			}
		},
	}
}
