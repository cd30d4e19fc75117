package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"kanban-sync/domain"
)

func boardsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "boards",
		Short: "List the boards you belong to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.requireToken(); err != nil {
				return err
			}
			boards, err := a.gw.ListBoards(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(boards) == 0 {
				fmt.Fprintln(out, "No boards yet.")
				return nil
			}
			for _, b := range boards {
				fmt.Fprintf(out, "%s  %s\n", b.ID, b.Name)
			}
			return nil
		},
	}
}

func boardCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "board",
		Short: "Create or show a board",
	}

	var description string
	create := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a board",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireToken(); err != nil {
				return err
			}
			b, err := a.gw.CreateBoard(cmd.Context(), args[0], description)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created board %s (%s)\n", b.Name, b.ID)
			return nil
		},
	}
	create.Flags().StringVarP(&description, "description", "d", "", "Board description")

	show := &cobra.Command{
		Use:   "show <boardId>",
		Short: "Print a board's lists and tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireToken(); err != nil {
				return err
			}
			b, err := a.gw.GetBoard(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			renderBoard(cmd.OutOrStdout(), b)
			return nil
		},
	}

	cmd.AddCommand(create, show)
	return cmd
}

func listCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Manage a board's lists",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "add <boardId> <name>",
		Short: "Append a list to a board",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, done, err := a.openSession(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer done()
			l, err := s.CreateList(cmd.Context(), args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created list %s (%s)\n", l.Name, l.ID)
			return nil
		},
	})
	return cmd
}

// renderBoard prints lists in board order with their tasks.
func renderBoard(w io.Writer, b domain.Board) {
	fmt.Fprintf(w, "%s (%s)\n", b.Name, b.ID)
	fmt.Fprintln(w, strings.Repeat("=", 40))
	if len(b.Lists) == 0 {
		fmt.Fprintln(w, "(no lists)")
		return
	}
	for _, l := range b.Lists {
		fmt.Fprintf(w, "\n%s [%d]  %s\n", l.Name, len(l.Tasks), l.ID)
		for _, t := range l.Tasks {
			line := fmt.Sprintf("  - %s  %s", t.Title, t.ID)
			if t.Status != "" && t.Status != l.Name {
				line += fmt.Sprintf("  (status: %s)", t.Status)
			}
			fmt.Fprintln(w, line)
		}
	}
}
