package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"kanban-sync/domain"
)

func taskCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Create, edit, move and delete tasks",
	}
	cmd.AddCommand(taskAddCmd(a), taskEditCmd(a), taskMoveCmd(a), taskRmCmd(a))
	return cmd
}

func taskAddCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "add <boardId> <listId> <title>",
		Short: "Add a task to a list",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, done, err := a.openSession(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer done()
			t, err := s.CreateTask(cmd.Context(), args[1], args[2])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created task %s (%s)\n", t.Title, t.ID)
			return nil
		},
	}
}

func taskEditCmd(a *app) *cobra.Command {
	var title, description, status string
	cmd := &cobra.Command{
		Use:   "edit <boardId> <taskId>",
		Short: "Change a task's title, description or status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var p domain.TaskPatch
			if cmd.Flags().Changed("title") {
				p.Title = domain.String(title)
			}
			if cmd.Flags().Changed("description") {
				p.Description = domain.String(description)
			}
			if cmd.Flags().Changed("status") {
				p.Status = domain.String(status)
			}
			if p.Empty() {
				return fmt.Errorf("nothing to change: pass --title, --description or --status")
			}
			s, done, err := a.openSession(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer done()
			t, err := s.UpdateTask(cmd.Context(), args[1], p)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated task %s (%s)\n", t.Title, t.ID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&title, "title", "t", "", "New title")
	cmd.Flags().StringVarP(&description, "description", "d", "", "New description")
	cmd.Flags().StringVarP(&status, "status", "s", "", "New status")
	return cmd
}

func taskMoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "move <boardId> <taskId> <listId>",
		Short: "Move a task to another list",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, done, err := a.openSession(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer done()
			m, err := s.MoveTask(cmd.Context(), args[1], args[2])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if m == nil {
				fmt.Fprintln(out, "Task is already in that list.")
				return nil
			}
			if err := m.Wait(); err != nil {
				if m.Compensated() {
					fmt.Fprintf(out, "Move rejected; task returned to %s\n", m.From)
				}
				return err
			}
			fmt.Fprintf(out, "Moved task %s to %s\n", m.TaskID, m.To)
			return nil
		},
	}
}

func taskRmCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <boardId> <taskId>",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, done, err := a.openSession(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer done()
			if err := s.DeleteTask(cmd.Context(), args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted task %s\n", args[1])
			return nil
		},
	}
}
