package main

import (
	"context"
	"fmt"
	"os"

	"kanban-sync/cmd/kanban-sync/commands"
)

func main() {
	if err := commands.NewRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, commands.Describe(err))
		os.Exit(1)
	}
}
