// Package commands is the kanban-sync command line.
package commands

import (
	"context"
	"errors"
	"fmt"
	"io"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"kanban-sync/config"
	"kanban-sync/gateway"
	"kanban-sync/session"
)

var Version = "dev"

type app struct {
	cfg    *config.Client
	logger *log.Logger
	gw     *gateway.Client
}

// NewRootCmd builds the command tree. Configuration is loaded before any
// subcommand runs.
func NewRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "kanban-sync",
		Short:         "Work with realtime kanban boards from the terminal",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd.ErrOrStderr())
		},
	}

	root.AddCommand(loginCmd(a))
	root.AddCommand(signupCmd(a))
	root.AddCommand(boardsCmd(a))
	root.AddCommand(boardCmd(a))
	root.AddCommand(listCmd(a))
	root.AddCommand(taskCmd(a))
	root.AddCommand(watchCmd(a))
	return root
}

func (a *app) init(stderr io.Writer) error {
	cfg, err := config.LoadClient()
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = log.New()
	a.logger.SetOutput(stderr)
	a.logger.SetLevel(log.WarnLevel)
	if cfg.Debug {
		a.logger.SetLevel(log.DebugLevel)
	}
	a.gw = gateway.New(cfg.APIURL,
		gateway.WithToken(cfg.Token),
		gateway.WithTimeout(cfg.RequestTimeout),
		gateway.WithLogger(a.logger),
	)
	return nil
}

func (a *app) requireToken() error {
	if a.gw.Token() == "" {
		return errors.New("not logged in: run `kanban-sync login` first or set KANBAN_TOKEN")
	}
	return nil
}

// openSession opens boardID with live updates when the relay is reachable.
// The returned func closes it.
func (a *app) openSession(ctx context.Context, boardID string) (*session.Session, func(), error) {
	if err := a.requireToken(); err != nil {
		return nil, nil, err
	}
	s := session.New(a.gw, session.Config{
		RealtimeURL:         a.cfg.RealtimeURL,
		ReconnectMaxBackoff: a.cfg.ReconnectMaxBackoff,
		Logger:              a.logger,
	})
	if err := s.Open(ctx, boardID); err != nil {
		return nil, nil, err
	}
	return s, func() {
		if err := s.Close(context.WithoutCancel(ctx)); err != nil {
			a.logger.WithError(err).Warn("close session")
		}
	}, nil
}

// Describe turns an error into the line shown to the user.
func Describe(err error) string {
	var gwErr *gateway.Error
	if errors.As(err, &gwErr) {
		return fmt.Sprintf("error: %s", gwErr.UserMessage())
	}
	return fmt.Sprintf("error: %v", err)
}
