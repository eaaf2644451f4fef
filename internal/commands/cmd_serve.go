package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/colonyops/folio/internal/server"
	"github.com/colonyops/folio/internal/viewer"
)

type ServeCmd struct {
	flags *Flags
	addr  string
	width int
}

// NewServeCmd creates a new serve command.
func NewServeCmd(flags *Flags) *ServeCmd {
	return &ServeCmd{flags: flags}
}

// Register adds the serve command to the application.
func (cmd *ServeCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "serve",
		Usage:     "Serve the viewer over HTTP and WebSocket",
		UsageText: "folio serve [options] [document]",
		Description: `Runs one viewer behind an HTTP API. Clients open documents with
POST /api/open, drive zoom, scrolling and focus requests, fetch rendered pages
from /api/pages/{n}.png, and receive every state change on /ws.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "listen address (defaults to server.addr)",
				Destination: &cmd.addr,
			},
			&cli.IntFlag{
				Name:        "width",
				Usage:       "initial container width until a client resizes",
				Value:       1024,
				Destination: &cmd.width,
			},
		},
		ShellComplete: DocumentCompleter(),
		Action:        cmd.run,
	})

	return app
}

func (cmd *ServeCmd) run(ctx context.Context, c *cli.Command) error {
	cfg := cmd.flags.Config
	addr := cfg.Server.Addr
	if cmd.addr != "" {
		addr = cmd.addr
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sess, err := startViewer(ctx, cmd.flags, cfg.ViewerOptions(), true)
	if err != nil {
		return err
	}
	defer sess.stop()

	sess.viewer.Resize(cmd.width, cfg.Viewer.Layout.ViewportHeight)
	if c.Args().Len() > 0 {
		sess.viewer.Open(viewer.Source{Locator: c.Args().First()})
	}

	srv := server.New(server.Config{
		Addr:     addr,
		AllowAll: cfg.Server.AllowAllOrigins,
		Pprof:    cfg.Server.Pprof,
	}, sess.viewer, log.Logger)
	if err := srv.Start(ctx); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(c.Root().Writer, "folio listening on http://%s\n", srv.Addr())

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown server: %w", err)
	}
	return nil
}
