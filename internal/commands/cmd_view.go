package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/colonyops/folio/internal/core/styles"
	"github.com/colonyops/folio/internal/tui"
	"github.com/colonyops/folio/internal/viewer"
	"github.com/colonyops/folio/pkg/profiler"
)

type ViewCmd struct {
	flags        *Flags
	profilerPort int
	page         int
}

// NewViewCmd creates a new view command.
func NewViewCmd(flags *Flags) *ViewCmd {
	return &ViewCmd{flags: flags}
}

// Register adds the view command to the application.
func (cmd *ViewCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "view",
		Usage:     "Open a document in the terminal viewer",
		UsageText: "folio view [options] <document>",
		Description: `Shows the pages of a document as a continuous scroll in the terminal.

Scroll with j/k or the mouse wheel, page with PgUp/PgDn, zoom with +/- or
Ctrl+wheel, and search page text with /. Press ? for every binding.`,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:        "page",
				Usage:       "page to open at",
				Value:       1,
				Destination: &cmd.page,
			},
			&cli.IntFlag{
				Name:        "profiler-port",
				Usage:       "enable pprof HTTP endpoint on specified port (e.g., 6060)",
				Sources:     cli.EnvVars("FOLIO_PROFILER_PORT"),
				Destination: &cmd.profilerPort,
			},
		},
		ShellComplete: DocumentCompleter(),
		Action:        cmd.run,
	})

	return app
}

func (cmd *ViewCmd) run(ctx context.Context, c *cli.Command) error {
	if c.Args().Len() != 1 {
		return fmt.Errorf("expected exactly one document, got %d", c.Args().Len())
	}
	locator := c.Args().First()
	cfg := cmd.flags.Config

	if cmd.profilerPort > 0 {
		profServer := profiler.New(fmt.Sprintf("localhost:%d", cmd.profilerPort))
		if err := profServer.Start(ctx); err != nil {
			return fmt.Errorf("failed to start profiler: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := profServer.Shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("failed to shutdown profiler server")
			}
		}()
		log.Info().
			Str("url", fmt.Sprintf("http://%s/debug/pprof/", profServer.Addr())).
			Msg("profiler endpoint available")
	}

	sess, err := startViewer(ctx, cmd.flags, cfg.ViewerOptions(), true)
	if err != nil {
		return err
	}
	defer sess.stop()

	states, notes := tui.Subscribe(sess.viewer)

	// Size the viewport before the first frame so the document does not
	// render at the default width and again once the window size arrives.
	if cols, rows, err := term.GetSize(int(os.Stdout.Fd())); err == nil && rows > 1 {
		width := cfg.TUI.PageWidth
		if width <= 0 {
			width = cols * tui.CellWidth
		}
		sess.viewer.Resize(width, (rows-1)*2*width/cols)
	}

	sess.viewer.Open(viewer.Source{Locator: locator})
	if cmd.page > 1 {
		sess.viewer.Focus(viewer.FocusRequest{TargetPage: cmd.page, RequestID: "cli"})
	}

	palette, _ := styles.GetPalette(cfg.TUI.Theme)
	m := tui.New(sess.viewer, states, notes, tui.Options{
		Styles:    styles.New(palette),
		Keys:      tui.DefaultKeyMap(),
		PageWidth: cfg.TUI.PageWidth,
	})

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run tui: %w", err)
	}
	return nil
}
