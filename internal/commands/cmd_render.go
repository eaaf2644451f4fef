package commands

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/colonyops/folio/pkg/iojson"
)

type RenderCmd struct {
	flags   *Flags
	out     string
	width   int
	zoom    float64
	text    bool
	format  string
	timeout time.Duration
}

// NewRenderCmd creates a new render command.
func NewRenderCmd(flags *Flags) *RenderCmd {
	return &RenderCmd{flags: flags}
}

// Register adds the render command to the application.
func (cmd *RenderCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "render",
		Usage:     "Render every page of a document to PNG files",
		UsageText: "folio render [options] <document>",
		Description: `Loads a document from a path or URL, renders every page at the given width
and zoom, and writes page-NNN.png files to the output directory. With --text the
extracted text of each page is written next to it as page-NNN.txt.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "out",
				Aliases:     []string{"o"},
				Usage:       "output directory",
				Value:       ".",
				Destination: &cmd.out,
			},
			&cli.IntFlag{
				Name:        "width",
				Usage:       "container width in pixels; pages are fitted to it",
				Value:       1024,
				Destination: &cmd.width,
			},
			&cli.FloatFlag{
				Name:        "zoom",
				Usage:       "zoom multiplier (defaults to viewer.zoom.default)",
				Destination: &cmd.zoom,
			},
			&cli.BoolFlag{
				Name:        "text",
				Usage:       "also write the extracted text of each page",
				Destination: &cmd.text,
			},
			&cli.StringFlag{
				Name:        "format",
				Usage:       "summary format (text, json)",
				Value:       "text",
				Destination: &cmd.format,
			},
			&cli.DurationFlag{
				Name:        "timeout",
				Usage:       "give up when the document has not settled after this long",
				Value:       2 * time.Minute,
				Destination: &cmd.timeout,
			},
		},
		ShellComplete: DocumentCompleter(),
		Action:        cmd.run,
	})

	return app
}

type renderedPage struct {
	Page   int    `json:"page"`
	Image  string `json:"image,omitempty"`
	Text   string `json:"text,omitempty"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
	Status string `json:"status"`
}

type renderSummary struct {
	Document string         `json:"document"`
	Zoom     int            `json:"zoomPercent"`
	Pages    []renderedPage `json:"pages"`
	Failed   int            `json:"failed"`
}

func (cmd *RenderCmd) run(ctx context.Context, c *cli.Command) error {
	if c.Args().Len() != 1 {
		return fmt.Errorf("expected exactly one document, got %d", c.Args().Len())
	}
	if cmd.width <= 0 {
		return fmt.Errorf("--width must be positive")
	}
	locator := c.Args().First()

	opts := cmd.flags.Config.ViewerOptions()
	opts.Layout.Overscan = -1
	if cmd.zoom > 0 {
		opts.Zoom.Default = cmd.zoom
	}

	sess, err := startViewer(ctx, cmd.flags, opts, false)
	if err != nil {
		return err
	}
	defer sess.stop()

	if err := os.MkdirAll(cmd.out, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, cmd.timeout)
	defer cancel()

	sess.viewer.Resize(cmd.width, cmd.flags.Config.Viewer.Layout.ViewportHeight)
	st, err := sess.load(waitCtx, locator)
	if err != nil {
		return err
	}

	summary := renderSummary{Document: locator, Zoom: st.ZoomPercent}
	for page := 1; page <= st.TotalPages; page++ {
		rp, err := cmd.writePage(waitCtx, sess, page)
		if err != nil {
			return err
		}
		if rp.Status != "rendered" {
			summary.Failed++
		}
		summary.Pages = append(summary.Pages, rp)
	}

	log.Info().Str("document", locator).Int("pages", st.TotalPages).Int("failed", summary.Failed).Msg("render complete")

	if cmd.format == "json" {
		if err := iojson.WriteWith(c.Root().Writer, os.Stderr, summary); err != nil {
			return err
		}
	} else {
		_, _ = fmt.Fprintf(c.Root().Writer, "rendered %d/%d pages of %s at %d%% into %s\n",
			st.TotalPages-summary.Failed, st.TotalPages, locator, st.ZoomPercent, cmd.out)
	}

	if summary.Failed > 0 {
		return cli.Exit("", 1)
	}
	return nil
}

func (cmd *RenderCmd) writePage(ctx context.Context, sess *session, page int) (renderedPage, error) {
	rp := renderedPage{Page: page, Status: "failed"}

	surf, ok := sess.viewer.Surface(page)
	if !ok || !surf.Painted() {
		return rp, nil
	}

	img := surf.Snapshot()
	rp.Width, rp.Height = img.Bounds().Dx(), img.Bounds().Dy()
	rp.Image = filepath.Join(cmd.out, fmt.Sprintf("page-%03d.png", page))
	if err := writePNG(rp.Image, img); err != nil {
		return rp, err
	}
	rp.Status = "rendered"

	if !cmd.text {
		return rp, nil
	}
	text, found, err := sess.viewer.PageText(ctx, page)
	if err != nil {
		return rp, fmt.Errorf("page %d text: %w", page, err)
	}
	if found {
		rp.Text = filepath.Join(cmd.out, fmt.Sprintf("page-%03d.txt", page))
		if err := os.WriteFile(rp.Text, []byte(text), 0o644); err != nil {
			return rp, fmt.Errorf("write %s: %w", rp.Text, err)
		}
	}
	return rp, nil
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := png.Encode(f, img); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return f.Close()
}
