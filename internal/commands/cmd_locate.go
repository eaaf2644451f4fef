package commands

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v3"

	"github.com/colonyops/folio/internal/viewer"
	"github.com/colonyops/folio/pkg/iojson"
)

// locateSize is the viewport edge used when only page text is needed. The
// viewport is shorter than a page so every page can scroll to the top.
const locateSize = 256

type LocateCmd struct {
	flags   *Flags
	request iojson.FileReader[viewer.FocusRequest]
	format  string
	timeout time.Duration
}

// NewLocateCmd creates a new locate command.
func NewLocateCmd(flags *Flags) *LocateCmd {
	return &LocateCmd{flags: flags}
}

// Register adds the locate command to the application.
func (cmd *LocateCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "locate",
		Usage:     "Find the pages of a document that contain a snippet",
		UsageText: "folio locate [options] <document> [query]",
		Description: `With a query, prints every page whose text contains it (case-insensitive,
whitespace-normalized).

Without a query, reads a focus request such as {"targetPage":2,"snippet":"..."}
from --file or stdin, applies it and reports the page the viewer lands on and
whether the snippet was found there.`,
		Flags: []cli.Flag{
			cmd.request.Flag(),
			&cli.StringFlag{
				Name:        "format",
				Usage:       "output format (text, json)",
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

type locateResult struct {
	Document string `json:"document"`
	Query    string `json:"query,omitempty"`
	Pages    []int  `json:"pages"`
}

type focusResult struct {
	Document       string              `json:"document"`
	Request        viewer.FocusRequest `json:"request"`
	CurrentPage    int                 `json:"currentPage"`
	SnippetLocated bool                `json:"snippetLocated"`
}

func (cmd *LocateCmd) run(ctx context.Context, c *cli.Command) error {
	args := c.Args()
	if args.Len() < 1 || args.Len() > 2 {
		return fmt.Errorf("expected <document> [query], got %d arguments", args.Len())
	}
	locator := args.Get(0)

	var req viewer.FocusRequest
	if args.Len() == 1 {
		r, err := cmd.request.Read()
		if err != nil {
			return fmt.Errorf("read focus request: %w", err)
		}
		if r.TargetPage < 1 {
			return fmt.Errorf("focus request targetPage must be at least 1")
		}
		if r.RequestID == "" {
			r.RequestID = uuid.NewString()
		}
		req = r
	}

	opts := cmd.flags.Config.ViewerOptions()
	opts.Layout.Overscan = -1

	sess, err := startViewer(ctx, cmd.flags, opts, false)
	if err != nil {
		return err
	}
	defer sess.stop()

	waitCtx, cancel := context.WithTimeout(ctx, cmd.timeout)
	defer cancel()

	sess.viewer.Resize(locateSize, locateSize)
	if _, err := sess.load(waitCtx, locator); err != nil {
		return cmd.fail(c, locator, err)
	}

	if args.Len() == 2 {
		return cmd.search(waitCtx, c, sess, locator, args.Get(1))
	}
	return cmd.focus(waitCtx, c, sess, locator, req)
}

func (cmd *LocateCmd) search(ctx context.Context, c *cli.Command, sess *session, locator, query string) error {
	pages, err := sess.viewer.Search(ctx, query)
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}
	if pages == nil {
		pages = []int{}
	}

	w := c.Root().Writer
	if cmd.format == "json" {
		return iojson.WriteWith(w, os.Stderr, locateResult{Document: locator, Query: query, Pages: pages})
	}

	if len(pages) == 0 {
		_, _ = fmt.Fprintf(w, "no pages contain %q\n", query)
		return cli.Exit("", 1)
	}
	strs := make([]string, len(pages))
	for i, p := range pages {
		strs[i] = fmt.Sprint(p)
	}
	_, _ = fmt.Fprintf(w, "%q found on page(s) %s\n", query, strings.Join(strs, ", "))
	return nil
}

func (cmd *LocateCmd) focus(ctx context.Context, c *cli.Command, sess *session, locator string, req viewer.FocusRequest) error {
	sess.viewer.Focus(req)
	if err := sess.viewer.WaitIdle(ctx); err != nil {
		return fmt.Errorf("wait for focus: %w", err)
	}
	st := sess.viewer.State()

	res := focusResult{
		Document:       locator,
		Request:        req,
		CurrentPage:    st.CurrentPage,
		SnippetLocated: st.SnippetLocated,
	}

	w := c.Root().Writer
	if cmd.format == "json" {
		return iojson.WriteWith(w, os.Stderr, res)
	}

	found := "not found"
	if res.SnippetLocated {
		found = "found"
	}
	_, _ = fmt.Fprintf(w, "page %d of %d (snippet %s)\n", res.CurrentPage, st.TotalPages, found)
	return nil
}

func (cmd *LocateCmd) fail(c *cli.Command, locator string, err error) error {
	if cmd.format != "json" {
		return err
	}
	_ = iojson.WriteError(c.Root().Writer, err.Error(), map[string]any{"document": locator})
	return cli.Exit("", 1)
}
