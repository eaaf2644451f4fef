package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v3"
)

// documentExts are the file extensions suggested by DocumentCompleter.
var documentExts = []string{".pdf", ".epub", ".xps", ".cbz"}

// DocumentCompleter returns a ShellCompleteFunc that suggests documents in
// the working directory as positional completions.
//
// When the user's last typed argument starts with "-", it falls back to the
// default flag completion behavior.
func DocumentCompleter() cli.ShellCompleteFunc {
	return func(ctx context.Context, cmd *cli.Command) {
		if args := cmd.Args(); args.Present() {
			last := args.Slice()[args.Len()-1]
			if len(last) > 0 && last[0] == '-' {
				cli.DefaultCompleteWithFlags(ctx, cmd)
				return
			}
		}

		w := cmd.Root().Writer
		for _, name := range documentsIn(".") {
			_, _ = fmt.Fprintln(w, name)
		}
	}
}

func documentsIn(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		for _, want := range documentExts {
			if ext == want {
				out = append(out, e.Name())
				break
			}
		}
	}
	return out
}
