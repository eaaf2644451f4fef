package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/hay-kot/criterio"
	"github.com/urfave/cli/v3"

	"github.com/colonyops/folio/internal/core/config"
	"github.com/colonyops/folio/internal/core/styles"
	"github.com/colonyops/folio/pkg/iojson"
)

type ConfigValidateCmd struct {
	flags  *Flags
	format string
}

// NewConfigValidateCmd creates a new config validate command.
func NewConfigValidateCmd(flags *Flags) *ConfigValidateCmd {
	return &ConfigValidateCmd{flags: flags}
}

// Register adds the config validate command to the application.
func (cmd *ConfigValidateCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:  "config",
		Usage: "Configuration management commands",
		Commands: []*cli.Command{
			{
				Name:        "validate",
				Usage:       "Validate configuration file",
				UsageText:   "folio config validate [options]",
				Description: "Validates the configuration file, checking file access, the zoom step grid and the server address.",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:        "format",
						Usage:       "output format (text, json)",
						Value:       "text",
						Destination: &cmd.format,
					},
				},
				Action: cmd.run,
			},
		},
	})

	return app
}

type validationError struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

type validationReport struct {
	Valid    bool                       `json:"valid"`
	Errors   []validationError          `json:"errors,omitempty"`
	Warnings []config.ValidationWarning `json:"warnings,omitempty"`
}

func (cmd *ConfigValidateCmd) run(_ context.Context, c *cli.Command) error {
	cfg := cmd.flags.Config
	report := validationReport{Warnings: cfg.Warnings()}
	report.Errors = flattenValidation(cfg.ValidateDeep(cmd.flags.ConfigPath))
	report.Valid = len(report.Errors) == 0

	if cmd.format == "json" {
		if err := iojson.WriteWith(c.Root().Writer, os.Stderr, report); err != nil {
			return err
		}
	} else {
		writeReport(c.Root().Writer, cfg.TUI.Theme, report)
	}

	if !report.Valid {
		return cli.Exit("", 1)
	}
	return nil
}

// flattenValidation splits criterio field errors into one entry per field.
func flattenValidation(err error) []validationError {
	if err == nil {
		return nil
	}
	var fields criterio.FieldErrors
	if !errors.As(err, &fields) {
		return []validationError{{Message: err.Error()}}
	}
	out := make([]validationError, 0, len(fields))
	for _, fe := range fields {
		out = append(out, validationError{Field: fe.Field, Message: fe.Err.Error()})
	}
	return out
}

func writeReport(w io.Writer, theme string, report validationReport) {
	palette, _ := styles.GetPalette(theme)
	sty := styles.New(palette)

	for _, warn := range report.Warnings {
		_, _ = fmt.Fprintf(w, "%s %s: %s\n", sty.NoticeWarning.Render("●"), warn.Category, warn.Message)
		if warn.Item != "" {
			_, _ = fmt.Fprintf(w, "  Item: %s\n", warn.Item)
		}
	}
	for _, e := range report.Errors {
		label := e.Field
		if label == "" {
			label = "config"
		}
		_, _ = fmt.Fprintf(w, "%s %s: %s\n", sty.NoticeError.Render("✘"), label, e.Message)
	}

	_, _ = fmt.Fprintln(w)
	if report.Valid {
		_, _ = fmt.Fprintln(w, sty.NoticeInfo.Render("✔ Configuration is valid"))
		return
	}
	_, _ = fmt.Fprintln(w, sty.NoticeError.Render(fmt.Sprintf("%d error(s) found", len(report.Errors))))
}
