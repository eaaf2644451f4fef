package config

import (
	"fmt"
	"math"
	"net"
	"os"

	"github.com/hay-kot/criterio"
)

// ValidationWarning represents a non-fatal configuration issue.
type ValidationWarning struct {
	Category string `json:"category"`
	Item     string `json:"item,omitempty"`
	Message  string `json:"message"`
}

// ValidateDeep performs comprehensive validation of the configuration
// including file accessibility, the zoom grid and the server address. The
// configPath argument specifies the config file location to validate (empty
// string skips config file check). This calls Validate() first for basic
// structural validation.
func (c *Config) ValidateDeep(configPath string) error {
	if err := c.Validate(); err != nil {
		return err
	}

	return criterio.ValidateStruct(
		c.validateFileAccess(configPath),
		c.validateZoomGrid(),
		c.validateServer(),
	)
}

// Warnings returns non-fatal configuration issues.
func (c *Config) Warnings() []ValidationWarning {
	var warnings []ValidationWarning

	if c.Viewer.Layout.Overscan < 0 {
		warnings = append(warnings, ValidationWarning{
			Category: "Viewer",
			Item:     "layout.overscan",
			Message:  "negative overscan mounts and renders every page up front",
		})
	}

	if c.Viewer.Render.MaxRetries == 0 {
		warnings = append(warnings, ValidationWarning{
			Category: "Viewer",
			Item:     "render.max_retries",
			Message:  "pages whose surface is not mounted yet are never retried",
		})
	}

	if c.Server.Pprof && !isLoopback(c.Server.Addr) {
		warnings = append(warnings, ValidationWarning{
			Category: "Server",
			Item:     "pprof",
			Message:  fmt.Sprintf("profiling endpoints are exposed on %s", c.Server.Addr),
		})
	}

	return warnings
}

// validateFileAccess checks the config file and data directory.
func (c *Config) validateFileAccess(configPath string) error {
	return criterio.ValidateStruct(
		validateConfigFile(configPath),
		criterio.Run("data_dir", c.DataDir, isDirectoryOrNotExist),
	)
}

func validateConfigFile(configPath string) error {
	if configPath == "" {
		return nil
	}

	info, err := os.Stat(configPath)
	if os.IsNotExist(err) {
		return nil // not found is fine, using defaults
	}
	if err != nil {
		return criterio.NewFieldErrors("config_file", fmt.Errorf("cannot access: %w", err))
	}
	if info.IsDir() {
		return criterio.NewFieldErrors("config_file", fmt.Errorf("%s is a directory, not a file", configPath))
	}
	return nil
}

// isDirectoryOrNotExist validates that a path is a directory or doesn't exist.
func isDirectoryOrNotExist(path string) error {
	if path == "" {
		return nil
	}
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil // will be created
	}
	if err != nil {
		return fmt.Errorf("cannot access: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("exists but is not a directory")
	}
	return nil
}

// validateZoomGrid checks that the bounds and default sit on the step grid
// anchored at zero, so repeated ZoomIn/ZoomOut lands exactly on min and max.
func (c *Config) validateZoomGrid() error {
	z := c.Viewer.Zoom
	var errs criterio.FieldErrorsBuilder

	for _, f := range []struct {
		field string
		value float64
	}{
		{"viewer.zoom.min", z.Min},
		{"viewer.zoom.max", z.Max},
		{"viewer.zoom.default", z.Default},
	} {
		if !onGrid(f.value, z.Step) {
			errs = errs.Append(f.field, fmt.Errorf("%g is not a multiple of step %g", f.value, z.Step))
		}
	}

	return errs.ToError()
}

func (c *Config) validateServer() error {
	return criterio.Run("server.addr", c.Server.Addr, func(addr string) error {
		if _, _, err := net.SplitHostPort(addr); err != nil {
			return fmt.Errorf("invalid listen address: %w", err)
		}
		return nil
	})
}

func onGrid(v, step float64) bool {
	if step <= 0 {
		return true
	}
	n := v / step
	return math.Abs(n-math.Round(n)) < 1e-6
}

func isLoopback(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
