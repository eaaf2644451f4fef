// Package iojson holds helpers for commands that read and write JSON on the
// command line.
package iojson

import (
	"encoding/json"
	"fmt"
	"io"
)

// Error is the JSON shape of a command failure.
type Error struct {
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

func jsonError(msg string, jsonErr error) string {
	msgBytes, _ := json.Marshal(msg)
	errBytes, _ := json.Marshal(jsonErr.Error())
	return fmt.Sprintf(`{"message":%s,"data":{"json_error":%s}}`, msgBytes, errBytes)
}

// WriteError writes msg and data to w as an Error object. If data cannot be
// marshaled the marshal error is reported in its place.
func WriteError(w io.Writer, msg string, data map[string]any) error {
	bits, err := json.MarshalIndent(Error{Message: msg, Data: data}, "", "  ")
	if err != nil {
		_, err = fmt.Fprintln(w, jsonError(msg, err))
		return err
	}
	_, err = fmt.Fprintln(w, string(bits))
	return err
}

// WriteWith writes obj as indented JSON to w. Marshal failures are reported
// on ew.
func WriteWith(w io.Writer, ew io.Writer, obj any) error {
	bits, err := json.MarshalIndent(obj, "", "  ")
	if err != nil {
		_, _ = fmt.Fprintln(ew, jsonError("error marshaling in iojson.WriteWith", err))
		return fmt.Errorf("marshal output: %w", err)
	}

	_, err = fmt.Fprintln(w, string(bits))
	return err
}
