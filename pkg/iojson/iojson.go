// Package iojson provides utilities for writing JSON IO from a command line
// interface perspective.
package iojson

import (
	"encoding/json"
	"fmt"
	"io"
)

// WriteLine marshals obj onto a single line followed by a newline. Used for
// JSON-lines list output.
func WriteLine(w io.Writer, obj any) error {
	bits, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("marshal line: %w", err)
	}

	_, err = fmt.Fprintln(w, string(bits))
	return err
}
