package main

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// writeJSONWithCode prints v and then reports code as the command outcome.
// Non-zero codes print nothing further on stderr.
func writeJSONWithCode(cmd *cobra.Command, v any, code int) error {
	if err := writeJSON(cmd, v); err != nil {
		return err
	}
	if code == exitOK {
		return nil
	}
	return withExitCode(code, nil)
}
