package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/grovetools/cellkernel/logging"
	"github.com/spf13/cobra"
)

func printJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}

// prettyOut writes human-facing status to the command's stderr so stdout
// carries only program output.
func prettyOut(cmd *cobra.Command) *logging.PrettyLogger {
	return logging.NewPrettyLogger().WithWriter(cmd.ErrOrStderr())
}
