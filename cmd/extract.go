package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/EdvinCodes/offgrid/internal/media"
	"github.com/EdvinCodes/offgrid/internal/ui"
)

var extractCmd = &cobra.Command{
	Use:   "extract <url>",
	Short: "Resolve a post link into its primary media",
	Args:  cobra.ExactArgs(1),
	RunE:  extractRun,
}

func extractRun(cmd *cobra.Command, args []string) error {
	c := newComponents(cfg, &logger, nil)
	res := c.pipeline.Extract(cmd.Context(), args[0])

	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return err
		}
	} else {
		fmt.Fprintln(os.Stdout, ui.RenderResult(res))
	}

	return resultErr(res)
}

// resultErr turns a failed result into a non-zero exit.
func resultErr(res media.Result) error {
	if res.Success {
		return nil
	}
	return fmt.Errorf("extraction failed: %s", res.Code)
}
