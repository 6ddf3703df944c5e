package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/EdvinCodes/offgrid/internal/download"
	"github.com/EdvinCodes/offgrid/internal/extract"
	"github.com/EdvinCodes/offgrid/internal/media"
	"github.com/EdvinCodes/offgrid/internal/proxy"
	"github.com/EdvinCodes/offgrid/internal/ui"
)

var (
	flagOutput    string
	flagThumbnail bool
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <url>",
	Short: "Extract a post's media and save it to disk",
	Args:  cobra.ExactArgs(1),
	RunE:  fetchRun,
}

func init() {
	fetchCmd.Flags().StringVarP(&flagOutput, "output", "o", "", "Output directory (default: download_dir from config)")
	fetchCmd.Flags().BoolVarP(&flagThumbnail, "thumbnail", "t", false, "Also save the thumbnail")
}

func fetchRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	c := newComponents(cfg, &logger, nil)

	res := c.pipeline.Extract(ctx, args[0])
	if !res.Success {
		fmt.Fprintln(os.Stderr, ui.RenderResult(res))
		return resultErr(res)
	}

	dir := flagOutput
	if dir == "" {
		var err error
		dir, err = cfg.ExpandDownloadDir()
		if err != nil {
			return fmt.Errorf("resolving download dir: %w", err)
		}
	}

	stem := fileStem(res)
	reqs := []download.Request{{URL: res.URL, Name: stem, Dir: dir}}
	if flagThumbnail && res.Thumbnail != "" {
		reqs = append(reqs, download.Request{URL: res.Thumbnail, Name: stem + "-thumbnail", Dir: dir})
	}

	paths, err := saveAll(ctx, c.relay, reqs, stem)
	if err != nil {
		return err
	}

	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]interface{}{
			"result": res,
			"files":  paths,
		})
	}
	for _, p := range paths {
		fmt.Fprintf(os.Stderr, "Downloaded: %s\n", p)
	}
	return nil
}

// saveAll shows a progress bar for the primary media when stderr is a terminal.
func saveAll(ctx context.Context, relay *proxy.Relay, reqs []download.Request, label string) ([]string, error) {
	if !ui.IsTerminal(os.Stderr) {
		return download.SaveAll(ctx, relay, reqs, 2)
	}

	var paths []string
	err := ui.RunWithProgress(ctx, os.Stderr, label, func(ctx context.Context, report func(written, total int64)) error {
		reqs[0].Progress = report
		var err error
		paths, err = download.SaveAll(ctx, relay, reqs, 2)
		return err
	})
	return paths, err
}

const maxStemRunes = 60

// fileStem names a download after its caption, or after its type when the
// post had none.
func fileStem(res media.Result) string {
	desc := strings.TrimSpace(res.Description)
	if desc == "" || desc == extract.DefaultPlaceholder {
		return "offgrid-" + res.Type.String()
	}
	desc = strings.TrimRight(desc, ".… ")
	if r := []rune(desc); len(r) > maxStemRunes {
		desc = strings.TrimSpace(string(r[:maxStemRunes]))
	}
	return desc
}
