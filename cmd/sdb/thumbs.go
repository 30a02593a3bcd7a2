package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/surreal-wow/sdbeditor/internal/thumbs"
)

var thumbsCmd = &cobra.Command{
	Use:   "thumbs",
	Short: "Generate missing 64x64 PNG thumbnails",
	Long: `Walk the icon directory and rasterize a 64x64 PNG thumbnail for every BLP
file that does not have one yet. Existing non-empty thumbnails are skipped;
a corrupt BLP is logged and counted, not fatal.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadEditorConfig()
		if err != nil {
			return err
		}
		engine := thumbs.New(thumbs.Options{
			IconDir:     cfg.BaseIconDir(),
			FallbackDir: thumbFallbackDir(cfg),
			OutDir:      cfg.ThumbnailDir(),
			Log:         log,
		})
		defer engine.Close()

		res := engine.EnsureAll()
		if jsonOutput {
			outputJSON(res)
			return nil
		}
		line := fmt.Sprintf("thumbnails: %d generated, %d skipped, %d failed", res.Generated, res.Skipped, res.Failed)
		if res.Failed > 0 {
			fmt.Println(failStyle.Render(line))
		} else {
			fmt.Println(okStyle.Render(line))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(thumbsCmd)
}
