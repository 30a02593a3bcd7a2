package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/surreal-wow/sdbeditor/internal/dbcindex"
	"github.com/surreal-wow/sdbeditor/internal/editstore"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Rebuild the derived indices",
	Long: `Rebuild every derived index from the current DBC and icon state: the
spell-icon and spell-name indices, the icon list, the icon manifest and the
per-class sprite atlases.

Sprite atlases are composed from thumbnails; run 'sdb thumbs' first on a
fresh checkout so the tiles exist.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadEditorConfig()
		if err != nil {
			return err
		}
		store := editstore.New(cfg, log)
		idx := dbcindex.New(store, dbcindex.Options{
			CacheDir: cfg.CacheDir(),
			IconDir:  cfg.BaseIconDir(),
			ThumbDir: cfg.ThumbnailDir(),
			Log:      log,
		})
		defer idx.IconList().Close()

		icons, err := idx.SpellIcons()
		if err != nil {
			return fmt.Errorf("spell-icon index: %w", err)
		}
		names, err := idx.SpellNames()
		if err != nil {
			return fmt.Errorf("spell-name index: %w", err)
		}
		files := idx.IconList().Rebuild()
		manifest, err := idx.Manifest()
		if err != nil {
			return fmt.Errorf("icon manifest: %w", err)
		}
		sprites, err := idx.Sprites()
		if err != nil {
			return fmt.Errorf("sprite atlases: %w", err)
		}

		if jsonOutput {
			outputJSON(map[string]int{
				"spellIcons":    len(icons),
				"spellNames":    len(names),
				"iconFiles":     len(files),
				"manifest":      len(manifest),
				"spriteClasses": len(sprites.Classes),
			})
			return nil
		}
		fmt.Printf("spell-icon index: %d entries\n", len(icons))
		fmt.Printf("spell-name index: %d entries\n", len(names))
		fmt.Printf("icon list: %d files\n", len(files))
		fmt.Printf("icon manifest: %d entries\n", len(manifest))
		fmt.Printf("sprite atlases: %d classes\n", len(sprites.Classes))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(indexCmd)
}
