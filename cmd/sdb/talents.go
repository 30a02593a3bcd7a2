package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/surreal-wow/sdbeditor/internal/editstore"
	"github.com/surreal-wow/sdbeditor/internal/lockfile"
	"github.com/surreal-wow/sdbeditor/internal/talent"
)

var talentsCmd = &cobra.Command{
	Use:   "talents",
	Short: "Talent tree deployment tools",
}

var talentsDeployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Generate the talent trees Lua and install it",
	Long: `Read talent-config.json, emit the talent trees as Lua and write it to the
addon source directory and the live lua_scripts directory. Both copies are
written atomically and are byte-identical.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadEditorConfig()
		if err != nil {
			return err
		}
		res, err := talent.NewDeployer(cfg, log).Deploy()
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(res)
			return nil
		}
		fmt.Printf("%s: %d classes, %d tabs, %d talents (%d bytes)\n",
			res.File, res.Classes, res.Tabs, res.Talents, res.Bytes)
		for _, path := range res.Wrote {
			fmt.Println(mutedStyle.Render("  wrote " + path))
		}
		return nil
	},
}

var talentsRepackCmd = &cobra.Command{
	Use:   "repack",
	Short: "Repack Talent.dbc rank columns for the legacy client reader",
	Long: `Rewrite Talent.dbc so every talent's lowest rank spell sits in the first
rank column, the order the old client-side reader assumes. Runs offline
against the edit store; the HTTP route for this is retired.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadEditorConfig()
		if err != nil {
			return err
		}
		lock, err := lockfile.Acquire(cfg.ExportLockPath())
		if err != nil {
			return fmt.Errorf("export tree: %w (is sdb serve running?)", err)
		}
		defer func() { _ = lock.Release() }()

		store := editstore.New(cfg, log)
		res, err := talent.NewRepacker(store, cfg, log).Repack()
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(res)
			return nil
		}
		fmt.Printf("repacked %d classes, %d tabs, %d talents; moved %d rows\n",
			res.Classes, res.Tabs, res.Talents, res.Moved)
		for _, path := range res.Wrote {
			fmt.Println(mutedStyle.Render("  wrote " + path))
		}
		return nil
	},
}

func init() {
	talentsCmd.AddCommand(talentsDeployCmd)
	talentsCmd.AddCommand(talentsRepackCmd)
	rootCmd.AddCommand(talentsCmd)
}
