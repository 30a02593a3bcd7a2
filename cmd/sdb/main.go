// Package main is the sdb command: WDBC table editing, derived index and
// thumbnail builds, talent deployment and game-server supervision behind one
// binary. `sdb serve` hosts the two HTTP APIs; the other subcommands run the
// same pipelines offline.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/surreal-wow/sdbeditor/internal/config"
	"github.com/surreal-wow/sdbeditor/internal/logging"
	"github.com/surreal-wow/sdbeditor/internal/telemetry"
)

// Global flags
var (
	configPath  string
	starterPath string
	logLevel    string
	logConsole  bool
	jsonOutput  bool

	// log is the process logger, built in PersistentPreRunE.
	log *logrus.Entry
)

// Styles for terminal output
var (
	okStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{
		Light: "#86b300",
		Dark:  "#c2d94c",
	})
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{
		Light: "#f07171",
		Dark:  "#f07178",
	})
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{
		Light: "#828c99",
		Dark:  "#6c7680",
	})
	boldStyle = lipgloss.NewStyle().Bold(true)
)

var rootCmd = &cobra.Command{
	Use:   "sdb",
	Short: "sdb - WoW 3.3.5a client database editor",
	Long: `sdb edits World of Warcraft 3.3.5a client databases (DBC files) and their
icon bitmaps, builds the derived indices the editor UI reads, deploys talent
trees, and supervises the game server process tree.

Run 'sdb serve' to host the editing API (port 3001) and the account/server
API (port 5000). The remaining subcommands run the same pipelines offline.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if !needsSetup(cmd) {
			log = logging.Discard()
			return nil
		}
		// Logs live next to the config file, matching the edit store's
		// backups and the supervisor's service logs.
		log = logging.New(logging.Options{
			Dir:     filepath.Join(filepath.Dir(configPath), "logs"),
			Level:   logLevel,
			Console: logConsole,
			Version: Version,
		})
		if err := telemetry.Init(cmd.Context(), "sdb", Version); err != nil {
			log.WithError(err).Warn("telemetry init failed")
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		telemetry.Shutdown(ctx)
	},
}

// needsSetup reports whether the command wants the logger and telemetry.
// Version and help run before any config exists.
func needsSetup(cmd *cobra.Command) bool {
	switch cmd.Name() {
	case "version", "help", "completion":
		return false
	}
	return true
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.FileName, "Editor config file")
	rootCmd.PersistentFlags().StringVar(&starterPath, "starter-config", config.StarterFileName, "Supervisor config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&logConsole, "console", false, "Mirror log entries to stderr")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output results in JSON format")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, failStyle.Render("Error: "+err.Error()))
		os.Exit(1)
	}
}

// loadEditorConfig reads config.json from the --config path.
func loadEditorConfig() (*config.Config, error) {
	return config.Load(configPath)
}

// loadStarterConfig reads starter-config.json. When --starter-config was left
// at its default, the file is looked up next to the editor config so both can
// live in one repository root.
func loadStarterConfig() (*config.Starter, error) {
	path := starterPath
	if path == config.StarterFileName {
		path = filepath.Join(filepath.Dir(configPath), config.StarterFileName)
	}
	return config.LoadStarter(path)
}

// outputJSON prints v as indented JSON on stdout.
func outputJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintln(os.Stderr, failStyle.Render("Error: "+err.Error()))
		os.Exit(1)
	}
	fmt.Println(string(data))
}
