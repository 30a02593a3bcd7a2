package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/surreal-wow/sdbeditor/internal/auth"
	"github.com/surreal-wow/sdbeditor/internal/config"
	"github.com/surreal-wow/sdbeditor/internal/dbcindex"
	"github.com/surreal-wow/sdbeditor/internal/editstore"
	"github.com/surreal-wow/sdbeditor/internal/httpapi"
	"github.com/surreal-wow/sdbeditor/internal/lockfile"
	"github.com/surreal-wow/sdbeditor/internal/spells"
	"github.com/surreal-wow/sdbeditor/internal/supervisor"
	"github.com/surreal-wow/sdbeditor/internal/talent"
	"github.com/surreal-wow/sdbeditor/internal/telemetry"
	"github.com/surreal-wow/sdbeditor/internal/thumbs"
	"github.com/surreal-wow/sdbeditor/internal/watch"
)

var (
	dataAddr    string
	starterAddr string
)

// shutdownGrace is how long in-flight requests get after SIGINT/SIGTERM.
const shutdownGrace = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Host the data API and the starter API",
	Long: `Host both HTTP surfaces from one process: the data API (DBC tables,
spells, talents, icons) and the starter API (login, signup, server control).

The icon directory is watched while serving; new BLP files get thumbnails and
the icon indices follow without a restart.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd)
	},
}

func init() {
	serveCmd.Flags().StringVar(&dataAddr, "data-addr", ":3001", "Data API listen address")
	serveCmd.Flags().StringVar(&starterAddr, "starter-addr", ":5000", "Starter API listen address")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command) error {
	cfg, err := loadEditorConfig()
	if err != nil {
		return err
	}
	scfg, err := loadStarterConfig()
	if err != nil {
		return err
	}

	lock, err := lockfile.Acquire(cfg.ExportLockPath())
	if err != nil {
		return fmt.Errorf("export tree: %w (is another sdb writing it?)", err)
	}
	defer func() { _ = lock.Release() }()

	store := telemetry.WrapStore(editstore.New(cfg, log))
	idx := dbcindex.New(store, dbcindex.Options{
		CacheDir: cfg.CacheDir(),
		IconDir:  cfg.BaseIconDir(),
		ThumbDir: cfg.ThumbnailDir(),
		Log:      log,
	})
	defer idx.IconList().Close()

	// A DBC save moves the export file's mtime; dropping the in-memory
	// caches here makes the next read re-validate against it.
	store.OnSave(func(string) { idx.Invalidate() })

	engine := thumbs.New(thumbs.Options{
		IconDir:     cfg.BaseIconDir(),
		FallbackDir: thumbFallbackDir(cfg),
		OutDir:      cfg.ThumbnailDir(),
		Log:         log,
	})
	defer engine.Close()

	// Top up missing thumbnails off the request path; a fresh checkout has
	// thousands to rasterize.
	go func() {
		res := engine.EnsureAll()
		log.WithFields(logrus.Fields{
			"generated": res.Generated,
			"skipped":   res.Skipped,
			"failed":    res.Failed,
		}).Info("thumbnail batch finished")
	}()

	watcher, err := watch.WatchDir(cfg.BaseIconDir(), ".blp", func(ev watch.Event) {
		idx.IconList().Apply(ev)
		if ev.Op == watch.Created {
			engine.Schedule(ev.Name)
		}
	}, log)
	if err != nil {
		// Serving without the watcher is degraded, not broken: explicit
		// rebuilds still work.
		log.WithError(err).Warn("icon directory watch failed")
	} else {
		defer watcher.Close()
	}

	mirror := spells.NewMirror(cfg.MirrorDSN(), log)
	editor := spells.NewEditor(store, idx, mirror, log)
	var enums *spells.EnumExtractor
	if scfg.Paths.AcoreRoot != "" {
		enums = spells.NewEnumExtractor(scfg.Paths.AcoreRoot, log)
	}

	dataSrv := httpapi.NewDataServer(httpapi.DataConfig{
		Store:    store,
		Index:    idx,
		Editor:   editor,
		Enums:    enums,
		Deployer: talent.NewDeployer(cfg, log),
		ThumbDir: cfg.ThumbnailDir(),
		Log:      log,
	})
	starterSrv := httpapi.NewStarterServer(
		auth.NewService(scfg.AccountDSN(), log),
		supervisor.New(scfg, log),
		scfg,
		log,
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithField("addr", dataAddr).Info("data API listening")
		return ignoreServerClosed(dataSrv.Start(dataAddr))
	})
	g.Go(func() error {
		log.WithField("addr", starterAddr).Info("starter API listening")
		return ignoreServerClosed(starterSrv.Start(starterAddr))
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		derr := dataSrv.Shutdown(shutCtx)
		serr := starterSrv.Shutdown(shutCtx)
		return errors.Join(derr, serr)
	})
	return g.Wait()
}

func ignoreServerClosed(err error) error {
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// thumbFallbackDir is the unconditional base icon tree. When the custom icon
// source is active, a BLP missing or empty there falls back to base.
func thumbFallbackDir(cfg *config.Config) string {
	if cfg.Settings.ActiveIconSource == "custom" {
		return filepath.Join(cfg.Root, "public", cfg.Paths.Base.Icons)
	}
	return ""
}
