// Package thumbs keeps a directory of 64x64 PNG thumbnails in sync with the
// BLP icon directory. Generation is idempotent (existing non-empty PNGs are
// skipped) and failure-isolated: one corrupt BLP never aborts a batch.
package thumbs

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/image/draw"

	"github.com/surreal-wow/sdbeditor/internal/blp"
	"github.com/surreal-wow/sdbeditor/internal/logging"
	"github.com/surreal-wow/sdbeditor/internal/wdbc"
)

// Size is the thumbnail edge in pixels.
const Size = 64

// settleDelay lets a freshly created BLP finish writing before we read it.
const settleDelay = 500 * time.Millisecond

// Options configures an Engine.
type Options struct {
	// IconDir is the directory of source BLP files.
	IconDir string
	// FallbackDir is consulted when a BLP in IconDir is missing or empty.
	// Usually the base icon directory while a custom source is active.
	FallbackDir string
	// OutDir receives the generated PNGs.
	OutDir string
	Log    *logrus.Entry
}

// Result summarizes a batch run.
type Result struct {
	Generated int `json:"generated"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// Engine generates thumbnails on demand and on watcher events.
type Engine struct {
	opts Options
	log  *logrus.Entry

	mu      sync.Mutex
	pending map[string]*time.Timer
}

// New builds an Engine.
func New(opts Options) *Engine {
	if opts.Log == nil {
		opts.Log = logging.Discard()
	}
	return &Engine{opts: opts, log: opts.Log, pending: make(map[string]*time.Timer)}
}

// EnsureAll walks every *.blp in the icon directory and generates any
// missing thumbnail. Failures are logged per file and counted.
func (e *Engine) EnsureAll() Result {
	var res Result
	entries, err := os.ReadDir(e.opts.IconDir)
	if err != nil {
		e.log.WithError(err).WithField("dir", e.opts.IconDir).Warn("thumbnail batch: cannot list icon directory")
		return res
	}

	started := time.Now()
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".blp") {
			continue
		}
		switch err := e.Generate(entry.Name()); {
		case err == nil:
			res.Generated++
		case errSkipped(err):
			res.Skipped++
		default:
			res.Failed++
			e.log.WithError(err).WithField("icon", entry.Name()).Warn("thumbnail generation failed")
		}
	}

	e.log.WithFields(logrus.Fields{
		"generated": res.Generated,
		"skipped":   res.Skipped,
		"failed":    res.Failed,
		"took":      time.Since(started).String(),
	}).Info("thumbnail batch done")
	return res
}

// errUpToDate marks an icon whose thumbnail already exists.
var errUpToDate = fmt.Errorf("thumbnail up to date")

func errSkipped(err error) bool { return err == errUpToDate }

// Generate produces OutDir/<base>.png for the named BLP file unless a
// non-empty thumbnail already exists.
func (e *Engine) Generate(name string) error {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	out := filepath.Join(e.opts.OutDir, base+".png")
	if fi, err := os.Stat(out); err == nil && fi.Size() > 0 {
		return errUpToDate
	}

	data, err := e.readSource(name)
	if err != nil {
		return err
	}
	src, err := blp.Decode(data)
	if err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}

	thumb := Contain(src, Size)
	var buf bytes.Buffer
	if err := png.Encode(&buf, thumb); err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	if err := wdbc.WriteFileAtomic(out, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}
	return nil
}

// readSource loads the BLP, falling back to FallbackDir when the primary
// copy is missing or zero bytes.
func (e *Engine) readSource(name string) ([]byte, error) {
	primary := filepath.Join(e.opts.IconDir, name)
	data, err := os.ReadFile(primary)
	if err == nil && len(data) > 0 {
		return data, nil
	}
	if e.opts.FallbackDir != "" && e.opts.FallbackDir != e.opts.IconDir {
		if fb, fbErr := os.ReadFile(filepath.Join(e.opts.FallbackDir, name)); fbErr == nil && len(fb) > 0 {
			return fb, nil
		}
	}
	if err == nil {
		return nil, fmt.Errorf("%s: empty file and no usable fallback", name)
	}
	return nil, fmt.Errorf("%s: %w", name, err)
}

// Schedule queues a single file for generation after a short settle delay.
// Repeat calls for the same name within the delay coalesce; watcher create
// events often arrive before the file's bytes do.
func (e *Engine) Schedule(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if t, ok := e.pending[name]; ok {
		t.Stop()
	}
	e.pending[name] = time.AfterFunc(settleDelay, func() {
		e.mu.Lock()
		delete(e.pending, name)
		e.mu.Unlock()

		if err := e.Generate(name); err != nil && !errSkipped(err) {
			e.log.WithError(err).WithField("icon", name).Warn("scheduled thumbnail failed")
		}
	})
}

// Close cancels pending scheduled generations.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for name, t := range e.pending {
		t.Stop()
		delete(e.pending, name)
	}
}

// Contain scales src to fit inside size x size, preserving aspect ratio and
// centering on a transparent background.
func Contain(src image.Image, size int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	sw, sh := src.Bounds().Dx(), src.Bounds().Dy()
	if sw == 0 || sh == 0 {
		return dst
	}

	w, h := size, size
	if sw > sh {
		h = sh * size / sw
	} else if sh > sw {
		w = sw * size / sh
	}
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	x := (size - w) / 2
	y := (size - h) / 2
	draw.CatmullRom.Scale(dst, image.Rect(x, y, x+w, y+h), src, src.Bounds(), draw.Over, nil)
	return dst
}
