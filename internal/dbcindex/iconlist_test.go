package dbcindex

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/surreal-wow/sdbeditor/internal/watch"
)

func TestIconListFilesAndHas(t *testing.T) {
	b, cfg := newFixture(t)
	writeFile(t, filepath.Join(cfg.BaseIconDir(), "B.blp"), []byte("BLP2"))
	writeFile(t, filepath.Join(cfg.BaseIconDir(), "a.BLP"), []byte("BLP2"))
	writeFile(t, filepath.Join(cfg.BaseIconDir(), "notes.txt"), []byte("skip"))
	if err := os.MkdirAll(filepath.Join(cfg.BaseIconDir(), "subdir"), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	l := b.IconList()
	files := l.Files()
	// Code-point order: uppercase sorts before lowercase. Non-BLP entries
	// and directories are ignored, the .blp match is case-insensitive.
	if want := []string{"B.blp", "a.BLP"}; !reflect.DeepEqual(files, want) {
		t.Fatalf("Files = %v, want %v", files, want)
	}

	if !l.Has("B.blp") {
		t.Error("Has(B.blp) = false")
	}
	if !l.Has("b.blp") {
		t.Error("case-insensitive lookup failed")
	}
	if l.Has("missing.blp") {
		t.Error("Has(missing.blp) = true")
	}

	// The first listing is persisted so the manifest can stamp against it.
	if _, err := os.Stat(filepath.Join(cfg.CacheDir(), iconListFile)); err != nil {
		t.Errorf("listing not persisted: %v", err)
	}
}

func TestIconListApplyAndRebuild(t *testing.T) {
	b, cfg := newFixture(t)
	writeFile(t, filepath.Join(cfg.BaseIconDir(), "Base.blp"), []byte("BLP2"))

	l := b.IconList()
	l.Apply(watch.Event{Name: "Added.blp", Op: watch.Created})
	l.Apply(watch.Event{Name: "Base.blp", Op: watch.Removed})

	if want := []string{"Added.blp"}; !reflect.DeepEqual(l.Files(), want) {
		t.Fatalf("Files after events = %v, want %v", l.Files(), want)
	}

	// Rebuild rescans the directory, discarding watcher drift.
	if want := []string{"Base.blp"}; !reflect.DeepEqual(l.Rebuild(), want) {
		t.Fatalf("Files after rebuild = %v, want %v", l.Rebuild(), want)
	}
}
