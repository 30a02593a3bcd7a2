package dbcindex

import (
	"path/filepath"
	"testing"
	"time"
)

func TestNormalizeIconPath(t *testing.T) {
	cases := []struct{ in, want string }{
		{`Interface\Icons\Spell_Fire_FlameBolt`, "spell_fire_flamebolt"},
		{"Interface/Icons/INV_Misc_QuestionMark.blp", "inv_misc_questionmark"},
		{`INTERFACE\ICONS\Ability_Warrior_Charge.BLP`, "ability_warrior_charge"},
		{"Spell_Nature_Lightning", "spell_nature_lightning"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := NormalizeIconPath(tc.in); got != tc.want {
			t.Errorf("NormalizeIconPath(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSpellIcons(t *testing.T) {
	b, _ := newFixture(t)

	icons, err := b.SpellIcons()
	if err != nil {
		t.Fatalf("SpellIcons: %v", err)
	}
	if got := icons[133]; got != "spell_fire_flamebolt" {
		t.Errorf("icons[133] = %q, want %q", got, "spell_fire_flamebolt")
	}
	// Spell 136 points at icon 999, which SpellIcon.dbc does not define;
	// spell 666 has no icon at all. Neither may be indexed.
	if got, ok := icons[136]; ok {
		t.Errorf("spell with dangling icon ID indexed as %q", got)
	}
	if got, ok := icons[666]; ok {
		t.Errorf("spell without icon indexed as %q", got)
	}
	if len(icons) != 1 {
		t.Errorf("indexed %d spells, want 1: %v", len(icons), icons)
	}
}

func TestSpellIconsLoadsPersistedIndex(t *testing.T) {
	b, cfg := newFixture(t)
	if _, err := b.SpellIcons(); err != nil {
		t.Fatalf("SpellIcons: %v", err)
	}

	// A fresh builder over the same cache must load the persisted file
	// rather than rebuilding from the tables.
	plantSpellIconSentinel(t, cfg)
	b2 := New(b.src, b.opts)
	t.Cleanup(b2.IconList().Close)

	icons, err := b2.SpellIcons()
	if err != nil {
		t.Fatalf("SpellIcons: %v", err)
	}
	if icons[133] != "sentinel" {
		t.Fatalf("icons[133] = %q, index rebuilt instead of loaded", icons[133])
	}
}

func TestSpellIconsRejectsOldIndexVersion(t *testing.T) {
	b, cfg := newFixture(t)

	doc := spellIconDoc{
		Meta:  Meta{Version: spellIconVersion - 1, BuiltAt: time.Now().UTC()},
		Index: map[uint32]string{133: "sentinel"},
	}
	if err := writeIndexJSON(filepath.Join(cfg.CacheDir(), spellIconIndexFile), doc); err != nil {
		t.Fatalf("write index: %v", err)
	}

	icons, err := b.SpellIcons()
	if err != nil {
		t.Fatalf("SpellIcons: %v", err)
	}
	if icons[133] != "spell_fire_flamebolt" {
		t.Fatalf("icons[133] = %q, want a rebuild over the outdated file", icons[133])
	}
}

func TestSpellIconsRebuiltWhenSourceMoves(t *testing.T) {
	b, cfg := newFixture(t)
	if _, err := b.SpellIcons(); err != nil {
		t.Fatalf("SpellIcons: %v", err)
	}

	plantSpellIconSentinel(t, cfg)
	b.Invalidate()
	icons, err := b.SpellIcons()
	if err != nil {
		t.Fatalf("SpellIcons: %v", err)
	}
	if icons[133] != "sentinel" {
		t.Fatalf("icons[133] = %q, persisted index not picked up", icons[133])
	}

	// Moving Spell.dbc forward makes the persisted file stale, so the next
	// read rebuilds from the tables and the sentinel disappears.
	spellPath, ok := b.src.ResolvePath("Spell.dbc")
	if !ok {
		t.Fatal("Spell.dbc not resolvable")
	}
	touchFuture(t, spellPath)

	icons, err = b.SpellIcons()
	if err != nil {
		t.Fatalf("SpellIcons after touch: %v", err)
	}
	if icons[133] != "spell_fire_flamebolt" {
		t.Fatalf("icons[133] = %q, want a rebuild", icons[133])
	}
}
