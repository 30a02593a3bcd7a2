package spells

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestEvalEnumExpr(t *testing.T) {
	tests := []struct {
		expr string
		want int64
	}{
		{"7", 7},
		{"0x20", 32},
		{"0x00000001", 1},
		{"1 << 4", 16},
		{"0x01 | 0x04", 5},
		{"(1 << 8) - 1", 255},
		{"3 + 4 - 2", 5},
		{"-5", -5},
		{"0xFF & 0x0F", 15},
		// << binds tighter than | and looser than +, as in C.
		{"1 << 2 | 1 << 5", 36},
		{"2 + 3 << 1", 10},
		{"0x7FFFFFFFu", 2147483647},
		{"(0x01|0x02)&0x03", 3},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := evalEnumExpr(tt.expr)
			if err != nil {
				t.Fatalf("evalEnumExpr(%q): %v", tt.expr, err)
			}
			if got != tt.want {
				t.Fatalf("evalEnumExpr(%q) = %d, want %d", tt.expr, got, tt.want)
			}
		})
	}

	for _, bad := range []string{
		"SPELL_ATTR0_NONE", // identifiers are outside the grammar
		"1 +",
		"(1",
		"1 < 2",
		"1 ~ 2",
		"1 * 2",
		"",
	} {
		if _, err := evalEnumExpr(bad); err == nil {
			t.Fatalf("evalEnumExpr(%q) accepted an unsupported expression", bad)
		}
	}
}

func TestParseEnums(t *testing.T) {
	src := `
// Spell attributes, block 0.
enum SpellAttr0 : uint32
{
    SPELL_ATTR0_NONE                 = 0x00000000, // trailing comment
    SPELL_ATTR0_PROC_FAILURE_BURNS_CHARGE = 0x00000001,
    SPELL_ATTR0_USES_RANGED_SLOT     = 0x00000002, /* block comment */
    SPELL_ATTR0_COMBINED             = 0x00000001 | 0x00000002,
};

enum class DispelType
{
    DISPEL_NONE,
    DISPEL_MAGIC = 1,
    DISPEL_CURSE,
};
`
	enums := parseEnums(src)
	if len(enums) != 2 {
		t.Fatalf("parsed %d enums, want 2: %v", len(enums), enums)
	}

	attrs := enums["SpellAttr0"]
	want := []EnumEntry{
		{Name: "SPELL_ATTR0_NONE", Label: "None", Value: 0},
		{Name: "SPELL_ATTR0_PROC_FAILURE_BURNS_CHARGE", Label: "Proc Failure Burns Charge", Value: 1},
		{Name: "SPELL_ATTR0_USES_RANGED_SLOT", Label: "Uses Ranged Slot", Value: 2},
		{Name: "SPELL_ATTR0_COMBINED", Label: "Combined", Value: 3},
	}
	if !reflect.DeepEqual(attrs, want) {
		t.Fatalf("SpellAttr0 = %+v, want %+v", attrs, want)
	}

	dispel := enums["DispelType"]
	wantDispel := []EnumEntry{
		{Name: "DISPEL_NONE", Label: "None", Value: 0},
		{Name: "DISPEL_MAGIC", Label: "Magic", Value: 1},
		{Name: "DISPEL_CURSE", Label: "Curse", Value: 2},
	}
	if !reflect.DeepEqual(dispel, wantDispel) {
		t.Fatalf("DispelType = %+v, want %+v", dispel, wantDispel)
	}
}

func TestParseEnumBodySkipsUnknowns(t *testing.T) {
	entries := parseEnumBody(`
		TARGET_NONE,
		TARGET_UNIT_CASTER = 1,
		TARGET_UNIT_NEARBY_ENEMY,
		TARGET_ALIAS = TARGET_UNIT_CASTER,
		TARGET_AFTER_ALIAS,
		TARGET_RESUME = 10,
		TARGET_NEXT,
	`)
	want := []EnumEntry{
		{Name: "TARGET_NONE", Value: 0},
		{Name: "TARGET_UNIT_CASTER", Value: 1},
		{Name: "TARGET_UNIT_NEARBY_ENEMY", Value: 2},
		// TARGET_ALIAS references an identifier: dropped, and the implicit
		// counter stays unknown until TARGET_RESUME re-anchors it.
		{Name: "TARGET_RESUME", Value: 10},
		{Name: "TARGET_NEXT", Value: 11},
	}
	if !reflect.DeepEqual(entries, want) {
		t.Fatalf("entries = %+v, want %+v", entries, want)
	}
}

func TestEnumLabels(t *testing.T) {
	// A single entry keeps its full name as the label seed.
	one := []EnumEntry{{Name: "FOO_ONLY"}}
	applyLabels(one)
	if one[0].Label != "Foo Only" {
		t.Fatalf("single-entry label = %q", one[0].Label)
	}

	// Prefix stripping cuts at the last shared underscore.
	two := []EnumEntry{{Name: "SPELL_SCHOOL_NORMAL"}, {Name: "SPELL_SCHOOL_HOLY"}}
	applyLabels(two)
	if two[0].Label != "Normal" || two[1].Label != "Holy" {
		t.Fatalf("labels = %q, %q", two[0].Label, two[1].Label)
	}

	// No shared prefix: full names, title-cased.
	mixed := []EnumEntry{{Name: "ALPHA_ONE"}, {Name: "BETA_TWO"}}
	applyLabels(mixed)
	if mixed[0].Label != "Alpha One" || mixed[1].Label != "Beta Two" {
		t.Fatalf("labels = %q, %q", mixed[0].Label, mixed[1].Label)
	}
}

func writeEnumHeader(t *testing.T, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestEnumExtractor(t *testing.T) {
	root := t.TempDir()
	writeEnumHeader(t, root, "src/server/game/Miscellaneous/SharedDefines.h", `
enum Powers
{
    POWER_MANA = 0,
    POWER_RAGE = 1,
};
enum Shared { SHARED_A = 1, SHARED_B = 2 };
`)
	writeEnumHeader(t, root, "src/server/game/Spells/SpellDefines.h", `
enum Shared { SHADOWED_X = 9 };
enum TriggerCastFlags
{
    TRIGGERED_NONE = 0x00000000,
    TRIGGERED_IGNORE_GCD = 0x00000001,
};
`)

	x := NewEnumExtractor(root, nil)
	enums, err := x.Enums()
	if err != nil {
		t.Fatalf("Enums: %v", err)
	}
	if len(enums) != 3 {
		t.Fatalf("got %d enums, want 3: %v", len(enums), enums)
	}
	if got := enums["Powers"]; len(got) != 2 || got[0].Value != 0 || got[1].Name != "POWER_RAGE" {
		t.Fatalf("Powers = %+v", got)
	}
	// Duplicate enum names: the earlier header in the fixed order wins.
	if got := enums["Shared"]; len(got) != 2 || got[0].Name != "SHARED_A" {
		t.Fatalf("Shared = %+v", got)
	}

	// Unchanged headers serve the cached map.
	again, err := x.Enums()
	if err != nil {
		t.Fatalf("Enums: %v", err)
	}
	if reflect.ValueOf(enums).Pointer() != reflect.ValueOf(again).Pointer() {
		t.Fatal("cache miss on unchanged headers")
	}

	// A touched header invalidates the cache.
	path := writeEnumHeader(t, root, "src/server/game/Miscellaneous/SharedDefines.h", `
enum Powers
{
    POWER_MANA = 0,
    POWER_RAGE = 1,
    POWER_FOCUS = 2,
};
`)
	future := time.Now().Add(time.Hour)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}
	refreshed, err := x.Enums()
	if err != nil {
		t.Fatalf("Enums: %v", err)
	}
	if got := refreshed["Powers"]; len(got) != 3 {
		t.Fatalf("refreshed Powers = %+v", got)
	}
	// SharedDefines no longer declares Shared, so the SpellDefines copy
	// stops being shadowed.
	if got := refreshed["Shared"]; len(got) != 1 || got[0].Name != "SHADOWED_X" {
		t.Fatalf("refreshed Shared = %+v", got)
	}
}

func TestEnumExtractorNoHeaders(t *testing.T) {
	if _, err := NewEnumExtractor(t.TempDir(), nil).Enums(); err == nil {
		t.Fatal("want error for a root without headers")
	}
	if _, err := NewEnumExtractor("", nil).Enums(); err == nil {
		t.Fatal("want error for an empty root")
	}
}
