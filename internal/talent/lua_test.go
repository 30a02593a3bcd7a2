package talent

import (
	"bytes"
	"strings"
	"testing"
)

func TestLuaString(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`plain`, `"plain"`},
		{`say "hi"`, `"say \"hi\""`},
		{`back\slash`, `"back\\slash"`},
		{"line\nbreak", `"line\nbreak"`},
		{"tab\there", `"tab\there"`},
		{"", `""`},
	}
	for _, tt := range tests {
		if got := luaString(tt.in); got != tt.want {
			t.Fatalf("luaString(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestEmitTreesShape(t *testing.T) {
	trees, err := parseConfig([]byte(`{
		"classes": {
			"1": {
				"className": "Warrior",
				"specs": [{
					"name": "Arms",
					"talents": [
						{"id": 42, "name": "Mortal \"MS\" Strike", "icon": "ability_warrior_savageblow",
						 "row": 0, "col": 0, "maxRank": 1, "ranks": [12294], "requires": 7, "requiresRank": 2}
					]
				}]
			}
		}
	}`))
	if err != nil {
		t.Fatalf("parseConfig: %v", err)
	}
	out := string(EmitTrees(trees))

	for _, want := range []string{
		"SURREAL_TALENT_TREES = {",
		"[1] = {",
		`className = "Warrior",`,
		`name = "Arms",`,
		"rows = 1,",
		"cols = 1,",
		`[1] = { id = 42, name = "Mortal \"MS\" Strike", icon = "ability_warrior_savageblow", row = 0, col = 0, maxRank = 1, ranks = { 12294 }, requires = 7, requiresRank = 2 },`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("emitted Lua missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "heroTrees") {
		t.Fatal("heroTrees emitted for a spec without any")
	}
}

func TestEmitTreesDeterministic(t *testing.T) {
	src := []byte(`{
		"classes": {
			"8": {"className": "Mage", "specs": [{"name": "Fire", "talents": [
				{"name": "Ignite", "row": 1, "col": 1, "ranks": [11119]},
				{"name": "Impact", "row": 0, "col": 2, "ranks": [11103]}
			]}]},
			"1": {"className": "Warrior", "specs": [{"name": "Arms", "talents": []}]}
		}
	}`)
	first, err := parseConfig(src)
	if err != nil {
		t.Fatalf("parseConfig: %v", err)
	}
	second, err := parseConfig(src)
	if err != nil {
		t.Fatalf("parseConfig: %v", err)
	}
	a, b := EmitTrees(first), EmitTrees(second)
	if !bytes.Equal(a, b) {
		t.Fatal("repeat emissions differ")
	}

	// Classes in ID order regardless of JSON map order.
	out := string(a)
	if strings.Index(out, `className = "Warrior"`) > strings.Index(out, `className = "Mage"`) {
		t.Fatal("classes not sorted by id")
	}
	// Talents in (row, col) order.
	if strings.Index(out, `name = "Impact"`) > strings.Index(out, `name = "Ignite"`) {
		t.Fatal("talents not sorted by coordinates")
	}
}
