package talent

import (
	"fmt"
	"strconv"
	"strings"
)

// TreesFileName is the generated addon file carrying SURREAL_TALENT_TREES.
const TreesFileName = "SurrealTalentConfig_AIO.lua"

// treesGlobal is the single global the addon reads.
const treesGlobal = "SURREAL_TALENT_TREES"

// EmitTrees renders the normalized trees as Lua. Output is deterministic:
// classes, tabs and talents are already sorted by the normalizer, and every
// value renders the same bytes on every run, so repeat deploys of an
// unchanged config are byte-identical.
func EmitTrees(trees []Tree) []byte {
	var b luaBuilder
	b.line(0, "-- %s", TreesFileName)
	b.line(0, "-- Generated from talent-config.json. Edit the JSON, not this file.")
	b.line(0, "%s = {", treesGlobal)
	for _, tree := range trees {
		b.line(1, "[%d] = {", tree.ClassID)
		b.line(2, "className = %s,", luaString(tree.ClassName))
		b.line(2, "tabs = {")
		for _, tab := range tree.Tabs {
			b.line(3, "[%d] = {", tab.Index)
			b.line(4, "name = %s,", luaString(tab.Name))
			b.line(4, "rows = %d,", tab.Rows)
			b.line(4, "cols = %d,", tab.Cols)
			b.emitTalents(4, tab.Talents)
			if len(tab.HeroTrees) > 0 {
				b.line(4, "heroTrees = {")
				for hi, hero := range tab.HeroTrees {
					b.line(5, "[%d] = {", hi+1)
					b.line(6, "name = %s,", luaString(hero.Name))
					b.emitTalents(6, hero.Talents)
					b.line(5, "},")
				}
				b.line(4, "},")
			}
			b.line(3, "},")
		}
		b.line(2, "},")
		b.line(1, "},")
	}
	b.line(0, "}")
	return b.bytes()
}

type luaBuilder struct {
	sb strings.Builder
}

func (b *luaBuilder) line(depth int, format string, args ...any) {
	for i := 0; i < depth; i++ {
		b.sb.WriteString("  ")
	}
	fmt.Fprintf(&b.sb, format, args...)
	b.sb.WriteByte('\n')
}

func (b *luaBuilder) bytes() []byte {
	return []byte(b.sb.String())
}

// emitTalents writes one talents array, one node per line.
func (b *luaBuilder) emitTalents(depth int, talents []Talent) {
	b.line(depth, "talents = {")
	for i, t := range talents {
		b.line(depth+1, "[%d] = %s,", i+1, luaTalent(t))
	}
	b.line(depth, "},")
}

// luaTalent renders one talent as a single-line table constructor. Optional
// fields (requires) are always present so the shape is uniform for the
// addon's reader.
func luaTalent(t Talent) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "{ id = %d, name = %s, icon = %s, row = %d, col = %d, maxRank = %d, ranks = { ",
		t.ID, luaString(t.Name), luaString(t.Icon), t.Row, t.Col, t.MaxRank)
	for i, r := range t.Ranks {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(strconv.FormatUint(uint64(r), 10))
	}
	if len(t.Ranks) > 0 {
		sb.WriteString(" ")
	}
	fmt.Fprintf(&sb, "}, requires = %d, requiresRank = %d }", t.Requires, t.RequiresRank)
	return sb.String()
}

// luaString renders a double-quoted Lua string literal.
func luaString(s string) string {
	var sb strings.Builder
	sb.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			sb.WriteString(`\"`)
		case '\\':
			sb.WriteString(`\\`)
		case '\n':
			sb.WriteString(`\n`)
		case '\r':
			sb.WriteString(`\r`)
		case '\t':
			sb.WriteString(`\t`)
		default:
			sb.WriteRune(r)
		}
	}
	sb.WriteByte('"')
	return sb.String()
}
