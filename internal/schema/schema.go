// Package schema bundles the field layouts of the 3.3.5a client tables the
// editor understands.
//
// The registry is process-wide and immutable: layouts are assembled once at
// init and lookups return copies. A table missing from the registry is still
// readable; the codec generates uint32 descriptors for every field.
package schema

import (
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/surreal-wow/sdbeditor/internal/wdbc"
)

// locales is the 16-slot locale order of 3.3.5a localized string columns.
// Slot 0 (enUS) is the visible one.
var locales = []string{
	"enUS", "koKR", "frFR", "deDE", "zhCN", "zhTW", "esES", "esMX",
	"ruRU", "jaJP", "ptPT", "itIT", "Unk12", "Unk13", "Unk14", "Unk15",
}

// LocString expands a localized column into its 17 on-disk fields: the
// visible enUS value, 15 hidden locale variants, and a <name>_Flags uint32.
func LocString(name string) []wdbc.Field {
	out := make([]wdbc.Field, 0, len(locales)+1)
	out = append(out, wdbc.Field{Name: name, Type: wdbc.TypeString, Locale: locales[0]})
	for _, loc := range locales[1:] {
		out = append(out, wdbc.Field{
			Name:   name + "_" + loc,
			Type:   wdbc.TypeString,
			Hidden: true,
			Locale: loc,
		})
	}
	out = append(out, wdbc.Field{Name: name + "_Flags", Type: wdbc.TypeUint32, Hidden: true})
	return out
}

// ArrayField produces base_1 .. base_n descriptors of a uniform type.
func ArrayField(base string, t wdbc.FieldType, n int) []wdbc.Field {
	out := make([]wdbc.Field, n)
	for i := range out {
		out[i] = wdbc.Field{Name: base + "_" + strconv.Itoa(i+1), Type: t}
	}
	return out
}

// refArray is ArrayField with a foreign-key hint on every element.
func refArray(base string, n int, ref string) []wdbc.Field {
	out := ArrayField(base, wdbc.TypeUint32, n)
	for i := range out {
		out[i].Ref = ref
	}
	return out
}

func u(name string) []wdbc.Field {
	return []wdbc.Field{{Name: name, Type: wdbc.TypeUint32}}
}

func i32(name string) []wdbc.Field {
	return []wdbc.Field{{Name: name, Type: wdbc.TypeInt32}}
}

func f32(name string) []wdbc.Field {
	return []wdbc.Field{{Name: name, Type: wdbc.TypeFloat}}
}

func str(name string) []wdbc.Field {
	return []wdbc.Field{{Name: name, Type: wdbc.TypeString}}
}

func flags(name string) []wdbc.Field {
	return []wdbc.Field{{Name: name, Type: wdbc.TypeFlags}}
}

func ref(name, table string) []wdbc.Field {
	return []wdbc.Field{{Name: name, Type: wdbc.TypeUint32, Ref: table}}
}

func concat(parts ...[]wdbc.Field) []wdbc.Field {
	var out []wdbc.Field
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// For returns a copy of the registered layout for table (base name without
// the .dbc extension), or nil when the table is unknown.
func For(table string) []wdbc.Field {
	s, ok := registry[table]
	if !ok {
		return nil
	}
	out := make([]wdbc.Field, len(s))
	copy(out, s)
	return out
}

// ForFile is For keyed by file name; "Spell.dbc" and "Spell" are equivalent.
func ForFile(filename string) []wdbc.Field {
	return For(TableName(filename))
}

// Has reports whether a layout is registered for table.
func Has(table string) bool {
	_, ok := registry[table]
	return ok
}

// TableName strips any directory and the .dbc extension (case-insensitive)
// from a file name: "export/Spell.dbc" and "Spell" both yield "Spell".
func TableName(filename string) string {
	base := filepath.Base(filename)
	if strings.EqualFold(filepath.Ext(base), ".dbc") {
		return base[:len(base)-len(".dbc")]
	}
	return base
}

// Tables returns the registered table names, sorted.
func Tables() []string {
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// LookupSource says which file and which field index carry the display name
// of a referenceable table. Consumers build {id: name} maps from these.
type LookupSource struct {
	File      string `json:"file"`
	NameField int    `json:"nameField"`
}

// LookupSources covers every table a Ref hint can point at. Tables without
// a display string use their most descriptive numeric column as the label.
var LookupSources = map[string]LookupSource{
	"Spell":                     {File: "Spell.dbc", NameField: 136},
	"SpellIcon":                 {File: "SpellIcon.dbc", NameField: 1},
	"SpellVisual":               {File: "SpellVisual.dbc", NameField: 0},
	"SpellMissile":              {File: "SpellMissile.dbc", NameField: 0},
	"SpellCastTimes":            {File: "SpellCastTimes.dbc", NameField: 1},
	"SpellDuration":             {File: "SpellDuration.dbc", NameField: 1},
	"SpellRadius":               {File: "SpellRadius.dbc", NameField: 1},
	"SpellDescriptionVariables": {File: "SpellDescriptionVariables.dbc", NameField: 1},
	"SpellRange":                {File: "SpellRange.dbc", NameField: 6},
	"Talent":                    {File: "Talent.dbc", NameField: 0},
	"TalentTab":                 {File: "TalentTab.dbc", NameField: 1},
	"ChrClasses":                {File: "ChrClasses.dbc", NameField: 4},
	"ChrRaces":                  {File: "ChrRaces.dbc", NameField: 14},
	"Faction":                   {File: "Faction.dbc", NameField: 23},
	"Map":                       {File: "Map.dbc", NameField: 5},
	"AreaTable":                 {File: "AreaTable.dbc", NameField: 11},
	"SkillLine":                 {File: "SkillLine.dbc", NameField: 3},
	"Achievement":               {File: "Achievement.dbc", NameField: 4},
	"CreatureFamily":            {File: "CreatureFamily.dbc", NameField: 10},
	"ItemClass":                 {File: "ItemClass.dbc", NameField: 3},
	"CharTitles":                {File: "CharTitles.dbc", NameField: 2},
	"TotemCategory":             {File: "TotemCategory.dbc", NameField: 1},
}
