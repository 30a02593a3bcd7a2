// Package spells implements the focused Spell editor: a whitelisted
// projection of the 234-field Spell table organized into UI sections, backed
// by a MySQL mirror table that a running worldserver can read live.
//
// The mirror is the source of truth for edited cells: reads overlay it onto
// the DBC row, writes only ever touch the mirror. Repacking edits into
// Spell.dbc stays the job of the DBC save path.
package spells

import (
	"fmt"
	"regexp"

	"github.com/surreal-wow/sdbeditor/internal/schema"
	"github.com/surreal-wow/sdbeditor/internal/wdbc"
)

// SectionOrder fixes the section layout the editor UI renders.
var SectionOrder = []string{
	"selectSpell", "base", "targetsProcs", "effects", "items", "flags", "icon", "visual",
}

// Sections maps each section to its editable Spell fields, by schema name.
// selectSpell carries only the key; it renders the picker, not an edit form.
var Sections = map[string][]string{
	"selectSpell": {"ID"},
	"base": {
		"SpellName", "Rank", "Description", "ToolTip",
		"MaxLevel", "BaseLevel", "SpellLevel", "MaxTargetLevel",
		"Category", "DispelType", "Mechanic",
		"CastingTimeIndex", "DurationIndex", "RangeIndex",
		"RecoveryTime", "CategoryRecoveryTime",
		"StartRecoveryCategory", "StartRecoveryTime",
		"PowerType", "ManaCost", "ManaCostPerLevel", "ManaPerSecond", "ManaCostPercentage",
		"Speed", "StackAmount", "MaxAffectedTargets",
		"SpellFamilyName", "SchoolMask", "DmgClass", "PreventionType",
	},
	"targetsProcs": {
		"Targets", "TargetCreatureType", "RequiresSpellFocus", "FacingCasterFlags",
		"CasterAuraState", "TargetAuraState", "CasterAuraStateNot", "TargetAuraStateNot",
		"CasterAuraSpell", "TargetAuraSpell", "ExcludeCasterAuraSpell", "ExcludeTargetAuraSpell",
		"ProcFlags", "ProcChance", "ProcCharges",
	},
	"effects": effectFields(),
	"items": {
		"Totem_1", "Totem_2",
		"Reagent_1", "Reagent_2", "Reagent_3", "Reagent_4",
		"Reagent_5", "Reagent_6", "Reagent_7", "Reagent_8",
		"ReagentCount_1", "ReagentCount_2", "ReagentCount_3", "ReagentCount_4",
		"ReagentCount_5", "ReagentCount_6", "ReagentCount_7", "ReagentCount_8",
		"EquippedItemClass", "EquippedItemSubClassMask", "EquippedItemInventoryTypeMask",
		"TotemCategory_1", "TotemCategory_2",
	},
	"flags": {
		"Attributes", "AttributesEx", "AttributesEx2", "AttributesEx3",
		"AttributesEx4", "AttributesEx5", "AttributesEx6", "AttributesEx7",
		"Stances_1", "Stances_2", "StancesNot_1", "StancesNot_2",
		"InterruptFlags", "AuraInterruptFlags", "ChannelInterruptFlags",
		"SpellFamilyFlags_1", "SpellFamilyFlags_2", "SpellFamilyFlags_3",
	},
	"icon": {"SpellIconID", "ActiveIconID", "SpellPriority"},
	"visual": {
		"SpellVisual_1", "SpellVisual_2", "SpellMissileID",
		"SpellDescriptionVariableID", "RuneCostID", "PowerDisplayId",
		"SpellDifficultyId", "AreaGroupId", "MinFactionId", "MinReputation",
		"RequiredAuraVision", "StanceBarOrder", "ModalNextSpell",
	},
}

// effectFields expands the per-effect columns for slots 1..3.
func effectFields() []string {
	bases := []string{
		"Effect", "EffectDieSides", "EffectRealPointsPerLevel", "EffectBasePoints",
		"EffectMechanic", "EffectImplicitTargetA", "EffectImplicitTargetB",
		"EffectRadiusIndex", "EffectApplyAuraName", "EffectAmplitude",
		"EffectValueMultiplier", "EffectChainTarget", "EffectItemType",
		"EffectMiscValue", "EffectMiscValueB", "EffectTriggerSpell",
		"EffectPointsPerComboPoint", "EffectSpellClassMaskA", "EffectSpellClassMaskB",
		"EffectSpellClassMaskC", "EffectBonusMultiplier", "DmgMultiplier",
	}
	out := make([]string, 0, len(bases)*3)
	for i := 1; i <= 3; i++ {
		for _, b := range bases {
			out = append(out, fmt.Sprintf("%s_%d", b, i))
		}
	}
	return out
}

// columnOverrides renames fields whose mirror column diverges from the schema
// name. Array fields additionally drop the underscore (EffectBasePoints_1 →
// EffectBasePoints1), handled in ColumnFor.
var columnOverrides = map[string]string{
	"MaxLevel":   "MaximumLevel",
	"DispelType": "Dispel",
}

// legacyAliases accepts the older editor payload names for the four visible
// locale strings.
var legacyAliases = map[string]string{
	"SpellName0":   "SpellName",
	"Rank0":        "Rank",
	"Description0": "Description",
	"ToolTip0":     "ToolTip",
}

var (
	arraySuffix     = regexp.MustCompile(`^(.*)_(\d+)$`)
	bareArraySuffix = regexp.MustCompile(`^(.*?)(\d+)$`)
)

// fieldSet is every editable field, for O(1) membership checks.
var fieldSet = func() map[string]struct{} {
	set := make(map[string]struct{})
	for _, fields := range Sections {
		for _, f := range fields {
			set[f] = struct{}{}
		}
	}
	return set
}()

// spellFieldIndex maps Spell schema field names to their column position.
var spellFieldIndex = func() map[string]int {
	idx := make(map[string]int)
	for i, f := range schema.For("Spell") {
		idx[f.Name] = i
	}
	return idx
}()

// spellFieldTypes maps Spell schema field names to their cell type.
var spellFieldTypes = func() map[string]wdbc.FieldType {
	types := make(map[string]wdbc.FieldType)
	for _, f := range schema.For("Spell") {
		types[f.Name] = f.Type
	}
	return types
}()

// NormalizeField resolves an incoming patch key to its canonical schema
// field name. Unknown keys return "", false; callers skip them silently.
func NormalizeField(key string) (string, bool) {
	if _, ok := fieldSet[key]; ok {
		return key, true
	}
	if canon, ok := legacyAliases[key]; ok {
		return canon, true
	}
	// Array fields sent without the underscore: EffectBasePoints1.
	if m := bareArraySuffix.FindStringSubmatch(key); m != nil {
		candidate := m[1] + "_" + m[2]
		if _, ok := fieldSet[candidate]; ok {
			return candidate, true
		}
	}
	return "", false
}

// ColumnFor maps a canonical field name to its mirror column. ID is the key
// column and is never patchable through the alias path.
func ColumnFor(field string) (string, bool) {
	if field == "ID" {
		return "", false
	}
	if _, ok := fieldSet[field]; !ok {
		return "", false
	}
	if col, ok := columnOverrides[field]; ok {
		return col, true
	}
	if m := arraySuffix.FindStringSubmatch(field); m != nil {
		return m[1] + m[2], true
	}
	return field, true
}

// MirrorColumns returns every mirror column in section order, ID first.
// The order is stable: it drives both CREATE TABLE and INSERT layouts.
func MirrorColumns() []string {
	cols := []string{"ID"}
	for _, section := range SectionOrder {
		for _, f := range Sections[section] {
			if col, ok := ColumnFor(f); ok {
				cols = append(cols, col)
			}
		}
	}
	return cols
}

// FieldForColumn inverts ColumnFor.
var fieldForColumn = func() map[string]string {
	inv := map[string]string{"ID": "ID"}
	for _, fields := range Sections {
		for _, f := range fields {
			if col, ok := ColumnFor(f); ok {
				inv[col] = f
			}
		}
	}
	return inv
}()

// FieldForColumn maps a mirror column back to its schema field name.
func FieldForColumn(col string) (string, bool) {
	f, ok := fieldForColumn[col]
	return f, ok
}

// ReferenceTables lists, for every editable field carrying a foreign-key
// hint, the table it points at. The UI uses this to route reference search.
func ReferenceTables() map[string]string {
	refs := make(map[string]string)
	for _, f := range schema.For("Spell") {
		if f.Ref == "" {
			continue
		}
		if _, ok := fieldSet[f.Name]; ok {
			refs[f.Name] = f.Ref
		}
	}
	return refs
}

// columnType yields the MySQL column definition for a field, from its schema
// cell type. Strings get a generous VARCHAR; tooltips and descriptions are
// the longest cells in practice.
func columnType(field string) string {
	switch spellFieldTypes[field] {
	case wdbc.TypeString:
		return "VARCHAR(2048) NOT NULL DEFAULT ''"
	case wdbc.TypeFloat:
		return "FLOAT NOT NULL DEFAULT 0"
	case wdbc.TypeInt32:
		return "INT NOT NULL DEFAULT 0"
	default:
		return "INT UNSIGNED NOT NULL DEFAULT 0"
	}
}

// sectionOf returns the section containing a canonical field name.
func sectionOf(field string) string {
	for _, section := range SectionOrder {
		for _, f := range Sections[section] {
			if f == field {
				return section
			}
		}
	}
	return ""
}
