package schema

import "github.com/surreal-wow/sdbeditor/internal/wdbc"

// registry holds the bundled layouts, keyed by table name. Layouts follow
// the 3.3.5a (build 12340) client tables. Field order is load-bearing: the
// codec maps descriptor N to on-disk field N.
var registry = map[string][]wdbc.Field{
	"Spell":                     spellTable,
	"SpellIcon":                 concat(u("ID"), str("IconPath")),
	"Talent":                    talentTable,
	"TalentTab":                 talentTabTable,
	"ChrClasses":                chrClassesTable,
	"ChrRaces":                  chrRacesTable,
	"Faction":                   factionTable,
	"Map":                       mapTable,
	"Achievement":               achievementTable,
	"AreaTable":                 areaTableTable,
	"SkillLine":                 skillLineTable,
	"SkillLineAbility":          skillLineAbilityTable,
	"SpellDuration":             concat(u("ID"), i32("Duration"), i32("DurationPerLevel"), i32("MaxDuration")),
	"SpellRange":                spellRangeTable,
	"SpellCastTimes":            concat(u("ID"), i32("Base"), i32("PerLevel"), i32("Minimum")),
	"SpellRadius":               concat(u("ID"), f32("Radius"), f32("RadiusPerLevel"), f32("RadiusMax")),
	"SpellVisual":               spellVisualTable,
	"SpellMissile":              spellMissileTable,
	"SpellDescriptionVariables": concat(u("ID"), str("Variables")),
	"CharTitles":                concat(u("ID"), u("ConditionID"), LocString("Name"), LocString("NameFemale"), u("MaskID")),
	"CreatureFamily":            creatureFamilyTable,
	"EmotesText":                concat(u("ID"), str("Name"), u("EmoteID"), ArrayField("EmoteText", wdbc.TypeUint32, 16)),
	"GlyphProperties":           concat(u("ID"), ref("SpellID", "Spell"), flags("GlyphSlotFlags"), ref("SpellIconID", "SpellIcon")),
	"Item":                      itemTable,
	"ItemClass":                 concat(u("ClassID"), u("SubclassMapID"), flags("Flags"), LocString("ClassName")),
	"TotemCategory":             concat(u("ID"), LocString("Name"), u("TotemCategoryType"), flags("TotemCategoryMask")),
}

// spellTable is the 234-field Spell.dbc layout. SpellIconID sits at field
// index 133 (byte offset 532) and the visible SpellName at 136.
var spellTable = concat(
	u("ID"),
	u("Category"),
	u("DispelType"),
	u("Mechanic"),
	flags("Attributes"),
	flags("AttributesEx"),
	flags("AttributesEx2"),
	flags("AttributesEx3"),
	flags("AttributesEx4"),
	flags("AttributesEx5"),
	flags("AttributesEx6"),
	flags("AttributesEx7"),
	ArrayField("Stances", wdbc.TypeFlags, 2),
	ArrayField("StancesNot", wdbc.TypeFlags, 2),
	flags("Targets"),
	u("TargetCreatureType"),
	u("RequiresSpellFocus"),
	flags("FacingCasterFlags"),
	u("CasterAuraState"),
	u("TargetAuraState"),
	u("CasterAuraStateNot"),
	u("TargetAuraStateNot"),
	ref("CasterAuraSpell", "Spell"),
	ref("TargetAuraSpell", "Spell"),
	ref("ExcludeCasterAuraSpell", "Spell"),
	ref("ExcludeTargetAuraSpell", "Spell"),
	ref("CastingTimeIndex", "SpellCastTimes"),
	u("RecoveryTime"),
	u("CategoryRecoveryTime"),
	flags("InterruptFlags"),
	flags("AuraInterruptFlags"),
	flags("ChannelInterruptFlags"),
	flags("ProcFlags"),
	u("ProcChance"),
	u("ProcCharges"),
	u("MaxLevel"),
	u("BaseLevel"),
	u("SpellLevel"),
	ref("DurationIndex", "SpellDuration"),
	i32("PowerType"),
	u("ManaCost"),
	u("ManaCostPerLevel"),
	u("ManaPerSecond"),
	u("ManaPerSecondPerLevel"),
	ref("RangeIndex", "SpellRange"),
	f32("Speed"),
	ref("ModalNextSpell", "Spell"),
	u("StackAmount"),
	ArrayField("Totem", wdbc.TypeUint32, 2),
	ArrayField("Reagent", wdbc.TypeInt32, 8),
	ArrayField("ReagentCount", wdbc.TypeUint32, 8),
	i32("EquippedItemClass"),
	i32("EquippedItemSubClassMask"),
	i32("EquippedItemInventoryTypeMask"),
	ArrayField("Effect", wdbc.TypeUint32, 3),
	ArrayField("EffectDieSides", wdbc.TypeInt32, 3),
	ArrayField("EffectRealPointsPerLevel", wdbc.TypeFloat, 3),
	ArrayField("EffectBasePoints", wdbc.TypeInt32, 3),
	ArrayField("EffectMechanic", wdbc.TypeUint32, 3),
	ArrayField("EffectImplicitTargetA", wdbc.TypeUint32, 3),
	ArrayField("EffectImplicitTargetB", wdbc.TypeUint32, 3),
	refArray("EffectRadiusIndex", 3, "SpellRadius"),
	ArrayField("EffectApplyAuraName", wdbc.TypeUint32, 3),
	ArrayField("EffectAmplitude", wdbc.TypeUint32, 3),
	ArrayField("EffectValueMultiplier", wdbc.TypeFloat, 3),
	ArrayField("EffectChainTarget", wdbc.TypeUint32, 3),
	ArrayField("EffectItemType", wdbc.TypeUint32, 3),
	ArrayField("EffectMiscValue", wdbc.TypeInt32, 3),
	ArrayField("EffectMiscValueB", wdbc.TypeInt32, 3),
	refArray("EffectTriggerSpell", 3, "Spell"),
	ArrayField("EffectPointsPerComboPoint", wdbc.TypeFloat, 3),
	ArrayField("EffectSpellClassMaskA", wdbc.TypeFlags, 3),
	ArrayField("EffectSpellClassMaskB", wdbc.TypeFlags, 3),
	ArrayField("EffectSpellClassMaskC", wdbc.TypeFlags, 3),
	refArray("SpellVisual", 2, "SpellVisual"),
	ref("SpellIconID", "SpellIcon"),
	ref("ActiveIconID", "SpellIcon"),
	u("SpellPriority"),
	LocString("SpellName"),
	LocString("Rank"),
	LocString("Description"),
	LocString("ToolTip"),
	u("ManaCostPercentage"),
	u("StartRecoveryCategory"),
	u("StartRecoveryTime"),
	u("MaxTargetLevel"),
	u("SpellFamilyName"),
	ArrayField("SpellFamilyFlags", wdbc.TypeFlags, 3),
	u("MaxAffectedTargets"),
	u("DmgClass"),
	u("PreventionType"),
	u("StanceBarOrder"),
	ArrayField("DmgMultiplier", wdbc.TypeFloat, 3),
	ref("MinFactionId", "Faction"),
	u("MinReputation"),
	u("RequiredAuraVision"),
	refArray("TotemCategory", 2, "TotemCategory"),
	i32("AreaGroupId"),
	flags("SchoolMask"),
	u("RuneCostID"),
	ref("SpellMissileID", "SpellMissile"),
	i32("PowerDisplayId"),
	ArrayField("EffectBonusMultiplier", wdbc.TypeFloat, 3),
	ref("SpellDescriptionVariableID", "SpellDescriptionVariables"),
	u("SpellDifficultyId"),
)

var talentTable = concat(
	u("ID"),
	ref("TabID", "TalentTab"),
	u("TierID"),
	u("ColumnIndex"),
	refArray("SpellRank", 9, "Spell"),
	refArray("PrereqTalent", 3, "Talent"),
	ArrayField("PrereqRank", wdbc.TypeUint32, 3),
	flags("Flags"),
	ref("RequiredSpellID", "Spell"),
	ArrayField("CategoryMask", wdbc.TypeFlags, 2),
)

var talentTabTable = concat(
	u("ID"),
	LocString("Name"),
	ref("SpellIconID", "SpellIcon"),
	flags("RaceMask"),
	flags("ClassMask"),
	flags("PetTalentMask"),
	u("OrderIndex"),
	str("BackgroundFile"),
)

var chrClassesTable = concat(
	u("ID"),
	u("Unknown1"),
	u("DisplayPower"),
	str("PetNameToken"),
	LocString("Name"),
	LocString("NameFemale"),
	LocString("NameMale"),
	str("Filename"),
	u("SpellClassSet"),
	flags("Flags"),
	u("CinematicSequenceID"),
	u("RequiredExpansion"),
)

var chrRacesTable = concat(
	u("ID"),
	flags("Flags"),
	ref("FactionID", "Faction"),
	u("ExplorationSoundID"),
	u("MaleDisplayID"),
	u("FemaleDisplayID"),
	str("ClientPrefix"),
	u("BaseLanguage"),
	u("CreatureType"),
	ref("ResSicknessSpellID", "Spell"),
	u("SplashSoundID"),
	str("ClientFileString"),
	u("CinematicSequenceID"),
	u("Alliance"),
	LocString("Name"),
	LocString("NameFemale"),
	LocString("NameMale"),
	ArrayField("FacialHairCustomization", wdbc.TypeString, 2),
	str("HairCustomization"),
	u("RequiredExpansion"),
)

var factionTable = concat(
	u("ID"),
	i32("ReputationIndex"),
	ArrayField("ReputationRaceMask", wdbc.TypeFlags, 4),
	ArrayField("ReputationClassMask", wdbc.TypeFlags, 4),
	ArrayField("ReputationBase", wdbc.TypeInt32, 4),
	ArrayField("ReputationFlags", wdbc.TypeFlags, 4),
	ref("ParentFactionID", "Faction"),
	f32("ParentFactionModIn"),
	f32("ParentFactionModOut"),
	u("ParentFactionCapIn"),
	u("ParentFactionCapOut"),
	LocString("Name"),
	LocString("Description"),
)

var mapTable = concat(
	u("ID"),
	str("Directory"),
	u("InstanceType"),
	flags("Flags"),
	u("PVP"),
	LocString("MapName"),
	ref("AreaTableID", "AreaTable"),
	LocString("MapDescription0"),
	LocString("MapDescription1"),
	u("LoadingScreenID"),
	f32("MinimapIconScale"),
	ref("CorpseMapID", "Map"),
	f32("CorpseX"),
	f32("CorpseY"),
	i32("TimeOfDayOverride"),
	u("ExpansionID"),
	u("RaidOffset"),
	u("MaxPlayers"),
)

var achievementTable = concat(
	u("ID"),
	i32("Faction"),
	i32("InstanceID"),
	i32("Supercedes"),
	LocString("Title"),
	LocString("Description"),
	u("Category"),
	u("Points"),
	u("UIOrder"),
	flags("Flags"),
	ref("IconID", "SpellIcon"),
	LocString("Reward"),
	u("MinimumCriteria"),
	u("SharesCriteria"),
)

var areaTableTable = concat(
	u("ID"),
	ref("ContinentID", "Map"),
	ref("ParentAreaID", "AreaTable"),
	u("AreaBit"),
	flags("Flags"),
	u("SoundProviderPref"),
	u("SoundProviderPrefUnderwater"),
	u("AmbienceID"),
	u("ZoneMusic"),
	u("IntroSound"),
	i32("ExplorationLevel"),
	LocString("AreaName"),
	flags("FactionGroupMask"),
	ArrayField("LiquidTypeID", wdbc.TypeUint32, 4),
	f32("MinElevation"),
	f32("AmbientMultiplier"),
	u("LightID"),
)

var skillLineTable = concat(
	u("ID"),
	i32("CategoryID"),
	u("SkillCostID"),
	LocString("DisplayName"),
	LocString("Description"),
	ref("SpellIconID", "SpellIcon"),
	LocString("AlternateVerb"),
	u("CanLink"),
)

var skillLineAbilityTable = concat(
	u("ID"),
	ref("SkillLine", "SkillLine"),
	ref("Spell", "Spell"),
	flags("RaceMask"),
	flags("ClassMask"),
	flags("ExcludeRace"),
	flags("ExcludeClass"),
	u("MinSkillLineRank"),
	ref("SupercededBySpell", "Spell"),
	u("AcquireMethod"),
	u("TrivialSkillLineRankHigh"),
	u("TrivialSkillLineRankLow"),
	ArrayField("CharacterPoints", wdbc.TypeUint32, 2),
)

var spellRangeTable = concat(
	u("ID"),
	f32("MinRangeHostile"),
	f32("MinRangeFriend"),
	f32("MaxRangeHostile"),
	f32("MaxRangeFriend"),
	flags("Flags"),
	LocString("DisplayName"),
	LocString("DisplayNameShort"),
)

var spellVisualTable = concat(
	u("ID"),
	u("PrecastKit"),
	u("CastKit"),
	u("ImpactKit"),
	u("StateKit"),
	u("StateDoneKit"),
	u("ChannelKit"),
	u("HasMissile"),
	i32("MissileModel"),
	u("MissilePathType"),
	u("MissileDestinationAttachment"),
	u("MissileSound"),
	u("AnimEventSoundID"),
	flags("Flags"),
	u("CasterImpactKit"),
	u("TargetImpactKit"),
	i32("MissileAttachment"),
	u("MissileFollowGroundHeight"),
	u("MissileFollowGroundDropSpeed"),
	u("MissileFollowGroundApproach"),
	flags("MissileFollowGroundFlags"),
	u("MissileMotion"),
	u("MissileTargetingKit"),
	u("InstantAreaKit"),
	u("ImpactAreaKit"),
	u("PersistentAreaKit"),
	f32("MissileCastOffsetX"),
	f32("MissileCastOffsetY"),
	f32("MissileCastOffsetZ"),
	f32("MissileImpactOffsetX"),
	f32("MissileImpactOffsetY"),
	f32("MissileImpactOffsetZ"),
)

var spellMissileTable = concat(
	u("ID"),
	flags("Flags"),
	f32("DefaultPitchMin"),
	f32("DefaultPitchMax"),
	f32("DefaultSpeedMin"),
	f32("DefaultSpeedMax"),
	f32("RandomizeFacingMin"),
	f32("RandomizeFacingMax"),
	f32("RandomizePitchMin"),
	f32("RandomizePitchMax"),
	f32("RandomizeSpeedMin"),
	f32("RandomizeSpeedMax"),
	f32("Gravity"),
	f32("MaxDuration"),
	f32("CollisionRadius"),
)

var creatureFamilyTable = concat(
	u("ID"),
	f32("MinScale"),
	u("MinScaleLevel"),
	f32("MaxScale"),
	u("MaxScaleLevel"),
	refArray("SkillLine", 2, "SkillLine"),
	flags("PetFoodMask"),
	i32("PetTalentType"),
	i32("CategoryEnumID"),
	LocString("Name"),
	str("IconFile"),
)

var itemTable = concat(
	u("ID"),
	ref("ClassID", "ItemClass"),
	u("SubclassID"),
	i32("SoundOverrideSubclassID"),
	u("Material"),
	u("DisplayInfoID"),
	u("InventoryType"),
	u("SheatheType"),
)
