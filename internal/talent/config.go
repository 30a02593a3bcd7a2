// Package talent turns talent-tree definitions into the Lua the game client
// addon loads. The preferred pipeline reads talent-config.json and emits a
// single SURREAL_TALENT_TREES global; it never touches DBC files. The legacy
// Talent.dbc repack survives as library code for offline use (see repack.go).
package talent

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
)

// MaxTabs is the canonical tab range: three specializations plus the shared
// class tree plus one spare.
const MaxTabs = 5

// ErrNoClasses flags a config that parses but defines nothing deployable.
var ErrNoClasses = errors.New("talent config defines no classes")

// configFile mirrors talent-config.json.
type configFile struct {
	Classes map[string]classConfig `json:"classes"`
}

type classConfig struct {
	ClassName string       `json:"className"`
	Specs     []specConfig `json:"specs"`
	ClassTree *specConfig  `json:"classTree"`
}

type specConfig struct {
	Name      string         `json:"name"`
	Rows      int            `json:"rows"`
	Cols      int            `json:"cols"`
	Talents   []talentConfig `json:"talents"`
	HeroTrees []specConfig   `json:"heroTrees"`
}

type talentConfig struct {
	ID           uint32   `json:"id"`
	Name         string   `json:"name"`
	Icon         string   `json:"icon"`
	Row          int      `json:"row"`
	Col          int      `json:"col"`
	MaxRank      int      `json:"maxRank"`
	Ranks        []uint32 `json:"ranks"`
	Requires     uint32   `json:"requires"`
	RequiresRank int      `json:"requiresRank"`
}

// Tree is one class's normalized talent configuration.
type Tree struct {
	ClassID   uint32
	ClassName string
	Tabs      []Tab // ordered by Index
}

// Tab is one talent tree: a spec, or the shared class tree.
type Tab struct {
	Index     int // 1-based tabIdx
	Name      string
	Rows      int
	Cols      int
	Talents   []Talent
	HeroTrees []HeroTree
}

// HeroTree is a named sub-tree attached to a spec tab.
type HeroTree struct {
	Name    string
	Talents []Talent
}

// Talent is one node. Ranks lists the spell ID per rank; MaxRank defaults to
// len(Ranks) when unset.
type Talent struct {
	ID           uint32
	Name         string
	Icon         string
	Row          int
	Col          int
	MaxRank      int
	Ranks        []uint32
	Requires     uint32
	RequiresRank int
}

// ParseConfig reads and normalizes talent-config.json.
func ParseConfig(path string) ([]Tree, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("talent config: %w", err)
	}
	return parseConfig(data)
}

func parseConfig(data []byte) ([]Tree, error) {
	var raw configFile
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("talent config: %w", err)
	}
	if len(raw.Classes) == 0 {
		return nil, ErrNoClasses
	}

	trees := make([]Tree, 0, len(raw.Classes))
	for key, cls := range raw.Classes {
		classID, err := strconv.ParseUint(key, 10, 32)
		if err != nil || classID == 0 {
			return nil, fmt.Errorf("talent config: class key %q is not a class id", key)
		}
		tree, err := normalizeClass(uint32(classID), cls)
		if err != nil {
			return nil, err
		}
		trees = append(trees, tree)
	}
	sort.Slice(trees, func(i, j int) bool { return trees[i].ClassID < trees[j].ClassID })
	return trees, nil
}

// normalizeClass assigns tabIdx 1..MaxTabs: specs in array order, then the
// class tree. Talents get synthetic IDs where the config omits them and are
// ordered by (row, col, id).
func normalizeClass(classID uint32, cls classConfig) (Tree, error) {
	specs := cls.Specs
	total := len(specs)
	if cls.ClassTree != nil {
		total++
	}
	if total == 0 {
		return Tree{}, fmt.Errorf("talent config: class %d has no trees", classID)
	}
	if total > MaxTabs {
		return Tree{}, fmt.Errorf("talent config: class %d has %d trees, max %d", classID, total, MaxTabs)
	}

	tree := Tree{ClassID: classID, ClassName: cls.ClassName, Tabs: make([]Tab, 0, total)}
	for i, spec := range specs {
		tab, err := normalizeTab(classID, i+1, spec)
		if err != nil {
			return Tree{}, err
		}
		tree.Tabs = append(tree.Tabs, tab)
	}
	if cls.ClassTree != nil {
		tab, err := normalizeTab(classID, len(specs)+1, *cls.ClassTree)
		if err != nil {
			return Tree{}, err
		}
		tree.Tabs = append(tree.Tabs, tab)
	}
	return tree, nil
}

func normalizeTab(classID uint32, tabIdx int, spec specConfig) (Tab, error) {
	talents, err := normalizeTalents(classID, tabIdx, 0, spec.Talents)
	if err != nil {
		return Tab{}, err
	}
	tab := Tab{
		Index:   tabIdx,
		Name:    spec.Name,
		Rows:    spec.Rows,
		Cols:    spec.Cols,
		Talents: talents,
	}
	for hi, hero := range spec.HeroTrees {
		ht, err := normalizeTalents(classID, tabIdx, hi+1, hero.Talents)
		if err != nil {
			return Tab{}, err
		}
		tab.HeroTrees = append(tab.HeroTrees, HeroTree{Name: hero.Name, Talents: ht})
	}

	// Grid bounds default to what the talents actually occupy.
	for _, t := range tab.Talents {
		if t.Row+1 > tab.Rows {
			tab.Rows = t.Row + 1
		}
		if t.Col+1 > tab.Cols {
			tab.Cols = t.Col + 1
		}
	}
	return tab, nil
}

// normalizeTalents validates one talent list and fills fallbacks. Synthetic
// IDs are positional — classID*100000 + tabIdx*10000 + heroIdx*1000 + n —
// so re-deploying an unchanged config reproduces them exactly.
func normalizeTalents(classID uint32, tabIdx, heroIdx int, in []talentConfig) ([]Talent, error) {
	out := make([]Talent, 0, len(in))
	for n, tc := range in {
		if tc.Row < 0 || tc.Col < 0 {
			return nil, fmt.Errorf("talent config: class %d tab %d: %q has negative coordinates", classID, tabIdx, tc.Name)
		}
		t := Talent{
			ID:           tc.ID,
			Name:         tc.Name,
			Icon:         tc.Icon,
			Row:          tc.Row,
			Col:          tc.Col,
			MaxRank:      tc.MaxRank,
			Ranks:        tc.Ranks,
			Requires:     tc.Requires,
			RequiresRank: tc.RequiresRank,
		}
		if t.ID == 0 {
			t.ID = classID*100000 + uint32(tabIdx)*10000 + uint32(heroIdx)*1000 + uint32(n) + 1
		}
		if t.MaxRank == 0 {
			t.MaxRank = len(t.Ranks)
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Row != b.Row {
			return a.Row < b.Row
		}
		if a.Col != b.Col {
			return a.Col < b.Col
		}
		return a.ID < b.ID
	})
	return out, nil
}
