package talent

import (
	"errors"
	"fmt"
	"sort"

	"github.com/surreal-wow/sdbeditor/internal/editstore"
	"github.com/surreal-wow/sdbeditor/internal/wdbc"
)

// talentRanks is the SpellRank_N column count in the 3.3.5a Talent layout.
const talentRanks = 9

// ErrUnknownClass flags class IDs outside the ClassMask bit range.
var ErrUnknownClass = errors.New("talent: class id out of range")

// FlatTalent is one Talent.dbc row joined with its tab, shaped for tree
// rendering. Row and Col are the stored DBC coordinates.
type FlatTalent struct {
	ID          uint32 `json:"id"`
	TabID       uint32 `json:"tabId"`
	TabName     string `json:"tabName"`
	Row         uint32 `json:"row"`
	Col         uint32 `json:"col"`
	Ranks       int    `json:"ranks"`
	SpellID     uint32 `json:"spellId"`
	DependsOn   uint32 `json:"dependsOn,omitempty"`
	DependsRank uint32 `json:"dependsRank,omitempty"`
}

// FlattenClass lists one class's character talents as a single slice, tabs
// in display order and talents in (row, col, id) order within each tab. Pet
// tabs are excluded. A class with no talent tabs yields an empty slice.
func FlattenClass(store editstore.Tables, classID uint32) ([]FlatTalent, error) {
	if classID == 0 || classID > 31 {
		return nil, fmt.Errorf("%w: %d", ErrUnknownClass, classID)
	}

	talents, err := store.ReadTable("Talent.dbc")
	if err != nil {
		return nil, err
	}
	tabs, err := store.ReadTable("TalentTab.dbc")
	if err != nil {
		return nil, err
	}

	tabIDIdx := fieldIndex(talents.Fields, "TabID")
	tierIdx := fieldIndex(talents.Fields, "TierID")
	colIdx := fieldIndex(talents.Fields, "ColumnIndex")
	prereqIdx := fieldIndex(talents.Fields, "PrereqTalent_1")
	prereqRankIdx := fieldIndex(talents.Fields, "PrereqRank_1")
	nameIdx := fieldIndex(tabs.Fields, "Name")
	classMaskIdx := fieldIndex(tabs.Fields, "ClassMask")
	petMaskIdx := fieldIndex(tabs.Fields, "PetTalentMask")
	orderIdx := fieldIndex(tabs.Fields, "OrderIndex")
	rankIdx := make([]int, talentRanks)
	for i := range rankIdx {
		rankIdx[i] = fieldIndex(talents.Fields, fmt.Sprintf("SpellRank_%d", i+1))
	}
	for _, i := range append([]int{tabIDIdx, tierIdx, colIdx, prereqIdx, prereqRankIdx, nameIdx, classMaskIdx, petMaskIdx, orderIdx}, rankIdx...) {
		if i < 0 {
			return nil, ErrNotTalentLayout
		}
	}

	mask := uint32(1) << (classID - 1)
	type tabEntry struct {
		id    uint32
		name  string
		order uint32
	}
	var classTabs []tabEntry
	for i, row := range tabs.Records {
		if wdbc.CellUint32(row[petMaskIdx]) != 0 {
			continue
		}
		if wdbc.CellUint32(row[classMaskIdx])&mask == 0 {
			continue
		}
		classTabs = append(classTabs, tabEntry{
			id:    tabs.ID(i),
			name:  wdbc.CellString(row[nameIdx]),
			order: wdbc.CellUint32(row[orderIdx]),
		})
	}
	sort.Slice(classTabs, func(i, j int) bool {
		if classTabs[i].order != classTabs[j].order {
			return classTabs[i].order < classTabs[j].order
		}
		return classTabs[i].id < classTabs[j].id
	})

	byTab := make(map[uint32][]int)
	for i, row := range talents.Records {
		tabID := wdbc.CellUint32(row[tabIDIdx])
		byTab[tabID] = append(byTab[tabID], i)
	}

	out := make([]FlatTalent, 0, len(talents.Records))
	for _, te := range classTabs {
		idxs := byTab[te.id]
		flats := make([]FlatTalent, 0, len(idxs))
		for _, ri := range idxs {
			row := talents.Records[ri]
			ft := FlatTalent{
				ID:          talents.ID(ri),
				TabID:       te.id,
				TabName:     te.name,
				Row:         wdbc.CellUint32(row[tierIdx]),
				Col:         wdbc.CellUint32(row[colIdx]),
				SpellID:     wdbc.CellUint32(row[rankIdx[0]]),
				DependsOn:   wdbc.CellUint32(row[prereqIdx]),
				DependsRank: wdbc.CellUint32(row[prereqRankIdx]),
			}
			for _, fi := range rankIdx {
				if wdbc.CellUint32(row[fi]) != 0 {
					ft.Ranks++
				}
			}
			flats = append(flats, ft)
		}
		sort.Slice(flats, func(a, b int) bool {
			if flats[a].Row != flats[b].Row {
				return flats[a].Row < flats[b].Row
			}
			if flats[a].Col != flats[b].Col {
				return flats[a].Col < flats[b].Col
			}
			return flats[a].ID < flats[b].ID
		})
		out = append(out, flats...)
	}
	return out, nil
}
