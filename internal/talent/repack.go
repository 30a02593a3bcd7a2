package talent

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/surreal-wow/sdbeditor/internal/config"
	"github.com/surreal-wow/sdbeditor/internal/editstore"
	"github.com/surreal-wow/sdbeditor/internal/logging"
	"github.com/surreal-wow/sdbeditor/internal/wdbc"
)

// DisplayFileName carries the packed-slot → display-coordinate table the
// addon needs to undo the column packing visually.
const DisplayFileName = "SurrealTalentDisplay_AIO.lua"

const displayGlobal = "SURREAL_TALENT_DISPLAY"

// clientColumns is the 3.3.5a client's hard ColumnIndex cap.
const clientColumns = 4

// ErrNotTalentLayout flags DBC files whose decoded fields are missing the
// columns the repack rewrites.
var ErrNotTalentLayout = errors.New("talent repack: unexpected table layout")

// Repacker rewrites Talent.dbc so every ColumnIndex fits the client cap,
// emitting the real display coordinates as Lua. Offline tooling only:
// deploying a repacked Talent.dbc to a live worldserver is not safe.
type Repacker struct {
	store editstore.Tables
	cfg   *config.Config
	log   *logrus.Entry
}

// NewRepacker wires a repacker.
func NewRepacker(store editstore.Tables, cfg *config.Config, log *logrus.Entry) *Repacker {
	if log == nil {
		log = logging.Discard()
	}
	return &Repacker{store: store, cfg: cfg, log: log}
}

// RepackResult summarizes one repack run.
type RepackResult struct {
	Classes int      `json:"classes"`
	Tabs    int      `json:"tabs"`
	Talents int      `json:"talents"`
	Moved   int      `json:"moved"`
	Wrote   []string `json:"wrote"`
}

// classCoords is one class's packed-slot coordinate table, in emit order.
type classCoords struct {
	Token string
	Tabs  [][]displaySlot // [tabNumber-1][slot]
}

type displaySlot struct {
	Row, Col uint32
}

// Repack packs every class tab's talents into columns 0..3 row-major —
// sorted by (row, col), lowest talent ID forced into slot 0 — writes the
// modified Talent.dbc through the edit store, and emits the display
// coordinate Lua to both deploy directories.
func (r *Repacker) Repack() (*RepackResult, error) {
	talents, err := r.store.ReadTable("Talent.dbc")
	if err != nil {
		return nil, err
	}
	tabs, err := r.store.ReadTable("TalentTab.dbc")
	if err != nil {
		return nil, err
	}
	classes, err := r.store.ReadTable("ChrClasses.dbc")
	if err != nil {
		return nil, err
	}

	tabIDIdx := fieldIndex(talents.Fields, "TabID")
	tierIdx := fieldIndex(talents.Fields, "TierID")
	colIdx := fieldIndex(talents.Fields, "ColumnIndex")
	classMaskIdx := fieldIndex(tabs.Fields, "ClassMask")
	petMaskIdx := fieldIndex(tabs.Fields, "PetTalentMask")
	orderIdx := fieldIndex(tabs.Fields, "OrderIndex")
	tokenIdx := fieldIndex(classes.Fields, "Filename")
	for _, i := range []int{tabIDIdx, tierIdx, colIdx, classMaskIdx, petMaskIdx, orderIdx, tokenIdx} {
		if i < 0 {
			return nil, ErrNotTalentLayout
		}
	}

	// Work on copies: the store hands out its cached decode.
	records := make([]wdbc.Row, len(talents.Records))
	for i, row := range talents.Records {
		records[i] = append(wdbc.Row(nil), row...)
	}

	byTab := make(map[uint32][]int)
	for i, row := range records {
		tabID := wdbc.CellUint32(row[tabIDIdx])
		byTab[tabID] = append(byTab[tabID], i)
	}

	type classEntry struct {
		id    uint32
		token string
	}
	classList := make([]classEntry, 0, len(classes.Records))
	for i, row := range classes.Records {
		id := classes.ID(i)
		if id == 0 || id > 31 {
			continue
		}
		token := strings.TrimSpace(wdbc.CellString(row[tokenIdx]))
		if token == "" {
			continue
		}
		classList = append(classList, classEntry{id: id, token: token})
	}
	sort.Slice(classList, func(i, j int) bool { return classList[i].id < classList[j].id })

	res := &RepackResult{}
	var coords []classCoords
	for _, ce := range classList {
		mask := uint32(1) << (ce.id - 1)

		type tabEntry struct{ id, order uint32 }
		var classTabs []tabEntry
		for i, row := range tabs.Records {
			if wdbc.CellUint32(row[petMaskIdx]) != 0 {
				continue
			}
			if wdbc.CellUint32(row[classMaskIdx])&mask == 0 {
				continue
			}
			classTabs = append(classTabs, tabEntry{id: tabs.ID(i), order: wdbc.CellUint32(row[orderIdx])})
		}
		if len(classTabs) == 0 {
			continue
		}
		sort.Slice(classTabs, func(i, j int) bool {
			if classTabs[i].order != classTabs[j].order {
				return classTabs[i].order < classTabs[j].order
			}
			return classTabs[i].id < classTabs[j].id
		})

		cc := classCoords{Token: ce.token}
		for _, te := range classTabs {
			idxs := append([]int(nil), byTab[te.id]...)
			sort.Slice(idxs, func(a, b int) bool {
				ra, rb := records[idxs[a]], records[idxs[b]]
				ta, tb := wdbc.CellUint32(ra[tierIdx]), wdbc.CellUint32(rb[tierIdx])
				if ta != tb {
					return ta < tb
				}
				ca, cb := wdbc.CellUint32(ra[colIdx]), wdbc.CellUint32(rb[colIdx])
				if ca != cb {
					return ca < cb
				}
				return wdbc.CellUint32(ra[0]) < wdbc.CellUint32(rb[0])
			})
			moveLowestIDFirst(records, idxs)

			slots := make([]displaySlot, 0, len(idxs))
			for slot, ri := range idxs {
				row := records[ri]
				origTier := wdbc.CellUint32(row[tierIdx])
				origCol := wdbc.CellUint32(row[colIdx])
				newTier := uint32(slot / clientColumns)
				newCol := uint32(slot % clientColumns)
				if origTier != newTier || origCol != newCol {
					row[tierIdx] = newTier
					row[colIdx] = newCol
					res.Moved++
				}
				slots = append(slots, displaySlot{Row: origTier, Col: origCol})
				res.Talents++
			}
			cc.Tabs = append(cc.Tabs, slots)
			res.Tabs++
		}
		coords = append(coords, cc)
		res.Classes++
	}

	if res.Moved > 0 {
		if _, err := r.store.Save("Talent.dbc", talents.Fields, records); err != nil {
			return nil, fmt.Errorf("talent repack: %w", err)
		}
	}

	wrote, err := writeBoth(r.cfg.TalentDeployDirs(), DisplayFileName, emitDisplay(coords))
	res.Wrote = wrote
	if err != nil {
		return nil, err
	}

	r.log.WithFields(logrus.Fields{
		"classes": res.Classes,
		"tabs":    res.Tabs,
		"talents": res.Talents,
		"moved":   res.Moved,
	}).Info("repacked talent columns")
	return res, nil
}

// moveLowestIDFirst rotates the minimum-ID talent into slot 0, keeping the
// relative order of the rest. The client treats index 0 as the tab anchor.
func moveLowestIDFirst(records []wdbc.Row, idxs []int) {
	if len(idxs) < 2 {
		return
	}
	min := 0
	for i := 1; i < len(idxs); i++ {
		if wdbc.CellUint32(records[idxs[i]][0]) < wdbc.CellUint32(records[idxs[min]][0]) {
			min = i
		}
	}
	if min == 0 {
		return
	}
	anchor := idxs[min]
	copy(idxs[1:min+1], idxs[:min])
	idxs[0] = anchor
}

// emitDisplay renders the coordinate Lua: token → tabNumber → packed slot →
// original (row, col).
func emitDisplay(coords []classCoords) []byte {
	var b luaBuilder
	b.line(0, "-- %s", DisplayFileName)
	b.line(0, "-- Display coordinates for column-packed talents. Generated; do not edit.")
	b.line(0, "%s = {", displayGlobal)
	for _, cc := range coords {
		b.line(1, "[%s] = {", luaString(cc.Token))
		for tabNumber, slots := range cc.Tabs {
			b.line(2, "[%d] = {", tabNumber+1)
			for slot, d := range slots {
				b.line(3, "[%d] = { row = %d, col = %d },", slot+1, d.Row, d.Col)
			}
			b.line(2, "},")
		}
		b.line(1, "},")
	}
	b.line(0, "}")
	return b.bytes()
}

// fieldIndex finds a decoded column by schema name.
func fieldIndex(fields []wdbc.Field, name string) int {
	for i, f := range fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}
