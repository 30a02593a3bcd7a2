package spells

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/surreal-wow/sdbeditor/internal/logging"
)

// enumHeaderFiles are the worldserver headers the editor reads enum
// definitions from, relative to the AzerothCore checkout root.
var enumHeaderFiles = []string{
	"src/server/game/Miscellaneous/SharedDefines.h",
	"src/server/game/Spells/Auras/SpellAuraDefines.h",
	"src/server/game/Spells/SpellInfo.h",
	"src/server/game/Spells/SpellMgr.h",
	"src/server/game/Spells/SpellDefines.h",
}

// EnumEntry is one parsed enum constant.
type EnumEntry struct {
	Name  string `json:"name"`
	Label string `json:"label"`
	Value int64  `json:"value"`
}

// EnumExtractor parses C++ enum definitions out of the game server's
// headers, caching by source mtimes. Value expressions are evaluated with a
// closed grammar (numeric literals and | & << + - () only) — an entry using
// anything else is skipped rather than interpreted.
type EnumExtractor struct {
	root string
	log  *logrus.Entry

	mu       sync.Mutex
	cacheKey string
	cached   map[string][]EnumEntry
}

// NewEnumExtractor reads headers under the given AzerothCore root.
func NewEnumExtractor(root string, log *logrus.Entry) *EnumExtractor {
	if log == nil {
		log = logging.Discard()
	}
	return &EnumExtractor{root: root, log: log}
}

// Enums returns every parsed enum, keyed by its C++ name. Missing headers
// are skipped; a fully absent root yields an error.
func (x *EnumExtractor) Enums() (map[string][]EnumEntry, error) {
	if x.root == "" {
		return nil, fmt.Errorf("acoreRoot is not configured")
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	key, paths := x.stampKey()
	if len(paths) == 0 {
		return nil, fmt.Errorf("no enum headers found under %s", x.root)
	}
	if key == x.cacheKey && x.cached != nil {
		return x.cached, nil
	}

	out := make(map[string][]EnumEntry)
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			x.log.WithError(err).WithField("header", path).Warn("enum header unreadable")
			continue
		}
		for name, entries := range parseEnums(string(data)) {
			if _, dup := out[name]; dup {
				continue
			}
			out[name] = entries
		}
	}

	x.cacheKey = key
	x.cached = out
	return out, nil
}

// stampKey builds the cache key from each readable header's mtime.
func (x *EnumExtractor) stampKey() (string, []string) {
	var sb strings.Builder
	var paths []string
	for _, rel := range enumHeaderFiles {
		path := filepath.Join(x.root, filepath.FromSlash(rel))
		fi, err := os.Stat(path)
		if err != nil {
			continue
		}
		paths = append(paths, path)
		fmt.Fprintf(&sb, "%s:%d;", rel, fi.ModTime().UnixNano())
	}
	return sb.String(), paths
}

var (
	blockCommentRe = regexp.MustCompile(`(?s)/\*.*?\*/`)
	lineCommentRe  = regexp.MustCompile(`//[^\n]*`)
	enumRe         = regexp.MustCompile(`(?s)\benum\s+(?:class\s+)?(\w+)\s*(?::\s*[\w:]+)?\s*\{(.*?)\}\s*;`)
)

// parseEnums extracts every enum block from one header's source text.
func parseEnums(src string) map[string][]EnumEntry {
	src = blockCommentRe.ReplaceAllString(src, "")
	src = lineCommentRe.ReplaceAllString(src, "")

	out := make(map[string][]EnumEntry)
	for _, m := range enumRe.FindAllStringSubmatch(src, -1) {
		name, body := m[1], m[2]
		entries := parseEnumBody(body)
		if len(entries) == 0 {
			continue
		}
		applyLabels(entries)
		out[name] = entries
	}
	return out
}

// parseEnumBody walks comma-separated entries, carrying the implicit
// previous-plus-one counter. An entry whose expression falls outside the
// closed grammar is dropped, and so are implicit successors until the next
// explicit value re-anchors the counter.
func parseEnumBody(body string) []EnumEntry {
	var (
		entries []EnumEntry
		next    int64
		known   = true
	)
	for _, part := range strings.Split(body, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		name := part
		var expr string
		if i := strings.Index(part, "="); i >= 0 {
			name = strings.TrimSpace(part[:i])
			expr = strings.TrimSpace(part[i+1:])
		}
		if !isIdentifier(name) {
			known = false
			continue
		}

		if expr != "" {
			v, err := evalEnumExpr(expr)
			if err != nil {
				known = false
				continue
			}
			next = v
			known = true
		} else if !known {
			continue
		}

		entries = append(entries, EnumEntry{Name: name, Value: next})
		next++
	}
	return entries
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// applyLabels fills Label for every entry: the prefix shared by all names
// (cut at an underscore) is stripped, the rest is title-cased.
func applyLabels(entries []EnumEntry) {
	prefix := ""
	if len(entries) > 1 {
		prefix = commonLabelPrefix(entries)
	}
	for i := range entries {
		name := strings.TrimPrefix(entries[i].Name, prefix)
		if name == "" {
			name = entries[i].Name
		}
		entries[i].Label = titleCase(name)
	}
}

// commonLabelPrefix finds the longest shared prefix ending at an underscore.
func commonLabelPrefix(entries []EnumEntry) string {
	prefix := entries[0].Name
	for _, e := range entries[1:] {
		for !strings.HasPrefix(e.Name, prefix) {
			prefix = prefix[:len(prefix)-1]
			if prefix == "" {
				return ""
			}
		}
	}
	if i := strings.LastIndex(prefix, "_"); i >= 0 {
		return prefix[:i+1]
	}
	return ""
}

// titleCase renders SNAKE_CASE as "Snake Case".
func titleCase(s string) string {
	words := strings.Split(strings.ToLower(s), "_")
	out := words[:0]
	for _, w := range words {
		if w == "" {
			continue
		}
		out = append(out, strings.ToUpper(w[:1])+w[1:])
	}
	return strings.Join(out, " ")
}

// evalEnumExpr evaluates a value expression under the closed grammar.
// Precedence follows C: unary minus, then <<, then + -, then &, then |.
func evalEnumExpr(expr string) (int64, error) {
	toks, err := lexEnumExpr(expr)
	if err != nil {
		return 0, err
	}
	p := &enumParser{toks: toks}
	v, err := p.parseOr()
	if err != nil {
		return 0, err
	}
	if p.pos != len(p.toks) {
		return 0, fmt.Errorf("trailing tokens in %q", expr)
	}
	return v, nil
}

type enumTok struct {
	kind string // "num", "op"
	op   string
	num  int64
}

func lexEnumExpr(expr string) ([]enumTok, error) {
	var toks []enumTok
	i := 0
	for i < len(expr) {
		c := expr[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '|' || c == '&' || c == '+' || c == '-' || c == '(' || c == ')':
			toks = append(toks, enumTok{kind: "op", op: string(c)})
			i++
		case c == '<':
			if i+1 >= len(expr) || expr[i+1] != '<' {
				return nil, fmt.Errorf("unsupported operator at %q", expr[i:])
			}
			toks = append(toks, enumTok{kind: "op", op: "<<"})
			i += 2
		case c >= '0' && c <= '9':
			j := i + 1
			base := 10
			if c == '0' && j < len(expr) && (expr[j] == 'x' || expr[j] == 'X') {
				base = 16
				j++
				for j < len(expr) && isHexDigit(expr[j]) {
					j++
				}
			} else {
				for j < len(expr) && expr[j] >= '0' && expr[j] <= '9' {
					j++
				}
			}
			lit := expr[i:j]
			// C-style integer suffixes carry no value information.
			for j < len(expr) && (expr[j] == 'u' || expr[j] == 'U' || expr[j] == 'l' || expr[j] == 'L') {
				j++
			}
			var (
				v   uint64
				err error
			)
			if base == 16 {
				v, err = strconv.ParseUint(lit[2:], 16, 64)
			} else {
				v, err = strconv.ParseUint(lit, 10, 64)
			}
			if err != nil {
				return nil, fmt.Errorf("bad literal %q", lit)
			}
			toks = append(toks, enumTok{kind: "num", num: int64(v)})
			i = j
		default:
			return nil, fmt.Errorf("unsupported token at %q", expr[i:])
		}
	}
	if len(toks) == 0 {
		return nil, fmt.Errorf("empty expression")
	}
	return toks, nil
}

func isHexDigit(c byte) bool {
	return c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F'
}

type enumParser struct {
	toks []enumTok
	pos  int
}

func (p *enumParser) peekOp() string {
	if p.pos < len(p.toks) && p.toks[p.pos].kind == "op" {
		return p.toks[p.pos].op
	}
	return ""
}

func (p *enumParser) parseOr() (int64, error) {
	v, err := p.parseAnd()
	if err != nil {
		return 0, err
	}
	for p.peekOp() == "|" {
		p.pos++
		r, err := p.parseAnd()
		if err != nil {
			return 0, err
		}
		v |= r
	}
	return v, nil
}

func (p *enumParser) parseAnd() (int64, error) {
	v, err := p.parseShift()
	if err != nil {
		return 0, err
	}
	for p.peekOp() == "&" {
		p.pos++
		r, err := p.parseShift()
		if err != nil {
			return 0, err
		}
		v &= r
	}
	return v, nil
}

func (p *enumParser) parseShift() (int64, error) {
	v, err := p.parseAdd()
	if err != nil {
		return 0, err
	}
	for p.peekOp() == "<<" {
		p.pos++
		r, err := p.parseAdd()
		if err != nil {
			return 0, err
		}
		if r < 0 || r > 63 {
			return 0, fmt.Errorf("shift out of range: %d", r)
		}
		v <<= uint(r)
	}
	return v, nil
}

func (p *enumParser) parseAdd() (int64, error) {
	v, err := p.parseUnary()
	if err != nil {
		return 0, err
	}
	for {
		switch p.peekOp() {
		case "+":
			p.pos++
			r, err := p.parseUnary()
			if err != nil {
				return 0, err
			}
			v += r
		case "-":
			p.pos++
			r, err := p.parseUnary()
			if err != nil {
				return 0, err
			}
			v -= r
		default:
			return v, nil
		}
	}
}

func (p *enumParser) parseUnary() (int64, error) {
	if p.peekOp() == "-" {
		p.pos++
		v, err := p.parseUnary()
		if err != nil {
			return 0, err
		}
		return -v, nil
	}
	return p.parsePrimary()
}

func (p *enumParser) parsePrimary() (int64, error) {
	if p.pos >= len(p.toks) {
		return 0, fmt.Errorf("unexpected end of expression")
	}
	t := p.toks[p.pos]
	if t.kind == "num" {
		p.pos++
		return t.num, nil
	}
	if t.op == "(" {
		p.pos++
		v, err := p.parseOr()
		if err != nil {
			return 0, err
		}
		if p.peekOp() != ")" {
			return 0, fmt.Errorf("missing closing parenthesis")
		}
		p.pos++
		return v, nil
	}
	return 0, fmt.Errorf("unexpected token %q", t.op)
}
