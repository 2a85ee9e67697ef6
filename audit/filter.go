package audit

import (
	"fmt"
	"strings"

	"github.com/armon/go-radix"
)

// filterKind selects whether a parsed expression's matched set is kept
// (include) or dropped (exclude).
type filterKind int

const (
	filterInclude filterKind = iota
	filterExclude
)

// FilterExpr is a parsed `include(...)`/`exclude(...)` filter-graph
// expression, ready to be applied to a DepGraph via DepGraph.Filter.
type FilterExpr struct {
	kind filterKind
	q    query
}

// query is the shared interface for any(...), all(...), not(...), and leaf
// property predicates.
type query interface {
	eval(n *Node) bool
}

type anyQuery struct{ qs []query }

func (q anyQuery) eval(n *Node) bool {
	for _, sub := range q.qs {
		if sub.eval(n) {
			return true
		}
	}
	return false
}

type allQuery struct{ qs []query }

func (q allQuery) eval(n *Node) bool {
	for _, sub := range q.qs {
		if !sub.eval(n) {
			return false
		}
	}
	return true
}

type notQuery struct{ q query }

func (q notQuery) eval(n *Node) bool { return !q.q.eval(n) }

// propName enumerates the recognized leaf-property names. A radix trie is
// used to look them up (and reject unknown ones with a clean error) the
// same way the teacher lineage's own gps package wraps armon/go-radix for
// its deducer-path lookups, rather than a chain of string-equality checks.
type propName int

const (
	propNameIdent propName = iota
	propVersion
	propIsRoot
	propIsWorkspaceMember
	propIsThirdParty
	propIsDevOnly
)

var propTrie = func() *radix.Tree {
	t := radix.New()
	t.Insert("name", propNameIdent)
	t.Insert("version", propVersion)
	t.Insert("is_root", propIsRoot)
	t.Insert("is_workspace_member", propIsWorkspaceMember)
	t.Insert("is_third_party", propIsThirdParty)
	t.Insert("is_dev_only", propIsDevOnly)
	return t
}()

type propQuery struct {
	prop propName
	str  string // for name(), version()
	b    bool   // for the boolean props
}

func (q propQuery) eval(n *Node) bool {
	switch q.prop {
	case propNameIdent:
		return n.ID.Name == q.str
	case propVersion:
		return n.ID.Version.String() == q.str
	case propIsRoot:
		return n.IsRoot == q.b
	case propIsWorkspaceMember:
		return n.IsWorkspaceMember == q.b
	case propIsThirdParty:
		return n.isThirdParty() == q.b
	case propIsDevOnly:
		return n.IsDevOnly == q.b
	default:
		return false
	}
}

// FilterParseError reports a malformed filter expression with a
// character-offset into the input, matching the contract the teacher
// lineage's own `--filter-graph` flag documents.
type FilterParseError struct {
	Input  string
	Offset int
	Msg    string
}

func (e *FilterParseError) Error() string {
	return fmt.Sprintf("filter parse error at offset %d: %s", e.Offset, e.Msg)
}

// ParseFilterExpr parses a `filter-graph` expression per the grammar:
//
//	filter  := 'include(' q ')' | 'exclude(' q ')'
//	q       := 'any(' q (',' q)+ ')'
//	         | 'all(' q (',' q)+ ')'
//	         | 'not(' q ')'
//	         | prop
//	prop    := name(IDENT) | version(SEMVER) | is_root(BOOL)
//	         | is_workspace_member(BOOL) | is_third_party(BOOL) | is_dev_only(BOOL)
//
// Whitespace is insignificant between tokens.
func ParseFilterExpr(input string) (*FilterExpr, error) {
	p := &filterParser{s: input}
	p.skipSpace()
	var kind filterKind
	switch {
	case p.consumeLit("include("):
		kind = filterInclude
	case p.consumeLit("exclude("):
		kind = filterExclude
	default:
		return nil, p.errf("expected 'include(' or 'exclude('")
	}
	q, err := p.parseQuery()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if !p.consumeLit(")") {
		return nil, p.errf("expected ')'")
	}
	p.skipSpace()
	if p.pos != len(p.s) {
		return nil, p.errf("unexpected trailing input")
	}
	return &FilterExpr{kind: kind, q: q}, nil
}

type filterParser struct {
	s   string
	pos int
}

func (p *filterParser) errf(format string, args ...interface{}) error {
	return &FilterParseError{Input: p.s, Offset: p.pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *filterParser) skipSpace() {
	for p.pos < len(p.s) && (p.s[p.pos] == ' ' || p.s[p.pos] == '\t' || p.s[p.pos] == '\n') {
		p.pos++
	}
}

func (p *filterParser) consumeLit(lit string) bool {
	p.skipSpace()
	if strings.HasPrefix(p.s[p.pos:], lit) {
		p.pos += len(lit)
		return true
	}
	return false
}

func (p *filterParser) parseQuery() (query, error) {
	p.skipSpace()
	switch {
	case p.consumeLit("any("):
		qs, err := p.parseQueryList()
		if err != nil {
			return nil, err
		}
		if !p.consumeLit(")") {
			return nil, p.errf("expected ')' closing any(")
		}
		return anyQuery{qs: qs}, nil
	case p.consumeLit("all("):
		qs, err := p.parseQueryList()
		if err != nil {
			return nil, err
		}
		if !p.consumeLit(")") {
			return nil, p.errf("expected ')' closing all(")
		}
		return allQuery{qs: qs}, nil
	case p.consumeLit("not("):
		sub, err := p.parseQuery()
		if err != nil {
			return nil, err
		}
		if !p.consumeLit(")") {
			return nil, p.errf("expected ')' closing not(")
		}
		return notQuery{q: sub}, nil
	default:
		return p.parseProp()
	}
}

func (p *filterParser) parseQueryList() ([]query, error) {
	var out []query
	for {
		q, err := p.parseQuery()
		if err != nil {
			return nil, err
		}
		out = append(out, q)
		p.skipSpace()
		if p.consumeLit(",") {
			continue
		}
		break
	}
	if len(out) < 2 {
		return nil, p.errf("any()/all() require at least two sub-expressions")
	}
	return out, nil
}

func (p *filterParser) parseProp() (query, error) {
	p.skipSpace()
	start := p.pos
	for p.pos < len(p.s) && isIdentByte(p.s[p.pos]) {
		p.pos++
	}
	name := p.s[start:p.pos]
	if name == "" {
		return nil, p.errf("expected a property name")
	}
	v, ok := propTrie.Get(name)
	if !ok {
		return nil, &FilterParseError{Input: p.s, Offset: start, Msg: fmt.Sprintf("unknown property %q", name)}
	}
	if !p.consumeLit("(") {
		return nil, p.errf("expected '(' after %q", name)
	}
	p.skipSpace()
	argStart := p.pos
	depth := 1
	for p.pos < len(p.s) && depth > 0 {
		switch p.s[p.pos] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				continue
			}
		}
		p.pos++
	}
	if depth != 0 {
		return nil, p.errf("unterminated argument to %q", name)
	}
	arg := strings.TrimSpace(p.s[argStart:p.pos])
	if !p.consumeLit(")") {
		return nil, p.errf("expected ')' closing %q", name)
	}

	prop := v.(propName)
	switch prop {
	case propNameIdent, propVersion:
		if arg == "" {
			return nil, &FilterParseError{Input: p.s, Offset: argStart, Msg: "expected a value"}
		}
		return propQuery{prop: prop, str: arg}, nil
	default:
		b, err := parseBool(arg)
		if err != nil {
			return nil, &FilterParseError{Input: p.s, Offset: argStart, Msg: err.Error()}
		}
		return propQuery{prop: prop, b: b}, nil
	}
}

func isIdentByte(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func parseBool(s string) (bool, error) {
	switch s {
	case "true":
		return true, nil
	case "false":
		return false, nil
	default:
		return false, fmt.Errorf("expected 'true' or 'false', got %q", s)
	}
}
