package audit

import (
	"sort"

	"github.com/pkg/errors"
)

// Built-in criteria names that always exist, regardless of what the store's
// criteria table declares.
const (
	SafeToRun    CriteriaName = "safe-to-run"
	SafeToDeploy CriteriaName = "safe-to-deploy"
)

// CriteriaName is a lowercase identifier naming a criterion, e.g.
// "safe-to-deploy".
type CriteriaName string

// CriteriaIdx is a stable bit position assigned to a CriteriaName within a
// particular CriteriaMapper. Indices are only meaningful relative to the
// mapper that produced them.
type CriteriaIdx int

// CriteriaEntry describes one criterion as declared in the store's audits
// file, plus the two always-present built-ins.
type CriteriaEntry struct {
	Description    string
	DescriptionURL string
	Implies        []CriteriaName
}

const wordBits = 64

// CriteriaSet is a bitset over a fixed enumeration of criteria known to a
// CriteriaMapper. The zero value is the empty set.
type CriteriaSet struct {
	words []uint64
}

func newCriteriaSet(nwords int) CriteriaSet {
	return CriteriaSet{words: make([]uint64, nwords)}
}

func (s CriteriaSet) clone() CriteriaSet {
	w := make([]uint64, len(s.words))
	copy(w, s.words)
	return CriteriaSet{words: w}
}

func (s CriteriaSet) has(idx CriteriaIdx) bool {
	w, b := int(idx)/wordBits, uint(idx)%wordBits
	if w >= len(s.words) {
		return false
	}
	return s.words[w]&(1<<b) != 0
}

func (s CriteriaSet) with(idx CriteriaIdx) CriteriaSet {
	out := s.clone()
	w, b := int(idx)/wordBits, uint(idx)%wordBits
	for w >= len(out.words) {
		out.words = append(out.words, 0)
	}
	out.words[w] |= 1 << b
	return out
}

// IsEmpty reports whether the set has no bits set.
func (s CriteriaSet) IsEmpty() bool {
	for _, w := range s.words {
		if w != 0 {
			return false
		}
	}
	return true
}

// Union returns the bitwise union of s and o.
func (s CriteriaSet) Union(o CriteriaSet) CriteriaSet {
	n := len(s.words)
	if len(o.words) > n {
		n = len(o.words)
	}
	out := newCriteriaSet(n)
	for i := range out.words {
		var a, b uint64
		if i < len(s.words) {
			a = s.words[i]
		}
		if i < len(o.words) {
			b = o.words[i]
		}
		out.words[i] = a | b
	}
	return out
}

// Intersect returns the bitwise intersection of s and o.
func (s CriteriaSet) Intersect(o CriteriaSet) CriteriaSet {
	n := len(s.words)
	if len(o.words) < n {
		n = len(o.words)
	}
	out := newCriteriaSet(n)
	for i := 0; i < n; i++ {
		out.words[i] = s.words[i] & o.words[i]
	}
	return out
}

// Contains reports whether every bit set in o is also set in s.
func (s CriteriaSet) Contains(o CriteriaSet) bool {
	for i, b := range o.words {
		var a uint64
		if i < len(s.words) {
			a = s.words[i]
		}
		if a&b != b {
			return false
		}
	}
	return true
}

// Equal reports whether s and o have exactly the same bits set.
func (s CriteriaSet) Equal(o CriteriaSet) bool {
	return s.Contains(o) && o.Contains(s)
}

// CriteriaMapper normalizes criteria names into a compact bitset universe
// and precomputes the reflexive-transitive closure of the `implies` DAG.
//
// A CriteriaMapper is built once per store load and is immutable afterward.
type CriteriaMapper struct {
	names   []CriteriaName
	index   map[CriteriaName]CriteriaIdx
	closure []CriteriaSet // closure[idx] includes idx itself
}

// NewCriteriaMapper builds a mapper from the store's declared criteria
// table, folding in the two built-in criteria and their fixed implication
// (safe-to-deploy implies safe-to-run). Returns a StoreValidation error if
// the implies relation contains a cycle or references an unknown name.
func NewCriteriaMapper(table map[CriteriaName]CriteriaEntry) (*CriteriaMapper, error) {
	merged := make(map[CriteriaName]CriteriaEntry, len(table)+2)
	for k, v := range table {
		merged[k] = v
	}
	if _, ok := merged[SafeToRun]; !ok {
		merged[SafeToRun] = CriteriaEntry{}
	}
	if e, ok := merged[SafeToDeploy]; ok {
		if !containsName(e.Implies, SafeToRun) {
			e.Implies = append(append([]CriteriaName{}, e.Implies...), SafeToRun)
		}
		merged[SafeToDeploy] = e
	} else {
		merged[SafeToDeploy] = CriteriaEntry{Implies: []CriteriaName{SafeToRun}}
	}

	names := make([]CriteriaName, 0, len(merged))
	for n := range merged {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })

	index := make(map[CriteriaName]CriteriaIdx, len(names))
	for i, n := range names {
		index[n] = CriteriaIdx(i)
	}

	for n, e := range merged {
		for _, imp := range e.Implies {
			if _, ok := index[imp]; !ok {
				return nil, errors.Errorf("criterion %q implies unknown criterion %q", n, imp)
			}
		}
	}

	if cyc := findImpliesCycle(names, merged); cyc != nil {
		return nil, errors.Errorf("cyclic criteria implication: %v", cyc)
	}

	nwords := (len(names) + wordBits - 1) / wordBits
	if nwords == 0 {
		nwords = 1
	}

	m := &CriteriaMapper{names: names, index: index}
	m.closure = make([]CriteriaSet, len(names))
	for i, n := range names {
		s := newCriteriaSet(nwords).with(CriteriaIdx(i))
		// Repeated union to a fixed point: at each pass OR in the direct
		// implications of every bit already in the set, until nothing
		// changes. The DAG is small (tens of criteria at most) so this
		// converges in a handful of passes.
		for {
			next := s
			for j, jn := range names {
				if !s.has(CriteriaIdx(j)) {
					continue
				}
				for _, imp := range merged[jn].Implies {
					next = next.with(index[imp])
				}
			}
			if next.Equal(s) {
				break
			}
			s = next
		}
		m.closure[i] = s
	}
	return m, nil
}

func containsName(ns []CriteriaName, n CriteriaName) bool {
	for _, x := range ns {
		if x == n {
			return true
		}
	}
	return false
}

// findImpliesCycle runs a gray/black DFS over the implies relation and
// returns the offending cycle (as a slice of names) if one exists.
func findImpliesCycle(names []CriteriaName, table map[CriteriaName]CriteriaEntry) []CriteriaName {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[CriteriaName]int, len(names))
	var stack []CriteriaName
	var cycle []CriteriaName

	var visit func(n CriteriaName) bool
	visit = func(n CriteriaName) bool {
		color[n] = gray
		stack = append(stack, n)
		for _, imp := range table[n].Implies {
			switch color[imp] {
			case gray:
				// Found the back-edge; extract the cycle from the stack.
				for i, s := range stack {
					if s == imp {
						cycle = append(append([]CriteriaName{}, stack[i:]...), imp)
						break
					}
				}
				return true
			case white:
				if visit(imp) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[n] = black
		return false
	}

	for _, n := range names {
		if color[n] == white {
			if visit(n) {
				return cycle
			}
		}
	}
	return nil
}

// Index returns the bit position assigned to name, if known.
func (m *CriteriaMapper) Index(name CriteriaName) (CriteriaIdx, bool) {
	idx, ok := m.index[name]
	return idx, ok
}

// Known reports whether name exists in this mapper's universe.
func (m *CriteriaMapper) Known(name CriteriaName) bool {
	_, ok := m.index[name]
	return ok
}

// SetFrom builds a CriteriaSet containing every name in names, OR'd with
// each name's precomputed implication closure. Unknown names are ignored
// (callers that must reject unknown names should check Known first).
func (m *CriteriaMapper) SetFrom(names ...CriteriaName) CriteriaSet {
	out := newCriteriaSet(len(m.closure)/wordBits + 1)
	for _, n := range names {
		if idx, ok := m.index[n]; ok {
			out = out.Union(m.closure[idx])
		}
	}
	return out
}

// Names returns the minimal set of names whose combined closure equals set:
// a name is included only if no other included name's closure already
// covers it. This is what makes "safe-to-deploy" subsume "safe-to-run" in
// rendered output.
func (m *CriteriaMapper) Names(set CriteriaSet) []CriteriaName {
	var present []CriteriaIdx
	for i := range m.names {
		if set.has(CriteriaIdx(i)) {
			present = append(present, CriteriaIdx(i))
		}
	}

	var minimal []CriteriaName
	for _, idx := range present {
		subsumed := false
		for _, other := range present {
			if other == idx {
				continue
			}
			if m.closure[other].has(idx) && !m.closure[idx].has(other) {
				subsumed = true
				break
			}
		}
		if !subsumed {
			minimal = append(minimal, m.names[idx])
		}
	}
	sort.Slice(minimal, func(i, j int) bool { return minimal[i] < minimal[j] })
	return minimal
}

// Clear removes name from set, together with every criterion that implies
// it, and any other bit that is no longer implied by anything remaining.
func (m *CriteriaMapper) Clear(set CriteriaSet, name CriteriaName) CriteriaSet {
	nameIdx, ok := m.index[name]
	if !ok {
		return set
	}
	minimal := m.Names(set)
	out := newCriteriaSet(len(set.words))
	for _, n := range minimal {
		i := m.index[n]
		if m.closure[i].has(nameIdx) {
			// n is name itself, or implies it: keeping n would keep name.
			continue
		}
		out = out.Union(m.closure[i])
	}
	return out
}

// Close returns the reflexive-transitive closure of a single criterion.
func (m *CriteriaMapper) Close(name CriteriaName) (CriteriaSet, bool) {
	idx, ok := m.index[name]
	if !ok {
		return CriteriaSet{}, false
	}
	return m.closure[idx], true
}

// All returns every known criterion name, sorted.
func (m *CriteriaMapper) All() []CriteriaName {
	out := make([]CriteriaName, len(m.names))
	copy(out, m.names)
	return out
}
